package services

import (
	"context"
	"fmt"
	"log/slog"

	"academianet/apperrors"
	"academianet/logging"
	"academianet/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// CompletionOptions tune one chat completion. Zero values take the gateway defaults.
type CompletionOptions struct {
	Temperature *float64
	ModelID     string
	MaxTokens   int
}

// CompletionDefaults are applied to every call that leaves an option unset.
type CompletionDefaults struct {
	ModelID     string
	Temperature float64
	MaxTokens   int
}

// Completer sends normalized messages to a chat model and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, messages []models.Message, opts CompletionOptions) (string, error)
}

// resolved is the effective option set for one call.
type resolved struct {
	modelID     string
	temperature float64
	maxTokens   int
}

func (d CompletionDefaults) resolve(opts CompletionOptions) (resolved, error) {
	r := resolved{modelID: d.ModelID, temperature: d.Temperature, maxTokens: d.MaxTokens}
	if opts.ModelID != "" {
		r.modelID = opts.ModelID
	}
	if opts.Temperature != nil {
		r.temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		r.maxTokens = opts.MaxTokens
	}
	if r.temperature < 0 || r.temperature > 1 {
		return r, apperrors.Validation(fmt.Sprintf("temperature debe estar entre 0 y 1, se recibió %v", r.temperature))
	}
	if r.modelID == "" {
		return r, apperrors.Validation("modelId es requerido")
	}
	return r, nil
}

// ConverseAPI is the Bedrock Runtime operation the gateway uses.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockGateway calls the Bedrock Converse API. It never retries.
type BedrockGateway struct {
	client   ConverseAPI
	defaults CompletionDefaults
	logger   *slog.Logger
}

func NewBedrockGateway(client ConverseAPI, defaults CompletionDefaults, logger *slog.Logger) *BedrockGateway {
	return &BedrockGateway{client: client, defaults: defaults, logger: logging.OrNop(logger)}
}

func (g *BedrockGateway) Complete(ctx context.Context, messages []models.Message, opts CompletionOptions) (string, error) {
	r, err := g.defaults.resolve(opts)
	if err != nil {
		return "", err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(r.modelID),
		Messages: toBedrockMessages(messages),
		InferenceConfig: &brtypes.InferenceConfiguration{
			Temperature: aws.Float32(float32(r.temperature)),
			MaxTokens:   aws.Int32(int32(r.maxTokens)),
		},
	}

	logging.FromContext(ctx, g.logger).Debug("sending converse request", "model", r.modelID, "messages", len(messages))
	out, err := g.client.Converse(ctx, input)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindProvider, err, "error al obtener respuesta del modelo")
	}
	return firstBedrockText(out)
}

func toBedrockMessages(messages []models.Message) []brtypes.Message {
	res := make([]brtypes.Message, 0, len(messages))
	for _, m := range messages {
		role := brtypes.ConversationRoleUser
		if m.Role == models.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		parts := m.Content.AsParts()
		blocks := make([]brtypes.ContentBlock, 0, len(parts))
		for _, p := range parts {
			if p.IsImage() {
				blocks = append(blocks, &brtypes.ContentBlockMemberImage{Value: brtypes.ImageBlock{
					Format: brtypes.ImageFormat(p.Image.Format),
					Source: &brtypes.ImageSourceMemberBytes{Value: p.Image.Bytes},
				}})
				continue
			}
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: p.Text})
		}
		res = append(res, brtypes.Message{Role: role, Content: blocks})
	}
	return res
}

// firstBedrockText extracts the first text part of the first content block.
func firstBedrockText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", apperrors.New(apperrors.KindUnexpectedResponse, "respuesta vacía del modelo")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return "", apperrors.New(apperrors.KindUnexpectedResponse, "formato de respuesta inesperado del modelo")
	}
	text, ok := msg.Value.Content[0].(*brtypes.ContentBlockMemberText)
	if !ok || text.Value == "" {
		return "", apperrors.New(apperrors.KindUnexpectedResponse, "formato de respuesta inesperado del modelo")
	}
	return text.Value, nil
}
