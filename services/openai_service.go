package services

import (
	"context"
	"encoding/base64"
	"log/slog"

	"academianet/apperrors"
	"academianet/logging"
	"academianet/models"

	"github.com/sashabaranov/go-openai"
)

// ChatCompletionAPI is the go-openai operation the gateway uses.
type ChatCompletionAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGateway sends normalized messages to an OpenAI-compatible chat endpoint.
type OpenAIGateway struct {
	client   ChatCompletionAPI
	defaults CompletionDefaults
	logger   *slog.Logger
}

func NewOpenAIGateway(client ChatCompletionAPI, defaults CompletionDefaults, logger *slog.Logger) *OpenAIGateway {
	return &OpenAIGateway{client: client, defaults: defaults, logger: logging.OrNop(logger)}
}

func (g *OpenAIGateway) Complete(ctx context.Context, messages []models.Message, opts CompletionOptions) (string, error) {
	r, err := g.defaults.resolve(opts)
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model:       r.modelID,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(r.temperature),
		MaxTokens:   r.maxTokens,
	}

	logging.FromContext(ctx, g.logger).Debug("sending chat completion", "model", r.modelID, "messages", len(messages))
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindProvider, err, "error al obtener respuesta del modelo")
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", apperrors.New(apperrors.KindUnexpectedResponse, "formato de respuesta inesperado del modelo")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	res := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		parts := m.Content.AsParts()
		hasImage := false
		for _, p := range parts {
			if p.IsImage() {
				hasImage = true
				break
			}
		}
		if !hasImage {
			res = append(res, openai.ChatCompletionMessage{Role: role, Content: m.Content.PlainText()})
			continue
		}

		multi := make([]openai.ChatMessagePart, 0, len(parts))
		for _, p := range parts {
			if p.IsImage() {
				multi = append(multi, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    "data:image/" + p.Image.Format + ";base64," + base64.StdEncoding.EncodeToString(p.Image.Bytes),
						Detail: openai.ImageURLDetailAuto,
					},
				})
				continue
			}
			multi = append(multi, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		}
		res = append(res, openai.ChatCompletionMessage{Role: role, MultiContent: multi})
	}
	return res
}
