package services

import (
	"context"
	"errors"
	"testing"

	"academianet/apperrors"
	"academianet/models"
	"academianet/testutil"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatFixture(reply string) (*ChatService, *testutil.FakeConverse, *MemoryBackend) {
	fake := testutil.NewFakeConverse(reply)
	backend := NewMemoryBackend()
	svc := NewChatService(
		NewConversationStore(backend, nil),
		NewBedrockGateway(fake, testDefaults, nil),
		"Eres un orientador.",
		fixedNow,
		nil,
	)
	return svc, fake, backend
}

func firstText(t *testing.T, msg brtypes.Message) string {
	t.Helper()
	text, ok := msg.Content[0].(*brtypes.ContentBlockMemberText)
	require.True(t, ok)
	return text.Value
}

func TestChatNewConversation(t *testing.T) {
	svc, fake, backend := newChatFixture("¡Hola!")

	res, err := svc.Ask(context.Background(), ChatRequest{Prompt: "Hola", SystemPrompt: "Eres breve."})
	require.NoError(t, err)
	assert.Equal(t, "¡Hola!", res.Reply)
	assert.Equal(t, "conv_1730817000000", res.ConversationID)
	assert.Equal(t, 2, res.MessageCount)
	assert.Nil(t, res.SearchRecommendation)

	in := fake.Inputs[0]
	require.Len(t, in.Messages, 1)
	assert.Equal(t, "Eres breve.\n\nHola", firstText(t, in.Messages[0]))

	stored, _ := backend.Load(context.Background(), res.ConversationID)
	require.Equal(t, []models.Message{
		models.NewTextMessage(models.RoleUser, "Hola"),
		models.NewTextMessage(models.RoleAssistant, "¡Hola!"),
	}, stored)
}

func TestChatContinuesStoredConversation(t *testing.T) {
	svc, fake, _ := newChatFixture("segunda")
	ctx := context.Background()

	first, err := svc.Ask(ctx, ChatRequest{Prompt: "uno"})
	require.NoError(t, err)
	second, err := svc.Ask(ctx, ChatRequest{Prompt: "dos", ConversationID: first.ConversationID})
	require.NoError(t, err)
	assert.Equal(t, 4, second.MessageCount)

	in := fake.Inputs[1]
	require.Len(t, in.Messages, 3)
	assert.Equal(t, "Eres un orientador.\n\nuno", firstText(t, in.Messages[0]))
	assert.Equal(t, brtypes.ConversationRoleAssistant, in.Messages[1].Role)
	assert.Equal(t, "dos", firstText(t, in.Messages[2]))
}

func TestChatSeedsHistoryFromRequest(t *testing.T) {
	svc, fake, _ := newChatFixture("ok")

	_, err := svc.Ask(context.Background(), ChatRequest{
		Prompt:         "¿y en Cali?",
		ConversationID: "conv_seed",
		Messages: []models.Message{
			models.NewTextMessage(models.RoleSystem, "Sistema del cliente"),
			models.NewTextMessage(models.RoleUser, "Universidades en Bogotá"),
			models.NewTextMessage(models.RoleAssistant, "La Nacional"),
		},
	})
	require.NoError(t, err)
	in := fake.Inputs[0]
	require.Len(t, in.Messages, 3)
	assert.Equal(t, "Sistema del cliente\n\nUniversidades en Bogotá", firstText(t, in.Messages[0]))
}

func TestChatRejectsMessageWithoutRole(t *testing.T) {
	svc, fake, _ := newChatFixture("ok")
	_, err := svc.Ask(context.Background(), ChatRequest{
		Prompt:   "hola",
		Messages: []models.Message{{Content: models.Text("sin rol")}},
	})
	require.Equal(t, 400, apperrors.StatusCode(err))
	require.Empty(t, fake.Inputs)
}

func TestChatAttachesImageToLastUserTurn(t *testing.T) {
	svc, fake, backend := newChatFixture("Es un diploma")
	res, err := svc.Ask(context.Background(), ChatRequest{
		Prompt: "¿Qué es esto?",
		Image:  &models.ImageAttachment{Bytes: []byte{0xff, 0xd8}},
	})
	require.NoError(t, err)
	require.Len(t, fake.Inputs[0].Messages[0].Content, 2)

	stored, _ := backend.Load(context.Background(), res.ConversationID)
	assert.True(t, stored[0].Content.IsText(), "images are not persisted")
}

func TestChatSearchRecommendation(t *testing.T) {
	svc, fake, _ := newChatFixture("Te sugiero ingeniería.\nrecomendacion_busqueda: ingeniería de sistemas Medellín")
	res, err := svc.Ask(context.Background(), ChatRequest{Prompt: "¿Qué estudio?", RecommendSearch: true})
	require.NoError(t, err)
	assert.Equal(t, "Te sugiero ingeniería.", res.Reply)
	require.NotNil(t, res.SearchRecommendation)
	assert.Equal(t, "ingeniería de sistemas Medellín", *res.SearchRecommendation)
	assert.Contains(t, firstText(t, fake.Inputs[0].Messages[0]), SearchRecommendationMarker)
}

func TestChatProviderErrorPropagates(t *testing.T) {
	svc, fake, backend := newChatFixture("")
	fake.Err = errors.New("ThrottlingException")
	_, err := svc.Ask(context.Background(), ChatRequest{Prompt: "hola", ConversationID: "c1"})
	require.True(t, apperrors.Is(err, apperrors.KindProvider))
	stored, _ := backend.Load(context.Background(), "c1")
	require.Empty(t, stored)
}

func TestChatStoreFailureStillReplies(t *testing.T) {
	s3 := testutil.NewFakeS3()
	s3.Errors["PutObject"] = errors.New("AccessDenied")
	svc := NewChatService(
		NewConversationStore(NewS3Backend(s3, "b", fixedNow), nil),
		NewBedrockGateway(testutil.NewFakeConverse("respuesta"), testDefaults, nil),
		"", fixedNow, nil,
	)
	res, err := svc.Ask(context.Background(), ChatRequest{Prompt: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "respuesta", res.Reply)
	assert.Equal(t, 2, res.MessageCount)
}

func TestChatRequiresPrompt(t *testing.T) {
	svc, _, _ := newChatFixture("x")
	_, err := svc.Ask(context.Background(), ChatRequest{Prompt: "  "})
	require.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestExtractSearchRecommendation(t *testing.T) {
	reply, rec := ExtractSearchRecommendation("Sin marcador")
	assert.Equal(t, "Sin marcador", reply)
	assert.Nil(t, rec)

	reply, rec = ExtractSearchRecommendation("A\n  RECOMENDACION_BUSQUEDA:   \nB")
	assert.Equal(t, "A\nB", reply)
	assert.Nil(t, rec)

	reply, rec = ExtractSearchRecommendation("RECOMENDACION_BUSQUEDA: medicina\nRECOMENDACION_BUSQUEDA: derecho")
	assert.Equal(t, "RECOMENDACION_BUSQUEDA: derecho", reply)
	require.NotNil(t, rec)
	assert.Equal(t, "medicina", *rec)
}
