package services

import (
	"strings"
	"testing"

	"academianet/apperrors"
	"academianet/models"

	"github.com/stretchr/testify/require"
)

func textOf(t *testing.T, msg models.Message) string {
	t.Helper()
	parts := msg.Content.AsParts()
	require.NotEmpty(t, parts)
	require.False(t, parts[0].IsImage())
	return parts[0].Text
}

func TestNormalizeFoldsSystemIntoNewTurn(t *testing.T) {
	history := []models.Message{models.NewTextMessage(models.RoleSystem, "Eres breve.")}

	out, err := Normalize(history, "Hola", nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, models.RoleUser, out[0].Role)
	require.Equal(t, "Eres breve.\n\nHola", textOf(t, out[0]))
}

func TestNormalizeFoldsSystemIntoExistingFirstUser(t *testing.T) {
	history := []models.Message{
		models.NewTextMessage(models.RoleSystem, "S"),
		models.NewTextMessage(models.RoleUser, "primera"),
		models.NewTextMessage(models.RoleAssistant, "respuesta"),
	}

	out, err := Normalize(history, "segunda", nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "S\n\nprimera", textOf(t, out[0]))
	require.Equal(t, "respuesta", textOf(t, out[1]))
	require.Equal(t, "segunda", textOf(t, out[2]))
	for _, m := range out {
		require.NotEqual(t, models.RoleSystem, m.Role)
		require.Equal(t, models.ContentParts, m.Content.Kind())
	}
}

func TestNormalizeInsertsLeadingUserWhenHistoryStartsWithAssistant(t *testing.T) {
	history := []models.Message{
		models.NewTextMessage(models.RoleSystem, "S"),
		models.NewTextMessage(models.RoleAssistant, "bienvenido"),
	}

	out, err := Normalize(history, "hola", nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, models.RoleUser, out[0].Role)
	require.Equal(t, "S", textOf(t, out[0]))
	require.Equal(t, models.RoleAssistant, out[1].Role)
	require.Equal(t, "hola", textOf(t, out[2]))
}

func TestNormalizeSystemPrefixProperty(t *testing.T) {
	systems := []string{"", "S", "Eres un asistente.\nSé breve."}
	users := []string{"", "U", "¿Qué carreras hay?"}
	for _, s := range systems {
		for _, u := range users {
			out, err := Normalize([]models.Message{models.NewTextMessage(models.RoleSystem, s)}, u, nil)
			require.NoError(t, err)
			for _, m := range out {
				require.NotEqual(t, models.RoleSystem, m.Role)
			}
			first := textOf(t, out[0])
			require.True(t, strings.HasPrefix(first, s))
			require.True(t, strings.HasSuffix(first, u))
		}
	}
}

func TestNormalizeAttachesImageToLastUser(t *testing.T) {
	history := []models.Message{
		models.NewTextMessage(models.RoleUser, "antes"),
		models.NewTextMessage(models.RoleAssistant, "ok"),
	}
	img := &models.ImageAttachment{Format: "png", Bytes: []byte{0xff, 0xd8}}

	out, err := Normalize(history, "mira esto", img)
	require.NoError(t, err)
	require.Len(t, out, 3)

	last := out[2].Content.AsParts()
	require.Len(t, last, 2)
	require.Equal(t, "mira esto", last[0].Text)
	require.True(t, last[1].IsImage())
	require.Equal(t, models.ImageFormatJPEG, last[1].Image.Format)
	require.Equal(t, []byte{0xff, 0xd8}, last[1].Image.Bytes)

	require.Len(t, out[0].Content.AsParts(), 1)
	require.Len(t, out[1].Content.AsParts(), 1)
}

func TestNormalizeDoesNotMutateHistory(t *testing.T) {
	history := []models.Message{
		models.NewTextMessage(models.RoleSystem, "S"),
		models.NewTextMessage(models.RoleUser, "u1"),
	}
	_, err := Normalize(history, "u2", &models.ImageAttachment{Bytes: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, models.RoleSystem, history[0].Role)
	require.True(t, history[1].Content.IsText())
	require.Equal(t, "u1", history[1].Content.PlainText())
}

func TestNormalizeRejectsMalformedHistory(t *testing.T) {
	_, err := Normalize([]models.Message{{Content: models.Text("sin rol")}}, "x", nil)
	require.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))

	_, err = Normalize([]models.Message{{Role: "tool", Content: models.Text("x")}}, "x", nil)
	require.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))

	_, err = Normalize([]models.Message{
		models.NewTextMessage(models.RoleUser, "u"),
		models.NewTextMessage(models.RoleSystem, "tarde"),
	}, "x", nil)
	require.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))
}
