package services

import (
	"fmt"

	"academianet/apperrors"
	"academianet/models"
)

// systemSeparator joins a folded system instruction and the first user turn.
const systemSeparator = "\n\n"

// Normalize turns a raw history plus a new user turn into the message sequence
// sent to the model. A leading system message is folded into the first user
// turn, an optional image is attached to the last user turn, and every content
// comes back in parts form. The inputs are not modified.
func Normalize(history []models.Message, newUserText string, image *models.ImageAttachment) ([]models.Message, error) {
	working := make([]models.Message, 0, len(history)+2)
	var systemText string
	hasSystem := false

	for i, msg := range history {
		if msg.Role == "" {
			return nil, apperrors.InvalidArgument(fmt.Sprintf("el mensaje %d no tiene rol", i))
		}
		if !msg.Role.Valid() {
			return nil, apperrors.InvalidArgument(fmt.Sprintf("el mensaje %d tiene un rol desconocido %q", i, msg.Role))
		}
		if msg.Role == models.RoleSystem {
			if i != 0 {
				return nil, apperrors.InvalidArgument("el mensaje de sistema solo puede ir en la primera posición")
			}
			systemText = msg.Content.PlainText()
			hasSystem = true
			continue
		}
		working = append(working, msg)
	}

	working = append(working, models.NewTextMessage(models.RoleUser, newUserText))

	if hasSystem {
		if working[0].Role == models.RoleUser {
			working[0].Content = working[0].Content.WithTextPrefix(systemText + systemSeparator)
		} else {
			lead := models.NewTextMessage(models.RoleUser, systemText)
			working = append([]models.Message{lead}, working...)
		}
	}

	if image != nil {
		for i := len(working) - 1; i >= 0; i-- {
			if working[i].Role != models.RoleUser {
				continue
			}
			parts := working[i].Content.AsParts()
			parts = append(parts, models.ImagePart(models.ImageAttachment{
				Format: models.ImageFormatJPEG,
				Bytes:  image.Bytes,
			}))
			working[i].Content = models.Parts(parts...)
			break
		}
	}

	for i := range working {
		if working[i].Content.IsText() {
			working[i].Content = models.Parts(working[i].Content.AsParts()...)
		}
	}
	return working, nil
}
