package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"academianet/apperrors"
	"academianet/logging"
	"academianet/models"
)

// SearchRecommendationMarker starts the reply line carrying a suggested search.
const SearchRecommendationMarker = "RECOMENDACION_BUSQUEDA:"

const searchRecommendationInstruction = "\n\nSi es útil que el usuario busque instituciones o programas, termina tu respuesta con una línea aparte con el formato \"" +
	SearchRecommendationMarker + " <términos de búsqueda>\". Si no aplica, omite esa línea."

type ChatRequest struct {
	Prompt         string
	SystemPrompt   string
	ConversationID string
	// Messages seeds the history when nothing is stored under ConversationID.
	Messages []models.Message
	Image    *models.ImageAttachment
	Options  CompletionOptions
	// RecommendSearch asks the model for a search recommendation line.
	RecommendSearch bool
}

type ChatResult struct {
	Reply                string
	ConversationID       string
	MessageCount         int
	SearchRecommendation *string
}

// ChatService runs one chat turn: load history, normalize, complete, store.
type ChatService struct {
	store               *ConversationStore
	llm                 Completer
	defaultSystemPrompt string
	now                 Clock
	logger              *slog.Logger
}

func NewChatService(store *ConversationStore, llm Completer, defaultSystemPrompt string, now Clock, logger *slog.Logger) *ChatService {
	return &ChatService{
		store:               store,
		llm:                 llm,
		defaultSystemPrompt: defaultSystemPrompt,
		now:                 clockOrSystem(now),
		logger:              logging.OrNop(logger),
	}
}

// NewConversationID returns a conv_<unix millis> id.
func (s *ChatService) NewConversationID() string {
	return fmt.Sprintf("conv_%d", s.now().UnixMilli())
}

// Ask answers req.Prompt. A failure to store the updated history is logged and
// the reply is still returned.
func (s *ChatService) Ask(ctx context.Context, req ChatRequest) (ChatResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return ChatResult{}, apperrors.Validation("prompt es requerido")
	}
	logger := logging.FromContext(ctx, s.logger)

	id := req.ConversationID
	if id == "" {
		id = s.NewConversationID()
	}

	history := s.store.Get(ctx, id)
	if len(history) == 0 && len(req.Messages) > 0 {
		history = req.Messages
	}
	history, seededSystem := splitSystem(history)

	systemText := req.SystemPrompt
	if systemText == "" {
		systemText = seededSystem
	}
	if systemText == "" {
		systemText = s.defaultSystemPrompt
	}
	if req.RecommendSearch {
		systemText += searchRecommendationInstruction
	}

	raw := make([]models.Message, 0, len(history)+1)
	if systemText != "" {
		raw = append(raw, models.NewTextMessage(models.RoleSystem, systemText))
	}
	raw = append(raw, history...)

	msgs, err := Normalize(raw, req.Prompt, req.Image)
	if err != nil {
		return ChatResult{}, err
	}

	reply, err := s.llm.Complete(ctx, msgs, req.Options)
	if err != nil {
		return ChatResult{}, err
	}

	var recommendation *string
	if req.RecommendSearch {
		reply, recommendation = ExtractSearchRecommendation(reply)
	}

	updated := make([]models.Message, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated,
		models.NewTextMessage(models.RoleUser, req.Prompt),
		models.NewTextMessage(models.RoleAssistant, reply),
	)
	if err := s.store.Put(ctx, id, updated); err != nil {
		logger.Warn("conversation not saved", "conversation_id", id, "error", err)
	}

	return ChatResult{
		Reply:                reply,
		ConversationID:       id,
		MessageCount:         len(updated),
		SearchRecommendation: recommendation,
	}, nil
}

// splitSystem removes a leading system message and returns its text. Messages
// without a role are left in place for Normalize to reject.
func splitSystem(history []models.Message) ([]models.Message, string) {
	if len(history) > 0 && history[0].Role == models.RoleSystem {
		return history[1:], history[0].Content.PlainText()
	}
	return history, ""
}

// ExtractSearchRecommendation removes the first marker line from reply and
// returns its query. The marker is matched case-insensitively; an empty query
// yields nil.
func ExtractSearchRecommendation(reply string) (string, *string) {
	lines := strings.Split(reply, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < len(SearchRecommendationMarker) ||
			!strings.EqualFold(trimmed[:len(SearchRecommendationMarker)], SearchRecommendationMarker) {
			continue
		}
		query := strings.TrimSpace(trimmed[len(SearchRecommendationMarker):])
		rest := append(append([]string{}, lines[:i]...), lines[i+1:]...)
		cleaned := strings.TrimSpace(strings.Join(rest, "\n"))
		if query == "" {
			return cleaned, nil
		}
		return cleaned, &query
	}
	return reply, nil
}
