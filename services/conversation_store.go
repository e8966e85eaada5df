package services

import (
	"context"
	"log/slog"
	"sync"

	"academianet/apperrors"
	"academianet/logging"
	"academianet/models"
)

// ConversationBackend persists conversation histories. Unlike ConversationStore,
// backends report every failure; a missing conversation is an empty history.
type ConversationBackend interface {
	Load(ctx context.Context, id string) ([]models.Message, error)
	Save(ctx context.Context, id string, messages []models.Message) error
	Name() string
}

// ConversationStore is the caller-facing store. Get never fails: a backend
// error is logged and reads as an empty history. Put failures come back as
// StoreWriteError.
type ConversationStore struct {
	backend ConversationBackend
	logger  *slog.Logger
}

func NewConversationStore(backend ConversationBackend, logger *slog.Logger) *ConversationStore {
	return &ConversationStore{backend: backend, logger: logging.OrNop(logger)}
}

func (s *ConversationStore) Get(ctx context.Context, id string) []models.Message {
	if id == "" {
		return []models.Message{}
	}
	msgs, err := s.backend.Load(ctx, id)
	if err != nil {
		logging.FromContext(ctx, s.logger).Warn("conversation load failed, continuing with empty history",
			"backend", s.backend.Name(), "conversation_id", id, "error", err)
		return []models.Message{}
	}
	if msgs == nil {
		return []models.Message{}
	}
	return msgs
}

// Put overwrites the stored history of id. Image parts are dropped before saving.
func (s *ConversationStore) Put(ctx context.Context, id string, messages []models.Message) error {
	if id == "" {
		return apperrors.New(apperrors.KindStoreWrite, "conversation id vacío")
	}
	if err := s.backend.Save(ctx, id, withoutImages(messages)); err != nil {
		return apperrors.Wrap(apperrors.KindStoreWrite, err, "no se pudo guardar la conversación")
	}
	return nil
}

func withoutImages(messages []models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if !m.Content.IsText() {
			parts := m.Content.AsParts()
			kept := parts[:0]
			for _, p := range parts {
				if !p.IsImage() {
					kept = append(kept, p)
				}
			}
			m.Content = models.Parts(kept...)
		}
		out = append(out, m)
	}
	return out
}

// MemoryBackend keeps conversations in process memory. Histories do not survive
// a restart and are not shared between concurrent Lambda instances.
type MemoryBackend struct {
	mu    sync.RWMutex
	convs map[string][]models.Message
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{convs: map[string][]models.Message{}}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Load(_ context.Context, id string) ([]models.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs, ok := b.convs[id]
	if !ok {
		return nil, nil
	}
	return append([]models.Message(nil), msgs...), nil
}

func (b *MemoryBackend) Save(_ context.Context, id string, messages []models.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.convs[id] = append([]models.Message(nil), messages...)
	return nil
}
