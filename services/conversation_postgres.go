package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"academianet/models"

	"github.com/lib/pq"
)

// PostgresBackend stores conversations in a jsonb column. Saves are upserts;
// the last write for an id wins.
type PostgresBackend struct {
	db    *sql.DB
	table string
	now   Clock
}

// postgresConnString disables TLS unless the URI already chooses an sslmode,
// which is what local Postgres containers expect.
func postgresConnString(uri string) string {
	if strings.Contains(uri, "sslmode=") {
		return uri
	}
	if strings.HasPrefix(uri, "postgres://") || strings.HasPrefix(uri, "postgresql://") {
		if strings.Contains(uri, "?") {
			return uri + "&sslmode=disable"
		}
		return uri + "?sslmode=disable"
	}
	return uri + " sslmode=disable"
}

// OpenPostgresBackend connects, pings and creates the table when missing.
func OpenPostgresBackend(ctx context.Context, uri, table string, now Clock) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", postgresConnString(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	b := NewPostgresBackend(db, table, now)
	if err := b.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func NewPostgresBackend(db *sql.DB, table string, now Clock) *PostgresBackend {
	if table == "" {
		table = "conversations"
	}
	return &PostgresBackend{db: db, table: table, now: clockOrSystem(now)}
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) ident() string {
	return pq.QuoteIdentifier(b.table)
}

func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS `+b.ident()+` (
            id         TEXT PRIMARY KEY,
            messages   JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", b.table, err)
	}
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context, id string) ([]models.Message, error) {
	var raw []byte
	err := b.db.QueryRowContext(ctx, `SELECT messages FROM `+b.ident()+` WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	var msgs []models.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return msgs, nil
}

func (b *PostgresBackend) Save(ctx context.Context, id string, messages []models.Message) error {
	if messages == nil {
		messages = []models.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO ` + b.ident() + ` (id, messages, updated_at)
        VALUES ($1, $2::jsonb, $3)
        ON CONFLICT (id)
        DO UPDATE SET
            messages = EXCLUDED.messages,
            updated_at = EXCLUDED.updated_at`
	if _, err := b.db.ExecContext(ctx, query, id, string(data), b.now().UTC()); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", id, err)
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}
