package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voipms-gateway/internal/domain"
	"voipms-gateway/internal/token"

	"github.com/lib/pq"
)

// secretName keys the single install secret row.
const secretName = "install"

// Repository implements ports.StateRepository using PostgreSQL.
type Repository struct {
	db *sql.DB
}

// New opens a PostgreSQL connection and returns a Repository.
func New(dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// EnsureInstallSecret returns the stored install secret, generating one on
// first use. The insert ignores conflicts so concurrent first calls converge
// on a single value.
func (r *Repository) EnsureInstallSecret(ctx context.Context) (string, error) {
	const sel = `SELECT secret FROM install_secrets WHERE name = $1`

	var secret string
	err := r.db.QueryRowContext(ctx, sel, secretName).Scan(&secret)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("select install secret: %w", err)
	}

	fresh, err := token.NewInstallSecret()
	if err != nil {
		return "", fmt.Errorf("generate install secret: %w", err)
	}

	const ins = `
		INSERT INTO install_secrets (name, secret, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, ins, secretName, fresh, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("insert install secret: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, sel, secretName).Scan(&secret); err != nil {
		return "", fmt.Errorf("reselect install secret: %w", err)
	}
	return secret, nil
}

// LoadLatest returns the most recent inbound message stored for the line,
// or nil when none has been received yet.
func (r *Repository) LoadLatest(ctx context.Context, did string) (*domain.InboundMessage, error) {
	const q = `
		SELECT message_id, from_number, body, media, received_at
		FROM line_states
		WHERE did = $1
	`
	var m domain.InboundMessage
	var media pq.StringArray
	err := r.db.QueryRowContext(ctx, q, did).Scan(&m.MessageID, &m.From, &m.Body, &media, &m.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select line state: %w", err)
	}
	m.Media = []string(media)
	m.ReceivedAt = m.ReceivedAt.UTC()
	return &m, nil
}

// SaveLatest upserts msg as the line's most recent inbound message.
func (r *Repository) SaveLatest(ctx context.Context, did string, msg domain.InboundMessage) error {
	const q = `
		INSERT INTO line_states (did, message_id, from_number, body, media, received_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (did) DO UPDATE SET
			message_id  = EXCLUDED.message_id,
			from_number = EXCLUDED.from_number,
			body        = EXCLUDED.body,
			media       = EXCLUDED.media,
			received_at = EXCLUDED.received_at,
			updated_at  = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, q, did, msg.MessageID, msg.From, msg.Body,
		pq.StringArray(msg.Media), msg.ReceivedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert line state: %w", err)
	}
	return nil
}
