package ports

import (
	"context"

	"voipms-gateway/internal/domain"
)

// StateRepository persists the per-install secret and the single most
// recent inbound message per line. There is no message history beyond
// that one row.
type StateRepository interface {
	// EnsureInstallSecret returns the persisted install secret, generating
	// and storing one on first use. Concurrent callers observe one value.
	EnsureInstallSecret(ctx context.Context) (string, error)

	// LoadLatest returns the most recent inbound message stored for the
	// line, or nil when none has been received yet.
	LoadLatest(ctx context.Context, did string) (*domain.InboundMessage, error)

	// SaveLatest stores msg as the line's most recent inbound message,
	// replacing whatever was there before.
	SaveLatest(ctx context.Context, did string, msg domain.InboundMessage) error
}
