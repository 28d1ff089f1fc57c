package ports

import (
	"context"

	"voipms-gateway/internal/domain"
)

// SendResult is the provider's response after accepting an outbound message.
type SendResult struct {
	MessageID string // External message ID assigned by the provider
}

// MessageSender abstracts the upstream SMS/MMS provider.
type MessageSender interface {
	// Send submits one outbound message on behalf of the line. It validates
	// the message, performs exactly one provider call and maps failures onto
	// the domain error taxonomy. No retries, no state mutation.
	Send(ctx context.Context, line domain.Line, msg domain.OutboundMessage) (SendResult, error)
}
