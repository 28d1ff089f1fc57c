package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"voipms-gateway/internal/domain"
	"voipms-gateway/internal/inbound"
	"voipms-gateway/internal/ports"
	"voipms-gateway/internal/token"
)

// LineController owns the lifecycle of one line: its webhook identity,
// inbound processing, state, and outbound delegation.
type LineController struct {
	line         domain.Line
	webhookToken string
	webhookURL   string

	// mu holds Apply and SaveLatest together under concurrent deliveries.
	mu         sync.Mutex
	state      *StateStore
	processor  *inbound.Processor
	sender     ports.MessageSender
	repo       ports.StateRepository
	dispatcher *Dispatcher
	registry   *WebhookRegistry
	log        *slog.Logger
}

// NewLineController derives the line's webhook identity from the persisted
// install secret, hydrates state from the repository and registers the
// webhook path. Close releases the registration.
func NewLineController(
	ctx context.Context,
	line domain.Line,
	baseURL string,
	sender ports.MessageSender,
	repo ports.StateRepository,
	dispatcher *Dispatcher,
	registry *WebhookRegistry,
	log *slog.Logger,
) (*LineController, error) {
	secret, err := repo.EnsureInstallSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure install secret: %w", err)
	}

	tok := token.Derive(line.DID, secret)
	webhookURL := strings.TrimSuffix(baseURL, "/") + "/webhook/" + tok

	c := &LineController{
		line:         line,
		webhookToken: tok,
		webhookURL:   webhookURL,
		state:        NewStateStore(line.DID, webhookURL),
		processor:    inbound.NewProcessor(),
		sender:       sender,
		repo:         repo,
		dispatcher:   dispatcher,
		registry:     registry,
		log:          log,
	}

	latest, err := repo.LoadLatest(ctx, line.DID)
	if err != nil {
		return nil, fmt.Errorf("load line state: %w", err)
	}
	if latest != nil {
		c.state.Hydrate(*latest)
	}

	registry.Register(tok, c)
	log.Info("line registered", "did", line.DID)
	return c, nil
}

// Send forwards one outbound message to the provider. No retries and no
// state changes happen here; errors surface to the caller as-is.
func (c *LineController) Send(ctx context.Context, msg domain.OutboundMessage) (ports.SendResult, error) {
	res, err := c.sender.Send(ctx, c.line, msg)
	if err != nil {
		c.log.Error("send failed", "did", c.line.DID, "err", err)
		return ports.SendResult{}, err
	}
	return res, nil
}

// HandleWebhook runs one authenticated webhook payload through parsing,
// normalization and apply. Redelivered messages are no-ops. Unknown or
// malformed payloads raise a persistent notification, leave state untouched
// and are still acknowledged by the transport. Deliveries apply and persist
// one at a time, so the stored row always matches the live message.
func (c *LineController) HandleWebhook(ctx context.Context, contentType string, body []byte) {
	msg, err := c.processor.Process(contentType, body)
	if err != nil {
		c.reportBadPayload(err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if applied := c.state.Apply(msg); !applied {
		c.log.Info("duplicate message ignored", "did", c.line.DID, "message_id", msg.MessageID)
		return
	}

	if err := c.repo.SaveLatest(ctx, c.line.DID, msg); err != nil {
		// In-memory state stays authoritative; persistence is only for
		// hydration after a restart.
		c.log.Error("persist line state", "did", c.line.DID, "err", err)
	}

	c.dispatcher.Emit(ports.NewEvent(ports.EventMessageReceived, c.line.DID, map[string]string{
		"message_id": msg.MessageID,
		"from":       msg.From,
	}))
	c.log.Info("message received", "did", c.line.DID, "message_id", msg.MessageID, "from", msg.From)
}

// reportBadPayload turns processor failures into persistent notifications.
func (c *LineController) reportBadPayload(err error) {
	var (
		unknownErr   *domain.UnknownEventError
		malformedErr *domain.MalformedPayloadError
	)
	switch {
	case errors.As(err, &unknownErr):
		c.log.Warn("unknown webhook event", "did", c.line.DID, "event_type", unknownErr.EventType)
	case errors.As(err, &malformedErr):
		c.log.Warn("malformed webhook payload", "did", c.line.DID, "reason", malformedErr.Reason)
	default:
		c.log.Error("process webhook", "did", c.line.DID, "err", err)
	}

	c.dispatcher.Emit(notification(c.line.DID, ports.NotificationError,
		"VoIP.ms SMS",
		fmt.Sprintf("The webhook for %s received a payload it could not process: %v", c.line.DID, err)))
}

// WebhookURL returns the capability URL the provider must deliver callbacks to.
func (c *LineController) WebhookURL() string { return c.webhookURL }

// AnnounceWebhookURL emits the webhook URL on the event bus and raises the
// operator notification with the portal instructions.
func (c *LineController) AnnounceWebhookURL() string {
	c.dispatcher.Emit(ports.NewEvent(ports.EventWebhookURL, c.line.DID, map[string]string{
		"webhook_url": c.webhookURL,
	}))
	c.dispatcher.Emit(notification(c.line.DID, ports.NotificationWebhookURL,
		"VoIP.ms SMS Webhook URL",
		fmt.Sprintf("Configure the DID %s to deliver SMS/MMS callbacks to:\n\n%s", c.line.DID, c.webhookURL)))
	return c.webhookURL
}

// State returns a consistent snapshot of the line.
func (c *LineController) State() domain.LineState {
	return c.state.Snapshot()
}

// Close unregisters the webhook path. Safe to call more than once.
func (c *LineController) Close() {
	c.registry.Unregister(c.webhookToken)
	c.log.Info("line unregistered", "did", c.line.DID)
}

// notification builds a persistent-notification event for the host.
func notification(did, notificationID, title, message string) ports.Event {
	return ports.NewEvent(ports.EventNotification, did, map[string]string{
		"notification_id": notificationID,
		"title":           title,
		"message":         message,
	})
}
