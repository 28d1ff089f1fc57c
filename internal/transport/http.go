package transport

import (
	"errors"
	"log/slog"

	"voipms-gateway/internal/app"
	"voipms-gateway/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Handler holds all HTTP handlers for the gateway.
type Handler struct {
	ctrl     *app.LineController
	registry *app.WebhookRegistry
	validate *validator.Validate
	log      *slog.Logger
}

// NewHandler wires up a Handler with its dependencies.
func NewHandler(ctrl *app.LineController, registry *app.WebhookRegistry, log *slog.Logger) *Handler {
	return &Handler{
		ctrl:     ctrl,
		registry: registry,
		validate: validator.New(),
		log:      log,
	}
}

// Register mounts the host-facing API routes onto the given router.
func (h *Handler) Register(router fiber.Router) {
	router.Post("/send", h.Send)
	router.Get("/state", h.GetState)
	router.Get("/webhook-url", h.GetWebhookURL)
}

// RegisterWebhook mounts the provider callback route, which lives outside
// the API prefix because its full path is handed to the provider.
func (h *Handler) RegisterWebhook(router fiber.Router) {
	router.Post("/webhook/:token", h.HandleWebhook)
}

// ── Provider webhook ──────────────────────────────────────────────────────────

// HandleWebhook receives provider callbacks on the line's capability path.
// Unknown tokens get a bare 404 that does not reveal whether the path
// exists; authenticated payloads are always acknowledged with 200, even
// when they turn out to be unknown or malformed.
//
// POST /webhook/:token
func (h *Handler) HandleWebhook(c *fiber.Ctx) error {
	ctrl := h.registry.Resolve(c.Params("token"))
	if ctrl == nil {
		return c.SendStatus(fiber.StatusNotFound)
	}

	ctrl.HandleWebhook(c.Context(), c.Get(fiber.HeaderContentType), c.Body())
	return c.SendString("ok")
}

// ── Host-facing API ───────────────────────────────────────────────────────────

type sendRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Message   string `json:"message" validate:"required_without=MediaPath"`
	MediaPath string `json:"media_path" validate:"omitempty,filepath"`
}

type sendResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
}

// Send submits one SMS (message) or MMS (media_path) through the line.
//
// POST /send
// Body: { "recipient": "...", "message": "..." }
//
//	or { "recipient": "...", "media_path": "/abs/path.jpg" }
func (h *Handler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res, err := h.ctrl.Send(c.Context(), domain.OutboundMessage{
		Recipient: req.Recipient,
		Body:      req.Message,
		MediaPath: req.MediaPath,
	})
	if err != nil {
		return h.sendError(c, err)
	}

	return c.JSON(sendResponse{Status: "sent", MessageID: res.MessageID})
}

// sendError maps the domain error taxonomy onto HTTP statuses: caller
// mistakes are 400, provider rejections 422, transport failures 502.
func (h *Handler) sendError(c *fiber.Ctx, err error) error {
	var (
		validationErr *domain.ValidationError
		providerErr   *domain.ProviderError
		transportErr  *domain.TransportError
	)
	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Error()})
	case errors.Is(err, domain.ErrMediaNotFound), errors.Is(err, domain.ErrMediaTooLarge):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &providerErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": providerErr.Message,
			"code":  providerErr.Code,
		})
	case errors.As(err, &transportErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider unreachable, retry later"})
	default:
		h.log.Error("send message", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}

// GetState reports the line's most recent inbound message and metadata.
//
// GET /state
func (h *Handler) GetState(c *fiber.Ctx) error {
	return c.JSON(h.ctrl.State())
}

// GetWebhookURL returns the webhook capability URL and re-announces it on
// the event bus so the host surfaces the setup notification.
//
// GET /webhook-url
func (h *Handler) GetWebhookURL(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"webhook_url": h.ctrl.AnnounceWebhookURL()})
}
