// Package inbound turns authenticated webhook requests into normalized
// inbound messages.
package inbound

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
	"time"

	"voipms-gateway/internal/domain"
)

// Processor decodes webhook payloads, dispatches on the event type and
// validates the fields the gateway relies on. Path authentication happens
// before the processor runs; applying the result happens after.
type Processor struct {
	now func() time.Time
}

func NewProcessor() *Processor {
	return &Processor{now: time.Now}
}

// Process parses one webhook payload. It returns *domain.UnknownEventError
// for event types the gateway does not handle and
// *domain.MalformedPayloadError for payloads it cannot decode or that lack
// required fields.
func (p *Processor) Process(contentType string, body []byte) (domain.InboundMessage, error) {
	raw, err := decode(contentType, body)
	if err != nil {
		return domain.InboundMessage{}, err
	}
	handle, ok := handlers[raw.eventType]
	if !ok {
		return domain.InboundMessage{}, &domain.UnknownEventError{EventType: raw.eventType}
	}
	return handle(p, raw)
}

// rawEvent is the shape-independent view of a decoded payload before
// per-event validation.
type rawEvent struct {
	eventType string
	messageID string
	from      string
	body      string
	media     []string
	timestamp string
}

type handlerFunc func(*Processor, rawEvent) (domain.InboundMessage, error)

// handlers maps recognized event types to their normalizers. The provider's
// native callbacks use the short names; its JSON envelope delivers
// "message.received", which may arrive media-only and so shares the MMS
// acceptance rule.
var handlers = map[string]handlerFunc{
	"sms":              normalizeSMS,
	"mms":              normalizeMMS,
	"message.received": normalizeMMS,
}

func decode(contentType string, body []byte) (rawEvent, error) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return rawEvent{}, &domain.MalformedPayloadError{Reason: "missing or unreadable content type"}
	}
	switch {
	case mt == "application/json":
		return decodeJSON(body)
	case mt == "application/x-www-form-urlencoded":
		return decodeForm(body)
	case strings.HasPrefix(mt, "multipart/"):
		return decodeMultipart(body, params["boundary"])
	default:
		return rawEvent{}, &domain.MalformedPayloadError{Reason: fmt.Sprintf("unsupported content type %q", mt)}
	}
}

func decodeForm(body []byte) (rawEvent, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return rawEvent{}, &domain.MalformedPayloadError{Reason: "invalid form encoding"}
	}
	return fromValues(values), nil
}

func decodeMultipart(body []byte, boundary string) (rawEvent, error) {
	if boundary == "" {
		return rawEvent{}, &domain.MalformedPayloadError{Reason: "multipart body without boundary"}
	}
	form, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(1 << 20)
	if err != nil {
		return rawEvent{}, &domain.MalformedPayloadError{Reason: "invalid multipart encoding"}
	}
	defer form.RemoveAll()
	return fromValues(url.Values(form.Value)), nil
}

func fromValues(values url.Values) rawEvent {
	return rawEvent{
		eventType: values.Get("event_type"),
		messageID: firstOf(values, "message_id", "id"),
		from:      firstOf(values, "from_number", "from"),
		body:      firstOf(values, "body", "message"),
		media:     values["media"],
		timestamp: firstOf(values, "timestamp", "date"),
	}
}

func decodeJSON(body []byte) (rawEvent, error) {
	// Envelope shape first: {"data": {"event_type": ..., "payload": {...}}}.
	var env struct {
		Data *struct {
			EventType  string `json:"event_type"`
			RecordType string `json:"record_type"`
			Payload    struct {
				RecordType string  `json:"record_type"`
				ID         looseID `json:"id"`
				From       struct {
					PhoneNumber string `json:"phone_number"`
				} `json:"from"`
				Text       string `json:"text"`
				ReceivedAt string `json:"received_at"`
				Media      []struct {
					URL string `json:"url"`
				} `json:"media"`
			} `json:"payload"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Data != nil {
		// Envelope layers carry record_type tags, "event" outside and
		// "message" inside. Any other tag is not an inbound message; absent
		// tags pass.
		if rt := env.Data.RecordType; rt != "" && rt != "event" {
			return rawEvent{}, &domain.UnknownEventError{EventType: rt}
		}
		if rt := env.Data.Payload.RecordType; rt != "" && rt != "message" {
			return rawEvent{}, &domain.UnknownEventError{EventType: rt}
		}
		raw := rawEvent{
			eventType: env.Data.EventType,
			messageID: string(env.Data.Payload.ID),
			from:      env.Data.Payload.From.PhoneNumber,
			body:      env.Data.Payload.Text,
			timestamp: env.Data.Payload.ReceivedAt,
		}
		for _, m := range env.Data.Payload.Media {
			if m.URL != "" {
				raw.media = append(raw.media, m.URL)
			}
		}
		return raw, nil
	}

	var flat struct {
		EventType  string   `json:"event_type"`
		MessageID  looseID  `json:"message_id"`
		ID         looseID  `json:"id"`
		FromNumber string   `json:"from_number"`
		From       string   `json:"from"`
		Body       string   `json:"body"`
		Message    string   `json:"message"`
		Text       string   `json:"text"`
		Media      []string `json:"media"`
		Timestamp  string   `json:"timestamp"`
		Date       string   `json:"date"`
	}
	if err := json.Unmarshal(body, &flat); err != nil {
		return rawEvent{}, &domain.MalformedPayloadError{Reason: "invalid JSON"}
	}
	return rawEvent{
		eventType: flat.EventType,
		messageID: coalesce(string(flat.MessageID), string(flat.ID)),
		from:      coalesce(flat.FromNumber, flat.From),
		body:      coalesce(flat.Body, flat.Message, flat.Text),
		media:     flat.Media,
		timestamp: coalesce(flat.Timestamp, flat.Date),
	}, nil
}

// looseID is a message id that arrives either quoted or as a bare JSON
// number. The provider is not consistent about which.
type looseID string

func (id *looseID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = looseID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = looseID(n.String())
	return nil
}

func normalizeSMS(p *Processor, raw rawEvent) (domain.InboundMessage, error) {
	if raw.body == "" {
		return domain.InboundMessage{}, &domain.MalformedPayloadError{Reason: "empty body"}
	}
	return p.normalize(raw)
}

// normalizeMMS requires a body or at least one media attachment; picture
// messages routinely arrive without text.
func normalizeMMS(p *Processor, raw rawEvent) (domain.InboundMessage, error) {
	if raw.body == "" && len(raw.media) == 0 {
		return domain.InboundMessage{}, &domain.MalformedPayloadError{Reason: "empty body and no media"}
	}
	return p.normalize(raw)
}

func (p *Processor) normalize(raw rawEvent) (domain.InboundMessage, error) {
	if raw.messageID == "" {
		return domain.InboundMessage{}, &domain.MalformedPayloadError{Reason: "missing message_id"}
	}
	if raw.from == "" {
		return domain.InboundMessage{}, &domain.MalformedPayloadError{Reason: "missing from_number"}
	}
	receivedAt := p.now().UTC()
	if raw.timestamp != "" {
		ts, err := parseTimestamp(raw.timestamp)
		if err != nil {
			return domain.InboundMessage{}, &domain.MalformedPayloadError{Reason: "unparseable timestamp"}
		}
		receivedAt = ts
	}
	return domain.InboundMessage{
		MessageID:  raw.messageID,
		From:       strings.TrimSpace(raw.from),
		Body:       raw.body,
		Media:      raw.media,
		ReceivedAt: receivedAt,
	}, nil
}

// timestampLayouts covers the provider's callback date format and RFC 3339.
var timestampLayouts = []string{"2006-01-02 15:04:05", time.RFC3339}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func firstOf(values url.Values, keys ...string) string {
	for _, k := range keys {
		if v := values.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
