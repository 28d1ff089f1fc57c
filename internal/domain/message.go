package domain

import (
	"time"
)

// Line is a single provider phone number (DID) together with the account
// credentials used to operate it. One gateway instance manages one line.
type Line struct {
	DID         string // digits only, the provider-side phone number
	APIUsername string
	APIPassword string // excluded from all logs, URLs and error messages
}

// OutboundMessage is a caller request to send one message through the
// provider. Exactly one payload kind is set: Body for SMS, MediaPath for MMS.
type OutboundMessage struct {
	Recipient string
	Body      string
	MediaPath string // absolute path to a local media file
}

// IsMMS reports whether the message carries a media payload.
func (m OutboundMessage) IsMMS() bool { return m.MediaPath != "" }

// InboundMessage is a message received through the webhook, normalized from
// whatever payload shape the provider delivered.
type InboundMessage struct {
	MessageID  string
	From       string
	Body       string
	Media      []string // inbound MMS attachment URLs
	ReceivedAt time.Time
}

// LineState is a point-in-time snapshot of a line: the most recent inbound
// message plus static line metadata, in the shape consumers read it.
type LineState struct {
	State       string     `json:"state"`
	From        string     `json:"from,omitempty"`
	Message     string     `json:"message,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	MessageID   string     `json:"message_id,omitempty"`
	PhoneNumber string     `json:"phone_number"`
	WebhookURL  string     `json:"webhook_url"`
}
