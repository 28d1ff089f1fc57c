// Package voipms implements the outbound message sender against the VoIP.ms
// REST API.
package voipms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"voipms-gateway/internal/domain"
	"voipms-gateway/internal/ports"
)

// DefaultAPIURL is the provider's production REST endpoint.
const DefaultAPIURL = "https://voip.ms/api/v1/rest.php"

const (
	methodSMS = "sendSMS"
	methodMMS = "sendMMS"

	// maxBodyChars is the provider's per-message text ceiling.
	maxBodyChars = 2048
	// maxMediaBytes is the provider's per-file limit for base64 media
	// submitted via POST.
	maxMediaBytes = 1_200_000
)

// Client implements ports.MessageSender against the VoIP.ms REST API.
type Client struct {
	apiURL     string
	httpClient *http.Client
	log        *slog.Logger
}

// New creates a Client targeting apiURL, or the production endpoint when
// apiURL is empty.
func New(apiURL string, timeout time.Duration, log *slog.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// apiResponse is the provider's reply. Status is "success" or an error code;
// sms/mms carry the provider-assigned message ID.
type apiResponse struct {
	Status string `json:"status"`
	SMS    int    `json:"sms"`
	MMS    int    `json:"mms"`
}

// Send validates msg, resolves media for MMS and performs exactly one POST
// against the REST API. Failures map onto the domain error taxonomy; nothing
// is retried here. Credentials travel in the form body only and never appear
// in logs or errors.
func (c *Client) Send(ctx context.Context, line domain.Line, msg domain.OutboundMessage) (ports.SendResult, error) {
	dst, err := domain.NormalizePhoneNumber("recipient", msg.Recipient)
	if err != nil {
		return ports.SendResult{}, err
	}

	form := url.Values{}
	form.Set("api_username", line.APIUsername)
	form.Set("api_password", line.APIPassword)
	form.Set("did", line.DID)
	form.Set("dst", dst)

	switch {
	case msg.IsMMS() && msg.Body != "":
		return ports.SendResult{}, &domain.ValidationError{Field: "message", Reason: "carries both text and media payloads"}
	case msg.IsMMS():
		dataURI, err := c.resolveMedia(msg.MediaPath)
		if err != nil {
			return ports.SendResult{}, err
		}
		form.Set("method", methodMMS)
		form.Set("message", "")
		form.Set("media1", dataURI)
	case msg.Body == "":
		return ports.SendResult{}, &domain.ValidationError{Field: "message", Reason: "body must not be empty"}
	case utf8.RuneCountInString(msg.Body) > maxBodyChars:
		return ports.SendResult{}, &domain.ValidationError{Field: "message", Reason: fmt.Sprintf("body exceeds %d characters", maxBodyChars)}
	default:
		form.Set("method", methodSMS)
		form.Set("message", msg.Body)
	}
	method := form.Get("method")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return ports.SendResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.log.Info("sending message", "method", method, "did", line.DID, "dst", dst)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.SendResult{}, &domain.TransportError{Op: "do request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ports.SendResult{}, &domain.TransportError{Op: "do request", Err: fmt.Errorf("provider returned HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ports.SendResult{}, &domain.TransportError{Op: "read response", Err: err}
	}

	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return ports.SendResult{}, &domain.TransportError{Op: "decode response", Err: fmt.Errorf("non-JSON response from provider")}
	}

	if ar.Status != "success" {
		return ports.SendResult{}, &domain.ProviderError{Code: ar.Status, Message: describeCode(ar.Status)}
	}

	var id string
	switch {
	case ar.SMS != 0:
		id = strconv.Itoa(ar.SMS)
	case ar.MMS != 0:
		id = strconv.Itoa(ar.MMS)
	}
	c.log.Info("message accepted", "method", method, "provider_id", id)
	return ports.SendResult{MessageID: id}, nil
}

// resolveMedia turns a local file into the provider's base64 data URI form.
// The path must be absolute and clean so a caller cannot name anything
// outside the location it spells out.
func (c *Client) resolveMedia(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", &domain.ValidationError{Field: "media_path", Reason: "must be an absolute path"}
	}
	if filepath.Clean(path) != path {
		return "", &domain.ValidationError{Field: "media_path", Reason: "must not contain traversal elements"}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media %s: %w", path, domain.ErrMediaNotFound)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat media %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("open media %s: %w", path, domain.ErrMediaNotFound)
	}

	// The limit binds the bytes actually read, not what Stat reported.
	data, err := io.ReadAll(io.LimitReader(f, maxMediaBytes+1))
	if err != nil {
		return "", fmt.Errorf("read media %s: %w", path, err)
	}
	if len(data) > maxMediaBytes {
		return "", fmt.Errorf("media %s exceeds %d bytes: %w", path, maxMediaBytes, domain.ErrMediaTooLarge)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
}

// providerMessages maps the provider's status codes to human-readable
// descriptions surfaced to callers.
var providerMessages = map[string]string{
	"api_not_enabled":     "API access is not enabled for this account",
	"invalid_credentials": "username or API password is incorrect",
	"ip_not_enabled":      "the source IP address is not enabled for API use",
	"invalid_did":         "the DID is not valid or not owned by this account",
	"missing_did":         "no DID number was supplied",
	"invalid_dst":         "the destination number is not valid",
	"missing_dst":         "no destination number was supplied",
	"missing_message":     "no message content was supplied",
	"sms_toolong":         "the message exceeds the provider's length limit",
	"sms_failed":          "the message could not be delivered",
	"mms_failed":          "the message could not be delivered",
	"limit_reached":       "the account's daily sending limit was reached",
	"not_enough_credit":   "the account balance is too low to send",
}

func describeCode(code string) string {
	if msg, ok := providerMessages[code]; ok {
		return msg
	}
	return "the provider rejected the request"
}
