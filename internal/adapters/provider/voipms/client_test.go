package voipms

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voipms-gateway/internal/domain"
)

var testLine = domain.Line{
	DID:         "5551234567",
	APIUsername: "ops@example.com",
	APIPassword: "super-secret-api-password",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider records the last form it received and replies with a fixed
// JSON body.
type fakeProvider struct {
	hits     atomic.Int64
	lastForm url.Values
	reply    string
	status   int
}

func (f *fakeProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		_ = r.ParseForm()
		f.lastForm = r.PostForm
		if f.status == 0 {
			f.status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.reply))
	}
}

func newTestClient(t *testing.T, fake *fakeProvider) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, discardLogger())
}

func TestSendSMS(t *testing.T) {
	fake := &fakeProvider{reply: `{"status":"success","sms":123}`}
	client := newTestClient(t, fake)

	res, err := client.Send(context.Background(), testLine, domain.OutboundMessage{
		Recipient: "+1 (555) 987-6543",
		Body:      "hello there",
	})
	require.NoError(t, err)

	assert.Equal(t, "123", res.MessageID)
	assert.Equal(t, int64(1), fake.hits.Load())
	assert.Equal(t, "ops@example.com", fake.lastForm.Get("api_username"))
	assert.Equal(t, "super-secret-api-password", fake.lastForm.Get("api_password"))
	assert.Equal(t, "5551234567", fake.lastForm.Get("did"))
	assert.Equal(t, "15559876543", fake.lastForm.Get("dst"))
	assert.Equal(t, "sendSMS", fake.lastForm.Get("method"))
	assert.Equal(t, "hello there", fake.lastForm.Get("message"))
	assert.Empty(t, fake.lastForm.Get("media1"))
}

func TestSendMMS(t *testing.T) {
	content := []byte("fake image bytes")
	path := filepath.Join(t.TempDir(), "pic.jpg")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	fake := &fakeProvider{reply: `{"status":"success","mms":77}`}
	client := newTestClient(t, fake)

	res, err := client.Send(context.Background(), testLine, domain.OutboundMessage{
		Recipient: "5559876543",
		MediaPath: path,
	})
	require.NoError(t, err)

	assert.Equal(t, "77", res.MessageID)
	assert.Equal(t, "sendMMS", fake.lastForm.Get("method"))
	assert.Empty(t, fake.lastForm.Get("message"))

	media := fake.lastForm.Get("media1")
	require.True(t, strings.HasPrefix(media, "data:image/jpeg;base64,"), "got %q", media)
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(media, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestSendValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	tests := []struct {
		name string
		msg  domain.OutboundMessage
	}{
		{name: "bad recipient", msg: domain.OutboundMessage{Recipient: "not-a-number", Body: "hi"}},
		{name: "short recipient", msg: domain.OutboundMessage{Recipient: "555123", Body: "hi"}},
		{name: "empty body", msg: domain.OutboundMessage{Recipient: "5559876543"}},
		{name: "both payload kinds", msg: domain.OutboundMessage{Recipient: "5559876543", Body: "hi", MediaPath: path}},
		{name: "body too long", msg: domain.OutboundMessage{Recipient: "5559876543", Body: strings.Repeat("a", maxBodyChars+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeProvider{reply: `{"status":"success","sms":1}`}
			client := newTestClient(t, fake)

			_, err := client.Send(context.Background(), testLine, tt.msg)

			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, int64(0), fake.hits.Load(), "provider must not be contacted")
		})
	}
}

func TestSendMediaErrors(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.jpg")
	require.NoError(t, os.WriteFile(big, make([]byte, maxMediaBytes+1), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.jpg"), wantErr: domain.ErrMediaNotFound},
		{name: "directory", path: dir, wantErr: domain.ErrMediaNotFound},
		{name: "too large", path: big, wantErr: domain.ErrMediaTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeProvider{reply: `{"status":"success","mms":1}`}
			client := newTestClient(t, fake)

			_, err := client.Send(context.Background(), testLine, domain.OutboundMessage{
				Recipient: "5559876543",
				MediaPath: tt.path,
			})

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int64(0), fake.hits.Load(), "provider must not be contacted")
		})
	}

	t.Run("relative path", func(t *testing.T) {
		fake := &fakeProvider{reply: `{"status":"success","mms":1}`}
		client := newTestClient(t, fake)

		_, err := client.Send(context.Background(), testLine, domain.OutboundMessage{
			Recipient: "5559876543",
			MediaPath: "pics/pic.jpg",
		})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("traversal path", func(t *testing.T) {
		fake := &fakeProvider{reply: `{"status":"success","mms":1}`}
		client := newTestClient(t, fake)

		_, err := client.Send(context.Background(), testLine, domain.OutboundMessage{
			Recipient: "5559876543",
			MediaPath: dir + "/../pic.jpg",
		})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
	})
}

func TestSendMediaAtSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limit.jpg")
	require.NoError(t, os.WriteFile(path, make([]byte, maxMediaBytes), 0o644))

	fake := &fakeProvider{reply: `{"status":"success","mms":5}`}
	client := newTestClient(t, fake)

	res, err := client.Send(context.Background(), testLine, domain.OutboundMessage{
		Recipient: "5559876543",
		MediaPath: path,
	})
	require.NoError(t, err)
	assert.Equal(t, "5", res.MessageID)

	// A file exactly at the cap ships whole, not truncated.
	media := fake.lastForm.Get("media1")
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(media, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	assert.Len(t, decoded, maxMediaBytes)
}

func TestSendProviderError(t *testing.T) {
	fake := &fakeProvider{reply: `{"status":"invalid_credentials"}`}
	client := newTestClient(t, fake)

	_, err := client.Send(context.Background(), testLine, domain.OutboundMessage{
		Recipient: "5559876543",
		Body:      "hi",
	})

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "invalid_credentials", pe.Code)
	assert.Equal(t, "username or API password is incorrect", pe.Message)
	assert.False(t, domain.IsRetryable(err))
	assert.NotContains(t, err.Error(), testLine.APIPassword, "credentials must never leak into errors")
}

func TestSendProviderErrorUnknownCode(t *testing.T) {
	fake := &fakeProvider{reply: `{"status":"mercury_retrograde"}`}
	client := newTestClient(t, fake)

	_, err := client.Send(context.Background(), testLine, domain.OutboundMessage{
		Recipient: "5559876543",
		Body:      "hi",
	})

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "mercury_retrograde", pe.Code)
	assert.NotEmpty(t, pe.Message)
}

func TestSendTransportErrors(t *testing.T) {
	t.Run("http 500", func(t *testing.T) {
		fake := &fakeProvider{reply: "internal error", status: http.StatusInternalServerError}
		client := newTestClient(t, fake)

		_, err := client.Send(context.Background(), testLine, domain.OutboundMessage{Recipient: "5559876543", Body: "hi"})

		var te *domain.TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("non-json body", func(t *testing.T) {
		fake := &fakeProvider{reply: "<html>maintenance</html>"}
		client := newTestClient(t, fake)

		_, err := client.Send(context.Background(), testLine, domain.OutboundMessage{Recipient: "5559876543", Body: "hi"})

		var te *domain.TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		client := New(srv.URL, time.Second, discardLogger())

		_, err := client.Send(context.Background(), testLine, domain.OutboundMessage{Recipient: "5559876543", Body: "hi"})

		var te *domain.TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, domain.IsRetryable(err))
	})
}
