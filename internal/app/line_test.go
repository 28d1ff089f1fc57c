package app

import (
	"context"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voipms-gateway/internal/adapters/db/memory"
	"voipms-gateway/internal/domain"
	"voipms-gateway/internal/ports"
)

const formType = "application/x-www-form-urlencoded"

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, line domain.Line, msg domain.OutboundMessage) (ports.SendResult, error) {
	args := m.Called(ctx, line, msg)
	return args.Get(0).(ports.SendResult), args.Error(1)
}

// capturePublisher records everything the dispatcher publishes.
type capturePublisher struct {
	mu     sync.Mutex
	events []ports.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev ports.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) byType(eventType string) []ports.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ports.Event
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	ctrl   *LineController
	sender *mockSender
	store  *memory.Store
	pub    *capturePublisher
	disp   *Dispatcher
	reg    *WebhookRegistry
}

var fixtureLine = domain.Line{DID: "5551234567", APIUsername: "ops@example.com", APIPassword: "api-secret"}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		sender: &mockSender{},
		store:  memory.New(),
		pub:    &capturePublisher{},
		reg:    NewWebhookRegistry(),
	}
	f.disp = NewDispatcher(f.pub, log)

	ctrl, err := NewLineController(context.Background(), fixtureLine, "https://ha.example.net",
		f.sender, f.store, f.disp, f.reg, log)
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

// flush waits for queued events to reach the publisher.
func (f *fixture) flush() {
	f.disp.Close()
}

func TestNewLineControllerIdentity(t *testing.T) {
	f := newFixture(t)
	defer f.flush()

	url := f.ctrl.WebhookURL()
	require.True(t, strings.HasPrefix(url, "https://ha.example.net/webhook/"), "got %q", url)

	tok := path.Base(url)
	assert.Len(t, tok, 32)
	assert.NotContains(t, tok, fixtureLine.DID)
	assert.Same(t, f.ctrl, f.reg.Resolve(tok))
}

func TestNewLineControllerStableAcrossRestarts(t *testing.T) {
	f := newFixture(t)
	defer f.flush()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	again, err := NewLineController(context.Background(), fixtureLine, "https://ha.example.net",
		f.sender, f.store, f.disp, NewWebhookRegistry(), log)
	require.NoError(t, err)

	assert.Equal(t, f.ctrl.WebhookURL(), again.WebhookURL(),
		"same install secret must yield the same webhook URL")

	fresh, err := NewLineController(context.Background(), fixtureLine, "https://ha.example.net",
		f.sender, memory.New(), f.disp, NewWebhookRegistry(), log)
	require.NoError(t, err)
	assert.NotEqual(t, f.ctrl.WebhookURL(), fresh.WebhookURL(),
		"a different install secret must yield a different webhook URL")
}

func TestHandleWebhookAppliesAndPersists(t *testing.T) {
	f := newFixture(t)

	f.ctrl.HandleWebhook(context.Background(), formType,
		[]byte("event_type=sms&message_id=42&from_number=5559876543&body=hello"))

	st := f.ctrl.State()
	assert.Equal(t, "Message from 5559876543", st.State)
	assert.Equal(t, "42", st.MessageID)
	assert.Equal(t, "hello", st.Message)

	persisted, err := f.store.LoadLatest(context.Background(), fixtureLine.DID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "42", persisted.MessageID)

	f.flush()
	received := f.pub.byType(ports.EventMessageReceived)
	require.Len(t, received, 1)
	assert.Equal(t, "42", received[0].Data["message_id"])
	assert.Equal(t, fixtureLine.DID, received[0].DID)
	assert.NotEmpty(t, received[0].ID)
}

func TestHandleWebhookDuplicateDelivery(t *testing.T) {
	f := newFixture(t)

	payload := []byte("event_type=sms&message_id=42&from_number=5559876543&body=hello")
	f.ctrl.HandleWebhook(context.Background(), formType, payload)
	before := f.ctrl.State()
	f.ctrl.HandleWebhook(context.Background(), formType, payload)

	assert.Equal(t, before, f.ctrl.State(), "redelivery must not change state")

	f.flush()
	assert.Len(t, f.pub.byType(ports.EventMessageReceived), 1, "redelivery must not re-emit")
	assert.Empty(t, f.pub.byType(ports.EventNotification))
}

func TestHandleWebhookUnknownEvent(t *testing.T) {
	f := newFixture(t)

	f.ctrl.HandleWebhook(context.Background(), formType,
		[]byte("event_type=call.missed&message_id=1&from_number=5559876543&body=x"))

	st := f.ctrl.State()
	assert.Equal(t, StateNoMessages, st.State, "unknown events must not mutate state")

	persisted, err := f.store.LoadLatest(context.Background(), fixtureLine.DID)
	require.NoError(t, err)
	assert.Nil(t, persisted)

	f.flush()
	notes := f.pub.byType(ports.EventNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, ports.NotificationError, notes[0].Data["notification_id"])
	assert.Contains(t, notes[0].Data["message"], "call.missed")
	assert.Empty(t, f.pub.byType(ports.EventMessageReceived))
}

func TestHandleWebhookMalformedPayload(t *testing.T) {
	f := newFixture(t)

	f.ctrl.HandleWebhook(context.Background(), formType,
		[]byte("event_type=sms&from_number=5559876543&body=x"))

	assert.Equal(t, StateNoMessages, f.ctrl.State().State)

	f.flush()
	notes := f.pub.byType(ports.EventNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, ports.NotificationError, notes[0].Data["notification_id"])
	assert.Contains(t, notes[0].Data["message"], "message_id")
}

func TestHydrateAcrossRestart(t *testing.T) {
	f := newFixture(t)
	defer f.flush()

	f.ctrl.HandleWebhook(context.Background(), formType,
		[]byte("event_type=sms&message_id=7&from_number=5559876543&body=before+restart"))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	restarted, err := NewLineController(context.Background(), fixtureLine, "https://ha.example.net",
		f.sender, f.store, f.disp, NewWebhookRegistry(), log)
	require.NoError(t, err)

	st := restarted.State()
	assert.Equal(t, "7", st.MessageID)
	assert.Equal(t, "before restart", st.Message)

	// The redelivered webhook is still a duplicate after the restart.
	restarted.HandleWebhook(context.Background(), formType,
		[]byte("event_type=sms&message_id=7&from_number=5559876543&body=before+restart"))
	assert.Equal(t, st, restarted.State())
}

// gatedStore wraps the in-memory store and parks one SaveLatest until
// released, so a second delivery can overtake the first mid-persist.
type gatedStore struct {
	*memory.Store
	holdID  string
	holding chan struct{}
	release chan struct{}

	mu    sync.Mutex
	saved []string
}

func (s *gatedStore) SaveLatest(ctx context.Context, did string, msg domain.InboundMessage) error {
	if msg.MessageID == s.holdID {
		close(s.holding)
		<-s.release
	}
	s.mu.Lock()
	s.saved = append(s.saved, msg.MessageID)
	s.mu.Unlock()
	return s.Store.SaveLatest(ctx, did, msg)
}

func TestHandleWebhookPersistsInApplyOrder(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &gatedStore{
		Store:   memory.New(),
		holdID:  "901",
		holding: make(chan struct{}),
		release: make(chan struct{}),
	}
	disp := NewDispatcher(&capturePublisher{}, log)
	defer disp.Close()

	ctrl, err := NewLineController(context.Background(), fixtureLine, "https://ha.example.net",
		&mockSender{}, store, disp, NewWebhookRegistry(), log)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctrl.HandleWebhook(context.Background(), formType,
			[]byte("event_type=sms&message_id=901&from_number=5559876543&body=first"))
	}()
	<-store.holding // the first delivery is now parked inside SaveLatest

	go func() {
		defer wg.Done()
		ctrl.HandleWebhook(context.Background(), formType,
			[]byte("event_type=sms&message_id=902&from_number=5559876543&body=second"))
	}()
	time.Sleep(50 * time.Millisecond) // give the second delivery time to reach the store
	close(store.release)
	wg.Wait()

	st := ctrl.State()
	store.mu.Lock()
	require.NotEmpty(t, store.saved)
	last := store.saved[len(store.saved)-1]
	store.mu.Unlock()
	assert.Equal(t, st.MessageID, last, "the last persisted row must be the live message")

	persisted, err := store.LoadLatest(context.Background(), fixtureLine.DID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, st.MessageID, persisted.MessageID)
}

func TestSendDelegates(t *testing.T) {
	f := newFixture(t)
	defer f.flush()

	msg := domain.OutboundMessage{Recipient: "5559876543", Body: "hi"}
	f.sender.On("Send", mock.Anything, fixtureLine, msg).Return(ports.SendResult{MessageID: "9"}, nil).Once()

	res, err := f.ctrl.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "9", res.MessageID)
	f.sender.AssertExpectations(t)
}

func TestSendPassesErrorsThrough(t *testing.T) {
	f := newFixture(t)
	defer f.flush()

	provErr := &domain.ProviderError{Code: "not_enough_credit", Message: "the account balance is too low to send"}
	f.sender.On("Send", mock.Anything, fixtureLine, mock.Anything).Return(ports.SendResult{}, provErr).Once()

	_, err := f.ctrl.Send(context.Background(), domain.OutboundMessage{Recipient: "5559876543", Body: "hi"})
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "not_enough_credit", pe.Code)
}

func TestAnnounceWebhookURL(t *testing.T) {
	f := newFixture(t)

	url := f.ctrl.AnnounceWebhookURL()
	assert.Equal(t, f.ctrl.WebhookURL(), url)

	f.flush()
	urls := f.pub.byType(ports.EventWebhookURL)
	require.Len(t, urls, 1)
	assert.Equal(t, url, urls[0].Data["webhook_url"])

	notes := f.pub.byType(ports.EventNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, ports.NotificationWebhookURL, notes[0].Data["notification_id"])
	assert.Contains(t, notes[0].Data["message"], url)
}

func TestCloseUnregisters(t *testing.T) {
	f := newFixture(t)
	defer f.flush()

	tok := path.Base(f.ctrl.WebhookURL())
	require.NotNil(t, f.reg.Resolve(tok))

	f.ctrl.Close()
	assert.Nil(t, f.reg.Resolve(tok))

	f.ctrl.Close() // second close is harmless
	assert.Nil(t, f.reg.Resolve(tok))
}
