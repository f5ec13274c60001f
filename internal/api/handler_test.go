package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otprelay/internal/config"
	"otprelay/internal/config_handler"
	"otprelay/internal/journal"
	"otprelay/internal/logger"
	"otprelay/internal/notify"
	"otprelay/internal/pipeline"
	"otprelay/internal/source"
	"otprelay/internal/state"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/health"
	"otprelay/pkg/models"
)

type fakeSMS struct {
	mu     sync.Mutex
	sender string
	parts  []string
	err    error
}

func (f *fakeSMS) Receive(_ context.Context, sender string, parts []string, _ time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sender = sender
	f.parts = parts
	return "evt-1", nil
}

type fakeObserver struct {
	got    source.Notification
	reason string
}

func (f *fakeObserver) Observe(_ context.Context, n source.Notification) (string, error) {
	f.got = n
	return f.reason, nil
}

type fakeSubmitter struct {
	got models.RawMessageEvent
	out pipeline.Outcome
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, ev models.RawMessageEvent) (pipeline.Outcome, error) {
	f.got = ev
	return f.out, f.err
}

type fakeInbox struct {
	got source.StoredMessage
	err error
}

func (f *fakeInbox) Insert(_ context.Context, m source.StoredMessage) (int64, error) {
	f.got = m
	return 42, f.err
}

type fakePublisher struct {
	section string
	values  map[string]interface{}
}

func (f *fakePublisher) Enabled() bool { return true }

func (f *fakePublisher) PublishSectionUpdate(_ context.Context, section string, values map[string]interface{}, _ string) error {
	f.section = section
	f.values = values
	return nil
}

type testEnv struct {
	router      *gin.Engine
	sms         *fakeSMS
	observer    *fakeObserver
	submitter   *fakeSubmitter
	inbox       *fakeInbox
	recorder    *notify.Recorder
	journal     *journal.MemoryJournal
	lastRelayed *state.LastRelayed
	live        *config.Live
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	live := config.NewLive(&config.Config{
		Extraction: config.ExtractionConfig{MinLength: 4, MaxLength: 8},
		Forwarding: config.ForwardingConfig{
			Mode:    "webhook",
			Workers: 1,
			Webhook: config.WebhookConfig{URL: "http://hook.example", Headers: map[string]string{"Authorization": "Bearer secret"}},
			SMTP:    config.SMTPConfig{Password: "hunter2"},
		},
	})

	env := &testEnv{
		sms:         &fakeSMS{},
		observer:    &fakeObserver{reason: source.ReasonAccepted},
		submitter:   &fakeSubmitter{out: pipeline.Outcome{Status: pipeline.StatusDispatched, OTP: "123456"}},
		inbox:       &fakeInbox{},
		recorder:    notify.NewRecorder(logger.NopLogger(), 10),
		journal:     journal.NewMemoryJournal(),
		lastRelayed: state.NewLastRelayed(state.NewMemoryStore()),
		live:        live,
	}

	deps := Deps{
		SMS:           env.sms,
		Notifications: env.observer,
		Pipeline:      env.submitter,
		LastRelayed:   env.lastRelayed,
		Diagnostics:   env.recorder,
		Journal:       env.journal,
		Inbox:         env.inbox,
		Live:          live,
		Config:        config_handler.NewHandler(live, logger.NopLogger()),
		Logger:        logger.NopLogger(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	registry := health.NewCheckerRegistry()
	env.router = NewRouter(context.Background(), NewHandler(deps), RouterOptions{
		ServiceName: "otp-relay-test",
		Health:      registry,
		Logger:      logger.NopLogger(),
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestReceiveSMS_Multipart(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/sms", map[string]interface{}{
		"sender": "BankX",
		"parts":  []string{"Your code is ", "551234"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	decode(t, w, &resp)
	assert.Equal(t, "evt-1", resp["id"])
	assert.Equal(t, "BankX", env.sms.sender)
	assert.Equal(t, []string{"Your code is ", "551234"}, env.sms.parts)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestReceiveSMS_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/sms", map[string]interface{}{"text": "no sender"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.sms.err = apperrors.ErrServiceUnavailable.WithMessage("queue full")
	w = env.do(t, http.MethodPost, "/api/v1/sms", map[string]interface{}{"sender": "BankX", "text": "code 1234"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp["error_code"])
}

func TestReceiveSMS_DisabledIntake(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.SMS = nil })
	w := env.do(t, http.MethodPost, "/api/v1/sms", map[string]interface{}{"sender": "BankX", "text": "code 1234"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestObserveNotification(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/notifications", map[string]interface{}{
		"app":   "com.google.android.apps.messaging",
		"title": "BankX",
		"text":  "Your code is 551234",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.Equal(t, true, resp["accepted"])
	assert.Equal(t, source.ReasonAccepted, resp["reason"])
	assert.False(t, env.observer.got.PostedAt.IsZero())

	w = env.do(t, http.MethodPost, "/api/v1/notifications", map[string]interface{}{"title": "no app"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendTest(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/test", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, models.KindTest, env.submitter.got.Kind)
	assert.Equal(t, models.OriginAPI, env.submitter.got.Origin)
	assert.Equal(t, "otprelay-test", env.submitter.got.Sender)
	assert.Contains(t, env.submitter.got.Text, "test code")

	env.submitter.out = pipeline.Outcome{Status: pipeline.StatusDuplicate}
	w = env.do(t, http.MethodPost, "/api/v1/test", map[string]string{"sender": "BankX", "text": "code 1234"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BankX", env.submitter.got.Sender)

	env.submitter.err = apperrors.ErrStopped
	w = env.do(t, http.MethodPost, "/api/v1/test", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetLastRelayed(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/last-relayed", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, env.lastRelayed.Set(context.Background(), state.LastRelayedOtp{OTP: "551234", Sender: "BankX", Timestamp: ts}))

	w = env.do(t, http.MethodGet, "/api/v1/last-relayed", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got state.LastRelayedOtp
	decode(t, w, &got)
	assert.Equal(t, "551234", got.OTP)
	assert.True(t, ts.Equal(got.Timestamp))
}

func TestListDiagnostics(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.recorder.Show(ctx, notify.Notification{Title: "OTP relay failed", Channel: notify.ChannelDelivery, Priority: notify.PriorityHigh})
	env.recorder.Show(ctx, notify.Notification{Title: "Poller disabled", Channel: notify.ChannelSources, Priority: notify.PriorityHigh, Persistent: true})

	w := env.do(t, http.MethodGet, "/api/v1/diagnostics?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got []notify.Notification
	decode(t, w, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "Poller disabled", got[0].Title)

	w = env.do(t, http.MethodGet, "/api/v1/diagnostics?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListJournal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.journal.Record(ctx, journal.Entry{SenderKey: "bankx", Success: true, OTPMasked: "****34"}))
	require.NoError(t, env.journal.Record(ctx, journal.Entry{SenderKey: "bankx", Success: false, Diagnostic: "webhook returned HTTP 500"}))
	require.NoError(t, env.journal.Record(ctx, journal.Entry{SenderKey: "other", Success: true}))

	w := env.do(t, http.MethodGet, "/api/v1/journal?sender_key=bankx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []journal.Entry
	decode(t, w, &got)
	assert.Len(t, got, 2)

	w = env.do(t, http.MethodGet, "/api/v1/journal?failed=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got = nil
	decode(t, w, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "webhook returned HTTP 500", got[0].Diagnostic)

	w = env.do(t, http.MethodGet, "/api/v1/journal?failed=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInsertInbox(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/inbox", map[string]string{"address": "BankX", "body": "code 551234"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "BankX", env.inbox.got.Address)
	assert.False(t, env.inbox.got.ReceivedAt.IsZero())

	env.inbox.err = apperrors.ErrPermissionDenied
	w = env.do(t, http.MethodPost, "/api/v1/inbox", map[string]string{"address": "BankX", "body": "code 551234"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestConfig_GetRedactsSecrets(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.NotContains(t, w.Body.String(), "Bearer secret")
	assert.Contains(t, w.Body.String(), "http://hook.example")
}

func TestConfig_UpdateAppliesLocally(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPut, "/api/v1/config/extraction", map[string]interface{}{"min_length": 6})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 6, env.live.Extraction().MinLength)

	w = env.do(t, http.MethodPut, "/api/v1/config/extraction", map[string]interface{}{"min_length": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 6, env.live.Extraction().MinLength)
}

func TestConfig_UpdatePublishesWhenEnabled(t *testing.T) {
	pub := &fakePublisher{}
	env := newTestEnv(t, func(d *Deps) { d.Publisher = pub })

	w := env.do(t, http.MethodPut, "/api/v1/config/forwarding", map[string]interface{}{"device": "pixel"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, models.SectionForwarding, pub.section)
	assert.Equal(t, "pixel", pub.values["device"])
	assert.Equal(t, "", env.live.Forwarding().Device)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Pipeline = panicSubmitter{} })

	w := env.do(t, http.MethodPost, "/api/v1/test", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])
}

type panicSubmitter struct{}

func (panicSubmitter) Submit(context.Context, models.RawMessageEvent) (pipeline.Outcome, error) {
	panic("boom")
}
