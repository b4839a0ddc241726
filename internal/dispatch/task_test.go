package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentfolio/notification-service/internal/models"
	"github.com/rentfolio/notification-service/internal/provider"
	"github.com/rentfolio/notification-service/internal/settings"
	"github.com/rentfolio/notification-service/internal/vault"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCodec(t *testing.T) (*settings.Codec, *vault.Vault) {
	t.Helper()
	key := make([]byte, vault.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	v, err := vault.New(hex.EncodeToString(key))
	require.NoError(t, err)
	codec, err := settings.NewCodec(v, settings.DefaultPolicies())
	require.NoError(t, err)
	return codec, v
}

// fakeSettings serves static channel settings, counting reads.
type fakeSettings struct {
	email    *settings.EmailSettings
	sms      *settings.SMSSettings
	telegram *settings.TelegramSettings
	err      error
	reads    int
}

func (f *fakeSettings) EmailSettings(ctx context.Context, tenantID int64) (*settings.EmailSettings, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	if f.email == nil {
		return nil, settings.ErrNotConfigured
	}
	cfg := *f.email
	return &cfg, nil
}

func (f *fakeSettings) SMSSettings(ctx context.Context, tenantID int64) (*settings.SMSSettings, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	if f.sms == nil {
		return nil, settings.ErrNotConfigured
	}
	cfg := *f.sms
	return &cfg, nil
}

func (f *fakeSettings) TelegramSettings(ctx context.Context, tenantID int64) (*settings.TelegramSettings, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	if f.telegram == nil {
		return nil, settings.ErrNotConfigured
	}
	cfg := *f.telegram
	return &cfg, nil
}

// recordingReporter captures lifecycle transitions.
type recordingReporter struct {
	mu         sync.Mutex
	processing []int
	delivered  int
	skipped    int
	failed     int
	lastClass  models.FailureClass
	lastCause  string
}

func (r *recordingReporter) Processing(_ context.Context, _ *models.DeliveryRequest, attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processing = append(r.processing, attempt)
}

func (r *recordingReporter) Delivered(_ context.Context, _ *models.DeliveryRequest, _ string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered++
}

func (r *recordingReporter) Skipped(_ context.Context, _ *models.DeliveryRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

func (r *recordingReporter) Failed(_ context.Context, _ *models.DeliveryRequest, _ string, _ int, class models.FailureClass, cause string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
	r.lastClass = class
	r.lastCause = cause
}

// scriptedClient returns canned results per call and records what it saw.
type scriptedClient struct {
	name     string
	results  []models.DeliveryResult
	calls    int
	password string
}

func (s *scriptedClient) Name() string { return s.name }

func (s *scriptedClient) Send(ctx context.Context, req *models.DeliveryRequest) models.DeliveryResult {
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	return s.results[idx]
}

func (s *scriptedClient) TestConnection(ctx context.Context) bool { return true }

func emailRequest() *models.DeliveryRequest {
	return &models.DeliveryRequest{
		ID:        "req-1",
		TenantID:  7,
		Channel:   models.ChannelEmail,
		Recipient: "a@b.com",
		Subject:   "Rent due",
		Body:      "Your rent is due.",
	}
}

func newEmailTaskWithClient(t *testing.T, store *fakeSettings, reporter Reporter, client *scriptedClient) *EmailTask {
	t.Helper()
	codec, _ := newTestCodec(t)
	task := NewEmailTask(store, codec, DefaultPolicy(), reporter, discardLogger(), time.Second)
	task.newClient = func(name string, cfg settings.EmailSettings, _ time.Duration, _ *slog.Logger) (provider.EmailClient, error) {
		client.password = cfg.Password
		return client, nil
	}
	return task
}

func TestEmailTask_SucceedsFirstAttempt(t *testing.T) {
	store := &fakeSettings{email: &settings.EmailSettings{Enabled: true, Provider: "gmail", FromAddress: "l@example.com"}}
	reporter := &recordingReporter{}
	client := &scriptedClient{name: "gmail", results: []models.DeliveryResult{models.Delivered()}}
	task := newEmailTaskWithClient(t, store, reporter, client)

	state, err := task.Run(context.Background(), emailRequest(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, state)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 1, reporter.delivered)
	assert.Equal(t, []int{1}, reporter.processing)
}

func TestEmailTask_DisabledChannelIsNoOpSuccess(t *testing.T) {
	store := &fakeSettings{email: &settings.EmailSettings{Enabled: false, Provider: "gmail"}}
	reporter := &recordingReporter{}
	client := &scriptedClient{name: "gmail", results: []models.DeliveryResult{models.Delivered()}}
	task := newEmailTaskWithClient(t, store, reporter, client)

	state, err := task.Run(context.Background(), emailRequest(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, state)
	// The provider client must never be invoked.
	assert.Zero(t, client.calls)
	assert.Equal(t, 1, reporter.skipped)
	assert.Zero(t, reporter.delivered)
}

func TestEmailTask_UnconfiguredTenantIsNoOpSuccess(t *testing.T) {
	store := &fakeSettings{}
	reporter := &recordingReporter{}
	client := &scriptedClient{results: []models.DeliveryResult{models.Delivered()}}
	task := newEmailTaskWithClient(t, store, reporter, client)

	state, err := task.Run(context.Background(), emailRequest(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, state)
	assert.Zero(t, client.calls)
	assert.Equal(t, 1, reporter.skipped)
}

func TestEmailTask_FailureBeforeFinalAttemptAwaitsRetry(t *testing.T) {
	store := &fakeSettings{email: &settings.EmailSettings{Enabled: true, Provider: "gmail"}}
	reporter := &recordingReporter{}
	client := &scriptedClient{name: "gmail", results: []models.DeliveryResult{models.TransportFailure("connection refused", 0)}}
	task := newEmailTaskWithClient(t, store, reporter, client)

	state, err := task.Run(context.Background(), emailRequest(), 1)
	require.Error(t, err)
	assert.Equal(t, models.StateAwaitingRetry, state)
	assert.Zero(t, reporter.failed)
}

func TestEmailTask_FinalAttemptFailureIsTerminal(t *testing.T) {
	store := &fakeSettings{email: &settings.EmailSettings{Enabled: true, Provider: "gmail"}}
	reporter := &recordingReporter{}
	client := &scriptedClient{name: "gmail", results: []models.DeliveryResult{models.RemoteRejected("mailbox unavailable", 550)}}
	task := newEmailTaskWithClient(t, store, reporter, client)

	state, err := task.Run(context.Background(), emailRequest(), DefaultPolicy().MaxAttempts)
	require.Error(t, err)
	assert.Equal(t, models.StateTerminallyFailed, state)
	assert.Equal(t, 1, reporter.failed)
	assert.Equal(t, models.FailureRemoteRejected, reporter.lastClass)
	assert.Equal(t, "mailbox unavailable", reporter.lastCause)
}

func TestEmailTask_UnsupportedProviderFailsImmediately(t *testing.T) {
	store := &fakeSettings{email: &settings.EmailSettings{Enabled: true, Provider: "sendpigeon"}}
	reporter := &recordingReporter{}
	codec, _ := newTestCodec(t)
	task := NewEmailTask(store, codec, DefaultPolicy(), reporter, discardLogger(), time.Second)

	state, err := task.Run(context.Background(), emailRequest(), 1)
	require.Error(t, err)
	assert.Equal(t, models.StateTerminallyFailed, state)

	var unsupported *provider.UnsupportedProviderError
	assert.ErrorAs(t, err, &unsupported)
	assert.Equal(t, 1, reporter.failed)
}

func TestEmailTask_DecryptsPasswordBeforeSend(t *testing.T) {
	codec, v := newTestCodec(t)
	ciphertext, err := v.Encrypt("app-password")
	require.NoError(t, err)

	store := &fakeSettings{email: &settings.EmailSettings{Enabled: true, Provider: "gmail", Password: ciphertext}}
	client := &scriptedClient{name: "gmail", results: []models.DeliveryResult{models.Delivered()}}
	task := NewEmailTask(store, codec, DefaultPolicy(), NopReporter{}, discardLogger(), time.Second)
	task.newClient = func(name string, cfg settings.EmailSettings, _ time.Duration, _ *slog.Logger) (provider.EmailClient, error) {
		client.password = cfg.Password
		return client, nil
	}

	state, err := task.Run(context.Background(), emailRequest(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, state)
	assert.Equal(t, "app-password", client.password)
}

func TestEmailTask_CorruptedCiphertextDegradesToEmptyCredential(t *testing.T) {
	store := &fakeSettings{email: &settings.EmailSettings{
		Enabled:  true,
		Provider: "gmail",
		Password: "corrupted-foreign-ciphertext-value-that-is-not-ours-at-all",
	}}
	client := &scriptedClient{name: "gmail", results: []models.DeliveryResult{models.RemoteRejected("auth failed", 535)}}
	task := newEmailTaskWithClient(t, store, &recordingReporter{}, client)

	// Delivery proceeds with an empty password and fails remotely instead of
	// crashing the pipeline.
	state, err := task.Run(context.Background(), emailRequest(), 1)
	require.Error(t, err)
	assert.Equal(t, models.StateAwaitingRetry, state)
	assert.Empty(t, client.password)
}

func TestEmailTask_SettingsErrorIsRetryable(t *testing.T) {
	store := &fakeSettings{err: errors.New("connection reset")}
	codec, _ := newTestCodec(t)
	task := NewEmailTask(store, codec, DefaultPolicy(), NopReporter{}, discardLogger(), time.Second)

	state, err := task.Run(context.Background(), emailRequest(), 1)
	require.Error(t, err)
	assert.Equal(t, models.StateAwaitingRetry, state)
}

func TestEmailTask_ClassifyOverrideStopsRetryingRejections(t *testing.T) {
	policy := DefaultPolicy()
	policy.Classify = func(result models.DeliveryResult) bool {
		return result.Class == models.FailureTransport
	}

	store := &fakeSettings{email: &settings.EmailSettings{Enabled: true, Provider: "gmail"}}
	reporter := &recordingReporter{}
	client := &scriptedClient{name: "gmail", results: []models.DeliveryResult{models.RemoteRejected("invalid recipient", 553)}}
	codec, _ := newTestCodec(t)
	task := NewEmailTask(store, codec, policy, reporter, discardLogger(), time.Second)
	task.newClient = func(string, settings.EmailSettings, time.Duration, *slog.Logger) (provider.EmailClient, error) {
		return client, nil
	}

	// First attempt, but the rejection is classified non-retryable.
	state, err := task.Run(context.Background(), emailRequest(), 1)
	require.Error(t, err)
	assert.Equal(t, models.StateTerminallyFailed, state)
	assert.Equal(t, 1, reporter.failed)
}

func TestSMSTask_DecryptsCredentials(t *testing.T) {
	codec, v := newTestCodec(t)
	key, err := v.Encrypt("key-1")
	require.NoError(t, err)
	secret, err := v.Encrypt("secret-1")
	require.NoError(t, err)

	store := &fakeSettings{sms: &settings.SMSSettings{Enabled: true, BaseURL: "https://gw", APIKey: key, APISecret: secret}}
	var gotCfg settings.SMSSettings
	task := NewSMSTask(store, codec, DefaultPolicy(), NopReporter{}, discardLogger(), time.Second)
	task.newClient = func(cfg settings.SMSSettings, _ time.Duration, _ *slog.Logger) sender {
		gotCfg = cfg
		return sendFunc(func(context.Context, *models.DeliveryRequest) models.DeliveryResult {
			return models.Delivered()
		})
	}

	req := &models.DeliveryRequest{ID: "r", TenantID: 7, Channel: models.ChannelSMS, Recipient: "+1555", Body: "hi"}
	state, err := task.Run(context.Background(), req, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, state)
	assert.Equal(t, "key-1", gotCfg.APIKey)
	assert.Equal(t, "secret-1", gotCfg.APISecret)
}

func TestTelegramTask_DisabledSkips(t *testing.T) {
	store := &fakeSettings{telegram: &settings.TelegramSettings{Enabled: false, BotToken: "x"}}
	reporter := &recordingReporter{}
	codec, _ := newTestCodec(t)
	task := NewTelegramTask(store, codec, DefaultPolicy(), reporter, discardLogger(), time.Second)

	req := &models.DeliveryRequest{ID: "r", TenantID: 7, Channel: models.ChannelTelegram, Recipient: "123", Body: "hi"}
	state, err := task.Run(context.Background(), req, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, state)
	assert.Equal(t, 1, reporter.skipped)
}

// sendFunc adapts a function to the sender interface.
type sendFunc func(ctx context.Context, req *models.DeliveryRequest) models.DeliveryResult

func (f sendFunc) Send(ctx context.Context, req *models.DeliveryRequest) models.DeliveryResult {
	return f(ctx, req)
}

func TestTaskSettingsReadFreshPerAttempt(t *testing.T) {
	store := &fakeSettings{email: &settings.EmailSettings{Enabled: true, Provider: "gmail"}}
	client := &scriptedClient{name: "gmail", results: []models.DeliveryResult{
		models.TransportFailure("timeout", 0),
		models.TransportFailure("timeout", 0),
	}}
	task := newEmailTaskWithClient(t, store, &recordingReporter{}, client)

	_, _ = task.Run(context.Background(), emailRequest(), 1)
	_, _ = task.Run(context.Background(), emailRequest(), 2)
	// One settings read per invocation, so rotation takes effect mid-retry.
	assert.Equal(t, 2, store.reads)
}
