package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rentfolio/notification-service/internal/models"
	"github.com/rentfolio/notification-service/internal/provider"
	"github.com/rentfolio/notification-service/internal/settings"
)

// Task is one channel's unit of asynchronous, retryable delivery work. Run
// performs a single attempt and reports the resulting state; the dispatch
// runtime owns the attempt counter and the waits between attempts.
type Task interface {
	Channel() models.Channel
	Run(ctx context.Context, req *models.DeliveryRequest, attempt int) (models.TaskState, error)
}

// taskCore holds the collaborators and the failure handling shared by all
// channel tasks.
type taskCore struct {
	settings settings.Provider
	codec    *settings.Codec
	policy   Policy
	reporter Reporter
	logger   *slog.Logger
	timeout  time.Duration
}

func (c *taskCore) attrs(req *models.DeliveryRequest, attempt int) []any {
	return []any{
		slog.String("request_id", req.ID),
		slog.Int64("tenant_id", req.TenantID),
		slog.String("channel", string(req.Channel)),
		slog.String("recipient", req.Recipient),
		slog.Int("attempt", attempt),
	}
}

// skip completes the task as a successful no-op for a disabled channel.
func (c *taskCore) skip(ctx context.Context, req *models.DeliveryRequest, attempt int) (models.TaskState, error) {
	c.logger.Info("channel disabled for tenant, delivery skipped", c.attrs(req, attempt)...)
	c.reporter.Skipped(ctx, req)
	return models.StateSucceeded, nil
}

// succeed finishes a delivered attempt.
func (c *taskCore) succeed(ctx context.Context, req *models.DeliveryRequest, providerName string, attempt int) (models.TaskState, error) {
	c.logger.Info("delivery succeeded", append(c.attrs(req, attempt), slog.String("provider", providerName))...)
	c.reporter.Delivered(ctx, req, providerName, attempt)
	return models.StateSucceeded, nil
}

// failNow terminates the task immediately regardless of remaining attempts.
// Reserved for configuration errors that no retry can fix.
func (c *taskCore) failNow(ctx context.Context, req *models.DeliveryRequest, providerName string, attempt int, cause error) (models.TaskState, error) {
	c.logger.Error("delivery failed on configuration error",
		append(c.attrs(req, attempt), slog.String("provider", providerName), slog.Any("error", cause))...)
	c.reporter.Failed(ctx, req, providerName, attempt, "", cause.Error())
	return models.StateTerminallyFailed, cause
}

// retryOrFail decides between another attempt and terminal failure after a
// failed send. Both failure classes retry by default; the classification is
// still logged either way.
func (c *taskCore) retryOrFail(ctx context.Context, req *models.DeliveryRequest, providerName string, attempt int, result models.DeliveryResult) (models.TaskState, error) {
	cause := fmt.Errorf("%s failure: %s", result.Class, result.Message)
	if c.policy.Retryable(result) && attempt < c.policy.MaxAttempts {
		c.logger.Warn("delivery attempt failed, awaiting retry",
			append(c.attrs(req, attempt),
				slog.String("provider", providerName),
				slog.String("class", string(result.Class)),
				slog.String("cause", result.Message),
				slog.Duration("next_delay", c.policy.Delay(attempt)),
			)...)
		return models.StateAwaitingRetry, cause
	}
	c.logger.Error("delivery terminally failed",
		append(c.attrs(req, attempt),
			slog.String("provider", providerName),
			slog.String("class", string(result.Class)),
			slog.String("cause", result.Message),
		)...)
	c.reporter.Failed(ctx, req, providerName, attempt, result.Class, result.Message)
	return models.StateTerminallyFailed, cause
}

// settingsFailure folds an error from the settings read into the retryable
// path: a store blip should not burn the message.
func (c *taskCore) settingsFailure(ctx context.Context, req *models.DeliveryRequest, attempt int, err error) (models.TaskState, error) {
	return c.retryOrFail(ctx, req, "", attempt, models.TransportFailure(fmt.Sprintf("loading settings: %v", err), 0))
}

// EmailTask delivers one email via the tenant's configured SMTP provider.
type EmailTask struct {
	taskCore
	newClient func(name string, cfg settings.EmailSettings, timeout time.Duration, logger *slog.Logger) (provider.EmailClient, error)
}

func NewEmailTask(store settings.Provider, codec *settings.Codec, policy Policy, reporter Reporter, logger *slog.Logger, timeout time.Duration) *EmailTask {
	return &EmailTask{
		taskCore:  taskCore{settings: store, codec: codec, policy: policy, reporter: reporter, logger: logger, timeout: timeout},
		newClient: newEmailClient,
	}
}

func newEmailClient(name string, cfg settings.EmailSettings, timeout time.Duration, logger *slog.Logger) (provider.EmailClient, error) {
	return provider.CreateEmailClient(name, cfg, timeout, logger)
}

func (t *EmailTask) Channel() models.Channel { return models.ChannelEmail }

func (t *EmailTask) Run(ctx context.Context, req *models.DeliveryRequest, attempt int) (models.TaskState, error) {
	cfg, err := t.settings.EmailSettings(ctx, req.TenantID)
	if errors.Is(err, settings.ErrNotConfigured) {
		return t.skip(ctx, req, attempt)
	}
	if err != nil {
		return t.settingsFailure(ctx, req, attempt, err)
	}
	if !cfg.Enabled {
		return t.skip(ctx, req, attempt)
	}

	sendCfg := t.codec.PrepareEmailForResponse(*cfg, true)

	client, err := t.newClient(cfg.Provider, sendCfg, t.timeout, t.logger)
	if err != nil {
		var unsupported *provider.UnsupportedProviderError
		if errors.As(err, &unsupported) {
			return t.failNow(ctx, req, cfg.Provider, attempt, err)
		}
		return t.retryOrFail(ctx, req, cfg.Provider, attempt, models.TransportFailure(err.Error(), 0))
	}

	t.reporter.Processing(ctx, req, attempt)
	result := client.Send(ctx, req)
	if result.OK {
		return t.succeed(ctx, req, client.Name(), attempt)
	}
	return t.retryOrFail(ctx, req, client.Name(), attempt, result)
}

// sender is the common send surface of the HTTP channel clients.
type sender interface {
	Send(ctx context.Context, req *models.DeliveryRequest) models.DeliveryResult
}

// SMSTask delivers one SMS via the tenant's gateway.
type SMSTask struct {
	taskCore
	newClient func(cfg settings.SMSSettings, timeout time.Duration, logger *slog.Logger) sender
}

func NewSMSTask(store settings.Provider, codec *settings.Codec, policy Policy, reporter Reporter, logger *slog.Logger, timeout time.Duration) *SMSTask {
	return &SMSTask{
		taskCore: taskCore{settings: store, codec: codec, policy: policy, reporter: reporter, logger: logger, timeout: timeout},
		newClient: func(cfg settings.SMSSettings, timeout time.Duration, logger *slog.Logger) sender {
			return provider.NewSMSClient(cfg, timeout, logger)
		},
	}
}

func (t *SMSTask) Channel() models.Channel { return models.ChannelSMS }

func (t *SMSTask) Run(ctx context.Context, req *models.DeliveryRequest, attempt int) (models.TaskState, error) {
	cfg, err := t.settings.SMSSettings(ctx, req.TenantID)
	if errors.Is(err, settings.ErrNotConfigured) {
		return t.skip(ctx, req, attempt)
	}
	if err != nil {
		return t.settingsFailure(ctx, req, attempt, err)
	}
	if !cfg.Enabled {
		return t.skip(ctx, req, attempt)
	}

	sendCfg := t.codec.PrepareSMSForResponse(*cfg, true)

	t.reporter.Processing(ctx, req, attempt)
	result := t.newClient(sendCfg, t.timeout, t.logger).Send(ctx, req)
	if result.OK {
		return t.succeed(ctx, req, "sms", attempt)
	}
	return t.retryOrFail(ctx, req, "sms", attempt, result)
}

// TelegramTask delivers one chat message via the tenant's bot.
type TelegramTask struct {
	taskCore
	newClient func(token string, timeout time.Duration, logger *slog.Logger) sender
}

func NewTelegramTask(store settings.Provider, codec *settings.Codec, policy Policy, reporter Reporter, logger *slog.Logger, timeout time.Duration) *TelegramTask {
	return &TelegramTask{
		taskCore: taskCore{settings: store, codec: codec, policy: policy, reporter: reporter, logger: logger, timeout: timeout},
		newClient: func(token string, timeout time.Duration, logger *slog.Logger) sender {
			return provider.NewTelegramClient(token, timeout, logger)
		},
	}
}

func (t *TelegramTask) Channel() models.Channel { return models.ChannelTelegram }

func (t *TelegramTask) Run(ctx context.Context, req *models.DeliveryRequest, attempt int) (models.TaskState, error) {
	cfg, err := t.settings.TelegramSettings(ctx, req.TenantID)
	if errors.Is(err, settings.ErrNotConfigured) {
		return t.skip(ctx, req, attempt)
	}
	if err != nil {
		return t.settingsFailure(ctx, req, attempt, err)
	}
	if !cfg.Enabled {
		return t.skip(ctx, req, attempt)
	}

	token := t.codec.PrepareTelegramForResponse(*cfg, true).BotToken

	t.reporter.Processing(ctx, req, attempt)
	result := t.newClient(token, t.timeout, t.logger).Send(ctx, req)
	if result.OK {
		return t.succeed(ctx, req, "telegram", attempt)
	}
	return t.retryOrFail(ctx, req, "telegram", attempt, result)
}
