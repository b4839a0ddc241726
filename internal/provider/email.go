package provider

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/rentfolio/notification-service/internal/models"
	"github.com/rentfolio/notification-service/internal/settings"
)

// EmailClient sends mail on behalf of one tenant. Implementations never
// return an error: every transport exception and provider-reported failure is
// folded into the result and a structured log entry.
type EmailClient interface {
	Name() string
	Send(ctx context.Context, req *models.DeliveryRequest) models.DeliveryResult
	TestConnection(ctx context.Context) bool
}

// SMTPClient is the shared SMTP implementation behind the provider presets.
// The outbound transport is configured from the tenant's settings immediately
// before each send; nothing is pooled across attempts.
type SMTPClient struct {
	name    string
	cfg     settings.EmailSettings
	timeout time.Duration
	logger  *slog.Logger
}

// NewGmailClient returns an SMTP client preset for Gmail. Host and port from
// the tenant's settings win when present.
func NewGmailClient(cfg settings.EmailSettings, timeout time.Duration, logger *slog.Logger) EmailClient {
	applyPreset(&cfg, "smtp.gmail.com", 587, "tls")
	return newSMTPClient("gmail", cfg, timeout, logger)
}

// NewOffice365Client returns an SMTP client preset for Microsoft 365.
func NewOffice365Client(cfg settings.EmailSettings, timeout time.Duration, logger *slog.Logger) EmailClient {
	applyPreset(&cfg, "smtp.office365.com", 587, "tls")
	return newSMTPClient("office365", cfg, timeout, logger)
}

func newSMTPClient(name string, cfg settings.EmailSettings, timeout time.Duration, logger *slog.Logger) *SMTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPClient{name: name, cfg: cfg, timeout: timeout, logger: logger}
}

func applyPreset(cfg *settings.EmailSettings, host string, port int, encryption string) {
	if cfg.Host == "" {
		cfg.Host = host
	}
	if cfg.Port == 0 {
		cfg.Port = port
	}
	if cfg.Encryption == "" {
		cfg.Encryption = encryption
	}
}

func (c *SMTPClient) Name() string { return c.name }

// Send delivers one message. CC, BCC and attachments come from the request
// options. Failures to even assemble the message (malformed addresses) are
// classified as remote rejections; dial and transfer problems as transport
// failures.
func (c *SMTPClient) Send(ctx context.Context, req *models.DeliveryRequest) models.DeliveryResult {
	msg, err := c.buildMessage(req.Recipient, req.Subject, req.Body, req.Options)
	if err != nil {
		c.logger.Error("email message rejected",
			slog.String("provider", c.name),
			slog.Int64("tenant_id", req.TenantID),
			slog.String("recipient", req.Recipient),
			slog.String("subject", req.Subject),
			slog.Any("error", err),
		)
		return models.RemoteRejected(err.Error(), 0)
	}

	client, err := c.dialClient()
	if err != nil {
		c.logger.Error("smtp client configuration failed",
			slog.String("provider", c.name),
			slog.Int64("tenant_id", req.TenantID),
			slog.String("recipient", req.Recipient),
			slog.Any("error", err),
		)
		return models.TransportFailure(err.Error(), 0)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		c.logger.Error("email send failed",
			slog.String("provider", c.name),
			slog.Int64("tenant_id", req.TenantID),
			slog.String("recipient", req.Recipient),
			slog.String("subject", req.Subject),
			slog.Any("error", err),
		)
		return models.TransportFailure(err.Error(), 0)
	}

	c.logger.Info("email sent",
		slog.String("provider", c.name),
		slog.Int64("tenant_id", req.TenantID),
		slog.String("recipient", req.Recipient),
	)
	return models.Delivered()
}

// TestConnection performs a best-effort round trip by mailing the tenant's
// own from-address. It reports boolean success and never raises.
func (c *SMTPClient) TestConnection(ctx context.Context) bool {
	msg, err := c.buildMessage(c.cfg.FromAddress, "Connection test", "This is a connection test.", models.Options{})
	if err != nil {
		c.logger.Warn("connection test could not build probe message",
			slog.String("provider", c.name), slog.Any("error", err))
		return false
	}
	client, err := c.dialClient()
	if err != nil {
		c.logger.Warn("connection test failed",
			slog.String("provider", c.name), slog.Any("error", err))
		return false
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		c.logger.Warn("connection test failed",
			slog.String("provider", c.name), slog.Any("error", err))
		return false
	}
	return true
}

func (c *SMTPClient) buildMessage(to, subject, body string, opts models.Options) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if c.cfg.FromName != "" {
		if err := msg.FromFormat(c.cfg.FromName, c.cfg.FromAddress); err != nil {
			return nil, err
		}
	} else {
		if err := msg.From(c.cfg.FromAddress); err != nil {
			return nil, err
		}
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	if len(opts.CC) > 0 {
		if err := msg.Cc(opts.CC...); err != nil {
			return nil, err
		}
	}
	if len(opts.BCC) > 0 {
		if err := msg.Bcc(opts.BCC...); err != nil {
			return nil, err
		}
	}
	msg.Subject(subject)
	if opts.HTML {
		msg.SetBodyString(mail.TypeTextHTML, body)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, body)
	}
	for _, attachment := range opts.Attachments {
		if attachment.Name != "" {
			msg.AttachFile(attachment.Path, mail.WithFileName(attachment.Name))
		} else {
			msg.AttachFile(attachment.Path)
		}
	}
	return msg, nil
}

func (c *SMTPClient) dialClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(c.cfg.Port),
		mail.WithTimeout(c.timeout),
	}
	switch strings.ToLower(c.cfg.Encryption) {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "none", "":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default: // "tls"
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if c.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.cfg.Username),
			mail.WithPassword(c.cfg.Password),
		)
	}
	return mail.NewClient(c.cfg.Host, opts...)
}
