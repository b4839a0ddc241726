package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rentfolio/notification-service/internal/models"
	"github.com/rentfolio/notification-service/internal/settings"
)

// SMSClient issues one HTTPS call per operation against the tenant's SMS
// gateway. Credentials travel in headers, never in the URL or the logs.
type SMSClient struct {
	cfg    settings.SMSSettings
	client *http.Client
	logger *slog.Logger
}

func NewSMSClient(cfg settings.SMSSettings, timeout time.Duration, logger *slog.Logger) *SMSClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type smsSendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

type smsResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	MessageID string `json:"message_id"`
}

// Send submits one SMS. The HTTP layer and the gateway's application layer
// are classified separately: network problems and unparseable non-2xx
// responses are transport failures; a parsed response whose status is not
// "success" is a remote rejection.
func (c *SMSClient) Send(ctx context.Context, req *models.DeliveryRequest) models.DeliveryResult {
	payload := smsSendRequest{
		From:    c.cfg.SenderID,
		To:      req.Recipient,
		Message: req.Body,
	}
	result := c.call(ctx, http.MethodPost, "/messages", &payload)
	if result.OK {
		c.logger.Info("sms sent",
			slog.Int64("tenant_id", req.TenantID),
			slog.String("recipient", req.Recipient),
		)
	} else {
		c.logger.Error("sms send failed",
			slog.Int64("tenant_id", req.TenantID),
			slog.String("recipient", req.Recipient),
			slog.String("class", string(result.Class)),
			slog.String("cause", result.Message),
			slog.Int("status", result.Status),
		)
	}
	return result
}

// TestConnection validates the stored credentials with a read-only account
// probe; no user-visible traffic is produced.
func (c *SMSClient) TestConnection(ctx context.Context) bool {
	result := c.call(ctx, http.MethodGet, "/account", nil)
	if !result.OK {
		c.logger.Warn("sms connection test failed",
			slog.String("class", string(result.Class)),
			slog.String("cause", result.Message),
		)
	}
	return result.OK
}

func (c *SMSClient) call(ctx context.Context, method, path string, payload any) models.DeliveryResult {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return models.TransportFailure(fmt.Sprintf("encoding request: %v", err), 0)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return models.TransportFailure(err.Error(), 0)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Api-Secret", c.cfg.APISecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.TransportFailure(err.Error(), 0)
	}
	defer resp.Body.Close()

	var parsed smsResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A parseable API error on a non-2xx status is still a remote
		// rejection; otherwise we only know the transport status.
		if decodeErr == nil && parsed.Message != "" {
			return models.RemoteRejected(parsed.Message, parsed.Code)
		}
		return models.TransportFailure(fmt.Sprintf("gateway returned status %d", resp.StatusCode), resp.StatusCode)
	}
	if decodeErr != nil {
		return models.TransportFailure(fmt.Sprintf("decoding gateway response: %v", decodeErr), resp.StatusCode)
	}
	if !strings.EqualFold(parsed.Status, "success") {
		return models.RemoteRejected(parsed.Message, parsed.Code)
	}
	return models.Delivered()
}
