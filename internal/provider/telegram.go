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
)

// DefaultTelegramAPIHost is the production Bot API endpoint.
const DefaultTelegramAPIHost = "https://api.telegram.org"

// TelegramClient calls the Telegram Bot API. The bot token rides in the URL
// path, so every error string that could contain the URL is redacted before
// it reaches a log or a result.
type TelegramClient struct {
	token   string
	apiHost string
	client  *http.Client
	logger  *slog.Logger
}

func NewTelegramClient(token string, timeout time.Duration, logger *slog.Logger) *TelegramClient {
	return NewTelegramClientWithHost(token, DefaultTelegramAPIHost, timeout, logger)
}

// NewTelegramClientWithHost exists for tests that point the client at a mock
// API server.
func NewTelegramClientWithHost(token, apiHost string, timeout time.Duration, logger *slog.Logger) *TelegramClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramClient{
		token:   token,
		apiHost: strings.TrimRight(apiHost, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type telegramSendRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

// Send delivers one message to the request's chat id. An HTTP 200 carrying
// {ok:false} is a remote rejection with the API's description, distinct from
// a transport failure.
func (c *TelegramClient) Send(ctx context.Context, req *models.DeliveryRequest) models.DeliveryResult {
	payload := telegramSendRequest{
		ChatID:              req.Recipient,
		Text:                req.Body,
		ParseMode:           req.Options.TelegramParseMode,
		DisableNotification: req.Options.TelegramSilent,
	}
	result := c.call(ctx, "sendMessage", &payload)
	if result.OK {
		c.logger.Info("telegram message sent",
			slog.Int64("tenant_id", req.TenantID),
			slog.String("chat_id", req.Recipient),
		)
	} else {
		c.logger.Error("telegram send failed",
			slog.Int64("tenant_id", req.TenantID),
			slog.String("chat_id", req.Recipient),
			slog.String("class", string(result.Class)),
			slog.String("cause", result.Message),
			slog.Int("status", result.Status),
		)
	}
	return result
}

// TestConnection validates the stored bot token with getMe, a read-only
// probe that sends no user-visible traffic.
func (c *TelegramClient) TestConnection(ctx context.Context) bool {
	result := c.call(ctx, "getMe", nil)
	if !result.OK {
		c.logger.Warn("telegram connection test failed",
			slog.String("class", string(result.Class)),
			slog.String("cause", result.Message),
		)
	}
	return result.OK
}

func (c *TelegramClient) call(ctx context.Context, method string, payload any) models.DeliveryResult {
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

	url := fmt.Sprintf("%s/bot%s/%s", c.apiHost, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return models.TransportFailure(c.redact(err.Error()), 0)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.TransportFailure(c.redact(err.Error()), 0)
	}
	defer resp.Body.Close()

	var parsed telegramResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Telegram reports API errors with non-2xx statuses too; a parsed
		// description still counts as a remote rejection.
		if decodeErr == nil && parsed.Description != "" {
			return models.RemoteRejected(parsed.Description, parsed.ErrorCode)
		}
		return models.TransportFailure(fmt.Sprintf("telegram returned status %d", resp.StatusCode), resp.StatusCode)
	}
	if decodeErr != nil {
		return models.TransportFailure(fmt.Sprintf("decoding telegram response: %v", decodeErr), resp.StatusCode)
	}
	if !parsed.OK {
		return models.RemoteRejected(parsed.Description, parsed.ErrorCode)
	}
	return models.Delivered()
}

// redact removes the bot token from a message. Transport errors embed the
// full request URL, and the token must never reach logs or stored results.
func (c *TelegramClient) redact(message string) string {
	if c.token == "" {
		return message
	}
	return strings.ReplaceAll(message, c.token, "[redacted]")
}
