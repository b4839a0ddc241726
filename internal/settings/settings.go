package settings

import (
	"context"
)

// EmailSettings is a tenant's outbound email configuration. Password holds
// ciphertext at rest; it is decrypted just-in-time before a send.
type EmailSettings struct {
	Enabled     bool   `json:"enabled"`
	Provider    string `json:"provider"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Encryption  string `json:"encryption"` // "tls", "ssl" or "none"
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
}

// SMSSettings is a tenant's SMS gateway configuration. APIKey and APISecret
// hold ciphertext at rest.
type SMSSettings struct {
	Enabled   bool   `json:"enabled"`
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	SenderID  string `json:"sender_id"`
}

// TelegramSettings is a tenant's Telegram bot configuration. BotToken holds
// ciphertext at rest. Telegram has no provider choice and no connection
// parameters: the token is embedded in the API path.
type TelegramSettings struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

// Provider supplies per-tenant channel configuration. The dispatch core only
// reads settings; writes happen elsewhere in the suite. Implementations must
// return a fresh read per call so credential rotation takes effect on the
// next delivery attempt.
type Provider interface {
	EmailSettings(ctx context.Context, tenantID int64) (*EmailSettings, error)
	SMSSettings(ctx context.Context, tenantID int64) (*SMSSettings, error)
	TelegramSettings(ctx context.Context, tenantID int64) (*TelegramSettings, error)
}
