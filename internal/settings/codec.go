package settings

import (
	"fmt"

	"github.com/rentfolio/notification-service/internal/vault"
)

// Policies names the ciphertext-detection policy for every credential field.
// Thresholds are configurable per field because each channel's plaintext
// format has its own natural maximum length.
type Policies struct {
	EmailPassword    vault.FieldPolicy
	SMSAPIKey        vault.FieldPolicy
	SMSAPISecret     vault.FieldPolicy
	TelegramBotToken vault.FieldPolicy
}

// DefaultPolicies applies the default threshold to every field.
func DefaultPolicies() Policies {
	return Policies{
		EmailPassword:    vault.DefaultFieldPolicy,
		SMSAPIKey:        vault.DefaultFieldPolicy,
		SMSAPISecret:     vault.DefaultFieldPolicy,
		TelegramBotToken: vault.DefaultFieldPolicy,
	}
}

// Validate checks every field policy against the vault's envelope format.
func (p Policies) Validate() error {
	for name, policy := range map[string]vault.FieldPolicy{
		"email password":     p.EmailPassword,
		"sms api key":        p.SMSAPIKey,
		"sms api secret":     p.SMSAPISecret,
		"telegram bot token": p.TelegramBotToken,
	} {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("settings: %s: %w", name, err)
		}
	}
	return nil
}

// Codec transforms channel settings between their plaintext, stored and
// response representations. It owns no persistence; callers save and serve
// the values it returns.
type Codec struct {
	vault    *vault.Vault
	policies Policies
}

func NewCodec(v *vault.Vault, policies Policies) (*Codec, error) {
	if err := policies.Validate(); err != nil {
		return nil, err
	}
	return &Codec{vault: v, policies: policies}, nil
}

// PrepareEmailForStorage encrypts the password in place unless it already
// looks like ciphertext. Safe to call repeatedly on its own output.
func (c *Codec) PrepareEmailForStorage(cfg EmailSettings) (EmailSettings, error) {
	enc, err := c.vault.EncryptInPlace(cfg.Password, c.policies.EmailPassword)
	if err != nil {
		return cfg, err
	}
	cfg.Password = enc
	return cfg, nil
}

// PrepareSMSForStorage encrypts the api key and secret in place.
func (c *Codec) PrepareSMSForStorage(cfg SMSSettings) (SMSSettings, error) {
	key, err := c.vault.EncryptInPlace(cfg.APIKey, c.policies.SMSAPIKey)
	if err != nil {
		return cfg, err
	}
	secret, err := c.vault.EncryptInPlace(cfg.APISecret, c.policies.SMSAPISecret)
	if err != nil {
		return cfg, err
	}
	cfg.APIKey = key
	cfg.APISecret = secret
	return cfg, nil
}

// PrepareTelegramForStorage encrypts the bot token in place.
func (c *Codec) PrepareTelegramForStorage(cfg TelegramSettings) (TelegramSettings, error) {
	token, err := c.vault.EncryptInPlace(cfg.BotToken, c.policies.TelegramBotToken)
	if err != nil {
		return cfg, err
	}
	cfg.BotToken = token
	return cfg, nil
}

// PrepareEmailForResponse strips the password by default so secrets are never
// echoed back through the settings API. With includeSecrets it decrypts
// just-in-time instead, for internal send paths only.
func (c *Codec) PrepareEmailForResponse(cfg EmailSettings, includeSecrets bool) EmailSettings {
	if includeSecrets {
		cfg.Password = c.vault.Decrypt(cfg.Password)
	} else {
		cfg.Password = ""
	}
	return cfg
}

// PrepareSMSForResponse strips or decrypts the api key and secret.
func (c *Codec) PrepareSMSForResponse(cfg SMSSettings, includeSecrets bool) SMSSettings {
	if includeSecrets {
		cfg.APIKey = c.vault.Decrypt(cfg.APIKey)
		cfg.APISecret = c.vault.Decrypt(cfg.APISecret)
	} else {
		cfg.APIKey = ""
		cfg.APISecret = ""
	}
	return cfg
}

// PrepareTelegramForResponse strips or decrypts the bot token.
func (c *Codec) PrepareTelegramForResponse(cfg TelegramSettings, includeSecrets bool) TelegramSettings {
	if includeSecrets {
		cfg.BotToken = c.vault.Decrypt(cfg.BotToken)
	} else {
		cfg.BotToken = ""
	}
	return cfg
}
