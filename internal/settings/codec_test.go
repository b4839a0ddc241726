package settings

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentfolio/notification-service/internal/vault"
)

func newTestCodec(t *testing.T) (*Codec, *vault.Vault) {
	t.Helper()
	key := make([]byte, vault.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	v, err := vault.New(hex.EncodeToString(key))
	require.NoError(t, err)
	codec, err := NewCodec(v, DefaultPolicies())
	require.NoError(t, err)
	return codec, v
}

func TestPrepareEmailForStorage_EncryptsOnceOnly(t *testing.T) {
	codec, v := newTestCodec(t)

	cfg := EmailSettings{
		Enabled:     true,
		Provider:    "gmail",
		Host:        "smtp.gmail.com",
		Port:        587,
		Username:    "landlord@example.com",
		Password:    "app-password-123",
		FromAddress: "landlord@example.com",
	}

	stored, err := codec.PrepareEmailForStorage(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, cfg.Password, stored.Password)
	assert.Equal(t, "app-password-123", v.Decrypt(stored.Password))

	// A repeated save of the already-encrypted config must not re-encrypt.
	again, err := codec.PrepareEmailForStorage(stored)
	require.NoError(t, err)
	assert.Equal(t, stored.Password, again.Password)

	// Non-credential fields pass through untouched.
	assert.Equal(t, cfg.Host, stored.Host)
	assert.Equal(t, cfg.Port, stored.Port)
}

func TestPrepareSMSForStorage_BothCredentials(t *testing.T) {
	codec, v := newTestCodec(t)

	stored, err := codec.PrepareSMSForStorage(SMSSettings{
		Enabled:   true,
		BaseURL:   "https://sms.example.com",
		APIKey:    "key-1",
		APISecret: "secret-1",
		SenderID:  "RENTFOLIO",
	})
	require.NoError(t, err)
	assert.Equal(t, "key-1", v.Decrypt(stored.APIKey))
	assert.Equal(t, "secret-1", v.Decrypt(stored.APISecret))

	again, err := codec.PrepareSMSForStorage(stored)
	require.NoError(t, err)
	assert.Equal(t, stored.APIKey, again.APIKey)
	assert.Equal(t, stored.APISecret, again.APISecret)
}

func TestPrepareForStorage_EmptyCredentialStaysEmpty(t *testing.T) {
	codec, _ := newTestCodec(t)

	stored, err := codec.PrepareTelegramForStorage(TelegramSettings{Enabled: false})
	require.NoError(t, err)
	assert.Empty(t, stored.BotToken)
}

func TestPrepareForResponse_StripsSecretsByDefault(t *testing.T) {
	codec, _ := newTestCodec(t)

	email := codec.PrepareEmailForResponse(EmailSettings{Username: "u", Password: "ciphertext"}, false)
	assert.Empty(t, email.Password)
	assert.Equal(t, "u", email.Username)

	sms := codec.PrepareSMSForResponse(SMSSettings{APIKey: "c1", APISecret: "c2", SenderID: "S"}, false)
	assert.Empty(t, sms.APIKey)
	assert.Empty(t, sms.APISecret)
	assert.Equal(t, "S", sms.SenderID)

	tg := codec.PrepareTelegramForResponse(TelegramSettings{BotToken: "c"}, false)
	assert.Empty(t, tg.BotToken)
}

func TestPrepareForResponse_IncludeSecretsDecrypts(t *testing.T) {
	codec, _ := newTestCodec(t)

	stored, err := codec.PrepareTelegramForStorage(TelegramSettings{BotToken: "123456:bot-token"})
	require.NoError(t, err)

	out := codec.PrepareTelegramForResponse(stored, true)
	assert.Equal(t, "123456:bot-token", out.BotToken)
}

func TestPrepareForResponse_CorruptedCiphertextDegradesToEmpty(t *testing.T) {
	codec, _ := newTestCodec(t)

	// A foreign-format value long enough to classify as ciphertext must
	// degrade to "no secret", never error.
	garbage := TelegramSettings{BotToken: "definitely-not-a-vault-envelope-but-quite-long-anyway-0123456789"}
	out := codec.PrepareTelegramForResponse(garbage, true)
	assert.Empty(t, out.BotToken)
}

func TestNewCodec_RejectsBadPolicies(t *testing.T) {
	_, v := newTestCodec(t)
	bad := DefaultPolicies()
	bad.EmailPassword = vault.FieldPolicy{MaxPlaintextLen: 10_000}
	_, err := NewCodec(v, bad)
	assert.Error(t, err)
}
