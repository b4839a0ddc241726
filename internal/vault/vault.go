package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required master key length in bytes.
const KeySize = chacha20poly1305.KeySize

// envelopeVersion is prepended to every ciphertext and authenticated as AAD,
// so tampering with it fails decryption.
const envelopeVersion byte = 0x01

// envelopeOverhead is the raw byte overhead per ciphertext:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const envelopeOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// ErrEncryptionUnavailable is returned by Encrypt when the deployment has no
// master key configured. It is the only way Encrypt fails for non-empty input.
var ErrEncryptionUnavailable = errors.New("vault: no master key configured")

// Vault performs reversible, authenticated encryption of per-tenant provider
// credentials. The master key is read-only and process-wide.
type Vault struct {
	aead cipher.AEAD
}

// New builds a Vault from a hex-encoded 32-byte master key. An empty key
// yields a vault with encryption unavailable: Encrypt fails, Decrypt degrades
// every input to "".
func New(masterKeyHex string) (*Vault, error) {
	if masterKeyHex == "" {
		return &Vault{}, nil
	}
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("vault: master key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault: master key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: initializing cipher: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Available reports whether a master key is configured.
func (v *Vault) Available() bool { return v.aead != nil }

// Encrypt seals plaintext and returns a base64 envelope:
// base64(version | nonce | ciphertext+tag). Encrypting an empty string
// returns an empty string, treated everywhere as "no secret set".
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if v.aead == nil {
		return "", ErrEncryptionUnavailable
	}

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, envelopeOverhead+len(plaintext))
	out[0] = envelopeVersion
	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return "", fmt.Errorf("vault: generating nonce: %w", err)
	}

	nonce := out[1:]
	out = v.aead.Seal(out, nonce, []byte(plaintext), []byte{envelopeVersion})
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a ciphertext produced by Encrypt. On any failure to parse or
// authenticate — foreign format, truncation, wrong key, tampering — it
// returns "" rather than an error: a corrupted secret degrades to "no secret"
// instead of crashing the dispatch pipeline. Empty input returns "".
func (v *Vault) Decrypt(ciphertext string) string {
	if ciphertext == "" || v.aead == nil {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ""
	}
	if len(raw) < envelopeOverhead || raw[0] != envelopeVersion {
		return ""
	}
	nonce := raw[1 : 1+chacha20poly1305.NonceSizeX]
	sealed := raw[1+chacha20poly1305.NonceSizeX:]
	plaintext, err := v.aead.Open(nil, nonce, sealed, []byte{envelopeVersion})
	if err != nil {
		return ""
	}
	return string(plaintext)
}

// EncryptedLen returns the envelope string length for a plaintext of n bytes.
func EncryptedLen(n int) int {
	return base64.StdEncoding.EncodedLen(envelopeOverhead + n)
}
