package vault

import "fmt"

// FieldPolicy decides whether a stored credential value is already ciphertext.
// Native secret formats (SMTP passwords, short API tokens) stay under
// MaxPlaintextLen; envelopes produced by the vault are always longer. Values
// past the threshold are therefore assumed to be ciphertext and left alone,
// which makes repeated "save settings" calls idempotent without a schema flag.
type FieldPolicy struct {
	// MaxPlaintextLen is the longest plaintext this field can legitimately
	// hold. Anything longer is classified as ciphertext.
	MaxPlaintextLen int
}

// DefaultMaxPlaintextLen suits SMTP passwords, gateway API keys and Telegram
// bot tokens, all of which stay well under it in practice.
const DefaultMaxPlaintextLen = 48

// DefaultFieldPolicy is used wherever a channel does not override the
// threshold.
var DefaultFieldPolicy = FieldPolicy{MaxPlaintextLen: DefaultMaxPlaintextLen}

// Validate rejects thresholds the heuristic cannot support: an envelope for
// even a one-byte plaintext must still classify as ciphertext, otherwise a
// second save would encrypt it again.
func (p FieldPolicy) Validate() error {
	if p.MaxPlaintextLen <= 0 {
		return fmt.Errorf("vault: field policy threshold must be positive, got %d", p.MaxPlaintextLen)
	}
	if min := EncryptedLen(1); p.MaxPlaintextLen >= min {
		return fmt.Errorf("vault: field policy threshold %d would misclassify a minimal ciphertext (length %d) as plaintext", p.MaxPlaintextLen, min)
	}
	return nil
}

// IsCiphertext applies the length heuristic.
func (p FieldPolicy) IsCiphertext(value string) bool {
	return len(value) > p.MaxPlaintextLen
}

// EncryptInPlace returns value encrypted unless it is empty or already looks
// like ciphertext under the policy. This is the storage-time guard against
// double encryption.
func (v *Vault) EncryptInPlace(value string, policy FieldPolicy) (string, error) {
	if value == "" || policy.IsCiphertext(value) {
		return value, nil
	}
	return v.Encrypt(value)
}
