package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// SignatureField is the payload field some processors use to carry the MAC.
// It never takes part in the signed content.
const SignatureField = "mac"

// ErrSignatureMismatch is the reason carried by VerificationError when the MAC does not match.
var ErrSignatureMismatch = errors.New("signature mismatch")

// VerificationError reports why a payment webhook was rejected before any state change.
type VerificationError struct {
	Reason error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("webhook verification failed: %v", e.Reason)
}

func (e *VerificationError) Unwrap() error {
	return e.Reason
}

// Canonicalize renders payload as key=value pairs sorted by key and joined by '&'.
// Multi-valued keys contribute their first value; the signature field is skipped.
func Canonicalize(payload url.Values) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if strings.EqualFold(k, SignatureField) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(payload.Get(k))
	}
	return b.String()
}

// Sign returns the hex HMAC-SHA256 of the canonical payload.
func Sign(payload url.Values, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Canonicalize(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against payload in constant time.
func Verify(payload url.Values, signature, secret string) error {
	if secret == "" {
		return &VerificationError{Reason: errors.New("no shared secret configured")}
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return &VerificationError{Reason: ErrSignatureMismatch}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Canonicalize(payload)))
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return &VerificationError{Reason: ErrSignatureMismatch}
	}
	return nil
}

// payloadKey derives a stable idempotency key for payloads without a payment id.
func payloadKey(payload url.Values) string {
	sum := sha256.Sum256([]byte(Canonicalize(payload)))
	return "payload:" + hex.EncodeToString(sum[:])
}
