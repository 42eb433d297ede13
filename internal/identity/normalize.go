package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidIdentity is returned when a sender identifier cannot be turned into
// a canonical phone number.
var ErrInvalidIdentity = errors.New("invalid identity")

var transportPrefixes = []string{"whatsapp:", "tel:", "sms:"}

// Normalize strips any transport prefix from raw and returns the number in
// E.164 form (+<country code><national number>). Numbers without a leading
// plus are interpreted in defaultRegion (an ISO 3166 code such as "IN").
func Normalize(raw, defaultRegion string) (string, error) {
	value := strings.TrimSpace(raw)
	for _, prefix := range transportPrefixes {
		if len(value) >= len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
			value = strings.TrimSpace(value[len(prefix):])
			break
		}
	}
	if value == "" {
		return "", ErrInvalidIdentity
	}
	if strings.HasPrefix(value, "00") {
		value = "+" + value[2:]
	}

	num, err := phonenumbers.Parse(value, strings.ToUpper(defaultRegion))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", fmt.Errorf("%w: %q is not a possible number", ErrInvalidIdentity, raw)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Normalizer binds Normalize to a default region.
type Normalizer struct {
	Region string
}

// Normalize canonicalizes raw using the configured region.
func (n Normalizer) Normalize(raw string) (string, error) {
	return Normalize(raw, n.Region)
}
