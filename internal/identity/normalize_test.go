package identity

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"whatsapp prefix", "whatsapp:+911234567890", "+911234567890"},
		{"uppercase prefix", "WhatsApp:+14155238886", "+14155238886"},
		{"plain e164", "+911234567890", "+911234567890"},
		{"national with region", "98765 43210", "+919876543210"},
		{"international zeros", "00911234567890", "+911234567890"},
		{"formatting characters", "whatsapp:+1 (415) 523-8886", "+14155238886"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw, "IN")
			if err != nil {
				t.Fatalf("normalize %q: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "whatsapp:", "hello", "+12", "whatsapp:abc"} {
		if _, err := Normalize(raw, "IN"); !errors.Is(err, ErrInvalidIdentity) {
			t.Fatalf("expected ErrInvalidIdentity for %q, got %v", raw, err)
		}
	}
}

func TestNormalizerUsesRegion(t *testing.T) {
	n := Normalizer{Region: "US"}
	got, err := n.Normalize("415 523 8886")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "+14155238886" {
		t.Fatalf("expected +14155238886, got %s", got)
	}
}
