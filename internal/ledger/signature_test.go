package ledger

import (
	"errors"
	"net/url"
	"testing"
)

func TestCanonicalizeSortsAndSkipsMAC(t *testing.T) {
	payload := url.Values{
		"status":     {"Credit"},
		"amount":     {"99.00"},
		"mac":        {"ignored"},
		"payment_id": {"p-1"},
	}
	got := Canonicalize(payload)
	want := "amount=99.00&payment_id=p-1&status=Credit"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestVerify(t *testing.T) {
	payload := url.Values{"status": {"Credit"}, "buyer_phone": {"+919876543210"}}
	good := Sign(payload, "secret")

	withMAC := url.Values{"status": {"Credit"}, "buyer_phone": {"+919876543210"}, "mac": {good}}
	if err := Verify(withMAC, good, "secret"); err != nil {
		t.Fatalf("mac field should not affect verification: %v", err)
	}

	cases := []struct {
		name      string
		signature string
		secret    string
		mismatch  bool
	}{
		{"valid", good, "secret", false},
		{"wrong secret", good, "other", true},
		{"truncated", good[:10], "secret", true},
		{"not hex", "zz", "secret", true},
		{"empty", "", "secret", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Verify(payload, tc.signature, tc.secret)
			if tc.mismatch != errors.Is(err, ErrSignatureMismatch) {
				t.Fatalf("unexpected result %v", err)
			}
			if !tc.mismatch && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
		})
	}

	var verr *VerificationError
	if err := Verify(payload, good, ""); !errors.As(err, &verr) {
		t.Fatalf("expected verification error without secret, got %v", err)
	}
}
