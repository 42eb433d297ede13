package paylink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/azad-ai/azad_bot/internal/config"
)

func TestCreatePaymentLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment-requests/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "key" || r.Header.Get("X-Auth-Token") != "token" {
			t.Errorf("missing credentials")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("amount") != "99" || r.PostForm.Get("phone") != "+911234567890" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		if r.PostForm.Get("webhook") != "https://bot.example/webhooks/payment" {
			t.Errorf("unexpected webhook %q", r.PostForm.Get("webhook"))
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"payment_request":{"id":"abc","longurl":"https://www.instamojo.com/@azad/abc"}}`))
	}))
	defer srv.Close()

	m := NewInstamojo(config.PaymentConfig{APIKey: "key", AuthToken: "token", BaseURL: srv.URL}, "99", "https://bot.example/webhooks/payment", time.Second)
	link, err := m.CreatePaymentLink(context.Background(), "+911234567890")
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if link != "https://www.instamojo.com/@azad/abc" {
		t.Fatalf("unexpected link %s", link)
	}
}

func TestCreatePaymentLinkFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":{"phone":["Phone number is invalid."]}}`))
	}))
	defer srv.Close()

	m := NewInstamojo(config.PaymentConfig{APIKey: "key", AuthToken: "token", BaseURL: srv.URL}, "99", "", time.Second)
	if _, err := m.CreatePaymentLink(context.Background(), "+911234567890"); err == nil {
		t.Fatal("expected error")
	}

	unconfigured := NewInstamojo(config.PaymentConfig{BaseURL: srv.URL}, "99", "", time.Second)
	if _, err := unconfigured.CreatePaymentLink(context.Background(), "+911234567890"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
