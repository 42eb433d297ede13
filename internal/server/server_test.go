package server

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/azad-ai/azad_bot/internal/config"
	"github.com/azad-ai/azad_bot/internal/logging"
)

func TestServerAnswersErrorsInPlainText(t *testing.T) {
	cfg := config.Config{
		AppName:         "AzadBot",
		AppEnv:          "test",
		StoreDriver:     config.StoreDriverMemory,
		OutboundTimeout: time.Second,
		DefaultRegion:   "IN",
		ReplyMode:       config.ReplyModeAPI,
		Payment:         config.PaymentConfig{WebhookSecret: "secret", SignatureHeader: "X-Payment-Signature"},
		Subscription:    config.SubscriptionConfig{PeriodDays: 30, ClaimGrace: time.Hour},
	}
	srv, err := New(cfg, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	resp, err := srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/missing", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != fiber.MIMETextPlainCharsetUTF8 {
		t.Fatalf("unexpected content type %s (%s)", ct, body)
	}
}
