package paylink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/azad-ai/azad_bot/internal/config"
)

const purpose = "Azad AI subscription"

// ErrNotConfigured is returned when processor credentials are missing.
var ErrNotConfigured = errors.New("payment links not configured")

// Creator issues payment links for a subscriber.
type Creator interface {
	CreatePaymentLink(ctx context.Context, identity string) (string, error)
}

// Instamojo creates payment requests through the Instamojo REST API.
type Instamojo struct {
	httpClient *http.Client
	cfg        config.PaymentConfig
	price      string
	webhookURL string
}

// NewInstamojo builds a payment link creator. webhookURL may be empty, in
// which case the processor's dashboard setting applies.
func NewInstamojo(cfg config.PaymentConfig, price, webhookURL string, timeout time.Duration) *Instamojo {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Instamojo{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		price:      price,
		webhookURL: webhookURL,
	}
}

type paymentRequestResponse struct {
	Success        bool            `json:"success"`
	Message        json.RawMessage `json:"message"`
	PaymentRequest struct {
		ID      string `json:"id"`
		LongURL string `json:"longurl"`
	} `json:"payment_request"`
}

// CreatePaymentLink registers a payment request for identity and returns its URL.
func (m *Instamojo) CreatePaymentLink(ctx context.Context, identity string) (string, error) {
	if m.cfg.APIKey == "" || m.cfg.AuthToken == "" {
		return "", ErrNotConfigured
	}

	form := url.Values{
		"purpose":                 {purpose},
		"amount":                  {m.price},
		"phone":                   {identity},
		"send_sms":                {"false"},
		"allow_repeated_payments": {"false"},
	}
	if m.webhookURL != "" {
		form.Set("webhook", m.webhookURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/payment-requests/", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Api-Key", m.cfg.APIKey)
	req.Header.Set("X-Auth-Token", m.cfg.AuthToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var res paymentRequestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !res.Success {
		return "", fmt.Errorf("instamojo status %d: %s", resp.StatusCode, string(res.Message))
	}
	if res.PaymentRequest.LongURL == "" {
		return "", fmt.Errorf("instamojo returned no payment url")
	}
	return res.PaymentRequest.LongURL, nil
}
