package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/azad-ai/azad_bot/internal/config"
)

const whatsappPrefix = "whatsapp:"

// TwilioSender delivers WhatsApp messages through the Twilio Messages API.
type TwilioSender struct {
	httpClient *http.Client
	cfg        config.TwilioConfig
	logger     *slog.Logger
}

// NewTwilioSender creates a sender with a bounded request timeout.
func NewTwilioSender(cfg config.TwilioConfig, timeout time.Duration, logger *slog.Logger) *TwilioSender {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &TwilioSender{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send posts message to the destination's WhatsApp address.
func (s *TwilioSender) Send(ctx context.Context, message Message) error {
	form := url.Values{
		"To":   {whatsappAddress(message.Destination)},
		"From": {whatsappAddress(s.cfg.WhatsAppNumber)},
		"Body": {message.Body},
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.cfg.BaseURL, url.PathEscape(s.cfg.AccountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr twilioError
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("twilio status %d: %s (code %d)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("twilio status %d", resp.StatusCode)
	}

	s.logger.Debug("message sent", slog.String("kind", message.Kind), slog.String("destination", message.Destination))
	return nil
}

func whatsappAddress(number string) string {
	if strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}
