package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/azad-ai/azad_bot/internal/config"
)

const maxTokens = 150

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("assistant not configured")
	// ErrEmptyAnswer is returned when the model produced no text.
	ErrEmptyAnswer = errors.New("assistant returned no answer")
)

// Client answers free-form questions with an OpenAI chat completion.
type Client struct {
	httpClient *http.Client
	cfg        config.OpenAIConfig
}

// NewClient builds an assistant client.
func NewClient(cfg config.OpenAIConfig, timeout time.Duration) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{httpClient: &http.Client{Timeout: timeout}, cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Answer sends question to the model and returns the trimmed reply.
func (c *Client) Answer(ctx context.Context, question string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: question}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var res chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if res.Error != nil {
			return "", fmt.Errorf("openai status %d: %s", resp.StatusCode, res.Error.Message)
		}
		return "", fmt.Errorf("openai status %d", resp.StatusCode)
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	answer := strings.TrimSpace(res.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}
