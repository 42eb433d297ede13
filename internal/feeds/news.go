package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/azad-ai/azad_bot/internal/config"
)

// NewsClient reads top headlines from GNews.
type NewsClient struct {
	httpClient *http.Client
	cfg        config.NewsConfig
	source     *cachedSource
}

// NewNewsClient builds a headline client.
func NewNewsClient(cfg config.NewsConfig, timeout, cacheTTL time.Duration) *NewsClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &NewsClient{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		source:     newCachedSource(cacheTTL),
	}
}

type gnewsResponse struct {
	Articles []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"articles"`
}

// FetchHeadlines returns up to limit headline titles. An empty slice means no news.
func (c *NewsClient) FetchHeadlines(ctx context.Context, limit int) ([]string, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	v, err := c.source.load(ctx, "news:"+strconv.Itoa(limit), func(ctx context.Context) (any, error) {
		q := url.Values{
			"token": {c.cfg.APIKey},
			"lang":  {"en"},
			"max":   {strconv.Itoa(limit)},
		}
		var res gnewsResponse
		if err := getJSON(ctx, c.httpClient, c.cfg.BaseURL+"/top-headlines?"+q.Encode(), &res); err != nil {
			return nil, fmt.Errorf("gnews: %w", err)
		}
		headlines := make([]string, 0, len(res.Articles))
		for _, a := range res.Articles {
			if t := strings.TrimSpace(a.Title); t != "" {
				headlines = append(headlines, t)
			}
		}
		return headlines, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
