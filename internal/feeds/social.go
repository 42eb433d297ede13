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

// SocialClient reads recent posts from a Facebook page through the Graph API.
type SocialClient struct {
	httpClient *http.Client
	cfg        config.FacebookConfig
	source     *cachedSource
}

// NewSocialClient builds a page feed client.
func NewSocialClient(cfg config.FacebookConfig, timeout, cacheTTL time.Duration) *SocialClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SocialClient{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		source:     newCachedSource(cacheTTL),
	}
}

type graphPostsResponse struct {
	Data []struct {
		Message      string `json:"message"`
		Story        string `json:"story"`
		PermalinkURL string `json:"permalink_url"`
	} `json:"data"`
}

// FetchPosts returns up to limit recent page posts.
func (c *SocialClient) FetchPosts(ctx context.Context, limit int) ([]Post, error) {
	if c.cfg.AccessToken == "" || c.cfg.PageID == "" {
		return nil, ErrNotConfigured
	}
	v, err := c.source.load(ctx, "posts:"+strconv.Itoa(limit), func(ctx context.Context) (any, error) {
		q := url.Values{
			"access_token": {c.cfg.AccessToken},
			"limit":        {strconv.Itoa(limit)},
			"fields":       {"message,story,permalink_url"},
		}
		endpoint := fmt.Sprintf("%s/%s/posts?%s", c.cfg.BaseURL, url.PathEscape(c.cfg.PageID), q.Encode())

		var res graphPostsResponse
		if err := getJSON(ctx, c.httpClient, endpoint, &res); err != nil {
			return nil, fmt.Errorf("facebook: %w", err)
		}
		posts := make([]Post, 0, len(res.Data))
		for _, p := range res.Data {
			text := p.Message
			if text == "" {
				text = p.Story
			}
			if text == "" {
				text = "No content"
			}
			posts = append(posts, Post{Text: text, Link: p.PermalinkURL})
		}
		return posts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Post), nil
}
