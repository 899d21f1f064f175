package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"autotrader-core/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	redditBaseURL     = "https://www.reddit.com"
	defaultRedditUA   = "autotrader-core/1.0"
	defaultRedditSize = 40
)

type RedditProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	limiter   *RateLimiter
	tracer    trace.Tracer
}

// NewRedditProvider stays under the unauthenticated listing quota of ten
// requests per minute.
func NewRedditProvider(tracer trace.Tracer, userAgent string) *RedditProvider {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultRedditUA
	}
	return &RedditProvider{
		client:    &http.Client{Timeout: 20 * time.Second},
		baseURL:   redditBaseURL,
		userAgent: userAgent,
		limiter:   NewRateLimiter(10, 6*time.Second),
		tracer:    tracer,
	}
}

// FetchHot returns the subreddit's hot listing as social posts. The title and
// self text form the post content.
func (p *RedditProvider) FetchHot(ctx context.Context, subreddit string, limit int) ([]domain.SocialMediaPost, error) {
	ctx, span := p.tracer.Start(ctx, "reddit.fetch-hot")
	defer span.End()

	subreddit = strings.TrimSpace(subreddit)
	if subreddit == "" {
		return nil, fmt.Errorf("subreddit is required")
	}
	if limit <= 0 {
		limit = defaultRedditSize
	}
	if limit > 100 {
		limit = 100
	}
	span.SetAttributes(attribute.String("subreddit", subreddit))

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	base := strings.TrimRight(p.baseURL, "/")
	u := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", base, url.PathEscape(subreddit), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reddit API error %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data struct {
			Children []struct {
				Data struct {
					ID          string  `json:"id"`
					Title       string  `json:"title"`
					SelfText    string  `json:"selftext"`
					Author      string  `json:"author"`
					CreatedUTC  float64 `json:"created_utc"`
					Score       float64 `json:"score"`
					NumComments float64 `json:"num_comments"`
					Stickied    bool    `json:"stickied"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode reddit response: %w", err)
	}

	posts := make([]domain.SocialMediaPost, 0, len(payload.Data.Children))
	for _, row := range payload.Data.Children {
		data := row.Data
		if data.Stickied || strings.TrimSpace(data.ID) == "" || strings.TrimSpace(data.Title) == "" {
			continue
		}
		content := sanitizeText(data.Title, 300)
		if body := sanitizeText(data.SelfText, 1000); body != "" {
			content += " " + body
		}
		posts = append(posts, domain.SocialMediaPost{
			ID:          "reddit:" + data.ID,
			Platform:    domain.PlatformReddit,
			Author:      sanitizeText(data.Author, 120),
			Content:     content,
			Likes:       int(data.Score),
			Shares:      int(data.NumComments),
			PublishedAt: time.Unix(int64(data.CreatedUTC), 0).UTC(),
		})
	}
	span.SetAttributes(attribute.Int("posts", len(posts)))
	return posts, nil
}
