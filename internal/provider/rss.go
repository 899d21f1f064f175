package provider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autotrader-core/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultFeedSize = 40

type RSSProvider struct {
	client  *http.Client
	limiter *HostLimiter
	tracer  trace.Tracer
	now     func() time.Time
}

func NewRSSProvider(tracer trace.Tracer) *RSSProvider {
	return &RSSProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: NewHostLimiter(4, 15*time.Second),
		tracer:  tracer,
		now:     time.Now,
	}
}

// FetchFeed returns up to maxItems news items from an RSS 2.0 feed. Symbols
// are left empty; the analyzer resolves them from the text.
func (p *RSSProvider) FetchFeed(ctx context.Context, feedURL string, maxItems int) ([]domain.NewsItem, error) {
	ctx, span := p.tracer.Start(ctx, "rss.fetch-feed")
	defer span.End()

	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	if maxItems <= 0 {
		maxItems = defaultFeedSize
	}
	span.SetAttributes(attribute.String("feed", feedURL))

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, feedURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rss fetch error %d: %s", resp.StatusCode, string(body))
	}

	var rss struct {
		Channel struct {
			Title string `xml:"title"`
			Items []struct {
				Title       string `xml:"title"`
				Link        string `xml:"link"`
				Description string `xml:"description"`
				GUID        string `xml:"guid"`
				PubDate     string `xml:"pubDate"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("decode rss payload: %w", err)
	}

	source := sanitizeText(rss.Channel.Title, 120)
	if source == "" {
		source = "rss"
	}
	items := make([]domain.NewsItem, 0, min(maxItems, len(rss.Channel.Items)))
	for _, row := range rss.Channel.Items {
		if len(items) >= maxItems {
			break
		}
		title := sanitizeText(row.Title, 300)
		if title == "" {
			continue
		}
		publishedAt := parseRSSDate(row.PubDate)
		if publishedAt.IsZero() {
			publishedAt = p.now().UTC()
		}
		id := sanitizeText(row.GUID, 250)
		if id == "" {
			id = sanitizeText(row.Link, 250)
		}
		if id == "" {
			h := sha1.Sum([]byte(title + "|" + publishedAt.Format(time.RFC3339Nano)))
			id = hex.EncodeToString(h[:])
		}

		items = append(items, domain.NewsItem{
			ID:          id,
			Source:      source,
			Title:       title,
			Content:     sanitizeText(htmlStrip(row.Description), 1000),
			URL:         sanitizeText(row.Link, 500),
			PublishedAt: publishedAt,
		})
	}
	span.SetAttributes(attribute.Int("items", len(items)))
	return items, nil
}

func parseRSSDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func htmlStrip(in string) string {
	if strings.TrimSpace(in) == "" {
		return ""
	}
	var b strings.Builder
	inside := false
	for _, r := range in {
		switch r {
		case '<':
			inside = true
			continue
		case '>':
			inside = false
			continue
		}
		if !inside {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sanitizeText(in string, maxLen int) string {
	in = strings.Join(strings.Fields(in), " ")
	if maxLen > 0 && len(in) > maxLen {
		in = in[:maxLen]
	}
	return in
}
