package domain

import "time"

type SocialPlatform string

const (
	PlatformTwitter    SocialPlatform = "twitter"
	PlatformReddit     SocialPlatform = "reddit"
	PlatformStocktwits SocialPlatform = "stocktwits"
)

// NewsItem is a news article referencing one or more symbols.
type NewsItem struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url,omitempty"`
	Symbols     []string  `json:"symbols"`
	PublishedAt time.Time `json:"published_at"`
}

// Text returns the scoring text of the item.
func (n NewsItem) Text() string {
	if n.Content == "" {
		return n.Title
	}
	return n.Title + " " + n.Content
}

// SocialMediaPost is a post from a social platform referencing one or more symbols.
type SocialMediaPost struct {
	ID          string         `json:"id"`
	Platform    SocialPlatform `json:"platform"`
	Author      string         `json:"author,omitempty"`
	Content     string         `json:"content"`
	Symbols     []string       `json:"symbols"`
	Likes       int            `json:"likes"`
	Shares      int            `json:"shares"`
	PublishedAt time.Time      `json:"published_at"`
}

// SentimentScore summarises the tone of a body of text.
type SentimentScore struct {
	Score       float64 `json:"score"`
	Magnitude   float64 `json:"magnitude"`
	Bullishness float64 `json:"bullishness"`
	Bearishness float64 `json:"bearishness"`
	Neutrality  float64 `json:"neutrality"`
	Fear        float64 `json:"fear"`
	Greed       float64 `json:"greed"`
}

// Keyword is a ranked finance term found in the analysed text.
type Keyword struct {
	Word      string  `json:"word"`
	Frequency int     `json:"frequency"`
	Sentiment float64 `json:"sentiment"`
}

// SourceCounts records how many items of each channel fed an analysis.
type SourceCounts struct {
	News       int `json:"news"`
	Twitter    int `json:"twitter"`
	Reddit     int `json:"reddit"`
	Stocktwits int `json:"stocktwits"`
}

func (c SourceCounts) Social() int {
	return c.Twitter + c.Reddit + c.Stocktwits
}

// SentimentAnalysisResult is the cached per-symbol sentiment snapshot.
type SentimentAnalysisResult struct {
	Symbol    string         `json:"symbol"`
	Timestamp time.Time      `json:"timestamp"`
	Sentiment SentimentScore `json:"sentiment"`
	Entities  []string       `json:"entities"`
	Keywords  []Keyword      `json:"keywords"`
	Sources   SourceCounts   `json:"sources"`
}
