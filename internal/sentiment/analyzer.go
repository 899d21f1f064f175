package sentiment

import (
	"context"
	"sort"
	"sync"
	"time"

	"autotrader-core/internal/domain"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Channel names, also used as metric labels.
const (
	ChannelNews       = "news"
	ChannelTwitter    = "twitter"
	ChannelReddit     = "reddit"
	ChannelStocktwits = "stocktwits"
)

var channelOrder = []string{ChannelNews, ChannelTwitter, ChannelReddit, ChannelStocktwits}

type ChannelWeights struct {
	News       float64 `yaml:"news" validate:"gte=0"`
	Twitter    float64 `yaml:"twitter" validate:"gte=0"`
	Reddit     float64 `yaml:"reddit" validate:"gte=0"`
	Stocktwits float64 `yaml:"stocktwits" validate:"gte=0"`
}

func (w ChannelWeights) of(channel string) float64 {
	switch channel {
	case ChannelNews:
		return w.News
	case ChannelTwitter:
		return w.Twitter
	case ChannelReddit:
		return w.Reddit
	case ChannelStocktwits:
		return w.Stocktwits
	}
	return 0
}

type Config struct {
	LookbackHours       int            `yaml:"lookback_hours" validate:"gt=0"`
	AnalysisFrequency   time.Duration  `yaml:"analysis_frequency"`
	MinNewsItems        int            `yaml:"min_news_items" validate:"gte=0"`
	MinSocialPosts      int            `yaml:"min_social_posts" validate:"gte=0"`
	Weights             ChannelWeights `yaml:"weights"`
	MaxKeywords         int            `yaml:"max_keywords" validate:"gte=0,lte=50"`
	BuyThreshold        float64        `yaml:"buy_threshold" validate:"gte=0,lte=1"`
	SellThreshold       float64        `yaml:"sell_threshold" validate:"gte=-1,lte=0"`
	ContrarianThreshold float64        `yaml:"contrarian_threshold" validate:"gte=0,lte=1"`
}

func DefaultConfig() Config {
	return Config{
		LookbackHours:     24,
		AnalysisFrequency: 60 * time.Minute,
		MinNewsItems:      5,
		MinSocialPosts:    10,
		Weights: ChannelWeights{
			News:       0.40,
			Twitter:    0.25,
			Reddit:     0.20,
			Stocktwits: 0.15,
		},
		MaxKeywords:         15,
		BuyThreshold:        0.3,
		SellThreshold:       -0.3,
		ContrarianThreshold: 0.8,
	}
}

type symbolState struct {
	mu         sync.Mutex
	news       []domain.NewsItem
	social     []domain.SocialMediaPost
	seen       map[string]struct{}
	cached     *domain.SentimentAnalysisResult
	computedAt time.Time
	dirty      bool
}

// Analyzer buffers news and social items per symbol and computes cached
// sentiment snapshots from them.
type Analyzer struct {
	tracer trace.Tracer
	log    zerolog.Logger
	cfg    Config
	scorer Scorer
	now    func() time.Time

	mu      sync.Mutex
	symbols map[string]*symbolState
}

func NewAnalyzer(tracer trace.Tracer, log zerolog.Logger, cfg Config, scorer Scorer) *Analyzer {
	def := DefaultConfig()
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = def.LookbackHours
	}
	if cfg.AnalysisFrequency <= 0 {
		cfg.AnalysisFrequency = def.AnalysisFrequency
	}
	if cfg.MinNewsItems <= 0 {
		cfg.MinNewsItems = def.MinNewsItems
	}
	if cfg.MinSocialPosts <= 0 {
		cfg.MinSocialPosts = def.MinSocialPosts
	}
	if cfg.Weights == (ChannelWeights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = def.MaxKeywords
	}
	if cfg.BuyThreshold <= 0 {
		cfg.BuyThreshold = def.BuyThreshold
	}
	if cfg.SellThreshold >= 0 {
		cfg.SellThreshold = def.SellThreshold
	}
	if cfg.ContrarianThreshold <= 0 {
		cfg.ContrarianThreshold = def.ContrarianThreshold
	}
	if scorer == nil {
		scorer = NewLexiconScorer()
	}
	return &Analyzer{
		tracer:  tracer,
		log:     log,
		cfg:     cfg,
		scorer:  scorer,
		now:     time.Now,
		symbols: make(map[string]*symbolState),
	}
}

func (a *Analyzer) Config() Config {
	return a.cfg
}

func (a *Analyzer) state(symbol string, create bool) *symbolState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.symbols[symbol]
	if !ok && create {
		st = &symbolState{seen: make(map[string]struct{})}
		a.symbols[symbol] = st
	}
	return st
}

func (a *Analyzer) allStates() []*symbolState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*symbolState, 0, len(a.symbols))
	for _, st := range a.symbols {
		out = append(out, st)
	}
	return out
}

// AddNewsData attaches each item to every symbol it references, then prunes
// all buffers to the lookback window. It returns how many items were
// attached to at least one symbol. Items repeating a known ID are skipped.
func (a *Analyzer) AddNewsData(items []domain.NewsItem) int {
	accepted := 0
	for _, item := range items {
		attached := false
		for _, symbol := range normalizeSymbols(item.Symbols, item.Text()) {
			st := a.state(symbol, true)
			st.mu.Lock()
			if st.remember("news:" + item.ID) {
				st.news = append(st.news, item)
				st.dirty = true
				attached = true
			}
			st.mu.Unlock()
		}
		if attached {
			accepted++
		}
	}
	a.prune()
	return accepted
}

// AddSocialData behaves like AddNewsData for social posts. Posts from
// unknown platforms are dropped.
func (a *Analyzer) AddSocialData(posts []domain.SocialMediaPost) int {
	accepted := 0
	for _, post := range posts {
		if channelOf(post.Platform) == "" {
			a.log.Debug().Str("platform", string(post.Platform)).Msg("dropping post from unknown platform")
			continue
		}
		attached := false
		for _, symbol := range normalizeSymbols(post.Symbols, post.Content) {
			st := a.state(symbol, true)
			st.mu.Lock()
			if st.remember("social:" + post.ID) {
				st.social = append(st.social, post)
				st.dirty = true
				attached = true
			}
			st.mu.Unlock()
		}
		if attached {
			accepted++
		}
	}
	a.prune()
	return accepted
}

// remember reports whether id is new. Empty IDs are always new.
func (st *symbolState) remember(id string) bool {
	if id == "news:" || id == "social:" {
		return true
	}
	if _, ok := st.seen[id]; ok {
		return false
	}
	st.seen[id] = struct{}{}
	return true
}

func (a *Analyzer) prune() {
	cutoff := a.now().Add(-time.Duration(a.cfg.LookbackHours) * time.Hour)
	for _, st := range a.allStates() {
		st.mu.Lock()
		news := st.news[:0]
		for _, n := range st.news {
			if !n.PublishedAt.Before(cutoff) {
				news = append(news, n)
			} else {
				delete(st.seen, "news:"+n.ID)
			}
		}
		social := st.social[:0]
		for _, p := range st.social {
			if !p.PublishedAt.Before(cutoff) {
				social = append(social, p)
			} else {
				delete(st.seen, "social:"+p.ID)
			}
		}
		if len(news) != len(st.news) || len(social) != len(st.social) {
			st.dirty = true
		}
		st.news, st.social = news, social
		st.mu.Unlock()
	}
}

func channelOf(p domain.SocialPlatform) string {
	switch p {
	case domain.PlatformTwitter:
		return ChannelTwitter
	case domain.PlatformReddit:
		return ChannelReddit
	case domain.PlatformStocktwits:
		return ChannelStocktwits
	}
	return ""
}

// GetSentiment returns the symbol's sentiment snapshot. A cached result is
// returned while younger than AnalysisFrequency, and also after that when no
// data has changed since it was computed. With fewer than MinNewsItems news
// items and fewer than MinSocialPosts posts it returns nil, nil.
func (a *Analyzer) GetSentiment(ctx context.Context, symbol string) (*domain.SentimentAnalysisResult, error) {
	ctx, span := a.tracer.Start(ctx, "sentiment.get-sentiment")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	st := a.state(symbol, false)
	if st == nil {
		return nil, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	now := a.now()
	if st.cached != nil && (now.Sub(st.computedAt) < a.cfg.AnalysisFrequency || !st.dirty) {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return st.cached, nil
	}

	cutoff := now.Add(-time.Duration(a.cfg.LookbackHours) * time.Hour)
	texts := make(map[string][]string, len(channelOrder))
	for _, n := range st.news {
		if !n.PublishedAt.Before(cutoff) {
			texts[ChannelNews] = append(texts[ChannelNews], n.Text())
		}
	}
	for _, p := range st.social {
		if !p.PublishedAt.Before(cutoff) {
			ch := channelOf(p.Platform)
			texts[ch] = append(texts[ch], p.Content)
		}
	}
	counts := domain.SourceCounts{
		News:       len(texts[ChannelNews]),
		Twitter:    len(texts[ChannelTwitter]),
		Reddit:     len(texts[ChannelReddit]),
		Stocktwits: len(texts[ChannelStocktwits]),
	}
	if counts.News < a.cfg.MinNewsItems && counts.Social() < a.cfg.MinSocialPosts {
		return nil, nil
	}

	scores := make(map[string]domain.SentimentScore, len(channelOrder))
	var all []string
	for _, ch := range channelOrder {
		if len(texts[ch]) == 0 {
			continue
		}
		scores[ch] = a.scorer.Score(ctx, texts[ch])
		all = append(all, texts[ch]...)
	}

	keywords := a.scorer.Keywords(all)
	if len(keywords) > a.cfg.MaxKeywords {
		keywords = keywords[:a.cfg.MaxKeywords]
	}

	result := &domain.SentimentAnalysisResult{
		Symbol:    symbol,
		Timestamp: now,
		Sentiment: combineChannels(scores, a.cfg.Weights),
		Entities:  Entities(symbol, all),
		Keywords:  keywords,
		Sources:   counts,
	}
	st.cached = result
	st.computedAt = now
	st.dirty = false
	return result, nil
}

// Symbols lists symbols with buffered items.
func (a *Analyzer) Symbols() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.symbols))
	for s := range a.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// TradingSignal derives an action from result using the analyzer's thresholds.
func (a *Analyzer) TradingSignal(result *domain.SentimentAnalysisResult) domain.SentimentSignal {
	return DeriveSignal(result, a.cfg)
}
