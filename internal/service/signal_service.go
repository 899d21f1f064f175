package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"autotrader-core/internal/combiner"
	"autotrader-core/internal/domain"
	"autotrader-core/internal/metrics"
	"autotrader-core/internal/sentiment"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultSignalCacheTTL = 5 * time.Minute

var ErrNoValidBars = errors.New("no valid bars")

type TechnicalModel interface {
	AddMarketData(symbol string, bars []domain.MarketDataBar)
	GenerateSignal(ctx context.Context, symbol string) (*domain.ModelPrediction, error)
	History(symbol string) []domain.MarketDataBar
	Symbols() []string
}

type SentimentSource interface {
	AddNewsData(items []domain.NewsItem) int
	AddSocialData(posts []domain.SocialMediaPost) int
	GetSentiment(ctx context.Context, symbol string) (*domain.SentimentAnalysisResult, error)
	TradingSignal(result *domain.SentimentAnalysisResult) domain.SentimentSignal
}

type SignalCombiner interface {
	Combine(technical *domain.ModelPrediction, sentiment *domain.SentimentSignal, analysis *domain.SentimentAnalysisResult) (*domain.TradingSignal, error)
}

type SignalPublisher interface {
	Publish(ctx context.Context, signals ...*domain.TradingSignal) error
}

type BarStore interface {
	UpsertBars(ctx context.Context, interval string, bars []domain.MarketDataBar) error
	GetRecentBars(ctx context.Context, symbol, interval string, limit int) ([]domain.MarketDataBar, error)
	GetBarsInRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.MarketDataBar, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// SignalOptions wires the optional collaborators. Nil fields disable the
// matching side effect.
type SignalOptions struct {
	Store     BarStore
	Redis     RedisClient
	Publisher SignalPublisher
	Metrics   *metrics.Metrics
	Interval  string
	CacheTTL  time.Duration
}

// SentimentView pairs a sentiment snapshot with the action derived from it.
type SentimentView struct {
	Result *domain.SentimentAnalysisResult `json:"result"`
	Signal domain.SentimentSignal          `json:"signal"`
}

// SignalBatch holds the outcome of a multi-symbol request. Symbols without
// an opinion appear in neither map.
type SignalBatch struct {
	Signals map[string]*domain.TradingSignal `json:"signals"`
	Errors  map[string]string                `json:"errors,omitempty"`
}

// SignalService runs the technical model, the sentiment analyzer and the
// combiner for a symbol and fans the result out to the cache and publisher.
type SignalService struct {
	tracer    trace.Tracer
	log       zerolog.Logger
	technical TechnicalModel
	sentiment SentimentSource
	combiner  SignalCombiner
	opts      SignalOptions
}

func NewSignalService(
	tracer trace.Tracer,
	log zerolog.Logger,
	technical TechnicalModel,
	sentiment SentimentSource,
	combiner SignalCombiner,
	opts SignalOptions,
) *SignalService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultSignalCacheTTL
	}
	if opts.Interval == "" {
		opts.Interval = "1h"
	}
	return &SignalService{
		tracer:    tracer,
		log:       log,
		technical: technical,
		sentiment: sentiment,
		combiner:  combiner,
		opts:      opts,
	}
}

func signalCacheKey(symbol string) string {
	return "signal:" + symbol
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IngestBars feeds valid bars to the technical model and, when a store is
// configured, persists them. A store failure is logged but does not reject
// the bars. It returns the number of bars accepted.
func (s *SignalService) IngestBars(ctx context.Context, symbol string, bars []domain.MarketDataBar) (int, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.ingest-bars")
	defer span.End()

	symbol = normalizeSymbol(symbol)
	valid := make([]domain.MarketDataBar, 0, len(bars))
	for _, b := range bars {
		if !b.Valid() {
			continue
		}
		b.Symbol = symbol
		valid = append(valid, b)
	}
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("accepted", len(valid)))
	if len(valid) == 0 {
		return 0, ErrNoValidBars
	}

	s.technical.AddMarketData(symbol, valid)

	if s.opts.Store != nil {
		if err := s.opts.Store.UpsertBars(ctx, s.opts.Interval, valid); err != nil {
			s.log.Warn().Str("symbol", symbol).Err(err).Msg("persisting bars failed")
			s.opts.Metrics.Failure(metrics.StageIngest)
		}
	}
	return len(valid), nil
}

// WarmFromStore loads the most recent bars of each symbol into the model.
// Failures are logged per symbol.
func (s *SignalService) WarmFromStore(ctx context.Context, symbols []string, limit int) int {
	if s.opts.Store == nil {
		return 0
	}
	ctx, span := s.tracer.Start(ctx, "signal-service.warm-from-store")
	defer span.End()

	loaded := 0
	for _, symbol := range symbols {
		symbol = normalizeSymbol(symbol)
		bars, err := s.opts.Store.GetRecentBars(ctx, symbol, s.opts.Interval, limit)
		if err != nil {
			s.log.Warn().Str("symbol", symbol).Err(err).Msg("loading stored bars failed")
			continue
		}
		if len(bars) == 0 {
			continue
		}
		s.technical.AddMarketData(symbol, bars)
		loaded += len(bars)
	}
	return loaded
}

// IngestNews forwards news to the analyzer and counts what was accepted.
func (s *SignalService) IngestNews(items []domain.NewsItem) int {
	n := s.sentiment.AddNewsData(items)
	s.opts.Metrics.Items(sentiment.ChannelNews, n)
	return n
}

// IngestSocial forwards posts to the analyzer grouped by platform so the
// accepted count can be recorded per channel.
func (s *SignalService) IngestSocial(posts []domain.SocialMediaPost) int {
	var order []domain.SocialPlatform
	groups := make(map[domain.SocialPlatform][]domain.SocialMediaPost)
	for _, p := range posts {
		if _, ok := groups[p.Platform]; !ok {
			order = append(order, p.Platform)
		}
		groups[p.Platform] = append(groups[p.Platform], p)
	}
	total := 0
	for _, platform := range order {
		n := s.sentiment.AddSocialData(groups[platform])
		s.opts.Metrics.Items(string(platform), n)
		total += n
	}
	return total
}

// GetSentiment returns nil, nil when the analyzer has too little data.
func (s *SignalService) GetSentiment(ctx context.Context, symbol string) (*SentimentView, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.get-sentiment")
	defer span.End()

	res, err := s.sentiment.GetSentiment(ctx, normalizeSymbol(symbol))
	if err != nil || res == nil {
		return nil, err
	}
	return &SentimentView{Result: res, Signal: s.sentiment.TradingSignal(res)}, nil
}

// GetSignal generates, caches and publishes the combined signal for symbol.
// It returns nil, nil when neither source has an opinion the combiner can
// use.
func (s *SignalService) GetSignal(ctx context.Context, symbol string) (*domain.TradingSignal, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.get-signal")
	defer span.End()

	sig, err := s.generate(ctx, normalizeSymbol(symbol))
	if err != nil || sig == nil {
		return nil, err
	}
	s.publish(ctx, sig)
	return sig, nil
}

// GenerateSignals runs GetSignal for every symbol, isolating failures, and
// publishes the produced signals in one write.
func (s *SignalService) GenerateSignals(ctx context.Context, symbols []string) SignalBatch {
	ctx, span := s.tracer.Start(ctx, "signal-service.generate-signals")
	defer span.End()

	batch := SignalBatch{
		Signals: make(map[string]*domain.TradingSignal),
		Errors:  make(map[string]string),
	}
	seen := make(map[string]struct{}, len(symbols))
	var out []*domain.TradingSignal
	for _, raw := range symbols {
		symbol := normalizeSymbol(raw)
		if _, dup := seen[symbol]; dup || symbol == "" {
			continue
		}
		seen[symbol] = struct{}{}

		sig, err := s.safeGenerate(ctx, symbol)
		if err != nil {
			s.log.Warn().Str("symbol", symbol).Err(err).Msg("signal generation failed")
			batch.Errors[symbol] = err.Error()
			continue
		}
		if sig == nil {
			continue
		}
		batch.Signals[symbol] = sig
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	s.publish(ctx, out...)
	span.SetAttributes(attribute.Int("signals", len(batch.Signals)), attribute.Int("errors", len(batch.Errors)))
	return batch
}

func (s *SignalService) safeGenerate(ctx context.Context, symbol string) (sig *domain.TradingSignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("signal generation panicked: %v", r)
		}
	}()
	return s.generate(ctx, symbol)
}

func (s *SignalService) generate(ctx context.Context, symbol string) (*domain.TradingSignal, error) {
	technical, err := s.technical.GenerateSignal(ctx, symbol)
	if err != nil {
		s.opts.Metrics.Failure(metrics.StageTechnical)
		return nil, fmt.Errorf("technical model: %w", err)
	}

	var (
		sentSignal *domain.SentimentSignal
		analysis   *domain.SentimentAnalysisResult
	)
	analysis, err = s.sentiment.GetSentiment(ctx, symbol)
	if err != nil {
		s.log.Warn().Str("symbol", symbol).Err(err).Msg("sentiment unavailable, combining without it")
		s.opts.Metrics.Failure(metrics.StageSentiment)
		analysis = nil
	}
	if analysis != nil {
		ss := s.sentiment.TradingSignal(analysis)
		sentSignal = &ss
	}

	sig, err := s.combiner.Combine(technical, sentSignal, analysis)
	switch {
	case errors.Is(err, combiner.ErrTechnicalRequired), errors.Is(err, combiner.ErrSentimentRequired), errors.Is(err, combiner.ErrNoSignals):
		s.log.Debug().Str("symbol", symbol).Err(err).Msg("no opinion")
		return nil, nil
	case err != nil:
		s.opts.Metrics.Failure(metrics.StageCombine)
		return nil, err
	}
	if sig.Symbol == "" {
		sig.Symbol = symbol
	}

	s.opts.Metrics.Signal(string(sig.Action))
	s.cache(ctx, sig)
	return sig, nil
}

func (s *SignalService) cache(ctx context.Context, sig *domain.TradingSignal) {
	if s.opts.Redis == nil {
		return
	}
	data, err := json.Marshal(sig)
	if err != nil {
		s.log.Error().Str("symbol", sig.Symbol).Err(err).Msg("encoding signal for cache failed")
		return
	}
	if err := s.opts.Redis.Set(ctx, signalCacheKey(sig.Symbol), data, s.opts.CacheTTL).Err(); err != nil {
		s.log.Warn().Str("symbol", sig.Symbol).Err(err).Msg("caching signal failed")
		s.opts.Metrics.Failure(metrics.StageCache)
	}
}

func (s *SignalService) publish(ctx context.Context, signals ...*domain.TradingSignal) {
	if s.opts.Publisher == nil || len(signals) == 0 {
		return
	}
	if err := s.opts.Publisher.Publish(ctx, signals...); err != nil {
		s.log.Warn().Int("signals", len(signals)).Err(err).Msg("publishing signals failed")
		s.opts.Metrics.Failure(metrics.StagePublish)
	}
}

// CachedSignal returns the last signal stored for symbol, or nil when none
// is cached or no cache is configured.
func (s *SignalService) CachedSignal(ctx context.Context, symbol string) (*domain.TradingSignal, error) {
	if s.opts.Redis == nil {
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "signal-service.cached-signal")
	defer span.End()

	val, err := s.opts.Redis.Get(ctx, signalCacheKey(normalizeSymbol(symbol))).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sig domain.TradingSignal
	if err := json.Unmarshal([]byte(val), &sig); err != nil {
		return nil, fmt.Errorf("decode cached signal: %w", err)
	}
	return &sig, nil
}

// Symbols lists the symbols the technical model holds history for.
func (s *SignalService) Symbols() []string {
	return s.technical.Symbols()
}

// History returns a copy of symbol's bar history.
func (s *SignalService) History(symbol string) []domain.MarketDataBar {
	return s.technical.History(normalizeSymbol(symbol))
}
