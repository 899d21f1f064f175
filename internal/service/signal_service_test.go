package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"autotrader-core/internal/combiner"
	"autotrader-core/internal/domain"
	"autotrader-core/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type stubTechnical struct {
	preds  map[string]*domain.ModelPrediction
	errs   map[string]error
	panics map[string]bool
	added  map[string][]domain.MarketDataBar
}

func newStubTechnical() *stubTechnical {
	return &stubTechnical{
		preds:  map[string]*domain.ModelPrediction{},
		errs:   map[string]error{},
		panics: map[string]bool{},
		added:  map[string][]domain.MarketDataBar{},
	}
}

func (s *stubTechnical) AddMarketData(symbol string, bars []domain.MarketDataBar) {
	s.added[symbol] = append(s.added[symbol], bars...)
}

func (s *stubTechnical) GenerateSignal(_ context.Context, symbol string) (*domain.ModelPrediction, error) {
	if s.panics[symbol] {
		panic("corrupt feature cache")
	}
	return s.preds[symbol], s.errs[symbol]
}

func (s *stubTechnical) History(symbol string) []domain.MarketDataBar { return s.added[symbol] }

func (s *stubTechnical) Symbols() []string {
	out := make([]string, 0, len(s.added))
	for k := range s.added {
		out = append(out, k)
	}
	return out
}

var _ TechnicalModel = (*stubTechnical)(nil)

type stubSentiment struct {
	results map[string]*domain.SentimentAnalysisResult
	err     error
	signal  domain.SentimentSignal
	news    int
	social  map[domain.SocialPlatform]int
}

func (s *stubSentiment) AddNewsData(items []domain.NewsItem) int {
	s.news += len(items)
	return len(items)
}

func (s *stubSentiment) AddSocialData(posts []domain.SocialMediaPost) int {
	if s.social == nil {
		s.social = map[domain.SocialPlatform]int{}
	}
	accepted := 0
	for _, p := range posts {
		if p.Platform == "myspace" {
			continue
		}
		s.social[p.Platform]++
		accepted++
	}
	return accepted
}

func (s *stubSentiment) GetSentiment(_ context.Context, symbol string) (*domain.SentimentAnalysisResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results[symbol], nil
}

func (s *stubSentiment) TradingSignal(*domain.SentimentAnalysisResult) domain.SentimentSignal {
	return s.signal
}

var _ SentimentSource = (*stubSentiment)(nil)

type stubPublisher struct {
	calls [][]*domain.TradingSignal
	err   error
}

func (p *stubPublisher) Publish(_ context.Context, signals ...*domain.TradingSignal) error {
	p.calls = append(p.calls, signals)
	return p.err
}

var _ SignalPublisher = (*stubPublisher)(nil)

type stubStore struct {
	upserts map[string][]domain.MarketDataBar
	recent  map[string][]domain.MarketDataBar
	ranges  map[string][]domain.MarketDataBar
	err     error

	lastFrom, lastTo time.Time
}

func (s *stubStore) UpsertBars(_ context.Context, interval string, bars []domain.MarketDataBar) error {
	if s.err != nil {
		return s.err
	}
	if s.upserts == nil {
		s.upserts = map[string][]domain.MarketDataBar{}
	}
	s.upserts[interval] = append(s.upserts[interval], bars...)
	return nil
}

func (s *stubStore) GetRecentBars(_ context.Context, symbol, _ string, limit int) ([]domain.MarketDataBar, error) {
	if s.err != nil {
		return nil, s.err
	}
	bars := s.recent[symbol]
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (s *stubStore) GetBarsInRange(_ context.Context, symbol, _ string, from, to time.Time) ([]domain.MarketDataBar, error) {
	s.lastFrom, s.lastTo = from, to
	if s.err != nil {
		return nil, s.err
	}
	return s.ranges[symbol], nil
}

var _ BarStore = (*stubStore)(nil)

func buyPrediction(symbol string) *domain.ModelPrediction {
	return &domain.ModelPrediction{
		Symbol:     symbol,
		Action:     domain.ActionBuy,
		Confidence: 0.9,
		Price:      150,
		Votes:      map[string]domain.VoterVote{},
	}
}

type fixture struct {
	svc       *SignalService
	technical *stubTechnical
	sentiment *stubSentiment
	publisher *stubPublisher
	store     *stubStore
	metrics   *metrics.Metrics
	redis     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		technical: newStubTechnical(),
		sentiment: &stubSentiment{results: map[string]*domain.SentimentAnalysisResult{}},
		publisher: &stubPublisher{},
		store:     &stubStore{},
		metrics:   metrics.New(),
		redis:     mr,
	}
	f.svc = NewSignalService(testTracer, zerolog.Nop(), f.technical, f.sentiment, combiner.New(combiner.DefaultConfig()), SignalOptions{
		Store:     f.store,
		Redis:     client,
		Publisher: f.publisher,
		Metrics:   f.metrics,
		CacheTTL:  time.Minute,
	})
	return f
}

func TestGetSignalCachesAndPublishes(t *testing.T) {
	f := newFixture(t)
	f.technical.preds["AAPL"] = buyPrediction("AAPL")

	sig, err := f.svc.GetSignal(context.Background(), " aapl ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil || sig.Action != domain.ActionBuy || sig.Symbol != "AAPL" {
		t.Fatalf("unexpected signal: %+v", sig)
	}
	// technical BUY alone: 0.9 * 0.9
	if sig.Confidence < 0.80 || sig.Confidence > 0.82 {
		t.Fatalf("expected single-source confidence 0.81, got %v", sig.Confidence)
	}

	raw, err := f.redis.Get("signal:AAPL")
	if err != nil {
		t.Fatalf("expected cached signal: %v", err)
	}
	var cached domain.TradingSignal
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		t.Fatalf("decode cached: %v", err)
	}
	if cached.Action != domain.ActionBuy {
		t.Fatalf("unexpected cached action %s", cached.Action)
	}
	if ttl := f.redis.TTL("signal:AAPL"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %s", ttl)
	}

	if len(f.publisher.calls) != 1 || f.publisher.calls[0][0].Symbol != "AAPL" {
		t.Fatalf("expected one publish call, got %+v", f.publisher.calls)
	}
	if got := testutil.ToFloat64(f.metrics.SignalsTotal.WithLabelValues("BUY")); got != 1 {
		t.Fatalf("expected BUY counter 1, got %v", got)
	}

	fromCache, err := f.svc.CachedSignal(context.Background(), "aapl")
	if err != nil || fromCache == nil || fromCache.Confidence != sig.Confidence {
		t.Fatalf("unexpected cached signal %+v (%v)", fromCache, err)
	}
}

func TestGetSignalWithSentiment(t *testing.T) {
	f := newFixture(t)
	f.technical.preds["NVDA"] = buyPrediction("NVDA")
	f.sentiment.results["NVDA"] = &domain.SentimentAnalysisResult{Symbol: "NVDA", Sentiment: domain.SentimentScore{Score: 0.6}}
	f.sentiment.signal = domain.SentimentSignal{Action: domain.ActionBuy, Confidence: 0.6, Reason: "bullish"}

	sig, err := f.svc.GetSignal(context.Background(), "NVDA")
	if err != nil || sig == nil {
		t.Fatalf("unexpected result %+v (%v)", sig, err)
	}
	// agreement: 0.9*0.7 + 0.6*0.3
	if want := 0.81; sig.Confidence < want-1e-9 || sig.Confidence > want+1e-9 {
		t.Fatalf("expected weighted confidence %v, got %v", want, sig.Confidence)
	}
	if sig.Indicators["sentiment_score"] != 0.6 {
		t.Fatalf("expected sentiment indicators, got %v", sig.Indicators)
	}
}

func TestGetSignalNoOpinion(t *testing.T) {
	f := newFixture(t)
	f.sentiment.results["TSLA"] = &domain.SentimentAnalysisResult{Symbol: "TSLA"}

	sig, err := f.svc.GetSignal(context.Background(), "TSLA")
	if err != nil || sig != nil {
		t.Fatalf("expected no opinion, got %+v (%v)", sig, err)
	}
	if f.redis.Exists("signal:TSLA") {
		t.Fatal("no opinion must not be cached")
	}
	if len(f.publisher.calls) != 0 {
		t.Fatal("no opinion must not be published")
	}
}

func TestGetSignalSentimentFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.technical.preds["AMD"] = buyPrediction("AMD")
	f.sentiment.err = errors.New("scorer offline")

	sig, err := f.svc.GetSignal(context.Background(), "AMD")
	if err != nil || sig == nil {
		t.Fatalf("expected technical-only signal, got %+v (%v)", sig, err)
	}
	if got := testutil.ToFloat64(f.metrics.SignalFailures.WithLabelValues(metrics.StageSentiment)); got != 1 {
		t.Fatalf("expected sentiment failure counted, got %v", got)
	}
}

func TestGenerateSignalsIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.technical.preds["AAPL"] = buyPrediction("AAPL")
	f.technical.preds["MSFT"] = buyPrediction("MSFT")
	f.technical.errs["MSFT"] = errors.New("feature extraction failed")
	f.technical.panics["TSLA"] = true

	batch := f.svc.GenerateSignals(context.Background(), []string{"AAPL", "msft", "TSLA", "NVDA", "aapl"})
	if len(batch.Signals) != 1 || batch.Signals["AAPL"] == nil {
		t.Fatalf("expected only AAPL signal, got %+v", batch.Signals)
	}
	if len(batch.Errors) != 2 || batch.Errors["MSFT"] == "" || batch.Errors["TSLA"] == "" {
		t.Fatalf("expected MSFT and TSLA errors, got %+v", batch.Errors)
	}
	if _, ok := batch.Errors["NVDA"]; ok {
		t.Fatal("no opinion is not an error")
	}
	if len(f.publisher.calls) != 1 || len(f.publisher.calls[0]) != 1 {
		t.Fatalf("expected one batched publish, got %+v", f.publisher.calls)
	}
	if got := testutil.ToFloat64(f.metrics.SignalFailures.WithLabelValues(metrics.StageTechnical)); got != 1 {
		t.Fatalf("expected 1 technical failure, got %v", got)
	}
}

func TestPublishFailureDoesNotFailSignal(t *testing.T) {
	f := newFixture(t)
	f.technical.preds["AAPL"] = buyPrediction("AAPL")
	f.publisher.err = errors.New("broker down")

	if sig, err := f.svc.GetSignal(context.Background(), "AAPL"); err != nil || sig == nil {
		t.Fatalf("expected signal despite publish failure, got %+v (%v)", sig, err)
	}
	if got := testutil.ToFloat64(f.metrics.SignalFailures.WithLabelValues(metrics.StagePublish)); got != 1 {
		t.Fatalf("expected publish failure counted, got %v", got)
	}
}

func TestCachedSignalMissAndDisabled(t *testing.T) {
	f := newFixture(t)
	sig, err := f.svc.CachedSignal(context.Background(), "AAPL")
	if err != nil || sig != nil {
		t.Fatalf("expected miss, got %+v (%v)", sig, err)
	}

	f.redis.Set("signal:AAPL", "{broken")
	if _, err := f.svc.CachedSignal(context.Background(), "AAPL"); err == nil {
		t.Fatal("expected decode error")
	}

	bare := NewSignalService(testTracer, zerolog.Nop(), newStubTechnical(), &stubSentiment{}, combiner.New(combiner.DefaultConfig()), SignalOptions{})
	if sig, err := bare.CachedSignal(context.Background(), "AAPL"); err != nil || sig != nil {
		t.Fatalf("expected nil without redis, got %+v (%v)", sig, err)
	}
}

func TestIngestBars(t *testing.T) {
	f := newFixture(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n, err := f.svc.IngestBars(context.Background(), "aapl", []domain.MarketDataBar{
		{Timestamp: ts, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10},
		{Timestamp: ts.Add(time.Hour), Close: -1},
		{Timestamp: ts.Add(2 * time.Hour), Open: 1, High: 2, Low: 1, Close: 1.7, Volume: 10},
	})
	if err != nil || n != 2 {
		t.Fatalf("expected 2 accepted bars, got %d (%v)", n, err)
	}
	if len(f.technical.added["AAPL"]) != 2 || f.technical.added["AAPL"][0].Symbol != "AAPL" {
		t.Fatalf("unexpected model bars %+v", f.technical.added)
	}
	if len(f.store.upserts["1h"]) != 2 {
		t.Fatalf("expected bars persisted under 1h, got %+v", f.store.upserts)
	}

	if _, err := f.svc.IngestBars(context.Background(), "AAPL", []domain.MarketDataBar{{Close: 1}}); !errors.Is(err, ErrNoValidBars) {
		t.Fatalf("expected ErrNoValidBars, got %v", err)
	}

	f.store.err = errors.New("db down")
	if n, err := f.svc.IngestBars(context.Background(), "AAPL", []domain.MarketDataBar{{Timestamp: ts, High: 1, Low: 1, Close: 1}}); err != nil || n != 1 {
		t.Fatalf("store failure must not reject bars, got %d (%v)", n, err)
	}
}

func TestWarmFromStore(t *testing.T) {
	f := newFixture(t)
	f.store.recent = map[string][]domain.MarketDataBar{
		"AAPL": make([]domain.MarketDataBar, 5),
	}
	if got := f.svc.WarmFromStore(context.Background(), []string{"aapl", "MSFT"}, 3); got != 3 {
		t.Fatalf("expected 3 bars loaded, got %d", got)
	}
	if len(f.technical.added["AAPL"]) != 3 {
		t.Fatalf("unexpected model history %+v", f.technical.added)
	}
}

func TestIngestNewsAndSocialCountByChannel(t *testing.T) {
	f := newFixture(t)
	if n := f.svc.IngestNews([]domain.NewsItem{{ID: "1"}, {ID: "2"}}); n != 2 {
		t.Fatalf("expected 2 news, got %d", n)
	}
	n := f.svc.IngestSocial([]domain.SocialMediaPost{
		{ID: "a", Platform: domain.PlatformReddit},
		{ID: "b", Platform: domain.PlatformTwitter},
		{ID: "c", Platform: domain.PlatformReddit},
		{ID: "d", Platform: "myspace"},
	})
	if n != 3 {
		t.Fatalf("expected 3 posts accepted, got %d", n)
	}
	if got := testutil.ToFloat64(f.metrics.SentimentItems.WithLabelValues("reddit")); got != 2 {
		t.Fatalf("expected 2 reddit items, got %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.SentimentItems.WithLabelValues("news")); got != 2 {
		t.Fatalf("expected 2 news items, got %v", got)
	}
}

func TestGetSentimentView(t *testing.T) {
	f := newFixture(t)
	if v, err := f.svc.GetSentiment(context.Background(), "AAPL"); err != nil || v != nil {
		t.Fatalf("expected nil view, got %+v (%v)", v, err)
	}
	f.sentiment.results["AAPL"] = &domain.SentimentAnalysisResult{Symbol: "AAPL"}
	f.sentiment.signal = domain.SentimentSignal{Action: domain.ActionHold, Confidence: 1}
	v, err := f.svc.GetSentiment(context.Background(), "aapl")
	if err != nil || v == nil || v.Signal.Action != domain.ActionHold {
		t.Fatalf("unexpected view %+v (%v)", v, err)
	}
}
