package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"autotrader-core/internal/backtest"
	"autotrader-core/internal/combiner"
	"autotrader-core/internal/domain"
	"autotrader-core/internal/metrics"
	"autotrader-core/internal/ml/ensemble"
	"autotrader-core/pkg/rng"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Backtest modes. Combined runs read the analyzer's current snapshot for
// every bar, so sentiment is not point-in-time.
const (
	ModeCombined  = "combined"
	ModeTechnical = "technical"
)

const liveSentimentNote = "Sentiment: live snapshot at run time, not as of this bar"

var (
	ErrInvalidRequest = errors.New("invalid backtest request")
	ErrNoBarSource    = errors.New("no bars supplied and no bar store configured")

	validate = validator.New()
)

var intervalDurations = map[string]time.Duration{
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// BacktestRequest describes one run. Bars, when present, replace the store
// for the symbols they cover.
type BacktestRequest struct {
	Symbols  []string                          `json:"symbols" validate:"required,min=1,max=50,dive,required"`
	Mode     string                            `json:"mode" default:"technical" validate:"oneof=combined technical"`
	Interval string                            `json:"interval" default:"1h" validate:"oneof=5m 15m 1h 4h 1d"`
	Seed     int64                             `json:"seed" default:"42"`
	Bars     map[string][]domain.MarketDataBar `json:"bars,omitempty"`
	Config   backtest.Config                   `json:"config"`
}

// BacktestService builds a fresh ensemble and engine per run so runs never
// share state with each other or with the live model.
type BacktestService struct {
	tracer    trace.Tracer
	log       zerolog.Logger
	store     BarStore
	sentiment SentimentSource
	modelCfg  ensemble.Config
	combCfg   combiner.Config
	defaults  backtest.Config
	metrics   *metrics.Metrics
}

func NewBacktestService(
	tracer trace.Tracer,
	log zerolog.Logger,
	store BarStore,
	sentiment SentimentSource,
	modelCfg ensemble.Config,
	combCfg combiner.Config,
	runDefaults backtest.Config,
	m *metrics.Metrics,
) *BacktestService {
	return &BacktestService{
		tracer:    tracer,
		log:       log,
		store:     store,
		sentiment: sentiment,
		modelCfg:  modelCfg,
		combCfg:   combCfg,
		defaults:  runDefaults,
		metrics:   m,
	}
}

// NewRequest returns a request pre-filled with the configured run defaults,
// ready to have a JSON body decoded over it.
func (s *BacktestService) NewRequest() *BacktestRequest {
	return &BacktestRequest{Config: s.defaults}
}

func (s *BacktestService) Run(ctx context.Context, req *BacktestRequest) (*domain.BacktestResult, error) {
	ctx, span := s.tracer.Start(ctx, "backtest-service.run")
	defer span.End()

	if err := defaults.Set(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	span.SetAttributes(attribute.String("mode", req.Mode), attribute.Int("symbols", len(req.Symbols)))

	started := time.Now()
	res, err := s.run(ctx, req)
	trades := 0
	if res != nil {
		trades = res.TotalTrades
	}
	s.metrics.Backtest(req.Mode, err, trades, time.Since(started))
	return res, err
}

func (s *BacktestService) run(ctx context.Context, req *BacktestRequest) (*domain.BacktestResult, error) {
	engine, err := backtest.NewEngine(ctx, s.tracer, s.log, req.Config, rng.New(req.Seed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	cfg := engine.Config()

	model := ensemble.NewModel(s.tracer, s.log, s.modelCfg, rng.New(req.Seed))
	warmup := time.Duration(model.Config().MinHistory) * intervalDurations[req.Interval]

	series := make(map[string][]domain.MarketDataBar, len(req.Symbols))
	for _, raw := range req.Symbols {
		symbol := normalizeSymbol(raw)
		bars, err := s.loadBars(ctx, req, symbol, cfg.StartDate.Add(-warmup), cfg.EndDate)
		if err != nil {
			return nil, err
		}
		var history, window []domain.MarketDataBar
		for _, b := range bars {
			b.Symbol = symbol
			if b.Timestamp.Before(cfg.StartDate) {
				history = append(history, b)
			} else {
				window = append(window, b)
			}
		}
		if len(history) > 0 {
			model.AddMarketData(symbol, history)
		}
		if engine.LoadHistoricalData(symbol, window) > 0 {
			series[symbol] = window
		}
	}

	signalFn := s.signalFunc(req.Mode, model, combiner.New(s.combCfg), newBarFeeder(series))
	return engine.RunBacktest(ctx, signalFn)
}

// signalFunc feeds each symbol's bars to model as the replay reaches them
// and turns the prediction into a signal for mode.
func (s *BacktestService) signalFunc(mode string, model *ensemble.Model, comb *combiner.Combiner, feeder *barFeeder) backtest.SignalFunc {
	return func(ctx context.Context, bar domain.MarketDataBar) (*domain.TradingSignal, error) {
		if pending := feeder.upTo(bar.Symbol, bar.Timestamp); len(pending) > 0 {
			model.AddMarketData(bar.Symbol, pending)
		}
		pred, err := model.GenerateSignal(ctx, bar.Symbol)
		if err != nil || pred == nil {
			return nil, err
		}
		if mode == ModeTechnical || s.sentiment == nil {
			return comb.TechnicalOnly(pred), nil
		}
		analysis, err := s.sentiment.GetSentiment(ctx, bar.Symbol)
		if err != nil {
			return nil, err
		}
		var sentSignal *domain.SentimentSignal
		if analysis != nil {
			ss := s.sentiment.TradingSignal(analysis)
			sentSignal = &ss
		}
		sig, err := comb.Combine(pred, sentSignal, analysis)
		if errors.Is(err, combiner.ErrSentimentRequired) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if analysis != nil {
			sig.Reasoning = append(sig.Reasoning, liveSentimentNote)
		}
		return sig, nil
	}
}

func (s *BacktestService) loadBars(ctx context.Context, req *BacktestRequest, symbol string, from, to time.Time) ([]domain.MarketDataBar, error) {
	for key, bars := range req.Bars {
		if strings.EqualFold(key, symbol) {
			out := append([]domain.MarketDataBar(nil), bars...)
			sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
			return out, nil
		}
	}
	if s.store == nil {
		return nil, ErrNoBarSource
	}
	bars, err := s.store.GetBarsInRange(ctx, symbol, req.Interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("load bars for %s: %w", symbol, err)
	}
	return bars, nil
}

// barFeeder hands each symbol's bars to the model once, in order.
type barFeeder struct {
	series map[string][]domain.MarketDataBar
	next   map[string]int
}

func newBarFeeder(series map[string][]domain.MarketDataBar) *barFeeder {
	return &barFeeder{series: series, next: make(map[string]int, len(series))}
}

// upTo returns the not yet fed bars of symbol at or before t.
func (f *barFeeder) upTo(symbol string, t time.Time) []domain.MarketDataBar {
	bars := f.series[symbol]
	start := f.next[symbol]
	end := start
	for end < len(bars) && !bars[end].Timestamp.After(t) {
		end++
	}
	f.next[symbol] = end
	return bars[start:end]
}
