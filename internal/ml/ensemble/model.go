package ensemble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"autotrader-core/internal/domain"
	"autotrader-core/internal/ml/features"
	"autotrader-core/internal/ta"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	MinHistory          int                `yaml:"min_history" validate:"gte=21"`
	MaxHistory          int                `yaml:"max_history" validate:"gtefield=MinHistory"`
	ConfidenceThreshold float64            `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	Weights             map[string]float64 `yaml:"weights" validate:"dive,gte=0"`
	TargetATRMultiple   float64            `yaml:"target_atr_multiple" validate:"gt=0"`
	StopATRMultiple     float64            `yaml:"stop_atr_multiple" validate:"gt=0"`
	IncrementalMACD     bool               `yaml:"incremental_macd"`
}

func DefaultConfig() Config {
	return Config{
		MinHistory:          200,
		MaxHistory:          1000,
		ConfidenceThreshold: 0.65,
		Weights: map[string]float64{
			RandomForest:       0.30,
			GradientBoosting:   0.25,
			NeuralNetwork:      0.20,
			SVM:                0.15,
			LogisticRegression: 0.10,
		},
		TargetATRMultiple: 3,
		StopATRMultiple:   1.5,
		IncrementalMACD:   true,
	}
}

var ErrUnknownVoter = errors.New("unknown voter")

type symbolState struct {
	mu       sync.Mutex
	bars     []domain.MarketDataBar
	features features.Vector
}

// Model keeps rolling per-symbol history and turns it into technical signals.
// Each symbol has its own lock; the table lock only guards the map itself.
type Model struct {
	tracer trace.Tracer
	log    zerolog.Logger
	cfg    Config
	engine *features.Engine

	votersMu sync.RWMutex
	voters   []Voter

	mu      sync.Mutex
	symbols map[string]*symbolState
}

func NewModel(tracer trace.Tracer, log zerolog.Logger, cfg Config, rng Rand) *Model {
	def := DefaultConfig()
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = def.MinHistory
	}
	if cfg.MaxHistory < cfg.MinHistory {
		cfg.MaxHistory = def.MaxHistory
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if len(cfg.Weights) == 0 {
		cfg.Weights = def.Weights
	}
	if cfg.TargetATRMultiple <= 0 {
		cfg.TargetATRMultiple = def.TargetATRMultiple
	}
	if cfg.StopATRMultiple <= 0 {
		cfg.StopATRMultiple = def.StopATRMultiple
	}
	return &Model{
		tracer:  tracer,
		log:     log,
		cfg:     cfg,
		engine:  features.NewEngine(),
		voters:  NewRuleVoters(rng),
		symbols: make(map[string]*symbolState),
	}
}

func (m *Model) Config() Config {
	return m.cfg
}

func (m *Model) state(symbol string, create bool) *symbolState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.symbols[symbol]
	if !ok && create {
		st = &symbolState{}
		m.symbols[symbol] = st
	}
	return st
}

// AddMarketData merges bars into the symbol's history, keeps it sorted with
// unique timestamps, truncates to MaxHistory and invalidates the feature cache.
// Later bars with an existing timestamp replace the stored one.
func (m *Model) AddMarketData(symbol string, bars []domain.MarketDataBar) {
	if symbol == "" || len(bars) == 0 {
		return
	}
	st := m.state(symbol, true)
	st.mu.Lock()
	defer st.mu.Unlock()

	byTime := make(map[int64]int, len(st.bars)+len(bars))
	merged := make([]domain.MarketDataBar, 0, len(st.bars)+len(bars))
	for _, b := range append(append([]domain.MarketDataBar(nil), st.bars...), bars...) {
		key := b.Timestamp.UnixNano()
		if idx, ok := byTime[key]; ok {
			merged[idx] = b
			continue
		}
		byTime[key] = len(merged)
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	if len(merged) > m.cfg.MaxHistory {
		merged = merged[len(merged)-m.cfg.MaxHistory:]
	}

	st.bars = ta.AnnotateWith(merged, ta.AnnotateOptions{IncrementalMACD: m.cfg.IncrementalMACD})
	st.features = nil
}

// History returns a copy of the stored bars for symbol.
func (m *Model) History(symbol string) []domain.MarketDataBar {
	st := m.state(symbol, false)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]domain.MarketDataBar(nil), st.bars...)
}

// Symbols lists symbols with any history.
func (m *Model) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.symbols))
	for s := range m.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SetVoter replaces the voter with the same name.
func (m *Model) SetVoter(v Voter) error {
	m.votersMu.Lock()
	defer m.votersMu.Unlock()
	for i := range m.voters {
		if m.voters[i].Name() == v.Name() {
			m.voters[i] = v
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownVoter, v.Name())
}

func (m *Model) snapshotVoters() []Voter {
	m.votersMu.RLock()
	defer m.votersMu.RUnlock()
	return append([]Voter(nil), m.voters...)
}

// GenerateSignal returns nil without error when the symbol has fewer than
// MinHistory bars.
func (m *Model) GenerateSignal(ctx context.Context, symbol string) (*domain.ModelPrediction, error) {
	_, span := m.tracer.Start(ctx, "ensemble.generate-signal")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	st := m.state(symbol, false)
	if st == nil {
		return nil, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.bars) < m.cfg.MinHistory {
		return nil, nil
	}

	if st.features == nil {
		vec, err := m.engine.Extract(st.bars)
		if err != nil {
			return nil, fmt.Errorf("extract features for %s: %w", symbol, err)
		}
		st.features = vec
	}

	latest := st.bars[len(st.bars)-1]
	votes := make(map[string]domain.VoterVote, 5)
	for _, voter := range m.snapshotVoters() {
		op := voter.Score(st.features)
		votes[voter.Name()] = domain.VoterVote{
			Prediction: op.Action,
			Confidence: op.Confidence,
			Weight:     m.cfg.Weights[voter.Name()],
		}
	}

	action, confidence := Aggregate(votes, m.cfg.ConfidenceThreshold)
	pred := &domain.ModelPrediction{
		Symbol:     symbol,
		Timestamp:  latest.Timestamp,
		Action:     action,
		Confidence: confidence,
		Price:      latest.Close,
		Votes:      votes,
	}
	m.applyRisk(pred, st.bars)
	return pred, nil
}

// Aggregate combines weighted votes. A BUY or SELL needs a weighted vote of at
// least threshold and must beat the opposite side; otherwise the result is HOLD
// with confidence max(holdVote, 1-max(buyVote, sellVote)).
func Aggregate(votes map[string]domain.VoterVote, threshold float64) (domain.Action, float64) {
	var total, buy, sell, hold float64
	for _, v := range votes {
		if v.Weight <= 0 {
			continue
		}
		total += v.Weight
		switch v.Prediction {
		case domain.ActionBuy:
			buy += v.Weight * v.Confidence
		case domain.ActionSell:
			sell += v.Weight * v.Confidence
		default:
			hold += v.Weight * v.Confidence
		}
	}
	if total == 0 {
		return domain.ActionHold, 0
	}
	buy /= total
	sell /= total
	hold /= total

	if buy > sell && buy >= threshold {
		return domain.ActionBuy, buy
	}
	if sell > buy && sell >= threshold {
		return domain.ActionSell, sell
	}
	return domain.ActionHold, max(hold, 1-max(buy, sell))
}

func (m *Model) applyRisk(pred *domain.ModelPrediction, bars []domain.MarketDataBar) {
	if pred.Action == domain.ActionHold {
		return
	}
	latest := bars[len(bars)-1]
	atr := 0.0
	if latest.Indicators != nil {
		atr = latest.Indicators.ATR
	}
	if atr <= 0 {
		atr = ta.ATR(domain.Highs(bars), domain.Lows(bars), domain.Closes(bars), ta.DefaultATRPeriod)
	}

	price := pred.Price
	reward := m.cfg.TargetATRMultiple * atr
	risk := m.cfg.StopATRMultiple * atr
	target, stop := price+reward, price-risk
	if pred.Action == domain.ActionSell {
		target, stop = price-reward, price+risk
	}
	pred.PriceTarget = domain.Float(target)
	pred.StopLoss = domain.Float(stop)

	expected := 0.0
	if price != 0 {
		expected = reward / price
	}
	pred.ExpectedReturn = domain.Float(expected)
	rr := 0.0
	if risk > 0 {
		rr = reward / risk
	}
	pred.RiskRewardRatio = domain.Float(rr)
}

// BatchResult holds per-symbol outcomes of a batch call. A symbol appears in
// at most one of the maps; symbols with no opinion appear in neither.
type BatchResult struct {
	Predictions map[string]*domain.ModelPrediction
	Errors      map[string]error
}

// GenerateSignals evaluates every symbol independently. A failing symbol is
// logged and recorded; the others still run.
func (m *Model) GenerateSignals(ctx context.Context, symbols []string) BatchResult {
	ctx, span := m.tracer.Start(ctx, "ensemble.generate-signals")
	defer span.End()

	out := BatchResult{
		Predictions: make(map[string]*domain.ModelPrediction, len(symbols)),
		Errors:      make(map[string]error),
	}
	for _, symbol := range symbols {
		pred, err := m.safeGenerate(ctx, symbol)
		if err != nil {
			m.log.Warn().Str("symbol", symbol).Err(err).Msg("technical signal failed")
			out.Errors[symbol] = err
			continue
		}
		if pred != nil {
			out.Predictions[symbol] = pred
		}
	}
	return out
}

func (m *Model) safeGenerate(ctx context.Context, symbol string) (pred *domain.ModelPrediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			pred = nil
			err = fmt.Errorf("panic generating signal for %s: %v", symbol, r)
		}
	}()
	return m.GenerateSignal(ctx, symbol)
}
