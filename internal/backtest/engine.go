package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"autotrader-core/internal/domain"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Exit reasons recorded on trades.
const (
	ExitStopLoss   = "Stop loss"
	ExitTakeProfit = "Take profit"
	ExitSell       = "Sell signal"
	ExitEndOfRun   = "End of backtest"
)

var (
	ErrNoHistoricalData = errors.New("no historical data loaded")
	ErrRunInProgress    = errors.New("backtest already running")
)

// SignalFunc produces the trading signal for a bar. A nil signal means no
// opinion. Errors are logged and the bar is skipped.
type SignalFunc func(ctx context.Context, bar domain.MarketDataBar) (*domain.TradingSignal, error)

// Rand scales variable slippage.
type Rand interface {
	Float64() float64
}

var hundred = decimal.NewFromInt(100)

// Engine replays loaded bars through a SignalFunc. It owns its cash,
// positions and equity curve for the duration of a run; runs on one engine
// are serialised and each run starts from a clean ledger.
type Engine struct {
	tracer trace.Tracer
	log    zerolog.Logger
	cfg    Config
	rng    Rand

	data map[string][]domain.MarketDataBar

	run       sync.Mutex
	cash      decimal.Decimal
	equity    decimal.Decimal
	positions map[string]*domain.BacktestPosition
	checked   map[string]time.Time
	trades    []domain.BacktestTrade
	curve     []domain.EquityPoint

	// onEquity runs after every equity update.
	onEquity func()
}

// NewEngine normalises cfg and returns an engine with no data loaded.
func NewEngine(ctx context.Context, tracer trace.Tracer, log zerolog.Logger, cfg Config, rng Rand) (*Engine, error) {
	if err := cfg.Normalize(ctx); err != nil {
		return nil, fmt.Errorf("invalid backtest config: %w", err)
	}
	return &Engine{
		tracer: tracer,
		log:    log,
		cfg:    cfg,
		rng:    rng,
		data:   make(map[string][]domain.MarketDataBar),
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// LoadHistoricalData keeps the bars inside [StartDate, EndDate], sorted
// ascending, replacing anything previously loaded for symbol. It returns the
// number of bars kept.
func (e *Engine) LoadHistoricalData(symbol string, bars []domain.MarketDataBar) int {
	kept := make([]domain.MarketDataBar, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp.Before(e.cfg.StartDate) || b.Timestamp.After(e.cfg.EndDate) {
			continue
		}
		kept = append(kept, b)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})

	e.run.Lock()
	defer e.run.Unlock()
	if len(kept) == 0 {
		delete(e.data, symbol)
		return 0
	}
	e.data[symbol] = kept
	return len(kept)
}

func (e *Engine) symbols() []string {
	out := make([]string, 0, len(e.data))
	for s := range e.data {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// barAt returns the last bar at or before t.
func (e *Engine) barAt(symbol string, t time.Time) (domain.MarketDataBar, bool) {
	bars := e.data[symbol]
	idx := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(t) })
	if idx == 0 {
		return domain.MarketDataBar{}, false
	}
	return bars[idx-1], true
}

// barsBetween returns the bars in (from, to].
func (e *Engine) barsBetween(symbol string, from, to time.Time) []domain.MarketDataBar {
	bars := e.data[symbol]
	lo := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(from) })
	hi := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(to) })
	if lo >= hi {
		return nil
	}
	return bars[lo:hi]
}

func (e *Engine) reset() {
	e.cash = decimal.NewFromFloat(e.cfg.InitialCapital)
	e.equity = e.cash
	e.positions = make(map[string]*domain.BacktestPosition)
	e.checked = make(map[string]time.Time)
	e.trades = nil
	e.curve = nil
}

// RunBacktest steps from StartDate to EndDate inclusive in TradingFrequency
// increments. Each step first checks stops and targets of open positions,
// then asks fn for a signal on every symbol that printed a new bar since the
// previous step. Open positions are closed at the end of the run.
func (e *Engine) RunBacktest(ctx context.Context, fn SignalFunc) (*domain.BacktestResult, error) {
	ctx, span := e.tracer.Start(ctx, "backtest.run")
	defer span.End()

	if !e.run.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.run.Unlock()

	if len(e.data) == 0 {
		return nil, ErrNoHistoricalData
	}
	e.reset()

	symbols := e.symbols()
	step := e.cfg.step()
	steps := 0
	var last time.Time
	for t := e.cfg.StartDate; !t.After(e.cfg.EndDate); t = t.Add(step) {
		if e.cfg.MaxSteps > 0 && steps >= e.cfg.MaxSteps {
			e.log.Warn().Int("max_steps", e.cfg.MaxSteps).Time("at", t).Msg("backtest step cap reached")
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.updatePositions(t)

		for _, symbol := range symbols {
			bar, ok := e.barAt(symbol, t)
			if !ok || !bar.Timestamp.After(t.Add(-step)) {
				continue
			}
			sig, err := fn(ctx, bar)
			if err != nil {
				e.log.Warn().Str("symbol", symbol).Time("at", t).Err(err).Msg("signal generation failed")
				continue
			}
			if sig == nil || sig.Confidence < e.cfg.ModelConfidenceThreshold {
				continue
			}
			switch sig.Action {
			case domain.ActionBuy:
				e.openPosition(symbol, bar, t)
			case domain.ActionSell:
				if _, open := e.positions[symbol]; open {
					e.closePosition(symbol, bar.Close, t, ExitSell)
				}
			}
		}

		e.updateCurrentEquity(t)
		last = t
		steps++
	}

	for _, symbol := range e.openSymbols() {
		price := e.positions[symbol].EntryPrice
		if bar, ok := e.barAt(symbol, last); ok {
			price = bar.Close
		}
		e.closePosition(symbol, price, last, ExitEndOfRun)
	}

	span.SetAttributes(attribute.Int("steps", steps), attribute.Int("trades", len(e.trades)))
	result := e.buildResult(steps)
	e.log.Info().
		Int("steps", steps).
		Int("trades", result.TotalTrades).
		Float64("final_capital", result.FinalCapital).
		Msg("backtest finished")
	return result, nil
}

func (e *Engine) openSymbols() []string {
	out := make([]string, 0, len(e.positions))
	for s := range e.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// updatePositions closes positions whose stop or target was touched by a bar
// printed after entry and up to t. Stops are checked before targets.
func (e *Engine) updatePositions(t time.Time) {
	for _, symbol := range e.openSymbols() {
		pos := e.positions[symbol]
		from := pos.EntryTime
		if c, ok := e.checked[symbol]; ok && c.After(from) {
			from = c
		}
		for _, bar := range e.barsBetween(symbol, from, t) {
			e.checked[symbol] = bar.Timestamp
			if bar.Low <= pos.StopLoss {
				e.closePosition(symbol, pos.StopLoss, t, ExitStopLoss)
				break
			}
			if bar.High >= pos.TakeProfit {
				e.closePosition(symbol, pos.TakeProfit, t, ExitTakeProfit)
				break
			}
		}
	}
}

func (e *Engine) openPosition(symbol string, bar domain.MarketDataBar, t time.Time) {
	if _, open := e.positions[symbol]; open || len(e.positions) >= e.cfg.MaxOpenPositions {
		return
	}
	entry := e.applySlippage(bar.Close, true)
	if !entry.IsPositive() {
		return
	}

	commissionRate := decimal.NewFromFloat(e.cfg.CommissionPercent).Div(hundred)
	riskAmount := e.equity.Mul(decimal.NewFromFloat(e.cfg.RiskPerTradePercent)).Div(hundred)
	stop := entry.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(e.cfg.StopLossPercent).Div(hundred)))
	riskPerShare := entry.Sub(stop)

	var qty decimal.Decimal
	if riskPerShare.IsPositive() {
		qty = riskAmount.Div(riskPerShare).Floor()
	} else {
		qty = riskAmount.Div(entry).Mul(decimal.NewFromFloat(0.01)).Floor()
	}
	unitCost := entry.Mul(decimal.NewFromInt(1).Add(commissionRate))
	if affordable := e.cash.Div(unitCost).Floor(); qty.GreaterThan(affordable) {
		qty = affordable
	}
	if !qty.IsPositive() {
		return
	}

	notional := entry.Mul(qty)
	commission := notional.Mul(commissionRate)
	e.cash = e.cash.Sub(notional).Sub(commission)

	target := entry.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(e.cfg.TakeProfitPercent).Div(hundred)))
	e.positions[symbol] = &domain.BacktestPosition{
		Symbol:          symbol,
		EntryPrice:      entry.InexactFloat64(),
		Quantity:        qty.IntPart(),
		EntryTime:       t,
		StopLoss:        stop.InexactFloat64(),
		TakeProfit:      target.InexactFloat64(),
		EntryCommission: commission.InexactFloat64(),
	}
	delete(e.checked, symbol)
}

func (e *Engine) closePosition(symbol string, price float64, t time.Time, reason string) {
	pos, ok := e.positions[symbol]
	if !ok {
		return
	}
	exit := e.applySlippage(price, false)
	qty := decimal.NewFromInt(pos.Quantity)
	entry := decimal.NewFromFloat(pos.EntryPrice)

	proceeds := exit.Mul(qty)
	commission := proceeds.Mul(decimal.NewFromFloat(e.cfg.CommissionPercent)).Div(hundred)
	e.cash = e.cash.Add(proceeds).Sub(commission)

	pnl := exit.Sub(entry).Mul(qty).Sub(decimal.NewFromFloat(pos.EntryCommission)).Sub(commission)
	cost := entry.Mul(qty)
	pnlPct := decimal.Zero
	if cost.IsPositive() {
		pnlPct = pnl.Div(cost).Mul(hundred)
	}

	e.trades = append(e.trades, domain.BacktestTrade{
		Symbol:             symbol,
		EntryTime:          pos.EntryTime,
		ExitTime:           t,
		EntryPrice:         pos.EntryPrice,
		ExitPrice:          exit.InexactFloat64(),
		Quantity:           pos.Quantity,
		PnL:                pnl.InexactFloat64(),
		PnLPercent:         pnlPct.InexactFloat64(),
		HoldingPeriodHours: t.Sub(pos.EntryTime).Hours(),
		ExitReason:         reason,
	})
	delete(e.positions, symbol)
	delete(e.checked, symbol)
}

// updateCurrentEquity marks open positions to the last close at or before t
// and appends the result to the equity curve.
func (e *Engine) updateCurrentEquity(t time.Time) {
	equity := e.cash
	for symbol, pos := range e.positions {
		price := pos.EntryPrice
		if bar, ok := e.barAt(symbol, t); ok {
			price = bar.Close
		}
		equity = equity.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(pos.Quantity)))
	}
	e.equity = equity
	e.curve = append(e.curve, domain.EquityPoint{Date: t, Equity: equity.InexactFloat64()})
	if e.onEquity != nil {
		e.onEquity()
	}
}
