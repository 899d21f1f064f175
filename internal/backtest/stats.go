package backtest

import (
	"math"

	"autotrader-core/internal/domain"

	"github.com/shopspring/decimal"
)

const tradingDaysPerYear = 252

func (e *Engine) buildResult(steps int) *domain.BacktestResult {
	initial := e.cfg.InitialCapital
	final := e.cash.InexactFloat64()

	r := &domain.BacktestResult{
		StartDate:         e.cfg.StartDate,
		EndDate:           e.cfg.EndDate,
		InitialCapital:    initial,
		FinalCapital:      final,
		TotalReturn:       e.cash.Sub(decimal.NewFromFloat(initial)).InexactFloat64(),
		EquityCurve:       e.curve,
		Trades:            e.trades,
		Steps:             steps,
		MonthlyReturns:    monthlyReturns(e.curve, initial),
		SymbolPerformance: symbolPerformance(e.trades),
	}
	if initial > 0 {
		r.TotalReturnPercent = r.TotalReturn / initial * 100
	}
	if r.Trades == nil {
		r.Trades = []domain.BacktestTrade{}
	}
	if r.EquityCurve == nil {
		r.EquityCurve = []domain.EquityPoint{}
	}
	tradeStats(r, e.trades)
	r.SharpeRatio = sharpeRatio(e.curve)
	r.MaxDrawdown, r.MaxDrawdownPercent = maxDrawdown(e.curve, initial)
	return r
}

func tradeStats(r *domain.BacktestResult, trades []domain.BacktestTrade) {
	r.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}
	var grossWin, grossLoss, holding float64
	for _, t := range trades {
		holding += t.HoldingPeriodHours
		switch {
		case t.PnL > 0:
			r.WinningTrades++
			grossWin += t.PnL
			if t.PnL > r.LargestWin {
				r.LargestWin = t.PnL
			}
		case t.PnL < 0:
			r.LosingTrades++
			grossLoss += -t.PnL
			if t.PnL < r.LargestLoss {
				r.LargestLoss = t.PnL
			}
		}
	}
	r.WinRate = float64(r.WinningTrades) / float64(len(trades)) * 100
	r.AverageHoldingHours = holding / float64(len(trades))
	if r.WinningTrades > 0 {
		r.AverageWin = grossWin / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = -grossLoss / float64(r.LosingTrades)
	}
	r.ProfitFactor = profitFactor(grossWin, grossLoss)
}

// profitFactor is gross profit over gross loss. With no losses it is +Inf
// when anything was won and 0 otherwise.
func profitFactor(grossWin, grossLoss float64) domain.Ratio {
	if grossLoss == 0 {
		if grossWin > 0 {
			return domain.Ratio(math.Inf(1))
		}
		return 0
	}
	return domain.Ratio(grossWin / grossLoss)
}

// sharpeRatio annualises the mean over the population standard deviation of
// step returns. A flat curve scores 0.
func sharpeRatio(curve []domain.EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, v := range returns {
		mean += v
	}
	mean /= float64(len(returns))
	var variance float64
	for _, v := range returns {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown returns the deepest fall from a running peak, seeded with the
// initial capital, in currency and in percent of the peak. The two maxima are
// tracked separately and may come from different declines.
func maxDrawdown(curve []domain.EquityPoint, initial float64) (float64, float64) {
	peak := initial
	var dd, ddPct float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		drop := peak - p.Equity
		if drop > dd {
			dd = drop
		}
		if peak > 0 && drop/peak*100 > ddPct {
			ddPct = drop / peak * 100
		}
	}
	return dd, ddPct
}

// monthlyReturns compares each month's closing equity with the previous
// month's, the first month against the initial capital. Keys are "2006-01".
func monthlyReturns(curve []domain.EquityPoint, initial float64) map[string]float64 {
	out := make(map[string]float64)
	if len(curve) == 0 {
		return out
	}
	base := initial
	month := curve[0].Date.UTC().Format("2006-01")
	var closing float64
	for _, p := range curve {
		m := p.Date.UTC().Format("2006-01")
		if m != month {
			out[month] = pctChange(base, closing)
			base = closing
			month = m
		}
		closing = p.Equity
	}
	out[month] = pctChange(base, closing)
	return out
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func symbolPerformance(trades []domain.BacktestTrade) map[string]domain.SymbolPerformance {
	out := make(map[string]domain.SymbolPerformance)
	for _, t := range trades {
		p := out[t.Symbol]
		p.Trades++
		p.TotalPnL += t.PnL
		if t.PnL > 0 {
			p.Wins++
		}
		out[t.Symbol] = p
	}
	for s, p := range out {
		p.WinRate = float64(p.Wins) / float64(p.Trades) * 100
		out[s] = p
	}
	return out
}
