package backtest

import (
	"math"
	"testing"
	"time"

	"autotrader-core/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestProfitFactor(t *testing.T) {
	assert.True(t, profitFactor(10, 0).IsInf())
	assert.Equal(t, domain.Ratio(0), profitFactor(0, 0))
	assert.Equal(t, domain.Ratio(2), profitFactor(10, 5))
}

func TestTradeStats(t *testing.T) {
	r := &domain.BacktestResult{}
	tradeStats(r, []domain.BacktestTrade{
		{PnL: 300, HoldingPeriodHours: 2},
		{PnL: -100, HoldingPeriodHours: 4},
		{PnL: 100, HoldingPeriodHours: 6},
		{PnL: -200, HoldingPeriodHours: 8},
	})
	assert.Equal(t, 4, r.TotalTrades)
	assert.Equal(t, 2, r.WinningTrades)
	assert.Equal(t, 2, r.LosingTrades)
	assert.Equal(t, 50.0, r.WinRate)
	assert.Equal(t, 200.0, r.AverageWin)
	assert.Equal(t, -150.0, r.AverageLoss)
	assert.Equal(t, 300.0, r.LargestWin)
	assert.Equal(t, -200.0, r.LargestLoss)
	assert.Equal(t, 5.0, r.AverageHoldingHours)
	assert.InDelta(t, 400.0/300.0, float64(r.ProfitFactor), 1e-12)
}

func curve(values ...float64) []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		out[i] = domain.EquityPoint{Date: t0.Add(time.Duration(i) * 24 * time.Hour), Equity: v}
	}
	return out
}

func TestSharpeRatio(t *testing.T) {
	assert.Zero(t, sharpeRatio(curve(100, 100, 100)))
	assert.Zero(t, sharpeRatio(curve(100)))

	// returns +10%, -10%: mean 0
	assert.InDelta(t, 0, sharpeRatio(curve(100, 110, 99)), 1e-12)

	got := sharpeRatio(curve(100, 110, 110))
	// returns 0.1 and 0: mean 0.05, population std 0.05
	assert.InDelta(t, math.Sqrt(252), got, 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	dd, pct := maxDrawdown(curve(100, 120, 90, 110, 80, 130), 100)
	assert.Equal(t, 40.0, dd)
	assert.InDelta(t, 40.0/120*100, pct, 1e-12)

	dd, pct = maxDrawdown(curve(95, 100), 100)
	assert.Equal(t, 5.0, dd)
	assert.Equal(t, 5.0, pct)

	// the 50% fall precedes the larger currency fall of 100 from 300
	dd, pct = maxDrawdown(curve(100, 50, 300, 200), 100)
	assert.Equal(t, 100.0, dd)
	assert.InDelta(t, 50.0, pct, 1e-12)
}

func TestMonthlyReturns(t *testing.T) {
	points := []domain.EquityPoint{
		{Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Equity: 101000},
		{Date: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Equity: 102000},
		{Date: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), Equity: 99960},
		{Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Equity: 99960},
	}
	got := monthlyReturns(points, 100000)
	assert.Len(t, got, 3)
	assert.InDelta(t, 2, got["2024-01"], 1e-9)
	assert.InDelta(t, -2, got["2024-02"], 1e-9)
	assert.InDelta(t, 0, got["2024-03"], 1e-9)
	assert.Empty(t, monthlyReturns(nil, 100000))
}

func TestSymbolPerformance(t *testing.T) {
	got := symbolPerformance([]domain.BacktestTrade{
		{Symbol: "AAPL", PnL: 10},
		{Symbol: "AAPL", PnL: -5},
		{Symbol: "MSFT", PnL: -1},
	})
	assert.Equal(t, domain.SymbolPerformance{Trades: 2, Wins: 1, WinRate: 50, TotalPnL: 5}, got["AAPL"])
	assert.Equal(t, domain.SymbolPerformance{Trades: 1, TotalPnL: -1}, got["MSFT"])
}
