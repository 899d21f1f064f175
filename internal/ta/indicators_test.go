package ta

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"autotrader-core/internal/domain"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func randomWalk(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p *= 1 + (rng.Float64()-0.5)*0.04
		out[i] = p
	}
	return out
}

func TestRSIFallbackAndBounds(t *testing.T) {
	if got := RSI([]float64{1, 2, 3}, 14); got != 50 {
		t.Fatalf("expected neutral fallback, got %.2f", got)
	}
	for seed := int64(1); seed <= 20; seed++ {
		got := RSI(randomWalk(120, seed), 14)
		if got < 0 || got > 100 {
			t.Fatalf("rsi out of bounds: %.4f", got)
		}
	}
}

func TestRSIMonotonicRiseIsHundred(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 10 + float64(i/2)
	}
	if got := RSI(prices, 14); got != 100 {
		t.Fatalf("expected 100 for non-negative deltas, got %.4f", got)
	}
}

func TestRSIConstantIsNeutral(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 42
	}
	got := RSI(prices, 14)
	if got < 45 || got > 55 {
		t.Fatalf("expected neutral rsi for flat series, got %.4f", got)
	}
}

func TestEMA(t *testing.T) {
	if got := EMA([]float64{5, 6, 7}, 10); got != 7 {
		t.Fatalf("expected last price fallback, got %.4f", got)
	}
	if got := EMA(nil, 10); got != 0 {
		t.Fatalf("expected zero for empty input, got %.4f", got)
	}
	flat := make([]float64, 50)
	for i := range flat {
		flat[i] = 12.5
	}
	if got := EMA(flat, 20); !approx(got, 12.5, 1e-12) {
		t.Fatalf("expected constant ema, got %.10f", got)
	}
}

func TestMACDIncrementalMatchesReference(t *testing.T) {
	for _, n := range []int{10, 26, 27, 34, 35, 80, 250} {
		prices := randomWalk(n, int64(n))
		ref := MACD(prices, 12, 26, 9)
		inc := MACDIncremental(prices, 12, 26, 9)
		if ref != inc {
			t.Fatalf("n=%d: incremental %+v differs from reference %+v", n, inc, ref)
		}
	}
}

func TestMACDShortInput(t *testing.T) {
	if got := MACD([]float64{1, 2, 3}, 12, 26, 9); got != (MACDResult{}) {
		t.Fatalf("expected zero result, got %+v", got)
	}
}

func TestBollinger(t *testing.T) {
	prices := randomWalk(60, 7)
	bands := Bollinger(prices, 20, 2)

	mean, std := MeanStd(prices[len(prices)-20:])
	if !approx(bands.Middle, mean, 1e-9) {
		t.Fatalf("middle %.8f != sma %.8f", bands.Middle, mean)
	}
	if !approx(bands.Upper-bands.Lower, 2*2*std, 1e-9) {
		t.Fatalf("band width %.8f != 4*std %.8f", bands.Upper-bands.Lower, 4*std)
	}

	short := Bollinger([]float64{3, 4}, 20, 2)
	if short.Upper != 4 || short.Middle != 4 || short.Lower != 4 {
		t.Fatalf("expected collapsed bands, got %+v", short)
	}
}

func TestATRFallback(t *testing.T) {
	got := ATR([]float64{10, 12}, []float64{9, 10.5}, []float64{9.5, 11}, 14)
	if got != 1.5 {
		t.Fatalf("expected high-low fallback 1.5, got %.4f", got)
	}
}

func TestATRAverageTrueRange(t *testing.T) {
	high := []float64{10, 11, 12, 13}
	low := []float64{9, 10, 11, 12}
	closeP := []float64{9.5, 10.5, 11.5, 12.5}
	// true ranges after the first bar are all 1.5 (high - prev close)
	if got := ATR(high, low, closeP, 3); !approx(got, 1.5, 1e-12) {
		t.Fatalf("expected 1.5, got %.6f", got)
	}
}

func TestOBV(t *testing.T) {
	closes := []float64{10, 11, 11, 10, 12}
	vols := []float64{100, 200, 300, 400, 500}
	// +200, tie, -400, +500
	if got := OBV(closes, vols); got != 300 {
		t.Fatalf("expected 300, got %.2f", got)
	}
}

func TestSMAFallback(t *testing.T) {
	if got := SMA([]float64{1, 2}, 5); got != 2 {
		t.Fatalf("expected last value, got %.2f", got)
	}
	if got := SMA([]float64{1, 2, 3, 4, 5, 6}, 3); !approx(got, 5, 1e-12) {
		t.Fatalf("expected 5, got %.6f", got)
	}
}

func TestAnnotateMatchesScalarIndicators(t *testing.T) {
	prices := randomWalk(260, 11)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.MarketDataBar, len(prices))
	for i, p := range prices {
		bars[i] = domain.MarketDataBar{
			Symbol:    "AAPL",
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      p,
			High:      p * 1.01,
			Low:       p * 0.99,
			Close:     p,
			Volume:    1000 + float64(i),
		}
	}
	preset := &domain.Indicators{RSI: 12}
	bars[0].Indicators = preset

	annotated := Annotate(bars)
	if annotated[0].Indicators != preset {
		t.Fatal("existing indicators must be kept")
	}
	if bars[len(bars)-1].Indicators != nil {
		t.Fatal("input bars must not be mutated")
	}

	lastInd := annotated[len(annotated)-1].Indicators
	closes := domain.Closes(bars)
	if !approx(lastInd.RSI, RSI(closes, 14), 1e-9) {
		t.Fatalf("rsi mismatch: %.6f vs %.6f", lastInd.RSI, RSI(closes, 14))
	}
	m := MACD(closes, 12, 26, 9)
	if !approx(lastInd.MACDHistogram, m.Histogram, 1e-9) {
		t.Fatalf("macd histogram mismatch: %.8f vs %.8f", lastInd.MACDHistogram, m.Histogram)
	}
	if !approx(lastInd.EMA200, EMA(closes, 200), 1e-9) {
		t.Fatalf("ema200 mismatch")
	}
	atr := ATR(domain.Highs(bars), domain.Lows(bars), closes, 14)
	if !approx(lastInd.ATR, atr, 1e-9) {
		t.Fatalf("atr mismatch: %.8f vs %.8f", lastInd.ATR, atr)
	}
	if annotated[10].Indicators.EMA50 != closes[10] {
		t.Fatalf("expected ema50 fallback to close on short prefix")
	}
}

func TestAnnotateReferenceMACDMatchesIncremental(t *testing.T) {
	prices := randomWalk(90, 5)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.MarketDataBar, len(prices))
	for i, p := range prices {
		bars[i] = domain.MarketDataBar{Symbol: "NVDA", Timestamp: start.Add(time.Duration(i) * time.Minute), High: p, Low: p, Close: p, Volume: 1}
	}
	fast := AnnotateWith(bars, AnnotateOptions{IncrementalMACD: true})
	slow := AnnotateWith(bars, AnnotateOptions{IncrementalMACD: false})
	for i := range bars {
		a, b := fast[i].Indicators, slow[i].Indicators
		if a.MACD != b.MACD || a.MACDSignal != b.MACDSignal || a.MACDHistogram != b.MACDHistogram {
			t.Fatalf("bar %d: incremental %+v differs from reference %+v", i, a, b)
		}
	}
}
