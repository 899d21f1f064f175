package domain

import "time"

// MarketDataBar is one OHLCV sample for a symbol, optionally carrying precomputed indicators.
type MarketDataBar struct {
	Symbol     string      `json:"symbol"`
	Timestamp  time.Time   `json:"timestamp"`
	Open       float64     `json:"open"`
	High       float64     `json:"high"`
	Low        float64     `json:"low"`
	Close      float64     `json:"close"`
	Volume     float64     `json:"volume"`
	Indicators *Indicators `json:"indicators,omitempty"`
}

// Indicators holds the technical values attached to a bar.
type Indicators struct {
	RSI            float64 `json:"rsi"`
	MACD           float64 `json:"macd"`
	MACDSignal     float64 `json:"macd_signal"`
	MACDHistogram  float64 `json:"macd_histogram"`
	EMA20          float64 `json:"ema20"`
	EMA50          float64 `json:"ema50"`
	EMA200         float64 `json:"ema200"`
	BollingerUpper float64 `json:"bollinger_upper"`
	BollingerMid   float64 `json:"bollinger_middle"`
	BollingerLower float64 `json:"bollinger_lower"`
	ATR            float64 `json:"atr"`
	OBV            float64 `json:"obv"`
}

// Valid reports whether the OHLCV values are usable.
func (b MarketDataBar) Valid() bool {
	if b.Timestamp.IsZero() || b.Volume < 0 {
		return false
	}
	if b.Close <= 0 || b.High < b.Low {
		return false
	}
	return true
}

// Closes extracts close prices from an ordered bar slice.
func Closes(bars []MarketDataBar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// Highs extracts high prices from an ordered bar slice.
func Highs(bars []MarketDataBar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].High
	}
	return out
}

// Lows extracts low prices from an ordered bar slice.
func Lows(bars []MarketDataBar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Low
	}
	return out
}

// Volumes extracts volumes from an ordered bar slice.
func Volumes(bars []MarketDataBar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Volume
	}
	return out
}

// WatchlistSymbols is the default set of symbols the jobs iterate over.
var WatchlistSymbols = []string{
	"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL",
	"META", "TSLA", "AMD", "NFLX", "SPY",
}

// SupportedIntervals defines the bar intervals the store accepts.
var SupportedIntervals = []string{"5m", "15m", "1h", "4h", "1d"}
