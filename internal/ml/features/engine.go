package features

import (
	"errors"
	"math"

	"autotrader-core/internal/domain"
	"autotrader-core/internal/ta"
)

// Feature names.
const (
	Price             = "price"
	Volume            = "volume"
	RSI               = "rsi"
	MACD              = "macd"
	MACDSignal        = "macd_signal"
	MACDHistogram     = "macd_histogram"
	EMA20             = "ema20"
	EMA50             = "ema50"
	EMA200            = "ema200"
	EMARatio          = "ema50_ema200_ratio"
	BollingerUpper    = "bollinger_upper"
	BollingerMiddle   = "bollinger_middle"
	BollingerLower    = "bollinger_lower"
	BollingerPosition = "bollinger_position"
	BollingerWidth    = "bollinger_width"
	ATR               = "atr"
	OBV               = "obv"
	PriceChange1      = "price_change_1"
	PriceChange5      = "price_change_5"
	PriceChange20     = "price_change_20"
	VolumeRatio       = "volume_ratio"
	RSIChange5        = "rsi_change_5"
	OBVChange5        = "obv_change_5"
	Volatility20      = "volatility_20"
)

// MinHistory is the number of bars needed to look 20 bars back from the latest.
const MinHistory = 21

var ErrInsufficientHistory = errors.New("insufficient history for feature extraction")

// Vector maps feature names to values. Vectors handed to voters are read-only.
type Vector map[string]float64

func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Values orders the vector by names; missing names become 0.
func (v Vector) Values(names []string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		out[i] = v[name]
	}
	return out
}

// ModelFeatureNames is the scale-free subset used by trained voters.
var ModelFeatureNames = []string{
	RSI, MACDHistogram, EMARatio, BollingerPosition, BollingerWidth,
	PriceChange1, PriceChange5, PriceChange20, VolumeRatio, RSIChange5, Volatility20,
}

type Engine struct {
	volumeWindow     int
	volatilityWindow int
}

func NewEngine() *Engine {
	return &Engine{volumeWindow: 20, volatilityWindow: 20}
}

// Extract builds the feature vector of the latest bar in history. History must
// be in ascending timestamp order; bars without indicators are annotated.
func (e *Engine) Extract(history []domain.MarketDataBar) (Vector, error) {
	if len(history) < MinHistory {
		return nil, ErrInsufficientHistory
	}
	if needsAnnotation(history) {
		history = ta.Annotate(history)
	}
	return e.extractAt(history, len(history)-1), nil
}

func needsAnnotation(history []domain.MarketDataBar) bool {
	n := len(history)
	for _, idx := range []int{n - 1, n - 6} {
		if idx >= 0 && history[idx].Indicators == nil {
			return true
		}
	}
	return false
}

func (e *Engine) extractAt(history []domain.MarketDataBar, idx int) Vector {
	bar := history[idx]
	ind := bar.Indicators
	closes := domain.Closes(history[:idx+1])
	volumes := domain.Volumes(history[:idx+1])
	price := bar.Close

	v := Vector{
		Price:           price,
		Volume:          bar.Volume,
		RSI:             ind.RSI,
		MACD:            ind.MACD,
		MACDSignal:      ind.MACDSignal,
		MACDHistogram:   ind.MACDHistogram,
		EMA20:           ind.EMA20,
		EMA50:           ind.EMA50,
		EMA200:          ind.EMA200,
		BollingerUpper:  ind.BollingerUpper,
		BollingerMiddle: ind.BollingerMid,
		BollingerLower:  ind.BollingerLower,
		ATR:             ind.ATR,
		OBV:             ind.OBV,
	}

	v[EMARatio] = 1
	if ind.EMA200 != 0 {
		v[EMARatio] = ind.EMA50 / ind.EMA200
	}
	v[BollingerPosition] = BandPosition(price, ind.BollingerLower, ind.BollingerUpper)
	v[BollingerWidth] = 0
	if ind.BollingerMid != 0 {
		v[BollingerWidth] = (ind.BollingerUpper - ind.BollingerLower) / ind.BollingerMid
	}

	v[PriceChange1] = pctChange(closes, 1)
	v[PriceChange5] = pctChange(closes, 5)
	v[PriceChange20] = pctChange(closes, 20)
	v[VolumeRatio] = volumeRatio(volumes, e.volumeWindow)
	v[Volatility20] = rollingVolatility(closes, e.volatilityWindow)

	v[RSIChange5] = 0
	v[OBVChange5] = 0
	if back := idx - 5; back >= 0 && history[back].Indicators != nil {
		v[RSIChange5] = ind.RSI - history[back].Indicators.RSI
		v[OBVChange5] = ind.OBV - history[back].Indicators.OBV
	}

	for k, val := range v {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			v[k] = 0
		}
	}
	return v
}

// BandPosition places price within the bands, clamped to [0,1]. Degenerate
// bands yield the midpoint 0.5.
func BandPosition(price, lower, upper float64) float64 {
	if upper <= lower {
		return 0.5
	}
	pos := (price - lower) / (upper - lower)
	if pos < 0 {
		return 0
	}
	if pos > 1 {
		return 1
	}
	return pos
}

func pctChange(values []float64, lag int) float64 {
	idx := len(values) - 1
	if idx-lag < 0 {
		return 0
	}
	base := values[idx-lag]
	if base == 0 {
		return 0
	}
	return (values[idx] / base) - 1
}

func volumeRatio(volumes []float64, window int) float64 {
	idx := len(volumes) - 1
	start := idx - window
	if start < 0 {
		start = 0
	}
	if idx <= start {
		return 1
	}
	mean, _ := ta.MeanStd(volumes[start:idx])
	if mean == 0 {
		return 1
	}
	return volumes[idx] / mean
}

func rollingVolatility(closes []float64, window int) float64 {
	idx := len(closes) - 1
	if window <= 1 || idx-window < 0 {
		return 0
	}
	rets := make([]float64, 0, window)
	for j := idx - window + 1; j <= idx; j++ {
		if closes[j-1] == 0 {
			return 0
		}
		rets = append(rets, (closes[j]/closes[j-1])-1)
	}
	_, std := ta.MeanStd(rets)
	return std
}
