package ta

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

const (
	DefaultRSIPeriod       = 14
	DefaultMACDFast        = 12
	DefaultMACDSlow        = 26
	DefaultMACDSignal      = 9
	DefaultBollingerPeriod = 20
	DefaultBollingerMult   = 2.0
	DefaultATRPeriod       = 14

	neutralRSI = 50.0
)

type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
	StdDev float64
}

func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// SMA is the simple average of the trailing period values, or the last value on short input.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return last(values)
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	out := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	if len(out) == 0 {
		mean, _ := MeanStd(values[len(values)-period:])
		return mean
	}
	return out[len(out)-1]
}

// RSI uses Wilder smoothing and returns 50 when fewer than period+1 samples exist.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return neutralRSI
	}
	series := RSISeries(prices, period)
	return series[len(series)-1]
}

// RSISeries holds the neutral fallback until period+1 samples are available.
func RSISeries(closes []float64, period int) []float64 {
	series := make([]float64, len(closes))
	for i := range series {
		series[i] = neutralRSI
	}
	if period <= 0 || len(closes) <= period {
		return series
	}

	var gainSum float64
	var lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	series[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		series[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return series
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return neutralRSI
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// EMA is seeded with the SMA of the first period samples.
// With fewer than period samples it returns the last price.
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if period <= 0 || len(prices) < period {
		return last(prices)
	}
	series := EMASeries(prices, period)
	return series[len(series)-1]
}

// EMASeries is NaN before index period-1.
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	if period <= 1 {
		copy(out, values)
		return out
	}
	for i := range out {
		out[i] = math.NaN()
	}
	if len(values) < period {
		return out
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)
	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// MACD recomputes the MACD line for every prefix of prices before taking the
// signal EMA over it. Quadratic in len(prices); MACDIncremental returns the same numbers.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	if len(prices) < slow || slow <= 0 {
		return MACDResult{}
	}
	line := make([]float64, 0, len(prices)-slow+1)
	for i := slow; i <= len(prices); i++ {
		window := prices[:i]
		line = append(line, EMA(window, fast)-EMA(window, slow))
	}
	return macdFromLine(line, signal)
}

func MACDIncremental(prices []float64, fast, slow, signal int) MACDResult {
	if len(prices) < slow || slow <= 0 {
		return MACDResult{}
	}
	fastEMA := fallbackEMASeries(prices, fast)
	slowEMA := fallbackEMASeries(prices, slow)
	line := make([]float64, 0, len(prices)-slow+1)
	for i := slow - 1; i < len(prices); i++ {
		line = append(line, fastEMA[i]-slowEMA[i])
	}
	return macdFromLine(line, signal)
}

func macdFromLine(line []float64, signal int) MACDResult {
	m := line[len(line)-1]
	s := EMA(line, signal)
	return MACDResult{MACD: m, Signal: s, Histogram: m - s}
}

// fallbackEMASeries mirrors EMA on every prefix: before the seed index the
// value is the latest price, matching the short-input fallback.
func fallbackEMASeries(values []float64, period int) []float64 {
	out := EMASeries(values, period)
	for i := range out {
		if math.IsNaN(out[i]) {
			out[i] = values[i]
		}
	}
	return out
}

// MACDSeries returns per-index MACD, signal and histogram values equal to
// MACD(values[:i+1], ...). Indexes before slow-1 are zero.
func MACDSeries(values []float64, fast, slow, signal int) ([]float64, []float64, []float64) {
	n := len(values)
	macdLine := make([]float64, n)
	signalLine := make([]float64, n)
	hist := make([]float64, n)
	if slow <= 0 || n < slow {
		return macdLine, signalLine, hist
	}
	fastEMA := fallbackEMASeries(values, fast)
	slowEMA := fallbackEMASeries(values, slow)
	line := make([]float64, 0, n-slow+1)
	for i := slow - 1; i < n; i++ {
		line = append(line, fastEMA[i]-slowEMA[i])
	}
	sig := fallbackEMASeries(line, signal)
	for j := range line {
		i := j + slow - 1
		macdLine[i] = line[j]
		signalLine[i] = sig[j]
		hist[i] = line[j] - sig[j]
	}
	return macdLine, signalLine, hist
}

// Bollinger uses the population standard deviation of the trailing window.
// Short input collapses every band onto the last price.
func Bollinger(prices []float64, period int, mult float64) BollingerBands {
	if period <= 0 || len(prices) < period {
		p := last(prices)
		return BollingerBands{Upper: p, Middle: p, Lower: p}
	}
	window := prices[len(prices)-period:]
	_, std := MeanStd(window)
	middle := SMA(prices, period)
	return BollingerBands{
		Upper:  middle + mult*std,
		Middle: middle,
		Lower:  middle - mult*std,
		StdDev: std,
	}
}

func BollingerSeries(values []float64, period int, mult float64) ([]float64, []float64, []float64) {
	n := len(values)
	middle := make([]float64, n)
	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := range values {
		if period <= 0 || i < period-1 {
			middle[i], upper[i], lower[i] = values[i], values[i], values[i]
			continue
		}
		mean, std := MeanStd(values[i-period+1 : i+1])
		middle[i] = mean
		upper[i] = mean + mult*std
		lower[i] = mean - mult*std
	}
	return middle, upper, lower
}

func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATR averages the last period true ranges. Without period+1 samples it
// degenerates to the last bar's high-low range.
func ATR(high, low, close []float64, period int) float64 {
	n := len(close)
	if n == 0 || len(high) != n || len(low) != n {
		return 0
	}
	if period <= 0 || n < period+1 {
		return high[n-1] - low[n-1]
	}
	var sum float64
	for i := n - period; i < n; i++ {
		sum += trueRange(high[i], low[i], close[i-1])
	}
	return sum / float64(period)
}

func ATRSeries(high, low, close []float64, period int) []float64 {
	n := len(close)
	out := make([]float64, n)
	if len(high) != n || len(low) != n {
		return out
	}
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = trueRange(high[i], low[i], close[i-1])
	}
	var window float64
	for i := 0; i < n; i++ {
		if i >= 1 {
			window += tr[i]
		}
		if i > period {
			window -= tr[i-period]
		}
		if period <= 0 || i < period {
			out[i] = high[i] - low[i]
			continue
		}
		out[i] = window / float64(period)
	}
	return out
}

// OBV accumulates volume on up closes and subtracts it on down closes.
func OBV(close, volume []float64) float64 {
	series := OBVSeries(close, volume)
	return last(series)
}

func OBVSeries(close, volume []float64) []float64 {
	n := len(close)
	if len(volume) < n {
		n = len(volume)
	}
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		out[i] = out[i-1]
		switch {
		case close[i] > close[i-1]:
			out[i] += volume[i]
		case close[i] < close[i-1]:
			out[i] -= volume[i]
		}
	}
	return out
}
