package ta

import "autotrader-core/internal/domain"

type AnnotateOptions struct {
	// IncrementalMACD derives MACD from a single pass of EMA series instead of
	// recomputing the MACD line for every prefix. Output is identical.
	IncrementalMACD bool
}

// Annotate returns a copy of bars where every bar without indicators gets
// them computed from the prefix of the series ending at that bar. Bars that
// already carry indicators are left untouched.
func Annotate(bars []domain.MarketDataBar) []domain.MarketDataBar {
	return AnnotateWith(bars, AnnotateOptions{IncrementalMACD: true})
}

func AnnotateWith(bars []domain.MarketDataBar, opts AnnotateOptions) []domain.MarketDataBar {
	out := make([]domain.MarketDataBar, len(bars))
	copy(out, bars)

	missing := false
	for i := range out {
		if out[i].Indicators == nil {
			missing = true
			break
		}
	}
	if !missing {
		return out
	}

	closes := domain.Closes(bars)
	highs := domain.Highs(bars)
	lows := domain.Lows(bars)
	volumes := domain.Volumes(bars)

	rsi := RSISeries(closes, DefaultRSIPeriod)
	var macd, signal, hist []float64
	if opts.IncrementalMACD {
		macd, signal, hist = MACDSeries(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	}
	ema20 := fallbackEMASeries(closes, 20)
	ema50 := fallbackEMASeries(closes, 50)
	ema200 := fallbackEMASeries(closes, 200)
	mid, upper, lower := BollingerSeries(closes, DefaultBollingerPeriod, DefaultBollingerMult)
	atr := ATRSeries(highs, lows, closes, DefaultATRPeriod)
	obv := OBVSeries(closes, volumes)

	for i := range out {
		if out[i].Indicators != nil {
			continue
		}
		var m MACDResult
		if opts.IncrementalMACD {
			m = MACDResult{MACD: macd[i], Signal: signal[i], Histogram: hist[i]}
		} else {
			m = MACD(closes[:i+1], DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
		}
		out[i].Indicators = &domain.Indicators{
			RSI:            rsi[i],
			MACD:           m.MACD,
			MACDSignal:     m.Signal,
			MACDHistogram:  m.Histogram,
			EMA20:          ema20[i],
			EMA50:          ema50[i],
			EMA200:         ema200[i],
			BollingerUpper: upper[i],
			BollingerMid:   mid[i],
			BollingerLower: lower[i],
			ATR:            atr[i],
			OBV:            obv[i],
		}
	}
	return out
}
