package backtest

import "github.com/shopspring/decimal"

// applySlippage moves price against the trader: up on buys, down on sells.
func (e *Engine) applySlippage(price float64, buy bool) decimal.Decimal {
	p := decimal.NewFromFloat(price)
	pct := e.slippagePercent()
	if pct.IsZero() {
		return p
	}
	adj := p.Mul(pct).Div(hundred)
	if buy {
		return p.Add(adj)
	}
	return p.Sub(adj)
}

func (e *Engine) slippagePercent() decimal.Decimal {
	switch e.cfg.SlippageModel {
	case SlippageFixed:
		return decimal.NewFromFloat(e.cfg.SlippagePercent)
	case SlippageVariable:
		f := 1.0
		if e.rng != nil {
			f = e.rng.Float64()
		}
		return decimal.NewFromFloat(e.cfg.SlippagePercent * f)
	}
	return decimal.Zero
}
