package strategy

// PriceBeta converts a beta fitted on series rebased to one at their first
// bar into price units, using those first closes as anchors.
func PriceBeta(beta, anchor1, anchor2 float64) float64 {
	if anchor1 == 0 {
		return 0
	}
	return beta * anchor2 / anchor1
}

// HedgeRatio is the number of leg-two shares held against one share of leg
// one. beta is in price units (see PriceBeta). It is recomputed from each
// bar's prices.
func HedgeRatio(beta, price1, price2 float64) float64 {
	if price2 == 0 {
		return 0
	}
	return beta * price1 / price2
}

// MarkToMarket values an open position: leg one from its entry price, minus
// the hedged leg two from its entry price.
func MarkToMarket(initial float64, pos Position, price1, price2, entry1, entry2, hedge float64) float64 {
	sign := pos.Sign()
	return initial + sign*(price1-entry1) - sign*hedge*(price2-entry2)
}

// StopLossBreached reports whether value has fallen below fraction of initial.
func StopLossBreached(value, initial, fraction float64) bool {
	return value < fraction*initial
}

// ReturnRatioPnL is the per-bar return of a position measured from price
// ratios. It is kept for the in-sample Sharpe estimate only.
func ReturnRatioPnL(pos Position, price1, prev1, price2, prev2, hedge float64) float64 {
	if prev1 == 0 || prev2 == 0 {
		return 0
	}
	return pos.Sign() * (price1/prev1 - hedge*price2/prev2)
}
