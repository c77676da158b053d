package indicator

// vwap computes the Volume-Weighted Average Price over the current working
// series: sum(typicalPrice * weight) / sum(weight). Scoped to whatever
// window the caller passes in — no session or day reset.
//
// Tick count stands in for traded volume: the feed this engine is built
// against does not guarantee a volume figure per tick, but tick count is
// always available and correlates with traded activity.
func vwap(closes, highs, lows []float64, ticks []int) (float64, bool) {
	if len(closes) == 0 {
		return 0, false
	}
	var weightedSum, weightSum float64
	for i := range closes {
		typicalPrice := (highs[i] + lows[i] + closes[i]) / 3.0
		weight := float64(ticks[i])
		if weight <= 0 {
			weight = 1
		}
		weightedSum += typicalPrice * weight
		weightSum += weight
	}
	if weightSum == 0 {
		return 0, false
	}
	return weightedSum / weightSum, true
}
