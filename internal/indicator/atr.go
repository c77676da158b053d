package indicator

// trueRanges computes the per-candle true range series: max(high-low,
// |high-prevClose|, |low-prevClose|). The first candle has no previous
// close, so its true range is simply high-low.
func trueRanges(closes, highs, lows []float64) []float64 {
	n := len(closes)
	if n == 0 {
		return nil
	}
	tr := make([]float64, n)
	tr[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := abs(highs[i] - closes[i-1])
		lc := abs(lows[i] - closes[i-1])
		tr[i] = max3(hl, hc, lc)
	}
	return tr
}

// atrWilder computes Wilder-smoothed ATR(period) over the full candle
// series. Returns (0, false) if there isn't enough history.
func atrWilder(closes, highs, lows []float64, period int) (float64, bool) {
	tr := trueRanges(closes, highs, lows)
	if len(tr) < period+1 {
		return 0, false
	}
	// Skip tr[0]: its "previous close" is undefined, so Wilder ATR seeds
	// from the first `period` true ranges starting at index 1.
	s := NewSMMA(period)
	for _, v := range tr[1:] {
		s.Update(v)
	}
	return s.Value(), s.Ready()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
