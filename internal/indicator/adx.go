package indicator

// adx computes the Average Directional Index(period): the Wilder-smoothed
// directional movement spread, expressed as a 0-100 trend-strength reading.
// Returns (0, false) if there isn't enough history (needs ~2*period+1
// candles for the smoothing to settle).
func adx(closes, highs, lows []float64, period int) (float64, bool) {
	n := len(closes)
	if n < 2*period+1 {
		return 0, false
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := trueRanges(closes, highs, lows)

	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothedPlusDM := NewSMMA(period)
	smoothedMinusDM := NewSMMA(period)
	smoothedTR := NewSMMA(period)
	dxValues := make([]float64, 0, n)

	for i := 1; i < n; i++ {
		smoothedPlusDM.Update(plusDM[i])
		smoothedMinusDM.Update(minusDM[i])
		smoothedTR.Update(tr[i])

		if !smoothedTR.Ready() || smoothedTR.Value() == 0 {
			continue
		}
		plusDI := 100 * smoothedPlusDM.Value() / smoothedTR.Value()
		minusDI := 100 * smoothedMinusDM.Value() / smoothedTR.Value()
		sum := plusDI + minusDI
		if sum == 0 {
			dxValues = append(dxValues, 0)
			continue
		}
		dxValues = append(dxValues, 100*abs(plusDI-minusDI)/sum)
	}

	return sma(dxValues, period)
}
