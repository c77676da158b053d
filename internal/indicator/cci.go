package indicator

// cci computes the Commodity Channel Index(period): the typical price's
// deviation from its moving average, scaled by mean absolute deviation.
func cci(closes, highs, lows []float64, period int) (float64, bool) {
	if len(closes) < period {
		return 0, false
	}

	typicalPrices := make([]float64, len(closes))
	for i := range closes {
		typicalPrices[i] = (highs[i] + lows[i] + closes[i]) / 3.0
	}

	tail := typicalPrices[len(typicalPrices)-period:]
	meanTP := 0.0
	for _, v := range tail {
		meanTP += v
	}
	meanTP /= float64(period)

	meanDeviation := 0.0
	for _, v := range tail {
		meanDeviation += abs(v - meanTP)
	}
	meanDeviation /= float64(period)

	if meanDeviation == 0 {
		return 0, true
	}
	latest := typicalPrices[len(typicalPrices)-1]
	return (latest - meanTP) / (0.015 * meanDeviation), true
}

// williamsR computes Williams %R(period): the close's position within the
// period high/low range, expressed as a 0 to -100 reading.
func williamsR(closes, highs, lows []float64, period int) (float64, bool) {
	if len(closes) < period {
		return 0, false
	}
	hi, lo := highLowOver(highs[len(highs)-period:], lows[len(lows)-period:])
	if hi == lo {
		return -50, true
	}
	latest := closes[len(closes)-1]
	return (hi - latest) / (hi - lo) * -100.0, true
}
