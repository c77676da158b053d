package indicator

import "trading-systemv1/internal/model"

// superTrend computes SuperTrend(period, multiple): an ATR-banded
// trend-following line that flips direction when price crosses it. Returns
// nil if there isn't enough history for ATR(period) to settle.
func superTrend(closes, highs, lows []float64, period int, multiple float64) *model.SuperTrendValue {
	n := len(closes)
	if n < period+1 {
		return nil
	}

	tr := trueRanges(closes, highs, lows)
	atrSeries := make([]float64, n)
	s := NewSMMA(period)
	for i, v := range tr {
		if i == 0 {
			continue
		}
		s.Update(v)
		atrSeries[i] = s.Value()
	}

	start := period + 1
	if start >= n {
		return nil
	}

	upperBand := (highs[start-1]+lows[start-1])/2.0 + multiple*atrSeries[start-1]
	lowerBand := (highs[start-1]+lows[start-1])/2.0 - multiple*atrSeries[start-1]
	direction := model.SuperTrendUp
	trendValue := lowerBand

	for i := start; i < n; i++ {
		basicUpper := (highs[i]+lows[i])/2.0 + multiple*atrSeries[i]
		basicLower := (highs[i]+lows[i])/2.0 - multiple*atrSeries[i]

		if basicUpper < upperBand || closes[i-1] > upperBand {
			upperBand = basicUpper
		}
		if basicLower > lowerBand || closes[i-1] < lowerBand {
			lowerBand = basicLower
		}

		switch direction {
		case model.SuperTrendUp:
			if closes[i] < lowerBand {
				direction = model.SuperTrendDown
				trendValue = upperBand
			} else {
				trendValue = lowerBand
			}
		default:
			if closes[i] > upperBand {
				direction = model.SuperTrendUp
				trendValue = lowerBand
			} else {
				trendValue = upperBand
			}
		}
	}

	return &model.SuperTrendValue{Value: trendValue, Direction: direction}
}
