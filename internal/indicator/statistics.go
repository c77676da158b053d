package indicator

import "math"

// meanReversionZ computes the Z-score of the latest close against the mean
// and standard deviation of the trailing `period` closes: how many standard
// deviations price currently sits from its recent average.
func meanReversionZ(closes []float64, period int) (float64, bool) {
	mean, ok := sma(closes, period)
	if !ok {
		return 0, false
	}
	tail := closes[len(closes)-period:]
	variance := 0.0
	for _, v := range tail {
		d := v - mean
		variance += d * d
	}
	variance /= float64(period)
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0, true
	}
	latest := closes[len(closes)-1]
	return (latest - mean) / stddev, true
}

// linRegSlope computes the slope of the least-squares regression line fit
// to the trailing `period` closes — positive for an uptrend, negative for a
// downtrend, scaled per bar.
func linRegSlope(closes []float64, period int) (float64, bool) {
	if len(closes) < period {
		return 0, false
	}
	tail := closes[len(closes)-period:]

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range tail {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	n := float64(period)
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, true
	}
	slope := (n*sumXY - sumX*sumY) / denom
	return slope, true
}

// rangePercentile computes where the latest close sits within the
// high/low range of the trailing `period` candles, as a [0,1] percentile.
func rangePercentile(closes, highs, lows []float64, period int) (float64, bool) {
	if len(closes) < period {
		return 0, false
	}
	hi, lo := highLowOver(highs[len(highs)-period:], lows[len(lows)-period:])
	if hi == lo {
		return 0.5, true
	}
	latest := closes[len(closes)-1]
	return (latest - lo) / (hi - lo), true
}

// emaRibbon computes a single scalar summarising a ribbon of EMAs (5, 9,
// 12, 21, 50): the fraction of consecutive pairs in fully bullish order
// (faster > slower) minus the fraction in fully bearish order, giving a
// value in [-1, 1] — 1 means every EMA is stacked bullishly, -1 bearishly.
func emaRibbon(closes []float64, periods []int) (float64, bool) {
	values := make([]float64, 0, len(periods))
	for _, p := range periods {
		line := emaSeries(closes, p)
		if len(line) == 0 {
			return 0, false
		}
		values = append(values, line[len(line)-1])
	}

	bullish, bearish := 0, 0
	pairs := len(values) - 1
	if pairs <= 0 {
		return 0, false
	}
	for i := 0; i < pairs; i++ {
		if values[i] > values[i+1] {
			bullish++
		} else if values[i] < values[i+1] {
			bearish++
		}
	}
	return float64(bullish-bearish) / float64(pairs), true
}
