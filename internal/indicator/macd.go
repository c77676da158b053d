package indicator

import "trading-systemv1/internal/model"

// macd computes MACD(fast, slow, signal): the fast/slow EMA spread and its
// own EMA(signal) smoothing. Returns nil if there isn't enough history for
// the slow EMA plus the signal line.
func macd(closes []float64, fast, slow, signalPeriod int) *model.MACDValue {
	fastLine := emaSeries(closes, fast)
	slowLine := emaSeries(closes, slow)
	if len(fastLine) == 0 || len(slowLine) == 0 {
		return nil
	}

	// Align: fastLine is longer than slowLine by (slow-fast) entries.
	offset := len(fastLine) - len(slowLine)
	if offset < 0 {
		return nil
	}
	macdLine := make([]float64, len(slowLine))
	for i := range slowLine {
		macdLine[i] = fastLine[i+offset] - slowLine[i]
	}

	if len(macdLine) < signalPeriod {
		return nil
	}
	signalLine := emaSeries(macdLine, signalPeriod)
	if len(signalLine) == 0 {
		return nil
	}

	macdVal := macdLine[len(macdLine)-1]
	signalVal := signalLine[len(signalLine)-1]
	return &model.MACDValue{
		MACD:      macdVal,
		Signal:    signalVal,
		Histogram: macdVal - signalVal,
	}
}
