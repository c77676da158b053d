package indicator

import (
	"math"

	"trading-systemv1/internal/model"
)

// bollinger computes Bollinger Bands(period, numStdDev): an SMA middle
// band with upper/lower bands numStdDev standard deviations away.
func bollinger(closes []float64, period int, numStdDev float64) *model.BandValue {
	mid, ok := sma(closes, period)
	if !ok {
		return nil
	}
	tail := closes[len(closes)-period:]
	variance := 0.0
	for _, v := range tail {
		d := v - mid
		variance += d * d
	}
	variance /= float64(period)
	stddev := math.Sqrt(variance)
	return &model.BandValue{
		Upper:  mid + numStdDev*stddev,
		Middle: mid,
		Lower:  mid - numStdDev*stddev,
	}
}

// keltner computes Keltner Channels(period, atrMultiple): an EMA middle
// line with bands atrMultiple*ATR(period) away.
func keltner(closes, highs, lows []float64, period int, atrMultiple float64) *model.BandValue {
	emaLine := emaSeries(closes, period)
	if len(emaLine) == 0 {
		return nil
	}
	atrVal, ok := atrWilder(closes, highs, lows, period)
	if !ok {
		return nil
	}
	mid := emaLine[len(emaLine)-1]
	return &model.BandValue{
		Upper:  mid + atrMultiple*atrVal,
		Middle: mid,
		Lower:  mid - atrMultiple*atrVal,
	}
}

// donchian computes Donchian Channels(period): the highest high / lowest
// low over the trailing period, with the midline as their average.
func donchian(highs, lows []float64, period int) *model.BandValue {
	if len(highs) < period {
		return nil
	}
	hi, lo := highLowOver(highs[len(highs)-period:], lows[len(lows)-period:])
	return &model.BandValue{
		Upper:  hi,
		Middle: (hi + lo) / 2.0,
		Lower:  lo,
	}
}

// atrBands computes a close-centred ATR band: close +/- atrMultiple*ATR.
// Distinct from Keltner, which centres on an EMA rather than the latest
// close.
func atrBands(closes, highs, lows []float64, period int, atrMultiple float64) *model.BandValue {
	atrVal, ok := atrWilder(closes, highs, lows, period)
	if !ok {
		return nil
	}
	latest := closes[len(closes)-1]
	return &model.BandValue{
		Upper:  latest + atrMultiple*atrVal,
		Middle: latest,
		Lower:  latest - atrMultiple*atrVal,
	}
}
