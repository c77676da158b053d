package indicator

import "trading-systemv1/internal/model"

// stochastic computes the %K(kPeriod)/%D(dPeriod) pair: %K is the close's
// position within the kPeriod high/low range, %D is a simple moving average
// of the trailing %K values.
func stochastic(closes, highs, lows []float64, kPeriod, dPeriod int) *model.StochasticValue {
	if len(closes) < kPeriod+dPeriod-1 {
		return nil
	}

	kValues := make([]float64, 0, dPeriod)
	for i := len(closes) - dPeriod; i < len(closes); i++ {
		if i < kPeriod-1 {
			return nil
		}
		hi, lo := highLowOver(highs[i-kPeriod+1:i+1], lows[i-kPeriod+1:i+1])
		k := 50.0
		if hi != lo {
			k = (closes[i] - lo) / (hi - lo) * 100.0
		}
		kValues = append(kValues, k)
	}

	dSum := 0.0
	for _, k := range kValues {
		dSum += k
	}
	return &model.StochasticValue{
		K: kValues[len(kValues)-1],
		D: dSum / float64(len(kValues)),
	}
}

func highLowOver(highs, lows []float64) (hi, lo float64) {
	hi, lo = highs[0], lows[0]
	for i := 1; i < len(highs); i++ {
		if highs[i] > hi {
			hi = highs[i]
		}
		if lows[i] < lo {
			lo = lows[i]
		}
	}
	return hi, lo
}
