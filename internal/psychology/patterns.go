package psychology

import "trading-systemv1/internal/model"

// detectPatterns runs every pattern detector against the tail of series and
// returns whichever patterns triggered on the latest candle(s).
func detectPatterns(series []model.TFCandle) []model.CandlestickPattern {
	var out []model.CandlestickPattern

	if p, ok := engulfing(series); ok {
		out = append(out, p)
	}
	if p, ok := hammer(series); ok {
		out = append(out, p)
	}
	if p, ok := shootingStar(series); ok {
		out = append(out, p)
	}
	if p, ok := doji(series); ok {
		out = append(out, p)
	}

	return out
}

// engulfing fires when the latest candle's body fully contains the
// previous candle's body and the two bodies are opposite colours.
func engulfing(series []model.TFCandle) (model.CandlestickPattern, bool) {
	if len(series) < 2 {
		return model.CandlestickPattern{}, false
	}
	prev, cur := series[len(series)-2], series[len(series)-1]

	prevBullish := prev.Close > prev.Open
	curBullish := cur.Close > cur.Open
	if prevBullish == curBullish {
		return model.CandlestickPattern{}, false
	}

	prevHi, prevLo := maxF(prev.Open, prev.Close), minF(prev.Open, prev.Close)
	curHi, curLo := maxF(cur.Open, cur.Close), minF(cur.Open, cur.Close)
	if !(curHi >= prevHi && curLo <= prevLo) {
		return model.CandlestickPattern{}, false
	}

	prevBody := prevHi - prevLo
	curBody := curHi - curLo
	strength := 1.0
	if curBody > 0 && prevBody > 0 {
		strength = clamp(curBody/(prevBody*2), 0.3, 1.0)
	}

	if curBullish {
		return model.CandlestickPattern{
			Name: "bullish_engulfing", Type: model.PatternBullish, Strength: strength,
			Description: "current body fully engulfs the prior bearish body",
		}, true
	}
	return model.CandlestickPattern{
		Name: "bearish_engulfing", Type: model.PatternBearish, Strength: strength,
		Description: "current body fully engulfs the prior bullish body",
	}, true
}

// hammer fires on a small body near the top of the range with a lower wick
// at least twice the body and a short upper wick.
func hammer(series []model.TFCandle) (model.CandlestickPattern, bool) {
	c := series[len(series)-1]
	bodyRatio, upperWickRatio, lowerWickRatio := wickRatios(c)
	if bodyRatio == 0 && upperWickRatio == 0 && lowerWickRatio == 0 {
		return model.CandlestickPattern{}, false
	}
	body := absF(c.Close - c.Open)
	lowerWick := minF(c.Open, c.Close) - c.Low
	if bodyRatio > 0.35 || upperWickRatio > 0.15 || lowerWick < 2*body {
		return model.CandlestickPattern{}, false
	}
	strength := clamp(lowerWickRatio, 0.3, 1.0)
	return model.CandlestickPattern{
		Name: "hammer", Type: model.PatternBullish, Strength: strength,
		Description: "small body near the top with a long lower wick",
	}, true
}

// shootingStar is the mirror of hammer: small body near the bottom, long
// upper wick, short lower wick.
func shootingStar(series []model.TFCandle) (model.CandlestickPattern, bool) {
	c := series[len(series)-1]
	bodyRatio, upperWickRatio, lowerWickRatio := wickRatios(c)
	if bodyRatio == 0 && upperWickRatio == 0 && lowerWickRatio == 0 {
		return model.CandlestickPattern{}, false
	}
	body := absF(c.Close - c.Open)
	upperWick := c.High - maxF(c.Open, c.Close)
	if bodyRatio > 0.35 || lowerWickRatio > 0.15 || upperWick < 2*body {
		return model.CandlestickPattern{}, false
	}
	strength := clamp(upperWickRatio, 0.3, 1.0)
	return model.CandlestickPattern{
		Name: "shooting_star", Type: model.PatternBearish, Strength: strength,
		Description: "small body near the bottom with a long upper wick",
	}, true
}

// doji fires when the body is under 10% of the candle's range.
func doji(series []model.TFCandle) (model.CandlestickPattern, bool) {
	c := series[len(series)-1]
	bodyRatio, _, _ := wickRatios(c)
	if c.High == c.Low || bodyRatio >= 0.1 {
		return model.CandlestickPattern{}, false
	}
	strength := clamp(1.0-bodyRatio*10, 0.2, 1.0)
	return model.CandlestickPattern{
		Name: "doji", Type: model.PatternNeutral, Strength: strength,
		Description: "body under 10% of the candle's range",
	}, true
}

// fvgDetected reports whether the latest three candles leave a gap between
// candle i's high and candle i+2's low (bullish FVG), or the symmetric
// bearish case (candle i's low above candle i+2's high).
func fvgDetected(series []model.TFCandle) bool {
	if len(series) < 3 {
		return false
	}
	a, _, c := series[len(series)-3], series[len(series)-2], series[len(series)-1]
	if c.Low > a.High {
		return true
	}
	if c.High < a.Low {
		return true
	}
	return false
}

// orderBlockProbability is a heuristic in [0,1] combining the size of the
// most recent impulse move, wick asymmetry on the candle that started it,
// and how much of that impulse has since been retraced. A clean, large,
// unretraced impulse off a candle with a pronounced opposing wick scores
// highest — the textbook signature of institutional order placement.
func orderBlockProbability(series []model.TFCandle) float64 {
	lookback := 5
	if len(series) < lookback+1 {
		return 0
	}
	window := series[len(series)-lookback-1:]
	origin := window[0]
	impulseEnd := window[len(window)-1]

	impulseSize := absF(impulseEnd.Close - origin.Open)
	originRange := origin.High - origin.Low
	if originRange <= 0 || impulseSize <= 0 {
		return 0
	}

	_, originUpperWick, originLowerWick := wickRatios(origin)
	wickAsymmetry := absF(originUpperWick - originLowerWick)

	// Retracement depth: how far price has pulled back from the impulse
	// extreme, relative to the impulse itself.
	impulseBullish := impulseEnd.Close > origin.Open
	var extreme float64
	if impulseBullish {
		extreme = highestHigh(window[1:])
	} else {
		extreme = lowestLow(window[1:])
	}
	retracement := 0.0
	if impulseBullish {
		retracement = (extreme - impulseEnd.Close) / impulseSize
	} else {
		retracement = (impulseEnd.Close - extreme) / impulseSize
	}
	retracement = clamp(retracement, 0, 1)

	impulseScore := clamp(impulseSize/(originRange*3), 0, 1)
	score := 0.5*impulseScore + 0.3*wickAsymmetry + 0.2*(1-retracement)
	return clamp(score, 0, 1)
}

func highestHigh(cs []model.TFCandle) float64 {
	hi := cs[0].High
	for _, c := range cs[1:] {
		if c.High > hi {
			hi = c.High
		}
	}
	return hi
}

func lowestLow(cs []model.TFCandle) float64 {
	lo := cs[0].Low
	for _, c := range cs[1:] {
		if c.Low < lo {
			lo = c.Low
		}
	}
	return lo
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
