// Package psychology is the pure candlestick-pattern / market-psychology
// engine: given a candle sequence, it reads body/wick proportions, flags
// candlestick formations, and derives a directional bias — all without any
// retained state between calls.
package psychology

import "trading-systemv1/internal/model"

// Analyze computes the PsychologyAnalysis for the given closed-candle
// history plus its current forming candle (nil if none has opened yet).
// Single-candle metrics (body/wick ratios, doji, bias) read the latest
// candle in the series (forming if present, else the last closed candle).
// Multi-bar patterns look back up to 5 candles.
func Analyze(closed []model.TFCandle, forming *model.TFCandle) model.PsychologyAnalysis {
	series := mergeSeries(closed, forming)
	var out model.PsychologyAnalysis
	if len(series) == 0 {
		out.Bias = model.BiasNeutral
		return out
	}

	latest := series[len(series)-1]
	out.BodyRatio, out.UpperWickRatio, out.LowerWickRatio = wickRatios(latest)
	out.IsDoji = out.BodyRatio < 0.1
	out.Bias = bias(latest)
	out.Patterns = detectPatterns(series)
	out.OrderBlockProbability = orderBlockProbability(series)
	out.FVGDetected = fvgDetected(series)

	return out
}

func mergeSeries(closed []model.TFCandle, forming *model.TFCandle) []model.TFCandle {
	if forming == nil {
		return closed
	}
	out := make([]model.TFCandle, 0, len(closed)+1)
	out = append(out, closed...)
	out = append(out, *forming)
	return out
}

// wickRatios returns bodyRatio, upperWickRatio, lowerWickRatio for one
// candle. All three are 0 when the candle has zero range.
func wickRatios(c model.TFCandle) (bodyRatio, upperWickRatio, lowerWickRatio float64) {
	r := c.High - c.Low
	if r <= 0 {
		return 0, 0, 0
	}
	body := absF(c.Close - c.Open)
	upperWick := c.High - maxF(c.Open, c.Close)
	lowerWick := minF(c.Open, c.Close) - c.Low
	return body / r, upperWick / r, lowerWick / r
}

// bias reads the last candle's position within its own range plus body
// direction: bullish if it closes in the upper third with a bullish body,
// bearish symmetric, else neutral.
func bias(c model.TFCandle) model.Bias {
	r := c.High - c.Low
	if r <= 0 {
		return model.BiasNeutral
	}
	positionInRange := (c.Close - c.Low) / r
	bullishBody := c.Close > c.Open

	switch {
	case positionInRange >= 2.0/3.0 && bullishBody:
		return model.BiasBullish
	case positionInRange <= 1.0/3.0 && !bullishBody:
		return model.BiasBearish
	default:
		return model.BiasNeutral
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
