// Package prediction is the pure prediction engine: it routes a candle
// sequence through the indicator and psychology engines and layers a
// volatility read on top, all recomputed from scratch on every call.
package prediction

import (
	"fmt"

	"trading-systemv1/internal/indicator"
	"trading-systemv1/internal/psychology"

	"trading-systemv1/internal/model"
)

// VolatilityConfig carries the thresholds that gate volatility overrides.
// Zero-value fields fall back to the package defaults.
type VolatilityConfig struct {
	ATRThreshold            float64 // default 0.005
	TickVolatilityThreshold float64 // default 0.003
}

// DefaultVolatilityConfig matches VOLATILITY_CONFIG.
var DefaultVolatilityConfig = VolatilityConfig{
	ATRThreshold:            0.005,
	TickVolatilityThreshold: 0.003,
}

func (c VolatilityConfig) WithDefaults() VolatilityConfig {
	if c.ATRThreshold <= 0 {
		c.ATRThreshold = DefaultVolatilityConfig.ATRThreshold
	}
	if c.TickVolatilityThreshold <= 0 {
		c.TickVolatilityThreshold = DefaultVolatilityConfig.TickVolatilityThreshold
	}
	return c
}

// Predict combines closed candles and the current forming candle (nil if
// none has opened yet) into a PredictionResult. recentTicks is the forming
// candle's most recent tick-price window (oldest first), used for the
// tick-scale volatility rule; pass nil when unavailable.
func Predict(closed []model.TFCandle, forming *model.TFCandle, recentTicks []float64, cfg VolatilityConfig) model.PredictionResult {
	cfg = cfg.WithDefaults()

	estimatedClose := estimateClose(closed, forming)
	ind := indicator.Compute(closed, forming)
	psych := psychology.Analyze(closed, forming)
	vol := assessVolatility(ind, estimatedClose, recentTicks, cfg)

	return model.PredictionResult{
		EstimatedClose: estimatedClose,
		Indicators:     ind,
		Psychology:     psych,
		Volatility:     vol,
	}
}

// estimateClose is the forming candle's current close, or the last closed
// candle's close if no forming candle exists yet. Zero if there is no
// candle data at all.
func estimateClose(closed []model.TFCandle, forming *model.TFCandle) float64 {
	if forming != nil {
		return forming.Close
	}
	if n := len(closed); n > 0 {
		return closed[n-1].Close
	}
	return 0
}

// assessVolatility applies the two volatility rules in order, returning the
// first one that fires. ATR is checked first; a nil ATR14 (insufficient
// history) simply skips that rule rather than treating it as volatile.
func assessVolatility(ind model.IndicatorValues, estimatedClose float64, recentTicks []float64, cfg VolatilityConfig) model.VolatilityAssessment {
	if ind.ATR14 != nil && estimatedClose > 0 {
		ratio := *ind.ATR14 / estimatedClose
		if ratio > cfg.ATRThreshold {
			return model.VolatilityAssessment{
				IsVolatile: true,
				Reason:     fmt.Sprintf("atr14/close=%.5f exceeds threshold %.5f", ratio, cfg.ATRThreshold),
			}
		}
	}

	if ratio, ok := tickScaleVolatility(recentTicks); ok && ratio > cfg.TickVolatilityThreshold {
		return model.VolatilityAssessment{
			IsVolatile: true,
			Reason:     fmt.Sprintf("tick volatility=%.5f exceeds threshold %.5f", ratio, cfg.TickVolatilityThreshold),
		}
	}

	return model.VolatilityAssessment{IsVolatile: false}
}

// tickScaleVolatility computes (max-min)/midPrice over the given tick-price
// window. Returns ok=false if there are fewer than 2 ticks or the midprice
// is non-positive.
func tickScaleVolatility(ticks []float64) (float64, bool) {
	if len(ticks) < 2 {
		return 0, false
	}
	hi, lo := ticks[0], ticks[0]
	for _, v := range ticks[1:] {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	mid := (hi + lo) / 2
	if mid <= 0 {
		return 0, false
	}
	return (hi - lo) / mid, true
}
