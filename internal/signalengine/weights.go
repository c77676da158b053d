package signalengine

// DefaultWeights is the built-in per-producer weight multiplier table,
// applied to a vote's base weight unless a session's SessionOptions
// supplies a CustomWeights override for that name. Every name a vote
// producer can emit has an entry here.
//
// The glossary names most of these multipliers directly; the remainder
// (stochastic_extreme, bollinger_squeeze, adx_trend, cci_signal,
// williams_r_signal, hull_ma_signal, mean_reversion, rsi_50_cross) are not
// spelled out there and were chosen to fit the documented 0.7-1.5 range,
// weighted down for the weaker/contextual signals (adx_trend,
// bollinger_squeeze) and up for the sharper reversal signals.
var DefaultWeights = map[string]float64{
	"ema_cross_5_21":  1.2,
	"ema_cross_9_21":  1.1,
	"ema_cross_12_50": 1.3,

	"sma_trend_20":  0.8,
	"sma_trend_50":  0.9,
	"sma_trend_200": 1.0,

	"macd_signal":    1.4,
	"macd_histogram": 1.2,

	"rsi_oversold":   1.3,
	"rsi_overbought": 1.3,
	"rsi_50_cross":   0.8,

	"stochastic_cross":   1.1,
	"stochastic_extreme": 1.2,

	"bollinger_squeeze":  0.7,
	"bollinger_breakout": 1.4,

	"supertrend_signal": 1.5,
	"psar_signal":       1.2,
	"adx_trend":         0.7,
	"cci_signal":        1.0,
	"williams_r_signal": 1.0,
	"hull_ma_signal":    1.0,
	"mean_reversion":    1.2,

	"engulfing_pattern": 1.5,
	"hammer_pattern":    1.3,
	"shooting_star":     1.3,
	"doji_pattern":      0.8,
	"order_block":       1.4,
	"fvg_signal":        1.2,
	"wick_rejection":    1.1,
}

// defaultEnabled lists every vote-producer name. A session with no
// EnabledIndicators whitelist gets this full set.
func defaultEnabled() map[string]bool {
	enabled := make(map[string]bool, len(DefaultWeights))
	for name := range DefaultWeights {
		enabled[name] = true
	}
	return enabled
}
