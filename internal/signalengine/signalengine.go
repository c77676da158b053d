// Package signalengine is the pure signal engine: given a candle window
// and the per-session options, it runs the prediction engine, collects
// votes from a fixed producer catalogue, and scores them into a CALL/PUT/
// NO_TRADE decision. GenerateSignal never panics or returns an error —
// degenerate inputs resolve to a well-formed NO_TRADE.
package signalengine

import (
	"math"
	"time"

	"trading-systemv1/internal/model"
	"trading-systemv1/internal/prediction"
)

// Config carries the tunables that gate and score signal generation.
// Zero-value fields fall back to the package defaults.
type Config struct {
	MinConfidence       float64 // default 60
	MinCandlesForSignal int     // default 50
	Volatility          prediction.VolatilityConfig
}

// DefaultConfig matches SIGNAL_CONFIG / VOLATILITY_CONFIG.
var DefaultConfig = Config{
	MinConfidence:       60,
	MinCandlesForSignal: 50,
	Volatility:          prediction.DefaultVolatilityConfig,
}

func (c Config) withDefaults() Config {
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultConfig.MinConfidence
	}
	if c.MinCandlesForSignal <= 0 {
		c.MinCandlesForSignal = DefaultConfig.MinCandlesForSignal
	}
	c.Volatility = c.Volatility.WithDefaults()
	return c
}

// GenerateSignal produces one SignalResult for a (session, symbol,
// timeframe) at the moment its forming candle is about to close.
// recentTicks is the forming candle's most recent tick-price window,
// forwarded to the prediction engine's tick-scale volatility rule.
func GenerateSignal(
	sessionID, symbol string,
	timeframe int,
	closed []model.TFCandle,
	forming *model.TFCandle,
	recentTicks []float64,
	candleCloseTime time.Time,
	options model.SessionOptions,
	cfg Config,
) model.SignalResult {
	cfg = cfg.withDefaults()

	result := model.SignalResult{
		SessionID:          sessionID,
		Symbol:             symbol,
		Timeframe:          timeframe,
		Timestamp:          time.Now().UTC(),
		CandleCloseTime:    candleCloseTime,
		ClosedCandlesCount: len(closed),
		FormingCandle:      forming,
	}

	if len(closed) < cfg.MinCandlesForSignal {
		result.Direction = model.DirectionNoTrade
		result.PDown = 1
		return result
	}

	vol := cfg.Volatility
	if options.VolatilityThreshold != nil && *options.VolatilityThreshold > 0 {
		vol.ATRThreshold = *options.VolatilityThreshold
	}
	pred := prediction.Predict(closed, forming, recentTicks, vol)
	result.Indicators = pred.Indicators
	result.Psychology = pred.Psychology

	if pred.Volatility.IsVolatile {
		result.Direction = model.DirectionNoTrade
		result.VolatilityOverride = true
		result.VolatilityReason = pred.Volatility.Reason
		result.PDown = 1
		return result
	}

	raw := collectVotes(pred.Indicators, pred.Psychology, pred.EstimatedClose)
	weighted := filterAndWeight(raw, options)
	result.Votes = weighted

	finalUp, finalDown := sumDirections(weighted)
	pUp := finalUp / (finalUp + finalDown + 1e-9)
	pDown := 1 - pUp
	confidence := math.Round(math.Max(pUp, pDown) * 100)

	result.PUp = pUp
	result.PDown = pDown
	result.Confidence = confidence

	switch {
	case confidence < cfg.MinConfidence:
		result.Direction = model.DirectionNoTrade
	case pUp > 0.5:
		result.Direction = model.DirectionCall
	default:
		result.Direction = model.DirectionPut
	}

	return result
}

// filterAndWeight drops votes whose name is outside options.EnabledIndicators
// (when that whitelist is non-empty) and multiplies each surviving vote's
// base weight by options.CustomWeights[name], falling back to DefaultWeights,
// falling back to 1.0 for any name absent from both.
func filterAndWeight(votes []model.Vote, options model.SessionOptions) []model.Vote {
	var enabled map[string]bool
	if len(options.EnabledIndicators) > 0 {
		enabled = make(map[string]bool, len(options.EnabledIndicators))
		for _, name := range options.EnabledIndicators {
			enabled[name] = true
		}
	} else {
		enabled = defaultEnabled()
	}

	out := make([]model.Vote, 0, len(votes))
	for _, v := range votes {
		if !enabled[v.IndicatorName] {
			continue
		}
		v.Weight *= multiplierFor(v.IndicatorName, options)
		out = append(out, v)
	}
	return out
}

func multiplierFor(name string, options model.SessionOptions) float64 {
	if options.CustomWeights != nil {
		if w, ok := options.CustomWeights[name]; ok {
			return w
		}
	}
	if w, ok := DefaultWeights[name]; ok {
		return w
	}
	return 1.0
}

func sumDirections(votes []model.Vote) (up, down float64) {
	for _, v := range votes {
		switch v.Direction {
		case model.VoteUp:
			up += v.Weight
		case model.VoteDown:
			down += v.Weight
		}
	}
	return up, down
}
