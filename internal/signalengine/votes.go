package signalengine

import (
	"fmt"

	"trading-systemv1/internal/model"
)

// collectVotes runs the full fixed catalogue of vote producers against one
// indicator/psychology read and returns every vote they emit, unfiltered
// and unweighted (base weights only).
func collectVotes(ind model.IndicatorValues, psych model.PsychologyAnalysis, estimatedClose float64) []model.Vote {
	var votes []model.Vote

	votes = append(votes, emaCross("ema_cross_5_21", ind.EMA5, ind.EMA21, estimatedClose)...)
	votes = append(votes, emaCross("ema_cross_9_21", ind.EMA9, ind.EMA21, estimatedClose)...)
	votes = append(votes, emaCross("ema_cross_12_50", ind.EMA12, ind.EMA50, estimatedClose)...)

	votes = append(votes, smaTrend("sma_trend_20", ind.SMA20, estimatedClose)...)
	votes = append(votes, smaTrend("sma_trend_50", ind.SMA50, estimatedClose)...)
	votes = append(votes, smaTrend("sma_trend_200", ind.SMA200, estimatedClose)...)

	votes = append(votes, macdVotes(ind.MACD)...)
	votes = append(votes, rsiVotes(ind.RSI14)...)
	votes = append(votes, stochasticVotes(ind.Stochastic)...)
	votes = append(votes, bollingerVotes(ind.Bollinger, estimatedClose)...)

	votes = append(votes, superTrendVote(ind.SuperTrend)...)
	votes = append(votes, psarVote(ind.PSAR, estimatedClose)...)
	votes = append(votes, adxVote(ind.ADX)...)
	votes = append(votes, cciVote(ind.CCI)...)
	votes = append(votes, williamsRVote(ind.WilliamsR)...)
	votes = append(votes, hullMAVote(ind.HullMA, estimatedClose)...)
	votes = append(votes, meanReversionVote(ind.MeanReversionZ)...)

	votes = append(votes, psychologyVotes(psych)...)

	return votes
}

func emaCross(name string, fast, slow *float64, close float64) []model.Vote {
	if fast == nil || slow == nil {
		return nil
	}
	switch {
	case *fast > *slow && close > *fast:
		return []model.Vote{{IndicatorName: name, Direction: model.VoteUp, Weight: 1.0,
			Reason: fmt.Sprintf("fast %.4f above slow %.4f, price above fast", *fast, *slow)}}
	case *fast < *slow && close < *fast:
		return []model.Vote{{IndicatorName: name, Direction: model.VoteDown, Weight: 1.0,
			Reason: fmt.Sprintf("fast %.4f below slow %.4f, price below fast", *fast, *slow)}}
	default:
		return []model.Vote{{IndicatorName: name, Direction: model.VoteNeutral, Weight: 0.3}}
	}
}

func smaTrend(name string, sma *float64, close float64) []model.Vote {
	if sma == nil || *sma == 0 {
		return nil
	}
	ratio := (close - *sma) / *sma
	switch {
	case ratio > 0.001:
		return []model.Vote{{IndicatorName: name, Direction: model.VoteUp, Weight: 1.0,
			Reason: fmt.Sprintf("price %.4f%% above %s", ratio*100, name)}}
	case ratio < -0.001:
		return []model.Vote{{IndicatorName: name, Direction: model.VoteDown, Weight: 1.0,
			Reason: fmt.Sprintf("price %.4f%% below %s", ratio*100, name)}}
	default:
		return []model.Vote{{IndicatorName: name, Direction: model.VoteNeutral, Weight: 0.5}}
	}
}

func macdVotes(m *model.MACDValue) []model.Vote {
	if m == nil {
		return nil
	}
	var votes []model.Vote

	switch {
	case m.MACD > m.Signal:
		votes = append(votes, model.Vote{IndicatorName: "macd_signal", Direction: model.VoteUp, Weight: 1.0,
			Reason: "MACD above signal line"})
	case m.MACD < m.Signal:
		votes = append(votes, model.Vote{IndicatorName: "macd_signal", Direction: model.VoteDown, Weight: 1.0,
			Reason: "MACD below signal line"})
	default:
		votes = append(votes, model.Vote{IndicatorName: "macd_signal", Direction: model.VoteNeutral, Weight: 0.3})
	}

	switch {
	case m.Histogram > 1e-5:
		votes = append(votes, model.Vote{IndicatorName: "macd_histogram", Direction: model.VoteUp, Weight: 1.0,
			Reason: "positive histogram"})
	case m.Histogram < -1e-5:
		votes = append(votes, model.Vote{IndicatorName: "macd_histogram", Direction: model.VoteDown, Weight: 1.0,
			Reason: "negative histogram"})
	default:
		votes = append(votes, model.Vote{IndicatorName: "macd_histogram", Direction: model.VoteNeutral, Weight: 0.3})
	}

	return votes
}

func rsiVotes(rsi *float64) []model.Vote {
	if rsi == nil {
		return nil
	}
	switch {
	case *rsi < 30:
		return []model.Vote{{IndicatorName: "rsi_oversold", Direction: model.VoteUp, Weight: 1.0,
			Reason: fmt.Sprintf("RSI=%.1f oversold", *rsi)}}
	case *rsi > 70:
		return []model.Vote{{IndicatorName: "rsi_overbought", Direction: model.VoteDown, Weight: 1.0,
			Reason: fmt.Sprintf("RSI=%.1f overbought", *rsi)}}
	case *rsi > 50:
		return []model.Vote{{IndicatorName: "rsi_50_cross", Direction: model.VoteUp, Weight: 0.5,
			Reason: fmt.Sprintf("RSI=%.1f above midline", *rsi)}}
	case *rsi < 50:
		return []model.Vote{{IndicatorName: "rsi_50_cross", Direction: model.VoteDown, Weight: 0.5,
			Reason: fmt.Sprintf("RSI=%.1f below midline", *rsi)}}
	default:
		return []model.Vote{{IndicatorName: "rsi_50_cross", Direction: model.VoteNeutral, Weight: 0.5}}
	}
}

func stochasticVotes(s *model.StochasticValue) []model.Vote {
	if s == nil {
		return nil
	}
	var votes []model.Vote

	switch {
	case s.K > s.D:
		votes = append(votes, model.Vote{IndicatorName: "stochastic_cross", Direction: model.VoteUp, Weight: 1.0,
			Reason: "%K above %D"})
	case s.K < s.D:
		votes = append(votes, model.Vote{IndicatorName: "stochastic_cross", Direction: model.VoteDown, Weight: 1.0,
			Reason: "%K below %D"})
	default:
		votes = append(votes, model.Vote{IndicatorName: "stochastic_cross", Direction: model.VoteNeutral, Weight: 0.3})
	}

	switch {
	case s.K < 20:
		votes = append(votes, model.Vote{IndicatorName: "stochastic_extreme", Direction: model.VoteUp, Weight: 1.0,
			Reason: fmt.Sprintf("%%K=%.1f oversold", s.K)})
	case s.K > 80:
		votes = append(votes, model.Vote{IndicatorName: "stochastic_extreme", Direction: model.VoteDown, Weight: 1.0,
			Reason: fmt.Sprintf("%%K=%.1f overbought", s.K)})
	}

	return votes
}

func bollingerVotes(b *model.BandValue, close float64) []model.Vote {
	if b == nil || b.Middle == 0 {
		return nil
	}
	var votes []model.Vote

	bandwidth := (b.Upper - b.Lower) / b.Middle
	if bandwidth < 0.02 {
		votes = append(votes, model.Vote{IndicatorName: "bollinger_squeeze", Direction: model.VoteNeutral, Weight: 0.3,
			Reason: fmt.Sprintf("bandwidth %.4f below 2%%", bandwidth)})
	}

	switch {
	case close > b.Upper:
		votes = append(votes, model.Vote{IndicatorName: "bollinger_breakout", Direction: model.VoteUp, Weight: 1.0,
			Reason: "close above upper band"})
	case close < b.Lower:
		votes = append(votes, model.Vote{IndicatorName: "bollinger_breakout", Direction: model.VoteDown, Weight: 1.0,
			Reason: "close below lower band"})
	}

	return votes
}

func superTrendVote(st *model.SuperTrendValue) []model.Vote {
	if st == nil {
		return nil
	}
	if st.Direction == model.SuperTrendUp {
		return []model.Vote{{IndicatorName: "supertrend_signal", Direction: model.VoteUp, Weight: 1.0,
			Reason: "SuperTrend up"}}
	}
	return []model.Vote{{IndicatorName: "supertrend_signal", Direction: model.VoteDown, Weight: 1.0,
		Reason: "SuperTrend down"}}
}

func psarVote(psar *float64, close float64) []model.Vote {
	if psar == nil {
		return nil
	}
	if close > *psar {
		return []model.Vote{{IndicatorName: "psar_signal", Direction: model.VoteUp, Weight: 1.0,
			Reason: "price above PSAR"}}
	}
	return []model.Vote{{IndicatorName: "psar_signal", Direction: model.VoteDown, Weight: 1.0,
		Reason: "price below PSAR"}}
}

// adxVote only fires as a weak-trend marker (ADX<25); a strong trend is
// assumed already captured by the directional producers above it, so no
// vote is emitted in that case.
func adxVote(adx *float64) []model.Vote {
	if adx == nil || *adx >= 25 {
		return nil
	}
	return []model.Vote{{IndicatorName: "adx_trend", Direction: model.VoteNeutral, Weight: 0.3,
		Reason: fmt.Sprintf("ADX=%.1f indicates a weak trend", *adx)}}
}

func cciVote(cci *float64) []model.Vote {
	if cci == nil {
		return nil
	}
	switch {
	case *cci > 100:
		return []model.Vote{{IndicatorName: "cci_signal", Direction: model.VoteDown, Weight: 1.0,
			Reason: fmt.Sprintf("CCI=%.1f overbought", *cci)}}
	case *cci < -100:
		return []model.Vote{{IndicatorName: "cci_signal", Direction: model.VoteUp, Weight: 1.0,
			Reason: fmt.Sprintf("CCI=%.1f oversold", *cci)}}
	}
	return nil
}

func williamsRVote(wr *float64) []model.Vote {
	if wr == nil {
		return nil
	}
	switch {
	case *wr < -80:
		return []model.Vote{{IndicatorName: "williams_r_signal", Direction: model.VoteUp, Weight: 1.0,
			Reason: fmt.Sprintf("%%R=%.1f oversold", *wr)}}
	case *wr > -20:
		return []model.Vote{{IndicatorName: "williams_r_signal", Direction: model.VoteDown, Weight: 1.0,
			Reason: fmt.Sprintf("%%R=%.1f overbought", *wr)}}
	}
	return nil
}

func hullMAVote(hull *float64, close float64) []model.Vote {
	if hull == nil {
		return nil
	}
	if close > *hull {
		return []model.Vote{{IndicatorName: "hull_ma_signal", Direction: model.VoteUp, Weight: 1.0,
			Reason: "price above Hull MA"}}
	}
	return []model.Vote{{IndicatorName: "hull_ma_signal", Direction: model.VoteDown, Weight: 1.0,
		Reason: "price below Hull MA"}}
}

func meanReversionVote(z *float64) []model.Vote {
	if z == nil {
		return nil
	}
	switch {
	case *z > 2:
		return []model.Vote{{IndicatorName: "mean_reversion", Direction: model.VoteDown, Weight: 1.0,
			Reason: fmt.Sprintf("Z=%.2f overextended up", *z)}}
	case *z < -2:
		return []model.Vote{{IndicatorName: "mean_reversion", Direction: model.VoteUp, Weight: 1.0,
			Reason: fmt.Sprintf("Z=%.2f overextended down", *z)}}
	}
	return nil
}

// psychologyVotes derives votes from the candlestick patterns, order-block
// heuristic, fair-value-gap flag, and raw wick ratios.
func psychologyVotes(psych model.PsychologyAnalysis) []model.Vote {
	var votes []model.Vote

	for _, p := range psych.Patterns {
		name, ok := patternVoteName(p.Name)
		if !ok {
			continue
		}
		votes = append(votes, model.Vote{
			IndicatorName: name,
			Direction:     patternDirection(p.Type),
			Weight:        p.Strength,
			Reason:        p.Description,
		})
	}

	if psych.OrderBlockProbability > 0.6 {
		votes = append(votes, model.Vote{
			IndicatorName: "order_block",
			Direction:     biasDirection(psych.Bias),
			Weight:        psych.OrderBlockProbability,
			Reason:        fmt.Sprintf("order block probability %.2f", psych.OrderBlockProbability),
		})
	}

	if psych.FVGDetected {
		votes = append(votes, model.Vote{
			IndicatorName: "fvg_signal",
			Direction:     biasDirection(psych.Bias),
			Weight:        1.0,
			Reason:        "fair value gap detected",
		})
	}

	switch {
	case psych.UpperWickRatio > 0.6:
		votes = append(votes, model.Vote{IndicatorName: "wick_rejection", Direction: model.VoteDown,
			Weight: psych.UpperWickRatio, Reason: "long upper wick rejects higher prices"})
	case psych.LowerWickRatio > 0.6:
		votes = append(votes, model.Vote{IndicatorName: "wick_rejection", Direction: model.VoteUp,
			Weight: psych.LowerWickRatio, Reason: "long lower wick rejects lower prices"})
	}

	return votes
}

func patternVoteName(patternName string) (string, bool) {
	switch patternName {
	case "bullish_engulfing", "bearish_engulfing":
		return "engulfing_pattern", true
	case "hammer":
		return "hammer_pattern", true
	case "shooting_star":
		return "shooting_star", true
	case "doji":
		return "doji_pattern", true
	default:
		return "", false
	}
}

func patternDirection(t model.PatternType) model.VoteDirection {
	switch t {
	case model.PatternBullish:
		return model.VoteUp
	case model.PatternBearish:
		return model.VoteDown
	default:
		return model.VoteNeutral
	}
}

func biasDirection(b model.Bias) model.VoteDirection {
	switch b {
	case model.BiasBullish:
		return model.VoteUp
	case model.BiasBearish:
		return model.VoteDown
	default:
		return model.VoteNeutral
	}
}
