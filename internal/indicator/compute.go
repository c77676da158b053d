package indicator

import "trading-systemv1/internal/model"

// Compute is the pure entry point of the indicator engine: given the closed
// candles for one (symbol, timeframe) and its current forming candle (nil
// if none has opened yet), it returns the full IndicatorValues record. Each
// field is populated only when its indicator has enough history; otherwise
// it is left nil rather than set to zero or NaN.
func Compute(closed []model.TFCandle, forming *model.TFCandle) model.IndicatorValues {
	s := buildSeries(closed, forming)
	var out model.IndicatorValues

	out.EMA5 = emaLatest(s.closes, 5)
	out.EMA9 = emaLatest(s.closes, 9)
	out.EMA12 = emaLatest(s.closes, 12)
	out.EMA21 = emaLatest(s.closes, 21)
	out.EMA50 = emaLatest(s.closes, 50)

	out.SMA20 = smaPtr(s.closes, 20)
	out.SMA50 = smaPtr(s.closes, 50)
	out.SMA200 = smaPtr(s.closes, 200)

	out.MACD = macd(s.closes, 12, 26, 9)

	out.RSI14 = floatPtr(rsiWilder(s.closes, 14))

	out.Stochastic = stochastic(s.closes, s.highs, s.lows, 14, 3)

	out.ATR14 = floatPtr(atrWilder(s.closes, s.highs, s.lows, 14))
	out.ADX = floatPtr(adx(s.closes, s.highs, s.lows, 14))
	out.CCI = floatPtr(cci(s.closes, s.highs, s.lows, 20))
	out.WilliamsR = floatPtr(williamsR(s.closes, s.highs, s.lows, 14))

	out.Bollinger = bollinger(s.closes, 20, 2.0)
	out.Keltner = keltner(s.closes, s.highs, s.lows, 20, 2.0)
	out.Donchian = donchian(s.highs, s.lows, 20)
	out.ATRBands = atrBands(s.closes, s.highs, s.lows, 14, 2.0)

	out.HullMA = floatPtr(hullMA(s.closes, 9))
	out.SuperTrend = superTrend(s.closes, s.highs, s.lows, 10, 3.0)

	out.ROC = floatPtr(roc(s.closes, 12))
	out.Momentum = floatPtr(momentum(s.closes, 10))
	out.VWAP = floatPtr(vwap(s.closes, s.highs, s.lows, s.ticks))
	out.OBV = floatPtr(obv(s.closes, s.ticks))
	out.Chaikin = floatPtr(chaikinOscillator(s.closes, s.highs, s.lows, s.ticks))
	out.Fisher = floatPtr(fisherTransform(s.highs, s.lows, 10))

	out.PSAR = floatPtr(parabolicSAR(s.highs, s.lows, 0.02, 0.2))
	out.UltimateOscillator = floatPtr(ultimateOscillator(s.closes, s.highs, s.lows, 7, 14, 28))
	out.MeanReversionZ = floatPtr(meanReversionZ(s.closes, 20))
	out.LinRegSlope = floatPtr(linRegSlope(s.closes, 14))
	out.RangePercentile = floatPtr(rangePercentile(s.closes, s.highs, s.lows, 20))
	out.EMARibbon = floatPtr(emaRibbon(s.closes, []int{5, 9, 12, 21, 50}))

	return out
}

// emaLatest returns the latest EMA(period) value as a pointer, or nil if
// there isn't enough history.
func emaLatest(closes []float64, period int) *float64 {
	line := emaSeries(closes, period)
	if len(line) == 0 {
		return nil
	}
	v := line[len(line)-1]
	return &v
}

func smaPtr(closes []float64, period int) *float64 {
	return floatPtr(sma(closes, period))
}

// floatPtr converts a (value, ready) pair, the shape every slice-based
// indicator function in this package returns, into the omit-if-absent
// pointer convention IndicatorValues uses.
func floatPtr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
