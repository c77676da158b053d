package indicator

import "trading-systemv1/internal/model"

// series is the working view Compute builds once per call: closed candles
// optionally followed by the forming candle's current OHLC, split into
// parallel slices for the indicators that need them.
type series struct {
	closes []float64
	highs  []float64
	lows   []float64
	opens  []float64
	ticks  []int
}

// buildSeries merges closed candles with the forming candle (if any) into
// one working series, oldest first.
func buildSeries(closed []model.TFCandle, forming *model.TFCandle) series {
	n := len(closed)
	if forming != nil {
		n++
	}
	s := series{
		closes: make([]float64, 0, n),
		highs:  make([]float64, 0, n),
		lows:   make([]float64, 0, n),
		opens:  make([]float64, 0, n),
		ticks:  make([]int, 0, n),
	}
	for _, c := range closed {
		s.closes = append(s.closes, c.Close)
		s.highs = append(s.highs, c.High)
		s.lows = append(s.lows, c.Low)
		s.opens = append(s.opens, c.Open)
		s.ticks = append(s.ticks, c.TickCount)
	}
	if forming != nil {
		s.closes = append(s.closes, forming.Close)
		s.highs = append(s.highs, forming.High)
		s.lows = append(s.lows, forming.Low)
		s.opens = append(s.opens, forming.Open)
		s.ticks = append(s.ticks, forming.TickCount)
	}
	return s
}

func (s series) len() int { return len(s.closes) }
