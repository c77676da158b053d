package indicator

// EMA calculates the Exponential Moving Average. O(1) per update — no
// window storage needed.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(close float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += close
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA formula: EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (close * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Peek computes what Value() would be with an additional close, without
// mutating state.
func (e *EMA) Peek(close float64) float64 {
	if e.count < e.period {
		return close
	}
	return (close * e.multiplier) + (e.current * (1 - e.multiplier))
}

// emaSeries returns the full EMA(period) series aligned with values, with
// the first (period-1) entries omitted (insufficient history). Used by
// indicators that need a running EMA line rather than just its latest value
// (MACD, the EMA ribbon).
func emaSeries(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	e := NewEMA(period)
	for _, v := range values {
		e.Update(v)
		if e.Ready() {
			out = append(out, e.Value())
		}
	}
	return out
}
