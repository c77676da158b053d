// Package agg implements the per-(symbol, timeframe) candle window: the
// single source of truth for closed candles and the one in-progress
// ("forming") candle that the rest of the pipeline reads from.
package agg

import (
	"fmt"
	"sync"
	"time"

	"trading-systemv1/internal/model"
	"trading-systemv1/internal/ringbuf"
)

// DefaultCapacity is the default bounded size of a window's closed-candle
// buffer — oldest candles are evicted once it is exceeded.
const DefaultCapacity = 500

// DefaultTickWindow is how many of the most recent ticks of the forming
// candle are retained for tick-scale volatility measurement.
const DefaultTickWindow = 10

// window holds one (symbol, timeframe) candle sequence: a bounded ring of
// closed candles plus at most one forming candle.
type window struct {
	mu       sync.Mutex
	capacity int
	closed   []model.TFCandle // oldest first
	forming  *model.TFCandle

	// ticks holds the most recent tick prices folded into the current
	// forming candle (bounded by the aggregator's TickWindow), oldest
	// first. Replaced with a fresh ring whenever a new forming candle
	// opens.
	ticks *ringbuf.Ring
}

func newWindow(capacity int) *window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &window{capacity: capacity}
}

// Aggregator owns every (symbol, timeframe) CandleWindow in the process.
// processTick is serialised per window by that window's own mutex, so
// distinct (symbol, timeframe) pairs never contend with each other.
type Aggregator struct {
	mu      sync.RWMutex
	windows map[string]*window // key = symbol + ":" + timeframe

	// TickWindow bounds the per-window recent-tick price buffer. Set before
	// the first tick arrives; zero means DefaultTickWindow.
	TickWindow int

	// OnMalformedTick, if set, is invoked once per tick the aggregator drops
	// for having a non-positive price or zero/negative timeframe.
	OnMalformedTick func(symbol string, timeframe int)

	// OnCandleClosed, if set, is invoked once per forming candle pushed into
	// the closed buffer.
	OnCandleClosed func(symbol string, timeframe int)
}

func New() *Aggregator {
	return &Aggregator{windows: make(map[string]*window)}
}

func (a *Aggregator) tickWindow() int {
	if a.TickWindow > 0 {
		return a.TickWindow
	}
	return DefaultTickWindow
}

func windowKey(symbol string, timeframe int) string {
	return fmt.Sprintf("%s:%d", symbol, timeframe)
}

// Initialize seeds the closed-candle buffer for (symbol, timeframe) from
// historyCandles (oldest first) and clears any forming candle. Replaces any
// existing window for the pair.
func (a *Aggregator) Initialize(symbol string, timeframe int, historyCandles []model.TFCandle, capacity int) {
	w := newWindow(capacity)

	start := 0
	if len(historyCandles) > w.capacity {
		start = len(historyCandles) - w.capacity
	}
	w.closed = append([]model.TFCandle(nil), historyCandles[start:]...)
	for i := range w.closed {
		w.closed[i].Forming = false
	}

	a.mu.Lock()
	a.windows[windowKey(symbol, timeframe)] = w
	a.mu.Unlock()
}

func (a *Aggregator) getOrCreateWindow(symbol string, timeframe int) *window {
	key := windowKey(symbol, timeframe)

	a.mu.RLock()
	w, ok := a.windows[key]
	a.mu.RUnlock()
	if ok {
		return w
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok = a.windows[key]; ok {
		return w
	}
	w = newWindow(DefaultCapacity)
	a.windows[key] = w
	return w
}

// ProcessTick folds one tick into the (symbol, timeframe) window per the
// bucketing policy: a tick whose bucket matches the forming candle's
// startEpoch updates it in place; a tick for a later bucket closes the
// forming candle (pushing it into the bounded closed buffer, evicting the
// oldest if over capacity) and opens a fresh one; a tick behind the forming
// candle's bucket is a stale/out-of-order tick and is ignored. No synthetic
// candle is fabricated to fill a skipped bucket.
func (a *Aggregator) ProcessTick(tick model.Tick, symbol string, timeframe int) {
	if timeframe <= 0 || tick.Price <= 0 {
		if a.OnMalformedTick != nil {
			a.OnMalformedTick(symbol, timeframe)
		}
		return
	}

	w := a.getOrCreateWindow(symbol, timeframe)
	bucket := (tick.Epoch() / int64(timeframe)) * int64(timeframe)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.forming == nil:
		w.forming = newForming(tick, timeframe, bucket)
		w.ticks = ringbuf.New(a.tickWindow())
		w.ticks.PushEvict(tick.Price)

	case bucket == w.forming.StartEpoch:
		updateForming(w.forming, tick)
		w.ticks.PushEvict(tick.Price)

	case bucket > w.forming.StartEpoch:
		closed := *w.forming
		closed.Forming = false
		w.closed = append(w.closed, closed)
		if len(w.closed) > w.capacity {
			w.closed = w.closed[len(w.closed)-w.capacity:]
		}
		w.forming = newForming(tick, timeframe, bucket)
		w.ticks = ringbuf.New(a.tickWindow())
		w.ticks.PushEvict(tick.Price)
		if a.OnCandleClosed != nil {
			a.OnCandleClosed(symbol, timeframe)
		}

	default:
		// bucket < forming.StartEpoch: out-of-order tick behind the current
		// bucket. Its bucket may already be closed; ignore it.
	}
}

func newForming(tick model.Tick, timeframe int, bucket int64) *model.TFCandle {
	return &model.TFCandle{
		Token:      tick.Token,
		Exchange:   tick.Exchange,
		TF:         timeframe,
		TS:         time.Unix(bucket, 0).UTC(),
		StartEpoch: bucket,
		Open:       tick.Price,
		High:       tick.Price,
		Low:        tick.Price,
		Close:      tick.Price,
		TickCount:  1,
		Forming:    true,
	}
}

func updateForming(c *model.TFCandle, tick model.Tick) {
	if tick.Price > c.High {
		c.High = tick.Price
	}
	if tick.Price < c.Low {
		c.Low = tick.Price
	}
	c.Close = tick.Price
	c.TickCount++
}

// GetClosedCandles returns a snapshot of the closed-candle buffer, oldest
// first. The returned slice is a copy; mutating it does not affect the
// window.
func (a *Aggregator) GetClosedCandles(symbol string, timeframe int) []model.TFCandle {
	a.mu.RLock()
	w, ok := a.windows[windowKey(symbol, timeframe)]
	a.mu.RUnlock()
	if !ok {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.TFCandle(nil), w.closed...)
}

// GetFormingCandle returns a snapshot of the current forming candle, or nil
// if none exists yet (no tick has arrived since Initialize/Cleanup).
func (a *Aggregator) GetFormingCandle(symbol string, timeframe int) *model.TFCandle {
	a.mu.RLock()
	w, ok := a.windows[windowKey(symbol, timeframe)]
	a.mu.RUnlock()
	if !ok {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.forming == nil {
		return nil
	}
	c := *w.forming
	return &c
}

// GetFormingTickWindow returns a copy of the most recent TickWindow tick
// prices folded into the current forming candle, oldest first. Returns nil
// if no forming candle exists yet.
func (a *Aggregator) GetFormingTickWindow(symbol string, timeframe int) []float64 {
	a.mu.RLock()
	w, ok := a.windows[windowKey(symbol, timeframe)]
	a.mu.RUnlock()
	if !ok {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.forming == nil || w.ticks == nil {
		return nil
	}
	// The ring's capacity is rounded up to a power of two, so it may retain
	// more than the configured window before its own eviction kicks in; trim
	// to the most recent TickWindow samples here to keep the bound exact.
	snap := w.ticks.Snapshot()
	if n := a.tickWindow(); len(snap) > n {
		snap = snap[len(snap)-n:]
	}
	return snap
}

// Cleanup removes the (symbol, timeframe) window entirely. Called when a
// session stops watching that pair.
func (a *Aggregator) Cleanup(symbol string, timeframe int) {
	a.mu.Lock()
	delete(a.windows, windowKey(symbol, timeframe))
	a.mu.Unlock()
}
