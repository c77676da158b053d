package session

import (
	"context"
	"time"

	applog "trading-systemv1/internal/logger"
	"trading-systemv1/internal/model"
	"trading-systemv1/internal/signalengine"
)

// Run starts the Manager's background machinery: the tick dispatcher that
// fans every feed tick into the aggregator windows active sessions
// reference, and the reconnect/disconnect watchers that re-prime sessions
// and surface FeedDisconnected. Blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	tickSub := m.ticks.Subscribe()
	defer tickSub.Unsubscribe()
	connSub := m.connected.Subscribe()
	defer connSub.Unsubscribe()
	discSub := m.disconn.Subscribe()
	defer discSub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-tickSub.C():
			m.dispatchTick(tick)
		case <-connSub.C():
			m.rePrimeAll(ctx)
		case <-discSub.C():
			m.FeedDisconnected.Publish(struct{}{})
		}
	}
}

// dispatchTick folds one tick into every (symbol, timeframe) window any
// active session currently references.
func (m *Manager) dispatchTick(tick model.Tick) {
	symbol := tick.Symbol()

	m.mu.Lock()
	tfs := m.tfRefs[symbol]
	timeframes := make([]int, 0, len(tfs))
	for tf := range tfs {
		timeframes = append(timeframes, tf)
	}
	m.mu.Unlock()

	for _, tf := range timeframes {
		m.agg.ProcessTick(tick, symbol, tf)
	}
}

// rePrimeAll re-fetches history, re-seeds the aggregator, and re-subscribes
// every active session's symbol: a reconnect must not leave a stale window
// or a dropped subscription behind.
func (m *Manager) rePrimeAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.mu.Lock()
		st, ok := m.byID[id]
		m.mu.Unlock()
		if !ok {
			continue
		}
		st.mu.Lock()
		sess := st.session
		st.mu.Unlock()
		if sess.Status != model.SessionActive {
			continue
		}

		history, err := m.feed.FetchCandleHistory(ctx, sess.Symbol, sess.Timeframe, m.cfg.HistoryCandles)
		if err != nil {
			m.log.Warn("session: re-prime history fetch failed", append([]any{"session", id, "error", err}, applog.LogWithTrace(ctx)...)...)
			continue
		}
		m.agg.Initialize(sess.Symbol, sess.Timeframe, history, m.cfg.WindowCapacity)
		if err := m.feed.SubscribeTicks(sess.Symbol, id); err != nil {
			m.log.Warn("session: re-subscribe failed", append([]any{"session", id, "error", err}, applog.LogWithTrace(ctx)...)...)
		}
	}
}

// runScheduler drives id's pre-close signal timing for as long as ctx is
// live. It waits for a forming candle to exist (polling), arms a single
// timer at the bucket's pre-close deadline, emits at most one signal per
// distinct forming bucket, then paces itself until the bucket closes before
// looking at the next one. Because it always reads the aggregator's
// *current* forming candle rather than enumerating buckets it may have
// missed, a scheduler that falls behind (startup, reconnect, a long GC
// pause) naturally skips straight to whatever bucket is forming now instead
// of emitting a backlog of stale signals.
func (m *Manager) runScheduler(ctx context.Context, id string, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		sess, ok := m.snapshotSession(id)
		if !ok || sess.Status != model.SessionActive {
			return
		}

		forming := m.agg.GetFormingCandle(sess.Symbol, sess.Timeframe)
		if forming == nil {
			if !sleepCtx(ctx, pollInterval) {
				return
			}
			continue
		}

		formingStart := forming.StartEpoch
		closeTime := time.Unix(formingStart+int64(sess.Timeframe), 0).UTC()
		deadline := closeTime.Add(-time.Duration(m.cfg.PreCloseSeconds) * time.Second)

		if wait := time.Until(deadline); wait > 0 {
			if !sleepCtx(ctx, wait) {
				return
			}
		}

		m.maybeEmit(ctx, id, formingStart, closeTime)

		wait := time.Until(closeTime)
		if wait < pollInterval {
			wait = pollInterval
		}
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

// maybeEmit runs the signal engine and publishes/persists the result,
// unless a signal was already emitted for formingStart — at most one
// pre-close signal fires per distinct forming bucket.
func (m *Manager) maybeEmit(ctx context.Context, id string, formingStart int64, closeTime time.Time) {
	m.mu.Lock()
	st, ok := m.byID[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	if st.session.Status != model.SessionActive || st.session.LastSignalCandleTimestamp == formingStart {
		st.mu.Unlock()
		return
	}
	sess := st.session
	st.mu.Unlock()

	closed := m.agg.GetClosedCandles(sess.Symbol, sess.Timeframe)
	forming := m.agg.GetFormingCandle(sess.Symbol, sess.Timeframe)
	ticks := m.agg.GetFormingTickWindow(sess.Symbol, sess.Timeframe)

	result := signalengine.GenerateSignal(id, sess.Symbol, sess.Timeframe, closed, forming, ticks, closeTime, sess.Options, m.cfg.Signal)

	st.mu.Lock()
	if st.session.Status != model.SessionActive {
		st.mu.Unlock()
		return
	}
	st.session.LastSignalCandleTimestamp = formingStart
	now := time.Now().UTC()
	st.session.LastSignalAt = &now
	updated := st.session
	st.mu.Unlock()

	m.PreCloseSignal.Publish(PreCloseEvent{Session: updated, Signal: result})
	for _, w := range m.signalWriters {
		if err := w.WriteSignal(ctx, result); err != nil {
			m.log.Warn("session: persist signal failed", append([]any{"session", id, "error", err}, applog.LogWithTrace(ctx)...)...)
		}
	}
}

// snapshotSession returns a copy of id's current session state.
func (m *Manager) snapshotSession(id string) (model.Session, bool) {
	m.mu.Lock()
	st, ok := m.byID[id]
	m.mu.Unlock()
	if !ok {
		return model.Session{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session, true
}

// sleepCtx sleeps for d or until ctx is cancelled, returning false in the
// latter case so callers can bail out of their loop immediately.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
