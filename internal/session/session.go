// Package session implements the session manager: the component that turns
// a subscriber's "watch this symbol/timeframe" request into a standing
// per-session pre-close signal schedule. It is the only component that
// drives the feed client (subscribe/unsubscribe, history fetch) and the
// aggregator (Initialize/Cleanup) on behalf of a caller, and the only one
// that calls into the signal engine on a timer rather than ad hoc.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trading-systemv1/internal/eventbus"
	applog "trading-systemv1/internal/logger"
	"trading-systemv1/internal/marketdata/agg"
	"trading-systemv1/internal/model"
	"trading-systemv1/internal/signalengine"
)

// pollInterval is how often the scheduler checks for a forming candle when
// none exists yet, and the pacing floor once a signal has fired for the
// current bucket but the aggregator hasn't advanced to the next one.
const pollInterval = 1 * time.Second

// Feed is the subset of internal/feed.Client the Session Manager depends on.
// Defined here, rather than imported as a concrete type, so tests can drive
// the scheduler without a live websocket connection.
type Feed interface {
	IsConnected() bool
	FetchCandleHistory(ctx context.Context, symbol string, timeframeSeconds, count int) ([]model.TFCandle, error)
	SubscribeTicks(symbol, subscriberID string) error
	UnsubscribeTicks(symbol, subscriberID string) error
}

// PreCloseEvent is published on Manager.PreCloseSignal each time a session's
// pre-close signal fires.
type PreCloseEvent struct {
	Session model.Session
	Signal  model.SignalResult
}

// Config carries the Session Manager's tunables. Zero-value fields fall
// back to package defaults.
type Config struct {
	// HistoryCandles is how many closed candles to request from the feed
	// when priming or re-priming a (symbol, timeframe) window. Default 300.
	HistoryCandles int
	// WindowCapacity bounds the aggregator's closed-candle buffer per
	// window. Default agg.DefaultCapacity.
	WindowCapacity int
	// PreCloseSeconds is how long before a candle's close its pre-close
	// signal fires. Default 4.
	PreCloseSeconds int

	Signal signalengine.Config
}

func (c Config) withDefaults() Config {
	if c.HistoryCandles <= 0 {
		c.HistoryCandles = 300
	}
	if c.WindowCapacity <= 0 {
		c.WindowCapacity = agg.DefaultCapacity
	}
	if c.PreCloseSeconds <= 0 {
		c.PreCloseSeconds = 4
	}
	return c
}

// sessionState is the Manager's internal bookkeeping for one session,
// distinct from the plain-data model.Session exposed to callers.
type sessionState struct {
	mu      sync.Mutex
	session model.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager owns every active session, its timers, and its event buses.
type Manager struct {
	feed Feed
	agg  *agg.Aggregator
	cfg  Config
	log  *slog.Logger

	ticks     *eventbus.Bus[model.Tick]
	connected *eventbus.Bus[struct{}]
	disconn   *eventbus.Bus[struct{}]

	signalWriters  []model.SignalWriter
	sessionWriters []model.SessionWriter

	mu     sync.Mutex
	byID   map[string]*sessionState
	byChat map[string]map[string]struct{} // chatID -> set of session IDs

	// tfRefs tracks, per symbol, the set of active timeframes (from any
	// session) so the tick dispatcher knows which aggregator windows a tick
	// for that symbol must be folded into.
	tfRefs map[string]map[int]int // symbol -> timeframe -> session refcount

	PreCloseSignal   *eventbus.Bus[PreCloseEvent]
	SessionStarted   *eventbus.Bus[model.Session]
	SessionStopped   *eventbus.Bus[model.Session]
	FeedDisconnected *eventbus.Bus[struct{}]
}

// New constructs a Manager. ticks/connected/disconnected are the feed
// client's own event buses (feed.Client.Ticks/Connected/Disconnected in
// production; fakes in tests).
func New(
	feed Feed,
	aggregator *agg.Aggregator,
	ticks *eventbus.Bus[model.Tick],
	connected *eventbus.Bus[struct{}],
	disconnected *eventbus.Bus[struct{}],
	cfg Config,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		feed:             feed,
		agg:              aggregator,
		cfg:              cfg.withDefaults(),
		log:              logger,
		ticks:            ticks,
		connected:        connected,
		disconn:          disconnected,
		byID:             make(map[string]*sessionState),
		byChat:           make(map[string]map[string]struct{}),
		tfRefs:           make(map[string]map[int]int),
		PreCloseSignal:   eventbus.New[PreCloseEvent](16),
		SessionStarted:   eventbus.New[model.Session](4),
		SessionStopped:   eventbus.New[model.Session](4),
		FeedDisconnected: eventbus.New[struct{}](1),
	}
}

// AddSignalWriter registers a best-effort signal sink. Write errors are
// logged, never propagated to the caller that triggered the emission.
func (m *Manager) AddSignalWriter(w model.SignalWriter) {
	m.signalWriters = append(m.signalWriters, w)
}

// AddSessionWriter registers a best-effort session-lifecycle sink.
func (m *Manager) AddSessionWriter(w model.SessionWriter) {
	m.sessionWriters = append(m.sessionWriters, w)
}

// StartSession begins a new pre-close signal schedule for (symbol,
// timeframe) on behalf of chatID, identified by id. Returns
// ErrSessionExists if id is already active and ErrUnsupportedTimeframe if
// timeframe is not in SupportedTimeframes. History is fetched from the feed
// before the session is considered started; a feed error is returned
// unwrapped from FetchCandleHistory (typically feed.ErrFeedUnavailable).
func (m *Manager) StartSession(ctx context.Context, id, chatID, symbol string, timeframe int, options model.SessionOptions) (model.Session, error) {
	if !SupportedTimeframes[timeframe] {
		return model.Session{}, fmt.Errorf("%w: %d", ErrUnsupportedTimeframe, timeframe)
	}

	m.mu.Lock()
	if _, exists := m.byID[id]; exists {
		m.mu.Unlock()
		return model.Session{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	m.mu.Unlock()

	history, err := m.feed.FetchCandleHistory(ctx, symbol, timeframe, m.cfg.HistoryCandles)
	if err != nil {
		return model.Session{}, err
	}
	m.agg.Initialize(symbol, timeframe, history, m.cfg.WindowCapacity)

	if err := m.feed.SubscribeTicks(symbol, id); err != nil {
		m.log.Warn("session: subscribe failed", "session", id, "symbol", symbol, "error", err)
	}

	sess := model.Session{
		ID:        id,
		ChatID:    chatID,
		Symbol:    symbol,
		Timeframe: timeframe,
		Status:    model.SessionActive,
		StartedAt: time.Now().UTC(),
		Options:   options,
	}

	traceID := applog.GenerateTraceID(id, sess.StartedAt)
	schedCtx, cancel := context.WithCancel(applog.WithTraceID(context.Background(), traceID))
	st := &sessionState{session: sess, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if _, exists := m.byID[id]; exists {
		// Lost a race with a concurrent StartSession for the same id while
		// the history fetch was in flight.
		m.mu.Unlock()
		cancel()
		if err := m.feed.UnsubscribeTicks(symbol, id); err != nil {
			m.log.Warn("session: unsubscribe after conflict failed", "session", id, "symbol", symbol, "error", err)
		}
		return model.Session{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	m.byID[id] = st
	if m.byChat[chatID] == nil {
		m.byChat[chatID] = make(map[string]struct{})
	}
	m.byChat[chatID][id] = struct{}{}
	m.refTimeframe(symbol, timeframe, 1)
	m.mu.Unlock()

	go m.runScheduler(schedCtx, id, st.done)

	m.SessionStarted.Publish(sess)
	for _, w := range m.sessionWriters {
		if err := w.WriteSession(ctx, sess); err != nil {
			m.log.Warn("session: persist sessionStarted failed", "session", id, "error", err)
		}
	}

	return sess, nil
}

// StopSession ends id's schedule, unsubscribes its symbol (if no other
// session still needs it), and tears down the aggregator window once
// unreferenced. Returns ErrSessionNotFound if id is not active.
func (m *Manager) StopSession(ctx context.Context, id string) (model.Session, error) {
	m.mu.Lock()
	st, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return model.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.byID, id)
	st.mu.Lock()
	sess := st.session
	sess.Status = model.SessionStopped
	st.session = sess
	st.mu.Unlock()

	if set, ok := m.byChat[sess.ChatID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m.byChat, sess.ChatID)
		}
	}
	cleanup := m.refTimeframe(sess.Symbol, sess.Timeframe, -1)
	m.mu.Unlock()

	st.cancel()
	<-st.done

	if err := m.feed.UnsubscribeTicks(sess.Symbol, id); err != nil {
		m.log.Warn("session: unsubscribe failed", "session", id, "symbol", sess.Symbol, "error", err)
	}
	if cleanup {
		m.agg.Cleanup(sess.Symbol, sess.Timeframe)
	}

	m.SessionStopped.Publish(sess)
	for _, w := range m.sessionWriters {
		if err := w.WriteSession(ctx, sess); err != nil {
			m.log.Warn("session: persist sessionStopped failed", "session", id, "error", err)
		}
	}

	return sess, nil
}

// refTimeframe adjusts the (symbol, timeframe) reference count by delta.
// Must be called with m.mu held. Returns true when the count has just
// dropped to zero (the caller should clean up the aggregator window).
func (m *Manager) refTimeframe(symbol string, timeframe int, delta int) bool {
	tfs, ok := m.tfRefs[symbol]
	if !ok {
		tfs = make(map[int]int)
		m.tfRefs[symbol] = tfs
	}
	tfs[timeframe] += delta
	if tfs[timeframe] <= 0 {
		delete(tfs, timeframe)
		if len(tfs) == 0 {
			delete(m.tfRefs, symbol)
		}
		return true
	}
	return false
}

// GetSession returns a snapshot of session id, or ErrSessionNotFound.
func (m *Manager) GetSession(id string) (model.Session, error) {
	m.mu.Lock()
	st, ok := m.byID[id]
	m.mu.Unlock()
	if !ok {
		return model.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session, nil
}

// GetSessionByChatID returns one active session for chatID (the most
// recently started, if more than one symbol/timeframe pair is active for
// that chat), or false if none exists.
func (m *Manager) GetSessionByChatID(chatID string) (model.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.byChat[chatID]
	if !ok || len(set) == 0 {
		return model.Session{}, false
	}
	var best model.Session
	found := false
	for id := range set {
		st := m.byID[id]
		st.mu.Lock()
		s := st.session
		st.mu.Unlock()
		if !found || s.StartedAt.After(best.StartedAt) {
			best = s
			found = true
		}
	}
	return best, found
}

// GetActiveSessionsCount returns how many sessions are currently active.
func (m *Manager) GetActiveSessionsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// GetSessionCandles passes through to the aggregator for (symbol,
// timeframe), independent of whether a session currently references it.
func (m *Manager) GetSessionCandles(symbol string, timeframe int) ([]model.TFCandle, *model.TFCandle) {
	return m.agg.GetClosedCandles(symbol, timeframe), m.agg.GetFormingCandle(symbol, timeframe)
}

// GetDebugSignal runs the signal engine on demand for (symbol, timeframe)
// using whatever
// candle data the aggregator currently holds, without requiring an active
// session. Useful for ad hoc inspection and tooling.
func (m *Manager) GetDebugSignal(symbol string, timeframe int, options model.SessionOptions) model.SignalResult {
	closed := m.agg.GetClosedCandles(symbol, timeframe)
	forming := m.agg.GetFormingCandle(symbol, timeframe)
	ticks := m.agg.GetFormingTickWindow(symbol, timeframe)
	closeTime := time.Now().UTC()
	if forming != nil {
		closeTime = time.Unix(forming.StartEpoch+int64(timeframe), 0).UTC()
	}
	return signalengine.GenerateSignal("debug", symbol, timeframe, closed, forming, ticks, closeTime, options, m.cfg.Signal)
}
