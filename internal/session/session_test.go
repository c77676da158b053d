package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trading-systemv1/internal/eventbus"
	"trading-systemv1/internal/marketdata/agg"
	"trading-systemv1/internal/model"
)

type fakeFeed struct {
	mu         sync.Mutex
	history    []model.TFCandle
	historyErr error
	subscribed map[string]map[string]bool
	fetchCalls int
}

func newFakeFeed(history []model.TFCandle) *fakeFeed {
	return &fakeFeed{history: history, subscribed: make(map[string]map[string]bool)}
}

func (f *fakeFeed) IsConnected() bool { return true }

func (f *fakeFeed) FetchCandleHistory(ctx context.Context, symbol string, timeframeSeconds, count int) ([]model.TFCandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return append([]model.TFCandle(nil), f.history...), nil
}

func (f *fakeFeed) SubscribeTicks(symbol, subscriberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribed[symbol] == nil {
		f.subscribed[symbol] = make(map[string]bool)
	}
	f.subscribed[symbol][subscriberID] = true
	return nil
}

func (f *fakeFeed) UnsubscribeTicks(symbol, subscriberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if set, ok := f.subscribed[symbol]; ok {
		delete(set, subscriberID)
		if len(set) == 0 {
			delete(f.subscribed, symbol)
		}
	}
	return nil
}

func newTestManager(feed *fakeFeed) *Manager {
	a := agg.New()
	ticks := eventbus.New[model.Tick](16)
	connected := eventbus.New[struct{}](1)
	disconnected := eventbus.New[struct{}](1)
	return New(feed, a, ticks, connected, disconnected, Config{}, nil)
}

func flatHistory(n int) []model.TFCandle {
	out := make([]model.TFCandle, n)
	for i := range out {
		out[i] = model.TFCandle{
			Token: "BTCUSD", Exchange: "SIM", TF: 60,
			StartEpoch: int64(i * 60),
			Open:       100, High: 100.5, Low: 99.5, Close: 100,
			TickCount: 5,
		}
	}
	return out
}

func TestStartSession_InitializesWindowAndSubscribes(t *testing.T) {
	feed := newFakeFeed(flatHistory(60))
	m := newTestManager(feed)

	sess, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Status != model.SessionActive {
		t.Fatalf("expected active session, got %v", sess.Status)
	}

	closed, forming := m.GetSessionCandles("SIM:BTCUSD", 60)
	if len(closed) != 60 {
		t.Fatalf("expected 60 seeded candles, got %d", len(closed))
	}
	if forming != nil {
		t.Fatalf("expected no forming candle before any tick, got %+v", forming)
	}

	feed.mu.Lock()
	subscribed := feed.subscribed["SIM:BTCUSD"]["s1"]
	feed.mu.Unlock()
	if !subscribed {
		t.Fatal("expected feed subscription for the session's symbol")
	}

	if _, err := m.StopSession(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
}

func TestStartSession_DuplicateIDRejected(t *testing.T) {
	feed := newFakeFeed(flatHistory(10))
	m := newTestManager(feed)

	if _, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{})
	if !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func TestStartSession_RejectsUnsupportedTimeframe(t *testing.T) {
	feed := newFakeFeed(flatHistory(10))
	m := newTestManager(feed)

	_, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 7, model.SessionOptions{})
	if !errors.Is(err, ErrUnsupportedTimeframe) {
		t.Fatalf("expected ErrUnsupportedTimeframe, got %v", err)
	}
}

func TestStartSession_PropagatesFeedError(t *testing.T) {
	feed := newFakeFeed(nil)
	feed.historyErr = errors.New("boom")
	m := newTestManager(feed)

	_, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{})
	if err == nil {
		t.Fatal("expected error from feed history fetch")
	}
}

func TestStopSession_UnknownIDReturnsNotFound(t *testing.T) {
	m := newTestManager(newFakeFeed(nil))
	_, err := m.StopSession(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStopSession_CleansUpWindowWhenLastReference(t *testing.T) {
	feed := newFakeFeed(flatHistory(10))
	m := newTestManager(feed)

	if _, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.StopSession(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closed, forming := m.GetSessionCandles("SIM:BTCUSD", 60)
	if closed != nil || forming != nil {
		t.Fatalf("expected window torn down after last reference, got closed=%v forming=%v", closed, forming)
	}

	feed.mu.Lock()
	_, stillSubscribed := feed.subscribed["SIM:BTCUSD"]
	feed.mu.Unlock()
	if stillSubscribed {
		t.Fatal("expected symbol unsubscribed after last session stopped")
	}
}

func TestStopSession_KeepsWindowWhileOtherSessionReferencesSameSymbol(t *testing.T) {
	feed := newFakeFeed(flatHistory(10))
	m := newTestManager(feed)

	if _, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.StartSession(context.Background(), "s2", "chat2", "SIM:BTCUSD", 60, model.SessionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.StopSession(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closed, _ := m.GetSessionCandles("SIM:BTCUSD", 60)
	if closed == nil {
		t.Fatal("expected window to survive while a second session still references it")
	}
}

func TestGetSessionByChatID_ReturnsMostRecentlyStarted(t *testing.T) {
	feed := newFakeFeed(flatHistory(10))
	m := newTestManager(feed)

	if _, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := m.StartSession(context.Background(), "s2", "chat1", "SIM:ETHUSD", 300, model.SessionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, ok := m.GetSessionByChatID("chat1")
	if !ok {
		t.Fatal("expected a session for chat1")
	}
	if sess.ID != "s2" {
		t.Fatalf("expected most recently started session s2, got %s", sess.ID)
	}
}

func TestGetActiveSessionsCount(t *testing.T) {
	feed := newFakeFeed(flatHistory(10))
	m := newTestManager(feed)

	if m.GetActiveSessionsCount() != 0 {
		t.Fatal("expected zero active sessions initially")
	}
	if _, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.GetActiveSessionsCount() != 1 {
		t.Fatalf("expected 1 active session, got %d", m.GetActiveSessionsCount())
	}
}

func TestGetDebugSignal_InsufficientCandlesIsNoTrade(t *testing.T) {
	m := newTestManager(newFakeFeed(nil))
	out := m.GetDebugSignal("SIM:BTCUSD", 60, model.SessionOptions{})
	if out.Direction != model.DirectionNoTrade {
		t.Fatalf("expected NO_TRADE with no seeded window, got %v", out.Direction)
	}
}

func TestMaybeEmit_DedupesByFormingStart(t *testing.T) {
	feed := newFakeFeed(flatUptrend(100))
	m := newTestManager(feed)

	if _, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Fold one tick so a forming candle exists for maybeEmit to read.
	m.dispatchTick(model.Tick{Token: "BTCUSD", Exchange: "SIM", Price: 106, TickTS: time.Now()})

	var fired atomic.Int64
	sub := m.PreCloseSignal.Subscribe()
	defer sub.Unsubscribe()
	go func() {
		for range sub.C() {
			fired.Add(1)
		}
	}()

	forming := m.agg.GetFormingCandle("SIM:BTCUSD", 60)
	if forming == nil {
		t.Fatal("expected a forming candle after dispatching a tick")
	}

	closeTime := time.Unix(forming.StartEpoch+60, 0).UTC()
	m.maybeEmit(context.Background(), "s1", forming.StartEpoch, closeTime)
	m.maybeEmit(context.Background(), "s1", forming.StartEpoch, closeTime)

	sess, err := m.GetSession("s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.LastSignalCandleTimestamp != forming.StartEpoch {
		t.Fatalf("expected LastSignalCandleTimestamp=%d, got %d", forming.StartEpoch, sess.LastSignalCandleTimestamp)
	}

	time.Sleep(10 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("expected exactly one emission for the same forming bucket, got %d", n)
	}
}

func TestRunScheduler_ExitsPromptlyOnCancel(t *testing.T) {
	feed := newFakeFeed(flatHistory(10))
	m := newTestManager(feed)

	if _, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if _, err := m.StopSession(context.Background(), "s1"); err != nil {
			t.Errorf("unexpected stop error: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected StopSession (and its scheduler goroutine) to return promptly")
	}
}

func TestRePrimeAll_RefetchesHistoryAndResubscribes(t *testing.T) {
	feed := newFakeFeed(flatHistory(60))
	m := newTestManager(feed)

	if _, err := m.StartSession(context.Background(), "s1", "chat1", "SIM:BTCUSD", 60, model.SessionOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	feed.mu.Lock()
	if feed.fetchCalls != 1 {
		t.Fatalf("expected 1 history fetch at start, got %d", feed.fetchCalls)
	}
	// The provider's view of history may have changed across the outage.
	feed.history = flatHistory(30)
	feed.mu.Unlock()

	m.rePrimeAll(context.Background())

	feed.mu.Lock()
	fetches := feed.fetchCalls
	subscribed := feed.subscribed["SIM:BTCUSD"]["s1"]
	feed.mu.Unlock()
	if fetches != 2 {
		t.Fatalf("expected history re-fetched on reconnect, got %d fetches", fetches)
	}
	if !subscribed {
		t.Fatal("expected symbol re-subscribed on reconnect")
	}

	closed, _ := m.GetSessionCandles("SIM:BTCUSD", 60)
	if len(closed) != 30 {
		t.Fatalf("expected window re-seeded with 30 candles, got %d", len(closed))
	}
}

func flatUptrend(n int) []model.TFCandle {
	out := make([]model.TFCandle, n)
	price := 100.0
	for i := range out {
		open := price
		close := open + 0.5
		out[i] = model.TFCandle{
			Token: "BTCUSD", Exchange: "SIM", TF: 60,
			StartEpoch: int64(i * 60),
			Open:       open, High: close + 0.1, Low: open - 0.1, Close: close,
			TickCount: 5,
		}
		price = close
	}
	return out
}
