package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple business logic from concrete storage
// implementations (Redis, SQLite). The core never requires storage to be
// present — callers treat write errors as best-effort and keep running.

// SignalWriter persists emitted signals. One call per preCloseSignal emission.
type SignalWriter interface {
	WriteSignal(ctx context.Context, result SignalResult) error
	Close() error
}

// SignalReader reads recently persisted signals, e.g. for a debug/history view.
type SignalReader interface {
	ReadRecentSignals(ctx context.Context, sessionID string, limit int) ([]SignalResult, error)
	Close() error
}

// SessionWriter persists session lifecycle transitions.
type SessionWriter interface {
	WriteSession(ctx context.Context, s Session) error
	Close() error
}

// SessionReader reads persisted session state, e.g. to resume after a restart.
type SessionReader interface {
	ReadSession(ctx context.Context, id string) (*Session, error)
	ReadActiveSessions(ctx context.Context) ([]Session, error)
	Close() error
}

// CandleHistorySource fetches historical closed candles for seeding a new
// (symbol, timeframe) window. Implementations may back onto the feed client
// itself or onto a persistence layer warmed by previous runs.
type CandleHistorySource interface {
	FetchCandleHistory(ctx context.Context, symbol string, timeframeSeconds, count int) ([]TFCandle, error)
}
