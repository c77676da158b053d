package session

import "errors"

var (
	// ErrSessionExists is returned by StartSession when id is already active.
	ErrSessionExists = errors.New("session: already exists")
	// ErrSessionNotFound is returned by StopSession and the single-session
	// getters when id names no active session.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrUnsupportedTimeframe is returned by StartSession when timeframe is
	// not one of the supported values.
	ErrUnsupportedTimeframe = errors.New("session: unsupported timeframe")
)

// SupportedTimeframes are the candle timeframes, in seconds, the engine will
// schedule signals for: 1m, 2m, 5m, 15m, 30m, 1h.
var SupportedTimeframes = map[int]bool{
	60:   true,
	120:  true,
	300:  true,
	900:  true,
	1800: true,
	3600: true,
}
