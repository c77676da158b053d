package model

import "time"

// Tick represents a single market-data price observation for one symbol.
// Price is a plain float64 — the feed may carry equities, FX pairs, or
// crypto instruments, so no fixed-point scale is assumed.
type Tick struct {
	Token    string    `json:"token"`    // instrument identifier
	Exchange string    `json:"exchange"` // venue/source qualifier, may be empty
	Price    float64   `json:"price"`
	Qty      int64     `json:"qty"` // last traded quantity, 0 if the feed doesn't report it
	TickTS   time.Time `json:"tick_ts"`            // UTC arrival timestamp
	EventTS  time.Time `json:"event_ts,omitempty"` // feed-provided canonical time
}

// Symbol returns the unique instrument key: "exchange:token".
// Feeds that don't distinguish venues leave Exchange empty.
func (t *Tick) Symbol() string {
	return t.Exchange + ":" + t.Token
}

// CanonicalTS returns the best available timestamp for this tick.
// Prefers the feed-provided EventTS; falls back to TickTS (arrival time).
func (t *Tick) CanonicalTS() time.Time {
	if !t.EventTS.IsZero() {
		return t.EventTS
	}
	return t.TickTS
}

// Epoch returns the canonical timestamp as Unix seconds.
func (t *Tick) Epoch() int64 {
	return t.CanonicalTS().Unix()
}
