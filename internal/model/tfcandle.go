package model

import "time"

// TFCandle is an OHLC candle for one symbol over one timeframe bucket.
// TF is the bucket duration in seconds (e.g. 60 = 1 minute). StartEpoch is
// always a multiple of TF. Forming is true for the in-progress bucket of a
// window; at most one forming candle exists per (symbol, TF) at a time.
type TFCandle struct {
	Token      string    `json:"token"`
	Exchange   string    `json:"exchange"`
	TF         int       `json:"tf"`         // timeframe in seconds
	TS         time.Time `json:"ts"`         // bucket start time (UTC, TF-aligned)
	StartEpoch int64     `json:"start_epoch"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	TickCount  int       `json:"tick_count"` // number of ticks aggregated into this bucket
	Forming    bool      `json:"forming"`    // true if the bucket is still open
}
