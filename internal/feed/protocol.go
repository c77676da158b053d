package feed

import "trading-systemv1/internal/model"

// envelope is the JSON frame exchanged over the feed connection. Every frame
// carries a Type discriminator; only the fields relevant to that type are
// populated. This mirrors the plain-JSON-over-websocket wire format used by
// the simulated tick server, extended with request/reply framing for
// history fetches and explicit subscribe/unsubscribe control frames.
type envelope struct {
	Type string `json:"type"`

	// subscribe / unsubscribe
	Symbol string `json:"symbol,omitempty"`

	// tick
	Tick *model.Tick `json:"tick,omitempty"`

	// history_request / history_response
	RequestID string          `json:"request_id,omitempty"`
	Timeframe int             `json:"timeframe,omitempty"`
	Count     int             `json:"count,omitempty"`
	Candles   []model.TFCandle `json:"candles,omitempty"`

	// auth
	ClientCode string `json:"client_code,omitempty"`
	Password   string `json:"password,omitempty"`
	TOTP       string `json:"totp,omitempty"`

	// error — provider-reported, scoped to Symbol when present
	Error string `json:"error,omitempty"`
}

const (
	typeAuth            = "auth"
	typeSubscribe       = "subscribe"
	typeUnsubscribe     = "unsubscribe"
	typeTick            = "tick"
	typeHistoryRequest  = "history_request"
	typeHistoryResponse = "history_response"
	typeError           = "error"
)
