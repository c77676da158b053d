package model

import "time"

// VoteDirection is the directional lean of a single indicator vote.
type VoteDirection string

const (
	VoteUp      VoteDirection = "UP"
	VoteDown    VoteDirection = "DOWN"
	VoteNeutral VoteDirection = "NEUTRAL"
)

// Vote is one weighted directional opinion emitted by a vote producer.
type Vote struct {
	IndicatorName string        `json:"indicator_name"`
	Direction     VoteDirection `json:"direction"`
	Weight        float64       `json:"weight"`
	Reason        string        `json:"reason,omitempty"`
}

// Direction is the final decision emitted for one candle close.
type Direction string

const (
	DirectionCall    Direction = "CALL"
	DirectionPut     Direction = "PUT"
	DirectionNoTrade Direction = "NO_TRADE"
)

// VolatilityAssessment is the prediction engine's read of short-horizon
// volatility, used to gate signal generation.
type VolatilityAssessment struct {
	IsVolatile bool   `json:"is_volatile"`
	Reason     string `json:"reason,omitempty"`
}

// PredictionResult is the prediction engine's combined read of one
// (symbol, timeframe) pair at a point in time: the estimated close, the
// full indicator/psychology records it was derived from, and a volatility
// gate for the Signal Engine.
type PredictionResult struct {
	EstimatedClose float64              `json:"estimated_close"`
	Indicators     IndicatorValues      `json:"indicators"`
	Psychology     PsychologyAnalysis   `json:"psychology"`
	Volatility     VolatilityAssessment `json:"volatility"`
}

// SignalResult is the output of one generateSignal call — either a real
// CALL/PUT decision or a well-formed NO_TRADE abstention.
type SignalResult struct {
	SessionID       string    `json:"session_id"`
	Symbol          string    `json:"symbol"`
	Timeframe       int       `json:"timeframe"`
	Timestamp       time.Time `json:"timestamp"`
	CandleCloseTime time.Time `json:"candle_close_time"`

	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // [0,100]
	PUp        float64   `json:"p_up"`       // [0,1]
	PDown      float64   `json:"p_down"`     // 1 - PUp

	Votes      []Vote             `json:"votes"`
	Indicators IndicatorValues    `json:"indicators"`
	Psychology PsychologyAnalysis `json:"psychology"`

	VolatilityOverride bool   `json:"volatility_override"`
	VolatilityReason   string `json:"volatility_reason,omitempty"`

	ClosedCandlesCount int       `json:"closed_candles_count"`
	FormingCandle      *TFCandle `json:"forming_candle,omitempty"`
}
