package model

// IndicatorValues is the fixed schema emitted by the indicator engine for a
// single (candle sequence, forming candle) pair. Every field is a pointer so
// that indicators lacking enough history are simply absent — never a zero
// value or NaN standing in for "unknown".
type IndicatorValues struct {
	EMA5  *float64 `json:"ema5,omitempty"`
	EMA9  *float64 `json:"ema9,omitempty"`
	EMA12 *float64 `json:"ema12,omitempty"`
	EMA21 *float64 `json:"ema21,omitempty"`
	EMA50 *float64 `json:"ema50,omitempty"`

	SMA20  *float64 `json:"sma20,omitempty"`
	SMA50  *float64 `json:"sma50,omitempty"`
	SMA200 *float64 `json:"sma200,omitempty"`

	MACD *MACDValue `json:"macd,omitempty"`

	RSI14 *float64 `json:"rsi14,omitempty"`

	Stochastic *StochasticValue `json:"stochastic,omitempty"`

	ATR14 *float64 `json:"atr14,omitempty"`
	ADX   *float64 `json:"adx,omitempty"`
	CCI   *float64 `json:"cci,omitempty"`

	WilliamsR *float64 `json:"williams_r,omitempty"`

	Bollinger *BandValue `json:"bollinger,omitempty"`
	Keltner   *BandValue `json:"keltner,omitempty"`

	HullMA *float64 `json:"hull_ma,omitempty"`

	SuperTrend *SuperTrendValue `json:"supertrend,omitempty"`

	ROC      *float64 `json:"roc,omitempty"`
	Momentum *float64 `json:"momentum,omitempty"`
	VWAP     *float64 `json:"vwap,omitempty"`
	OBV      *float64 `json:"obv,omitempty"`
	Chaikin  *float64 `json:"chaikin,omitempty"`
	Fisher   *float64 `json:"fisher,omitempty"`

	Donchian *BandValue `json:"donchian,omitempty"`

	PSAR               *float64 `json:"psar,omitempty"`
	UltimateOscillator *float64 `json:"ultimate_oscillator,omitempty"`
	MeanReversionZ     *float64 `json:"mean_reversion_z,omitempty"`
	LinRegSlope        *float64 `json:"linreg_slope,omitempty"`

	ATRBands        *BandValue `json:"atr_bands,omitempty"`
	RangePercentile *float64   `json:"range_percentile,omitempty"`
	EMARibbon       *float64   `json:"ema_ribbon,omitempty"`
}

// MACDValue is the MACD(12,26,9) triple.
type MACDValue struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// StochasticValue is the %K/%D pair.
type StochasticValue struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// BandValue is a generic upper/middle/lower channel, used by Bollinger,
// Keltner, Donchian and the ATR bands.
type BandValue struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// SuperTrendValue carries both the line value and its current direction.
type SuperTrendValue struct {
	Value     float64 `json:"value"`
	Direction string  `json:"direction"` // "up" or "down"
}

const (
	SuperTrendUp   = "up"
	SuperTrendDown = "down"
)
