package prediction

import (
	"testing"

	"trading-systemv1/internal/model"
)

func flatCandles(n int, price float64) []model.TFCandle {
	candles := make([]model.TFCandle, n)
	for i := range candles {
		candles[i] = model.TFCandle{
			Token: "BTCUSD", Exchange: "SIM", TF: 60,
			StartEpoch: int64(i * 60),
			Open:       price, High: price + 0.1, Low: price - 0.1, Close: price,
			TickCount: 5,
		}
	}
	return candles
}

func TestPredict_EstimatedCloseUsesFormingWhenPresent(t *testing.T) {
	closed := flatCandles(5, 100)
	forming := &model.TFCandle{
		Token: "BTCUSD", Exchange: "SIM", TF: 60,
		StartEpoch: 300, Open: 100, High: 101, Low: 99, Close: 100.5,
		TickCount: 2, Forming: true,
	}
	out := Predict(closed, forming, nil, DefaultVolatilityConfig)
	if out.EstimatedClose != 100.5 {
		t.Fatalf("expected estimatedClose=100.5, got %v", out.EstimatedClose)
	}
}

func TestPredict_EstimatedCloseFallsBackToLastClosed(t *testing.T) {
	closed := flatCandles(3, 50)
	out := Predict(closed, nil, nil, DefaultVolatilityConfig)
	if out.EstimatedClose != 50 {
		t.Fatalf("expected estimatedClose=50, got %v", out.EstimatedClose)
	}
}

func TestPredict_EstimatedCloseZeroWithNoData(t *testing.T) {
	out := Predict(nil, nil, nil, DefaultVolatilityConfig)
	if out.EstimatedClose != 0 {
		t.Fatalf("expected estimatedClose=0, got %v", out.EstimatedClose)
	}
	if out.Volatility.IsVolatile {
		t.Fatal("expected no volatility override with no data")
	}
}

func TestPredict_ATRVolatilityOverride(t *testing.T) {
	// Build a series with large true ranges relative to price so ATR14/close
	// comfortably exceeds the default 0.005 threshold.
	candles := make([]model.TFCandle, 30)
	price := 100.0
	for i := range candles {
		candles[i] = model.TFCandle{
			Token: "BTCUSD", Exchange: "SIM", TF: 60,
			StartEpoch: int64(i * 60),
			Open:       price, High: price + 5, Low: price - 5, Close: price,
			TickCount: 5,
		}
	}
	out := Predict(candles, nil, nil, DefaultVolatilityConfig)
	if !out.Volatility.IsVolatile {
		t.Fatal("expected ATR-driven volatility override")
	}
	if out.Volatility.Reason == "" {
		t.Fatal("expected a non-empty volatility reason")
	}
}

func TestPredict_TickScaleVolatilityOverride(t *testing.T) {
	closed := flatCandles(5, 100)
	ticks := []float64{100, 100.1, 99.5, 100.8, 99.2, 100.9, 99.0, 100.5, 99.3, 101}
	out := Predict(closed, nil, ticks, DefaultVolatilityConfig)
	if !out.Volatility.IsVolatile {
		t.Fatal("expected tick-scale volatility override")
	}
}

func TestPredict_NoOverrideForQuietMarket(t *testing.T) {
	closed := flatCandles(30, 100)
	ticks := []float64{100, 100.01, 99.99, 100.02, 100.0}
	out := Predict(closed, nil, ticks, DefaultVolatilityConfig)
	if out.Volatility.IsVolatile {
		t.Fatalf("expected no volatility override for a quiet market, got reason %q", out.Volatility.Reason)
	}
}

func TestTickScaleVolatility_InsufficientTicks(t *testing.T) {
	if _, ok := tickScaleVolatility([]float64{100}); ok {
		t.Fatal("expected not-ok with fewer than 2 ticks")
	}
}

func TestTickScaleVolatility_ComputesRangeOverMid(t *testing.T) {
	ratio, ok := tickScaleVolatility([]float64{90, 110})
	if !ok {
		t.Fatal("expected ok")
	}
	if ratio != 0.2 {
		t.Fatalf("expected (110-90)/100=0.2, got %v", ratio)
	}
}
