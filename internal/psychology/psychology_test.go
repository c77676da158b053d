package psychology

import (
	"testing"

	"trading-systemv1/internal/model"
)

func candle(epoch int64, open, high, low, close float64) model.TFCandle {
	return model.TFCandle{
		Token: "BTCUSD", Exchange: "SIM", TF: 60,
		StartEpoch: epoch,
		Open:       open, High: high, Low: low, Close: close,
		TickCount: 10,
	}
}

func TestAnalyze_EmptySeriesIsNeutral(t *testing.T) {
	out := Analyze(nil, nil)
	if out.Bias != model.BiasNeutral {
		t.Fatalf("expected neutral bias on empty series, got %v", out.Bias)
	}
	if out.Patterns != nil {
		t.Fatal("expected no patterns on empty series")
	}
}

func TestAnalyze_UsesFormingCandleWhenPresent(t *testing.T) {
	closed := []model.TFCandle{candle(0, 100, 105, 95, 102)}
	forming := candle(60, 102, 110, 101, 109)
	out := Analyze(closed, &forming)
	if out.Bias != model.BiasBullish {
		t.Fatalf("expected bullish bias from forming candle, got %v", out.Bias)
	}
}

func TestWickRatios_DojiHasTinyBody(t *testing.T) {
	c := candle(0, 100, 110, 90, 100.5)
	bodyRatio, _, _ := wickRatios(c)
	if bodyRatio >= 0.1 {
		t.Fatalf("expected small body ratio, got %v", bodyRatio)
	}
}

func TestWickRatios_ZeroRangeIsZero(t *testing.T) {
	c := candle(0, 100, 100, 100, 100)
	bodyRatio, upper, lower := wickRatios(c)
	if bodyRatio != 0 || upper != 0 || lower != 0 {
		t.Fatal("expected all ratios zero for a zero-range candle")
	}
}

func TestBias_BullishNearTopWithBullishBody(t *testing.T) {
	c := candle(0, 100, 110, 99, 109)
	if b := bias(c); b != model.BiasBullish {
		t.Fatalf("expected bullish, got %v", b)
	}
}

func TestBias_BearishNearBottomWithBearishBody(t *testing.T) {
	c := candle(0, 109, 110, 99, 100)
	if b := bias(c); b != model.BiasBearish {
		t.Fatalf("expected bearish, got %v", b)
	}
}

func TestBias_NeutralMidRange(t *testing.T) {
	c := candle(0, 103, 110, 99, 105)
	if b := bias(c); b != model.BiasNeutral {
		t.Fatalf("expected neutral, got %v", b)
	}
}

func TestDetectPatterns_BullishEngulfing(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 105, 106, 99, 100),  // bearish body 100-105
		candle(60, 99, 108, 98, 107), // bullish body engulfs prior
	}
	patterns := detectPatterns(series)
	found := false
	for _, p := range patterns {
		if p.Name == "bullish_engulfing" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected bullish_engulfing, got %+v", patterns)
	}
}

func TestDetectPatterns_BearishEngulfing(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 100, 108, 99, 107), // bullish body
		candle(60, 108, 109, 97, 98), // bearish body engulfs prior
	}
	patterns := detectPatterns(series)
	found := false
	for _, p := range patterns {
		if p.Name == "bearish_engulfing" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected bearish_engulfing, got %+v", patterns)
	}
}

func TestDetectPatterns_Hammer(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 100, 101, 90, 100.5),
	}
	patterns := detectPatterns(series)
	found := false
	for _, p := range patterns {
		if p.Name == "hammer" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected hammer, got %+v", patterns)
	}
}

func TestDetectPatterns_ShootingStar(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 100, 112, 99, 100.5),
	}
	patterns := detectPatterns(series)
	found := false
	for _, p := range patterns {
		if p.Name == "shooting_star" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected shooting_star, got %+v", patterns)
	}
}

func TestDetectPatterns_Doji(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 100, 110, 90, 100.2),
	}
	patterns := detectPatterns(series)
	found := false
	for _, p := range patterns {
		if p.Name == "doji" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected doji, got %+v", patterns)
	}
}

func TestDetectPatterns_NoWickRejectionNamedPattern(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 100, 101, 90, 100.5),
	}
	for _, p := range detectPatterns(series) {
		if p.Name == "wick_rejection" {
			t.Fatal("wick rejection must never be emitted as a named pattern")
		}
	}
}

func TestFVGDetected_BullishGap(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 100, 102, 99, 101),
		candle(60, 103, 106, 102.5, 105),
		candle(120, 107, 110, 104, 108), // low (104) > candle 0 high (102)
	}
	if !fvgDetected(series) {
		t.Fatal("expected bullish FVG")
	}
}

func TestFVGDetected_BearishGap(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 108, 110, 106, 107),
		candle(60, 105, 105.5, 101, 102),
		candle(120, 100, 101, 95, 98), // high (101) < candle 0 low (106)
	}
	if !fvgDetected(series) {
		t.Fatal("expected bearish FVG")
	}
}

func TestFVGDetected_NoGapWhenOverlapping(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 100, 105, 99, 102),
		candle(60, 102, 106, 101, 104),
		candle(120, 104, 107, 103, 105),
	}
	if fvgDetected(series) {
		t.Fatal("expected no FVG for overlapping candles")
	}
}

func TestFVGDetected_InsufficientHistory(t *testing.T) {
	series := []model.TFCandle{candle(0, 100, 105, 99, 102)}
	if fvgDetected(series) {
		t.Fatal("expected no FVG with fewer than 3 candles")
	}
}

func TestOrderBlockProbability_ZeroWithInsufficientHistory(t *testing.T) {
	series := []model.TFCandle{candle(0, 100, 101, 99, 100)}
	if p := orderBlockProbability(series); p != 0 {
		t.Fatalf("expected 0 with insufficient history, got %v", p)
	}
}

func TestOrderBlockProbability_InRange(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 100, 101, 95, 96),
		candle(60, 96, 104, 95, 103),
		candle(120, 103, 112, 102, 111),
		candle(180, 111, 120, 110, 119),
		candle(240, 119, 128, 118, 127),
		candle(300, 127, 136, 126, 135),
	}
	p := orderBlockProbability(series)
	if p < 0 || p > 1 {
		t.Fatalf("expected probability in [0,1], got %v", p)
	}
	if p <= 0 {
		t.Fatalf("expected a clean unretraced impulse to score above zero, got %v", p)
	}
}

func TestOrderBlockProbability_ZeroRangeOriginIsZero(t *testing.T) {
	series := []model.TFCandle{
		candle(0, 100, 100, 100, 100),
		candle(60, 100, 104, 99, 103),
		candle(120, 103, 108, 102, 107),
		candle(180, 107, 112, 106, 111),
		candle(240, 111, 116, 110, 115),
		candle(300, 115, 120, 114, 119),
	}
	if p := orderBlockProbability(series); p != 0 {
		t.Fatalf("expected 0 when origin candle has zero range, got %v", p)
	}
}
