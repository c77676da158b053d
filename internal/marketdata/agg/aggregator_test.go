package agg

import (
	"testing"
	"time"

	"trading-systemv1/internal/model"
)

func mkTick(epoch int64, price float64) model.Tick {
	return model.Tick{
		Token:    "BTCUSD",
		Exchange: "SIM",
		Price:    price,
		TickTS:   time.Unix(epoch, 0).UTC(),
	}
}

func TestAggregator_FirstTickOpensForming(t *testing.T) {
	a := New()
	a.ProcessTick(mkTick(1000, 100), "SIM:BTCUSD", 60)

	f := a.GetFormingCandle("SIM:BTCUSD", 60)
	if f == nil {
		t.Fatal("expected forming candle after first tick")
	}
	if f.StartEpoch != 960 {
		t.Fatalf("expected bucket 960, got %d", f.StartEpoch)
	}
	if f.Open != 100 || f.High != 100 || f.Low != 100 || f.Close != 100 {
		t.Fatalf("expected OHLC all 100, got %+v", f)
	}
	if f.TickCount != 1 || !f.Forming {
		t.Fatalf("expected tickCount=1 forming=true, got %+v", f)
	}
	if len(a.GetClosedCandles("SIM:BTCUSD", 60)) != 0 {
		t.Fatal("expected no closed candles yet")
	}
}

func TestAggregator_SameBucketUpdatesOHLC(t *testing.T) {
	a := New()
	a.ProcessTick(mkTick(1000, 100), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(1010, 105), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(1015, 95), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(1019, 102), "SIM:BTCUSD", 60)

	f := a.GetFormingCandle("SIM:BTCUSD", 60)
	if f.Open != 100 || f.High != 105 || f.Low != 95 || f.Close != 102 {
		t.Fatalf("unexpected OHLC: %+v", f)
	}
	if f.TickCount != 4 {
		t.Fatalf("expected tickCount=4, got %d", f.TickCount)
	}
}

func TestAggregator_NewBucketClosesPrevious(t *testing.T) {
	a := New()
	a.ProcessTick(mkTick(1000, 100), "SIM:BTCUSD", 60) // bucket 960
	a.ProcessTick(mkTick(1019, 110), "SIM:BTCUSD", 60) // still bucket 960
	a.ProcessTick(mkTick(1060, 120), "SIM:BTCUSD", 60) // bucket 1020 — closes 960

	closed := a.GetClosedCandles("SIM:BTCUSD", 60)
	if len(closed) != 1 {
		t.Fatalf("expected 1 closed candle, got %d", len(closed))
	}
	if closed[0].StartEpoch != 960 || closed[0].Forming {
		t.Fatalf("unexpected closed candle: %+v", closed[0])
	}
	if closed[0].Close != 110 {
		t.Fatalf("expected closed candle close=110, got %v", closed[0].Close)
	}

	f := a.GetFormingCandle("SIM:BTCUSD", 60)
	if f.StartEpoch != 1020 || f.Open != 120 {
		t.Fatalf("unexpected new forming candle: %+v", f)
	}
}

func TestAggregator_OutOfOrderTickIgnored(t *testing.T) {
	a := New()
	a.ProcessTick(mkTick(1060, 120), "SIM:BTCUSD", 60) // bucket 1020
	a.ProcessTick(mkTick(1000, 999), "SIM:BTCUSD", 60) // bucket 960, behind forming — ignored

	f := a.GetFormingCandle("SIM:BTCUSD", 60)
	if f.StartEpoch != 1020 || f.Open != 120 || f.TickCount != 1 {
		t.Fatalf("out-of-order tick should have been ignored, got %+v", f)
	}
	if len(a.GetClosedCandles("SIM:BTCUSD", 60)) != 0 {
		t.Fatal("expected no closed candles from an ignored out-of-order tick")
	}
}

func TestAggregator_SkippedBucketLeavesGapNoSyntheticCandle(t *testing.T) {
	a := New()
	a.ProcessTick(mkTick(1000, 100), "SIM:BTCUSD", 60) // bucket 960
	a.ProcessTick(mkTick(1300, 200), "SIM:BTCUSD", 60) // bucket 1260, skips several buckets

	closed := a.GetClosedCandles("SIM:BTCUSD", 60)
	if len(closed) != 1 {
		t.Fatalf("expected exactly 1 closed candle (no fabricated gap fill), got %d", len(closed))
	}
	if closed[0].StartEpoch != 960 {
		t.Fatalf("expected closed bucket 960, got %d", closed[0].StartEpoch)
	}
}

func TestAggregator_TieBreakAtExactBoundaryStartsNewBucket(t *testing.T) {
	a := New()
	a.ProcessTick(mkTick(960, 100), "SIM:BTCUSD", 60)  // bucket 960
	a.ProcessTick(mkTick(1020, 200), "SIM:BTCUSD", 60) // exactly bucket+timeframe — new bucket

	closed := a.GetClosedCandles("SIM:BTCUSD", 60)
	if len(closed) != 1 || closed[0].StartEpoch != 960 {
		t.Fatalf("expected bucket 960 closed, got %+v", closed)
	}
	f := a.GetFormingCandle("SIM:BTCUSD", 60)
	if f.StartEpoch != 1020 {
		t.Fatalf("expected new forming bucket 1020, got %d", f.StartEpoch)
	}
}

func TestAggregator_CapacityEviction(t *testing.T) {
	a := New()
	a.Initialize("SIM:BTCUSD", 60, nil, 2)

	a.ProcessTick(mkTick(0, 1), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(60, 2), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(120, 3), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(180, 4), "SIM:BTCUSD", 60)

	closed := a.GetClosedCandles("SIM:BTCUSD", 60)
	if len(closed) != 2 {
		t.Fatalf("expected capacity-bounded 2 closed candles, got %d", len(closed))
	}
	if closed[0].StartEpoch != 60 || closed[1].StartEpoch != 120 {
		t.Fatalf("expected oldest evicted, got %+v", closed)
	}
}

func TestAggregator_InitializeSeedsHistoryAndClearsForming(t *testing.T) {
	a := New()
	history := []model.TFCandle{
		{Token: "BTCUSD", Exchange: "SIM", TF: 60, StartEpoch: 0, Close: 10},
		{Token: "BTCUSD", Exchange: "SIM", TF: 60, StartEpoch: 60, Close: 20},
	}
	a.Initialize("SIM:BTCUSD", 60, history, 500)

	closed := a.GetClosedCandles("SIM:BTCUSD", 60)
	if len(closed) != 2 {
		t.Fatalf("expected 2 seeded closed candles, got %d", len(closed))
	}
	if a.GetFormingCandle("SIM:BTCUSD", 60) != nil {
		t.Fatal("expected no forming candle right after initialize")
	}
}

func TestAggregator_MalformedTickDropped(t *testing.T) {
	a := New()
	var dropped int
	a.OnMalformedTick = func(symbol string, tf int) { dropped++ }

	a.ProcessTick(mkTick(1000, -5), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(1000, 0), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(1000, 100), "SIM:BTCUSD", 0)

	if dropped != 3 {
		t.Fatalf("expected 3 malformed ticks dropped, got %d", dropped)
	}
	if a.GetFormingCandle("SIM:BTCUSD", 60) != nil {
		t.Fatal("malformed ticks must not open a forming candle")
	}
}

func TestAggregator_OnCandleClosedHook(t *testing.T) {
	a := New()
	var closed int
	a.OnCandleClosed = func(symbol string, tf int) { closed++ }

	a.ProcessTick(mkTick(1000, 100), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(1010, 101), "SIM:BTCUSD", 60)
	if closed != 0 {
		t.Fatalf("no candle should have closed yet, got %d", closed)
	}
	a.ProcessTick(mkTick(1060, 102), "SIM:BTCUSD", 60)
	if closed != 1 {
		t.Fatalf("expected 1 closed-candle callback, got %d", closed)
	}
}

func TestAggregator_Cleanup(t *testing.T) {
	a := New()
	a.ProcessTick(mkTick(1000, 100), "SIM:BTCUSD", 60)
	a.Cleanup("SIM:BTCUSD", 60)

	if a.GetFormingCandle("SIM:BTCUSD", 60) != nil {
		t.Fatal("expected no forming candle after cleanup")
	}
	if len(a.GetClosedCandles("SIM:BTCUSD", 60)) != 0 {
		t.Fatal("expected no closed candles after cleanup")
	}
}

func TestAggregator_TickWindowTracksRecentTicks(t *testing.T) {
	a := New()
	a.ProcessTick(mkTick(1000, 100), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(1010, 101), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(1015, 102), "SIM:BTCUSD", 60)

	ticks := a.GetFormingTickWindow("SIM:BTCUSD", 60)
	if len(ticks) != 3 {
		t.Fatalf("expected 3 recent ticks, got %d", len(ticks))
	}
	if ticks[0] != 100 || ticks[2] != 102 {
		t.Fatalf("expected oldest-first tick prices, got %v", ticks)
	}
}

func TestAggregator_TickWindowBoundedAndResetsOnNewBucket(t *testing.T) {
	a := New()
	for i := 0; i < 15; i++ {
		a.ProcessTick(mkTick(1000+int64(i), float64(100+i)), "SIM:BTCUSD", 60)
	}
	ticks := a.GetFormingTickWindow("SIM:BTCUSD", 60)
	if len(ticks) != DefaultTickWindow {
		t.Fatalf("expected window bounded to %d, got %d", DefaultTickWindow, len(ticks))
	}
	if ticks[len(ticks)-1] != 114 {
		t.Fatalf("expected latest tick retained, got %v", ticks)
	}

	a.ProcessTick(mkTick(1060, 500), "SIM:BTCUSD", 60) // new bucket
	ticks = a.GetFormingTickWindow("SIM:BTCUSD", 60)
	if len(ticks) != 1 || ticks[0] != 500 {
		t.Fatalf("expected tick window reset on new forming candle, got %v", ticks)
	}
}

func TestAggregator_TickWindowNilWithNoForming(t *testing.T) {
	a := New()
	if ticks := a.GetFormingTickWindow("SIM:BTCUSD", 60); ticks != nil {
		t.Fatalf("expected nil tick window with no forming candle, got %v", ticks)
	}
}

func TestAggregator_IndependentWindowsPerTimeframe(t *testing.T) {
	a := New()
	a.ProcessTick(mkTick(1000, 100), "SIM:BTCUSD", 60)
	a.ProcessTick(mkTick(1000, 100), "SIM:BTCUSD", 300)

	f60 := a.GetFormingCandle("SIM:BTCUSD", 60)
	f300 := a.GetFormingCandle("SIM:BTCUSD", 300)
	if f60.StartEpoch == f300.StartEpoch && f60.TF == f300.TF {
		t.Fatal("expected distinct windows per timeframe")
	}
	if f60.TF != 60 || f300.TF != 300 {
		t.Fatalf("unexpected TF values: %d %d", f60.TF, f300.TF)
	}
}
