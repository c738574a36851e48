package observability

import (
	"testing"
	"time"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.observe(StageFirstReply, 500)
	w.observe(StageFirstReply, 700)
	w.observe(StageFirstReply, 2900)
	w.observe(StageContextReady, 20)
	w.count(IndicatorReplyNotPersisted)
	w.count(IndicatorReplyNotPersisted)
	w.count(IndicatorMemoryError)

	snap := w.snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(snap.Stages))
	}
	if snap.Stages[0].Stage != StageContextReady || snap.Stages[1].Stage != StageFirstReply {
		t.Fatalf("Stages = %q, %q, want pipeline order", snap.Stages[0].Stage, snap.Stages[1].Stage)
	}

	s := snap.Stages[1]
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 2900 {
		t.Fatalf("LastMS = %.2f, want 2900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS != 2900 {
		t.Fatalf("P95MS = %.2f, want 2900", s.P95MS)
	}
	if s.TargetP95MS != 2500 || s.OverTarget != 1 {
		t.Fatalf("target = %.0f over = %d, want 2500 and 1", s.TargetP95MS, s.OverTarget)
	}

	want := TurnIndicators{ReplyNotPersisted: 2, MemoryErrors: 1}
	if snap.Indicators != want {
		t.Fatalf("Indicators = %+v, want %+v", snap.Indicators, want)
	}
}

func TestLatencyWindowIgnoresUnknownStage(t *testing.T) {
	w := newLatencyWindow(4)
	w.observe("tts_first_audio", 10)
	w.observe(StageTurnTotal, -1)
	w.count("barge_in")

	snap := w.snapshot()
	if len(snap.Stages) != 0 {
		t.Fatalf("Stages = %+v, want none", snap.Stages)
	}
	if snap.Indicators != (TurnIndicators{}) {
		t.Fatalf("Indicators = %+v, want zero", snap.Indicators)
	}
}

func TestLatencyWindowWrapsAround(t *testing.T) {
	w := newLatencyWindow(2)
	w.observe(StageTurnTotal, 10)
	w.observe(StageTurnTotal, 20)
	w.observe(StageTurnTotal, 30)

	s := w.snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 25 {
		t.Fatalf("AvgMS = %.2f, want 25", s.AvgMS)
	}
	if s.LastMS != 30 {
		t.Fatalf("LastMS = %.2f, want 30", s.LastMS)
	}
}

func TestMetricsTurnStages(t *testing.T) {
	m := NewMetrics("test_metrics_turn_stages")
	m.ObserveTurnStage(StageMemoryWrite, 3*time.Millisecond)
	m.ObserveTurnIndicator(IndicatorMemoryError)

	snap := m.SnapshotTurnStages()
	if len(snap.Stages) != 1 || snap.Stages[0].LastMS != 3 {
		t.Fatalf("Stages = %+v, want one memory_write sample of 3ms", snap.Stages)
	}
	if snap.Indicators.MemoryErrors != 1 {
		t.Fatalf("MemoryErrors = %d, want 1", snap.Indicators.MemoryErrors)
	}
	m.ResetTurnStages()
	if got := len(m.SnapshotTurnStages().Stages); got != 0 {
		t.Fatalf("len(Stages) after reset = %d, want 0", got)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveTurnStage(StageTurnTotal, time.Second)
	nilMetrics.ObserveTurnIndicator(IndicatorReplyNotPersisted)
}
