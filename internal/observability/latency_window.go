package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Stage is one measured point of a chat turn, timed from the moment the user
// message is accepted (memory_write is timed on its own).
type Stage string

const (
	StageContextReady   Stage = "input_to_context_ready"
	StageFirstReasoning Stage = "input_to_first_reasoning"
	StageFirstReply     Stage = "input_to_first_reply"
	StageMemoryWrite    Stage = "memory_write"
	StageTurnTotal      Stage = "turn_total"
)

type stageTarget struct {
	stage    Stage
	targetMS float64
}

// turnStages lists the stages in pipeline order with their p95 targets in ms.
var turnStages = []stageTarget{
	{StageContextReady, 150},
	{StageFirstReasoning, 1500},
	{StageFirstReply, 2500},
	{StageMemoryWrite, 200},
	{StageTurnTotal, 8000},
}

// Indicator counts turn outcomes that are not latencies.
type Indicator string

const (
	IndicatorReplyNotPersisted Indicator = "reply_not_persisted"
	IndicatorMemoryError       Indicator = "memory_error"
)

type StageStats struct {
	Stage       Stage   `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms"`
	// OverTarget counts samples in the window slower than the target.
	OverTarget int `json:"over_target"`
}

type TurnIndicators struct {
	ReplyNotPersisted int `json:"reply_not_persisted"`
	MemoryErrors      int `json:"memory_errors"`
}

// LatencySnapshot is the payload of the perf endpoint.
type LatencySnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []StageStats   `json:"stages"`
	Indicators  TurnIndicators `json:"indicators"`
}

// latencyWindow keeps the last size samples of every turn stage in a ring.
// Unknown stages and indicators are ignored.
type latencyWindow struct {
	mu         sync.Mutex
	size       int
	rings      [][]float64
	next       []int
	last       []float64
	indicators TurnIndicators
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	w := &latencyWindow{size: size}
	w.reset()
	return w
}

func (w *latencyWindow) reset() {
	w.rings = make([][]float64, len(turnStages))
	w.next = make([]int, len(turnStages))
	w.last = make([]float64, len(turnStages))
	w.indicators = TurnIndicators{}
}

func stageIndex(s Stage) int {
	return slices.IndexFunc(turnStages, func(t stageTarget) bool { return t.stage == s })
}

func (w *latencyWindow) observe(stage Stage, ms float64) {
	i := stageIndex(stage)
	if i < 0 || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.rings[i]) < w.size {
		w.rings[i] = append(w.rings[i], ms)
	} else {
		w.rings[i][w.next[i]] = ms
	}
	w.next[i] = (w.next[i] + 1) % w.size
	w.last[i] = ms
}

func (w *latencyWindow) count(ind Indicator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch ind {
	case IndicatorReplyNotPersisted:
		w.indicators.ReplyNotPersisted++
	case IndicatorMemoryError:
		w.indicators.MemoryErrors++
	}
}

func (w *latencyWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(turnStages)),
		Indicators:  w.indicators,
	}
	for i, ts := range turnStages {
		if len(w.rings[i]) == 0 {
			continue
		}
		sorted := slices.Clone(w.rings[i])
		slices.Sort(sorted)

		var sum float64
		over := 0
		for _, v := range sorted {
			sum += v
			if v > ts.targetMS {
				over++
			}
		}
		snap.Stages = append(snap.Stages, StageStats{
			Stage:       ts.stage,
			Samples:     len(sorted),
			LastMS:      round2(w.last[i]),
			AvgMS:       round2(sum / float64(len(sorted))),
			P50MS:       round2(nearestRank(sorted, 0.50)),
			P95MS:       round2(nearestRank(sorted, 0.95)),
			P99MS:       round2(nearestRank(sorted, 0.99)),
			TargetP95MS: ts.targetMS,
			OverTarget:  over,
		})
	}
	return snap
}

// nearestRank returns the q-quantile of an ascending slice by the
// nearest-rank method, so every reported value is an observed sample.
func nearestRank(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
