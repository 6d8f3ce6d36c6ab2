package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

type stage int

const (
	stageA stage = iota
	stageB
	stageC
	numStages
)

// PerformanceStats is a point-in-time snapshot of the pipeline's rolling
// throughput and timing figures. GetPerformanceStats returns this by value,
// never a reference into the live state, so callers can't observe torn
// updates.
type PerformanceStats struct {
	AvgStageANanos int64
	AvgStageBNanos int64
	AvgStageCNanos int64
	TotalFrames    uint64
	DroppedA       uint64
	DroppedB       uint64
	DroppedC       uint64
	DroppedR       uint64
	ErrorsB        uint64
	ErrorsC        uint64
	FPS            float64
}

// statsCollector accumulates rolling per-stage averages under a mutex,
// matching the teacher's preference for explicit synchronization over ad
// hoc atomics when several related fields move together.
type statsCollector struct {
	mu         sync.Mutex
	avgNanos   [numStages]int64
	sampleN    [numStages]uint64
	totalFrames uint64
	startedAt  time.Time
	startOnce  sync.Once
}

func (s *statsCollector) recordStage(st stage, d time.Duration) {
	s.startOnce.Do(func() { s.startedAt = time.Now() })

	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.sampleN[st]
	// running average: avg_new = avg_old + (sample - avg_old) / (n+1)
	s.avgNanos[st] += (d.Nanoseconds() - s.avgNanos[st]) / int64(n+1)
	s.sampleN[st] = n + 1
}

func (s *statsCollector) incrementFrames() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalFrames++
}

func (s *statsCollector) snapshot(droppedA, droppedB, droppedC, droppedR, errorsB, errorsC *uint64) PerformanceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fps float64
	if !s.startedAt.IsZero() {
		elapsed := time.Since(s.startedAt).Seconds()
		if elapsed > 0 {
			fps = float64(s.totalFrames) / elapsed
		}
	}

	return PerformanceStats{
		AvgStageANanos: s.avgNanos[stageA],
		AvgStageBNanos: s.avgNanos[stageB],
		AvgStageCNanos: s.avgNanos[stageC],
		TotalFrames:    s.totalFrames,
		DroppedA:       atomic.LoadUint64(droppedA),
		DroppedB:       atomic.LoadUint64(droppedB),
		DroppedC:       atomic.LoadUint64(droppedC),
		DroppedR:       atomic.LoadUint64(droppedR),
		ErrorsB:        atomic.LoadUint64(errorsB),
		ErrorsC:        atomic.LoadUint64(errorsC),
		FPS:            fps,
	}
}

// GetPerformanceStats returns a snapshot of the pipeline's rolling
// statistics: per-stage average processing time, total frames completed,
// per-queue drop counters, and derived throughput.
func (p *Pipeline) GetPerformanceStats() PerformanceStats {
	return p.stats.snapshot(&p.droppedA, &p.droppedB, &p.droppedC, &p.droppedR, &p.errorsB, &p.errorsC)
}
