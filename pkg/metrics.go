package pkg

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Metrics counts dispatch outcomes. The zero value is ready to use and
// safe for concurrent use.
type Metrics struct {
	dispatched atomic.Int64
	failed     atomic.Int64
	byStage    [stageCount]atomic.Int64
	panics     atomic.Int64
	expired    atomic.Int64

	totalNanos atomic.Int64
	maxNanos   atomic.Int64
}

// Stats is a point-in-time copy of Metrics.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Failed     int64 `json:"failed"`
	// FailedByStage splits Failed by where the dispatch stopped. Failures
	// that are not a *DispatchError, such as those raised by middleware,
	// only count towards Failed.
	FailedByStage map[Stage]int64 `json:"failedByStage"`
	// Panics counts failures caused by a recovered panic.
	Panics int64 `json:"panics"`
	// Expired counts dispatches that returned after their context deadline,
	// whatever their result.
	Expired     int64         `json:"expired"`
	AvgDuration time.Duration `json:"avgDuration"`
	MaxDuration time.Duration `json:"maxDuration"`
}

const stageCount = 3

func stageIndex(s Stage) (int, bool) {
	switch s {
	case StagePre:
		return 0, true
	case StageMatching:
		return 1, true
	case StagePost:
		return 2, true
	}
	return 0, false
}

var stages = [stageCount]Stage{StagePre, StageMatching, StagePost}

// Observe records one finished dispatch. ctx is the context the dispatch
// ran with and is only inspected for an expired deadline.
func (m *Metrics) Observe(ctx context.Context, took time.Duration, err error) {
	m.dispatched.Add(1)
	m.totalNanos.Add(int64(took))
	for {
		cur := m.maxNanos.Load()
		if int64(took) <= cur || m.maxNanos.CompareAndSwap(cur, int64(took)) {
			break
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		m.expired.Add(1)
	}
	if err == nil {
		return
	}

	m.failed.Add(1)
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		if i, ok := stageIndex(dispatchErr.Stage); ok {
			m.byStage[i].Add(1)
		}
	}
	if errors.Is(err, ErrHandlerPanic) {
		m.panics.Add(1)
	}
}

// Stats returns the current counters.
func (m *Metrics) Stats() Stats {
	s := Stats{
		Dispatched:    m.dispatched.Load(),
		Failed:        m.failed.Load(),
		FailedByStage: make(map[Stage]int64, stageCount),
		Panics:        m.panics.Load(),
		Expired:       m.expired.Load(),
		MaxDuration:   time.Duration(m.maxNanos.Load()),
	}
	for i, stage := range stages {
		s.FailedByStage[stage] = m.byStage[i].Load()
	}
	if s.Dispatched > 0 {
		s.AvgDuration = time.Duration(m.totalNanos.Load() / s.Dispatched)
	}
	return s
}
