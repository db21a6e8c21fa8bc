package sched

import (
	"context"
	"slices"
	"sync"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/ue"
)

// metricsManager hands UE counters to callers of Scheduler.Metrics. The
// counters are collected in the common phase, where no cell touches them.
type metricsManager struct {
	mu      sync.Mutex
	stopped bool
	pending []chan []ue.Metrics
}

// request blocks until the next common phase answers, ctx is done or the
// scheduler stops.
func (m *metricsManager) request(ctx context.Context) ([]ue.Metrics, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	ch := make(chan []ue.Metrics, 1)
	m.pending = append(m.pending, ch)
	m.mu.Unlock()

	select {
	case r, ok := <-ch:
		if !ok {
			return nil, ErrStopped
		}
		return r, nil
	case <-ctx.Done():
		m.mu.Lock()
		defer m.mu.Unlock()
		if i := slices.Index(m.pending, ch); i >= 0 {
			m.pending = slices.Delete(m.pending, i, i+1)
		}
		return nil, ctx.Err()
	}
}

// apply snapshots the counters of every UE carrier if anyone is waiting.
func (m *metricsManager) apply(ues *ue.Map, nofCells int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return
	}
	var out []ue.Metrics
	for _, u := range ues.All() {
		for cc := 0; cc < nofCells; cc++ {
			if c := u.Carrier(cc); c != nil {
				out = append(out, c.TakeMetrics())
			}
		}
	}
	for _, ch := range m.pending {
		ch <- slices.Clone(out)
	}
	m.pending = m.pending[:0]
}

func (m *metricsManager) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for _, ch := range m.pending {
		close(ch)
	}
	m.pending = nil
}
