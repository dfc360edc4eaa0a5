package transport

import (
	"sync"
	"time"
)

// latencyWindow bounds the number of retained round-trip samples
const latencyWindow = 20

// LatencyMetrics is a snapshot of health-check round-trip times in
// milliseconds over the current sample window.
type LatencyMetrics struct {
	Current int64   `json:"current"`
	Average int64   `json:"average"`
	Min     int64   `json:"min"`
	Max     int64   `json:"max"`
	Samples []int64 `json:"samples"`
}

// latencyTracker accumulates health-check samples in a bounded window
type latencyTracker struct {
	mu      sync.Mutex
	samples []int64
}

func newLatencyTracker() *latencyTracker {
	return &latencyTracker{
		samples: make([]int64, 0, latencyWindow),
	}
}

// record appends one round-trip sample, dropping the oldest beyond the
// window, and returns the recomputed snapshot.
func (lt *latencyTracker) record(rtt time.Duration) LatencyMetrics {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.samples = append(lt.samples, rtt.Milliseconds())
	if len(lt.samples) > latencyWindow {
		lt.samples = lt.samples[len(lt.samples)-latencyWindow:]
	}
	return lt.snapshotLocked()
}

// snapshot returns a defensive copy of the current metrics
func (lt *latencyTracker) snapshot() LatencyMetrics {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.snapshotLocked()
}

func (lt *latencyTracker) snapshotLocked() LatencyMetrics {
	m := LatencyMetrics{
		Samples: make([]int64, len(lt.samples)),
	}
	copy(m.Samples, lt.samples)

	if len(lt.samples) == 0 {
		return m
	}

	m.Current = lt.samples[len(lt.samples)-1]
	m.Min = lt.samples[0]
	m.Max = lt.samples[0]
	var sum int64
	for _, s := range lt.samples {
		if s < m.Min {
			m.Min = s
		}
		if s > m.Max {
			m.Max = s
		}
		sum += s
	}
	m.Average = sum / int64(len(lt.samples))
	return m
}

// reset discards all samples
func (lt *latencyTracker) reset() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.samples = lt.samples[:0]
}
