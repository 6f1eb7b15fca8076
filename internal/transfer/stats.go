package transfer

import (
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Stats tracks cumulative transfer statistics for the life of the process.
// Per-file throughput goes into a DDSketch so cycle summaries can report
// percentiles without keeping every observation. Nothing here is persisted.
type Stats struct {
	mu sync.Mutex

	files    int64
	failures int64
	bytes    int64

	// MiB/s per transferred file; nil if sketch creation failed.
	rates *ddsketch.DDSketch
}

// StatsSnapshot is a point-in-time copy of the statistics.
type StatsSnapshot struct {
	Files    int64
	Failures int64
	Bytes    int64

	// RateP50 and RateP95 are MiB/s percentiles; zero until the first
	// successful transfer.
	RateP50 float64
	RateP95 float64
}

// NewStats creates transfer statistics with 1% relative accuracy sketches.
func NewStats() *Stats {
	s := &Stats{}
	if sketch, err := ddsketch.NewDefaultDDSketch(0.01); err == nil {
		s.rates = sketch
	}
	return s
}

// RecordTransfer records one successfully transferred file.
func (s *Stats) RecordTransfer(bytes int64, dur time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files++
	s.bytes += bytes

	if s.rates != nil && dur > 0 {
		mibps := float64(bytes) / (1024 * 1024) / dur.Seconds()
		_ = s.rates.Add(mibps)
	}
}

// RecordFailure records one failed transfer attempt.
func (s *Stats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Files:    s.files,
		Failures: s.failures,
		Bytes:    s.bytes,
	}

	if s.rates != nil && s.files > 0 {
		if v, err := s.rates.GetValueAtQuantile(0.5); err == nil {
			snap.RateP50 = v
		}
		if v, err := s.rates.GetValueAtQuantile(0.95); err == nil {
			snap.RateP95 = v
		}
	}

	return snap
}
