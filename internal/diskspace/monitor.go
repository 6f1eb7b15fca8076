// Package diskspace reports free space on storage tiers.
//
// Readings are advisory: a failed check (for example a mount point that
// disappeared) is classified Low and logged, never treated as fatal, so a
// flaky external drive can never take down the capture path.
package diskspace

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/xtxerr/buzzcam/internal/logging"
)

var log = logging.Component("diskspace")

// statfs is swappable for tests.
var statfs = unix.Statfs

// Status classifies a free-space reading against a tier threshold.
type Status int

const (
	// StatusOK means free space is above the threshold.
	StatusOK Status = iota

	// StatusLow means free space is below the threshold, or unknown.
	StatusLow
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusLow:
		return "low"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Reading is one free-space observation.
type Reading struct {
	// FreeBytes is the free space available to unprivileged writers.
	// Zero when the check failed.
	FreeBytes int64

	// Status classifies FreeBytes against the tier threshold.
	Status Status
}

// Monitor reads free space for tier directories. Stateless.
type Monitor struct{}

// NewMonitor creates a new monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Check returns the free space under dir classified against lowWater.
// A statfs failure logs a warning and returns a Low reading.
func (m *Monitor) Check(dir string, lowWater int64) Reading {
	var st unix.Statfs_t
	if err := statfs(dir, &st); err != nil {
		log.Warn("free space check failed", "dir", dir, "error", err)
		return Reading{Status: StatusLow}
	}

	free := int64(st.Bavail) * st.Bsize

	r := Reading{FreeBytes: free, Status: StatusOK}
	if free < lowWater {
		r.Status = StatusLow
	}
	return r
}
