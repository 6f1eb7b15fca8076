// Package transfer moves completed chunks from the local tier to the
// external tier with copy-verify-delete semantics.
//
// A chunk is deleted from the local tier only after a destination file of
// identical size exists on the external tier. Per-file failures are
// contained and retried on the next cycle; an unavailable external tier
// aborts the whole cycle. At most one cycle runs at a time: a periodic tick
// that fires mid-cycle is skipped, not queued, and concurrent flush requests
// collapse into a single cycle.
package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/buzzcam/internal/chunk"
	"github.com/xtxerr/buzzcam/internal/diskspace"
	"github.com/xtxerr/buzzcam/internal/errors"
	"github.com/xtxerr/buzzcam/internal/logging"
)

var log = logging.Component("transfer")

// ActiveChunkFunc reports the chunk currently open for writing, if any.
// The worker re-reads it at the start of every cycle.
type ActiveChunkFunc func() (path string, recording bool)

// Record is the outcome of one transfer attempt. Emitted for logging and
// statistics, then discarded.
type Record struct {
	Name     string
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Success reports whether the transfer attempt succeeded.
func (r Record) Success() bool {
	return r.Err == nil
}

// CycleResult summarizes one transfer cycle.
type CycleResult struct {
	// Eligible is how many chunks were considered for transfer.
	Eligible int

	// Excluded is how many chunks were skipped as actively recording.
	Excluded int

	// Transferred is how many chunks were copied, verified, and deleted.
	Transferred int

	// Failed is how many chunks hit a per-file error this cycle.
	Failed int

	// Bytes is the total bytes moved.
	Bytes int64
}

// Worker is the background transfer worker.
type Worker struct {
	local       *chunk.Catalog
	externalDir string

	interval     time.Duration
	pollInterval time.Duration

	active ActiveChunkFunc

	// LowWater, when positive, enables an advisory free-space check on
	// the external tier at the start of each cycle. A low reading is
	// logged once per cycle and never blocks the transfer.
	LowWater int64

	disk *diskspace.Monitor

	// cycleMu serializes cycles. Loop uses TryLock so a tick that lands
	// mid-cycle is skipped rather than queued.
	cycleMu sync.Mutex

	// flushGroup collapses concurrent shutdown flush requests.
	flushGroup singleflight.Group

	lastMu    sync.Mutex
	lastCycle time.Time

	stats *Stats

	// copyFile is swappable for tests.
	copyFile func(src, dst string) error
}

// NewWorker creates a transfer worker between the two tier directories.
// active supplies the current ActiveChunkHandle and is consulted at the
// start of every cycle.
func NewWorker(localDir, externalDir string, interval, pollInterval time.Duration, active ActiveChunkFunc) *Worker {
	return &Worker{
		local:        chunk.NewCatalog(localDir, chunk.TierLocal),
		externalDir:  externalDir,
		interval:     interval,
		pollInterval: pollInterval,
		active:       active,
		disk:         diskspace.NewMonitor(),
		lastCycle:    time.Now(),
		stats:        NewStats(),
		copyFile:     copyAtomic,
	}
}

// Stats returns the worker's cumulative statistics.
func (w *Worker) Stats() StatsSnapshot {
	return w.stats.Snapshot()
}

// Loop runs the periodic transfer schedule until ctx is canceled.
// Cycle errors are logged and retried on the next due tick; they never
// terminate the loop.
func (w *Worker) Loop(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !w.due() {
				continue
			}
			if _, ran, err := w.TryCycle(); ran && err != nil {
				if errors.IsRetriable(err) {
					log.Warn("transfer cycle failed, will retry", "error", err)
				} else {
					log.Error("transfer cycle failed", "error", err)
				}
			}
		}
	}
}

// due reports whether the transfer interval has elapsed since the last
// completed cycle.
func (w *Worker) due() bool {
	w.lastMu.Lock()
	defer w.lastMu.Unlock()
	return time.Since(w.lastCycle) >= w.interval
}

// TryCycle runs a cycle unless one is already in progress, in which case
// it reports ran=false and does nothing.
func (w *Worker) TryCycle() (CycleResult, bool, error) {
	if !w.cycleMu.TryLock() {
		log.Debug("transfer tick skipped, cycle in progress")
		return CycleResult{}, false, nil
	}
	defer w.cycleMu.Unlock()

	res, err := w.runCycle()
	return res, true, err
}

// RunCycle runs a cycle, waiting for any in-progress cycle to finish first.
func (w *Worker) RunCycle() (CycleResult, error) {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()
	return w.runCycle()
}

// Flush runs a final cycle for shutdown. Concurrent callers share a single
// cycle, so the orchestrator's inline fallback cannot double-run.
func (w *Worker) Flush() (CycleResult, error) {
	v, err, _ := w.flushGroup.Do("flush", func() (interface{}, error) {
		res, err := w.RunCycle()
		return res, err
	})
	res, _ := v.(CycleResult)
	return res, err
}

// runCycle performs one transfer pass. Caller holds cycleMu.
func (w *Worker) runCycle() (CycleResult, error) {
	var res CycleResult
	start := time.Now()

	// The whole cycle is abandoned when the external tier is missing:
	// partial attempts against an unmounted directory would only litter
	// the mount point.
	if fi, err := os.Stat(w.externalDir); err != nil || !fi.IsDir() {
		log.Warn("external tier unavailable, skipping cycle", "dir", w.externalDir)
		return res, errors.Wrapf(errors.ErrTierUnavailable, "%s", w.externalDir)
	}

	if w.LowWater > 0 {
		if r := w.disk.Check(w.externalDir, w.LowWater); r.Status == diskspace.StatusLow {
			log.Warn("external tier low on space",
				"free_bytes", r.FreeBytes, "low_water", w.LowWater)
		}
	}

	chunks, err := w.local.List()
	if err != nil {
		log.Warn("local tier scan failed, skipping cycle", "error", err)
		return res, errors.Wrapf(errors.ErrTierUnavailable, "list local tier: %v", err)
	}

	// Re-read the active handle inside the cycle so an eligibility
	// snapshot can never predate the latest segment rollover.
	activePath, recording := w.active()

	for _, c := range chunks {
		if recording && c.Path == activePath {
			res.Excluded++
			continue
		}
		res.Eligible++

		rec := w.transferOne(c)
		if rec.Success() {
			res.Transferred++
			res.Bytes += rec.Bytes
			w.stats.RecordTransfer(rec.Bytes, rec.Duration)
			log.Info("transferred chunk",
				"name", rec.Name,
				"bytes", rec.Bytes,
				"duration", rec.Duration.Round(time.Millisecond),
			)
		} else {
			res.Failed++
			w.stats.RecordFailure()
			log.Error("chunk transfer failed",
				"name", rec.Name,
				"error", rec.Err,
			)
		}
	}

	w.lastMu.Lock()
	w.lastCycle = time.Now()
	w.lastMu.Unlock()

	if res.Eligible > 0 {
		snap := w.stats.Snapshot()
		log.Info("transfer cycle complete",
			"transferred", res.Transferred,
			"failed", res.Failed,
			"excluded", res.Excluded,
			"gib", fmt.Sprintf("%.2f", float64(res.Bytes)/(1024*1024*1024)),
			"duration", time.Since(start).Round(time.Millisecond),
			"rate_p50_mibps", fmt.Sprintf("%.1f", snap.RateP50),
			"rate_p95_mibps", fmt.Sprintf("%.1f", snap.RateP95),
		)
	} else {
		log.Info("no chunks ready for transfer")
	}

	return res, nil
}

// transferOne copies one chunk to the external tier, verifies the copy by
// size, and deletes the source. On any failure the source is left in place
// and the chunk stays eligible for the next cycle.
func (w *Worker) transferOne(c chunk.Chunk) Record {
	rec := Record{Name: c.Name}
	dst := filepath.Join(w.externalDir, c.Name)
	start := time.Now()

	if err := w.copyFile(c.Path, dst); err != nil {
		rec.Err = errors.Wrapf(err, "copy %s", c.Name)
		return rec
	}

	srcInfo, err := os.Stat(c.Path)
	if err != nil {
		rec.Err = errors.Wrapf(err, "stat source %s", c.Name)
		return rec
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		rec.Err = errors.Wrapf(err, "stat destination %s", c.Name)
		return rec
	}

	if dstInfo.Size() != srcInfo.Size() {
		rec.Err = errors.Wrapf(errors.ErrVerifyMismatch,
			"%s: local=%d external=%d", c.Name, srcInfo.Size(), dstInfo.Size())
		return rec
	}

	// Deletion strictly follows the verified destination write.
	if err := os.Remove(c.Path); err != nil {
		rec.Err = errors.Wrapf(err, "remove source %s", c.Name)
		return rec
	}

	rec.Bytes = srcInfo.Size()
	rec.Duration = time.Since(start)
	return rec
}
