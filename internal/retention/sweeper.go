// Package retention deletes aged-out chunks from the external tier.
package retention

import (
	"context"
	"os"
	"time"

	"github.com/xtxerr/buzzcam/internal/chunk"
	"github.com/xtxerr/buzzcam/internal/logging"
)

var log = logging.Component("retention")

// Result summarizes one sweep.
type Result struct {
	FilesDeleted int
	BytesFreed   int64
	FilesKept    int
	Errors       int
}

// Sweeper removes chunks older than MaxAge from the external tier. Age is
// measured from file modification time, and only files strictly older than
// the cutoff are removed: a chunk exactly at the boundary is kept.
type Sweeper struct {
	catalog *chunk.Catalog
	maxAge  time.Duration

	// DryRun logs what would be deleted without touching anything.
	DryRun bool

	// now is swappable for tests.
	now func() time.Time
}

// NewSweeper creates a sweeper over the external tier directory.
func NewSweeper(externalDir string, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		catalog: chunk.NewCatalog(externalDir, chunk.TierExternal),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Sweep walks the external tier once and deletes expired chunks. Per-file
// delete errors are logged and skipped; a missing external tier is not an
// error, the sweep simply finds nothing.
func (s *Sweeper) Sweep() Result {
	var res Result

	chunks, err := s.catalog.List()
	if err != nil {
		log.Warn("external tier not readable, skipping sweep",
			"dir", s.catalog.Dir(), "error", err)
		return res
	}

	now := s.now()
	for _, c := range chunks {
		age := c.Age(now)
		if age <= s.maxAge {
			res.FilesKept++
			continue
		}

		if s.DryRun {
			log.Info("would delete expired chunk",
				"name", c.Name, "age", age.Round(time.Hour))
			res.FilesDeleted++
			res.BytesFreed += c.SizeBytes
			continue
		}

		if err := os.Remove(c.Path); err != nil {
			log.Error("failed to delete expired chunk",
				"name", c.Name, "error", err)
			res.Errors++
			continue
		}

		res.FilesDeleted++
		res.BytesFreed += c.SizeBytes
		log.Info("deleted expired chunk",
			"name", c.Name, "age", age.Round(time.Hour), "bytes", c.SizeBytes)
	}

	if res.FilesDeleted > 0 || res.Errors > 0 {
		log.Info("retention sweep complete",
			"deleted", res.FilesDeleted,
			"kept", res.FilesKept,
			"errors", res.Errors,
			"bytes_freed", res.BytesFreed,
		)
	}

	return res
}

// Loop re-sweeps on the given interval until ctx is canceled. Intended for
// deployments that opt into periodic sweeps; the default is a single sweep
// at startup.
func (s *Sweeper) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}
