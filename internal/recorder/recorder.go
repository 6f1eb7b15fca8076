// Package recorder wires the capture, transfer, retention, and disk-space
// components into the long-running recorder service.
package recorder

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/buzzcam/internal/capture"
	"github.com/xtxerr/buzzcam/internal/config"
	"github.com/xtxerr/buzzcam/internal/diskspace"
	"github.com/xtxerr/buzzcam/internal/errors"
	"github.com/xtxerr/buzzcam/internal/logging"
	"github.com/xtxerr/buzzcam/internal/retention"
	"github.com/xtxerr/buzzcam/internal/transfer"
)

const (
	// lockFileName guards against a second recorder fighting over the camera.
	lockFileName = "buzzcamd.lock"

	// stopTimeout is how long the backend gets to exit after SIGTERM.
	stopTimeout = 10 * time.Second

	// joinTimeout bounds the wait for background loops during shutdown.
	joinTimeout = 30 * time.Second
)

// Service is the recorder daemon: it supervises the capture backend, runs
// the transfer and retention schedules, and guarantees a final transfer
// flush on every exit path, including launch failures and backend crashes.
type Service struct {
	cfg *config.Config

	sup     *capture.Supervisor
	worker  *transfer.Worker
	sweeper *retention.Sweeper
	disk    *diskspace.Monitor

	log *slog.Logger
}

// New builds a service from configuration, using a process backend running
// the configured capture binary.
func New(cfg *config.Config) *Service {
	return NewWithBackend(cfg, capture.NewProcessBackend(cfg.Capture.Binary))
}

// NewWithBackend builds a service around an explicit capture backend.
func NewWithBackend(cfg *config.Config, backend capture.Backend) *Service {
	sup := capture.NewSupervisor(backend, cfg.Storage.LocalDir)
	if cfg.Capture.PreviewBinary != "" {
		sup.EnableCameraProbe(cfg.Capture.PreviewBinary)
	}

	worker := transfer.NewWorker(
		cfg.Storage.LocalDir,
		cfg.Storage.ExternalDir,
		time.Duration(cfg.Transfer.Interval),
		time.Duration(cfg.Transfer.PollInterval),
		sup.ActiveChunk,
	)
	worker.LowWater = int64(cfg.Storage.ExternalLowWater)

	return &Service{
		cfg:     cfg,
		sup:     sup,
		worker:  worker,
		sweeper: retention.NewSweeper(cfg.Storage.ExternalDir, time.Duration(cfg.Retention.MaxAge)),
		disk:    diskspace.NewMonitor(),
		log:     logging.Component("recorder").With("run_id", uuid.NewString()),
	}
}

// Run starts recording and blocks until ctx is canceled or the capture
// backend fails. A transfer flush runs before every return, so chunks
// already on disk reach the external tier even when startup fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.cfg.EnsureDirectories(); err != nil {
		return err
	}

	lock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Unlock()
	}()

	s.log.Info("recorder starting",
		"local_dir", s.cfg.Storage.LocalDir,
		"external_dir", s.cfg.Storage.ExternalDir,
		"chunk_duration", time.Duration(s.cfg.Capture.ChunkDuration).String(),
		"transfer_interval", time.Duration(s.cfg.Transfer.Interval).String(),
	)

	// One sweep per start keeps the external tier from filling across
	// long deployments without a background timer in the common case.
	s.sweeper.Sweep()

	sessionCfg, err := s.sessionConfig()
	if err != nil {
		return err
	}

	if err := s.sup.Start(sessionCfg); err != nil {
		// Anything already on the local tier still gets moved out.
		s.flush()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	g, loopCtx := errgroup.WithContext(loopCtx)

	g.Go(func() error {
		return s.worker.Loop(loopCtx)
	})
	if interval := time.Duration(s.cfg.Retention.SweepInterval); interval > 0 {
		g.Go(func() error {
			return s.sweeper.Loop(loopCtx, interval)
		})
	}

	runErr := s.watch(ctx)

	cancel()
	s.shutdown(g)

	return runErr
}

// watch polls backend liveness and free space until ctx is canceled or the
// backend dies. Disk readings are advisory and only logged.
func (s *Service) watch(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(s.cfg.Capture.LivenessInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutdown requested")
			return nil
		case <-ticker.C:
			if err := s.sup.Liveness(); err != nil {
				s.log.Error("capture backend died", "error", err)
				return err
			}
			s.checkSpace()
		}
	}
}

// shutdown stops the backend, joins the background loops, and runs the
// final transfer flush. The flush happens after the backend has exited so
// the last chunk is no longer excluded as active.
func (s *Service) shutdown(g *errgroup.Group) {
	if err := s.sup.Stop(stopTimeout); err != nil {
		s.log.Warn("backend stop failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		s.log.Warn("background loops did not stop in time")
	}

	s.flush()
	s.log.Info("recorder stopped")
}

// flush runs the final transfer cycle, tolerating an unavailable tier.
func (s *Service) flush() {
	res, err := s.worker.Flush()
	if err != nil {
		s.log.Warn("final transfer flush incomplete", "error", err)
		return
	}
	s.log.Info("final transfer flush complete",
		"transferred", res.Transferred, "failed", res.Failed)
}

// checkSpace logs advisory free-space readings for both tiers.
func (s *Service) checkSpace() {
	local := s.disk.Check(s.cfg.Storage.LocalDir, int64(s.cfg.Storage.LocalLowWater))
	if local.Status == diskspace.StatusLow {
		s.log.Warn("local tier low on space",
			"free_bytes", local.FreeBytes,
			"low_water", int64(s.cfg.Storage.LocalLowWater))
	}

	external := s.disk.Check(s.cfg.Storage.ExternalDir, int64(s.cfg.Storage.ExternalLowWater))
	if external.Status == diskspace.StatusLow {
		s.log.Warn("external tier low on space",
			"free_bytes", external.FreeBytes,
			"low_water", int64(s.cfg.Storage.ExternalLowWater))
	}
}

// acquireLock takes the single-instance lock on the local tier.
func (s *Service) acquireLock() (*flock.Flock, error) {
	lock := flock.New(s.lockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "lock %s", s.lockPath())
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrAlreadyRunning, "lock held: %s", s.lockPath())
	}
	return lock, nil
}

func (s *Service) lockPath() string {
	return filepath.Join(s.cfg.Storage.LocalDir, lockFileName)
}

// sessionConfig translates configuration into a backend session.
func (s *Service) sessionConfig() (capture.SessionConfig, error) {
	width, height, err := s.cfg.Capture.Size()
	if err != nil {
		return capture.SessionConfig{}, err
	}
	return capture.SessionConfig{
		SegmentDuration: time.Duration(s.cfg.Capture.ChunkDuration),
		Width:           width,
		Height:          height,
		Bitrate:         s.cfg.Capture.Bitrate,
		Framerate:       s.cfg.Capture.Framerate,
		Preview:         s.cfg.Capture.Preview,
	}, nil
}
