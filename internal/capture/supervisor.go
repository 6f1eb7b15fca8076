package capture

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/buzzcam/internal/chunk"
	"github.com/xtxerr/buzzcam/internal/errors"
	"github.com/xtxerr/buzzcam/internal/logging"
)

var log = logging.Component("capture")

// launchGrace is how long a freshly started backend is given before an exit
// is classified as a launch failure rather than a crash.
const launchGrace = 2 * time.Second

// State is the supervisor lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Supervisor owns the capture backend lifecycle and tracks which chunk is
// currently being written. It is the only component allowed to start or stop
// the backend, and the only writer of the active-chunk handle.
type Supervisor struct {
	backend  Backend
	localDir string

	mu            sync.Mutex
	state         State
	sessionPrefix string

	// recording gates ActiveChunk. sessionPrefix is written before the
	// atomic store, so readers that observe true see the new prefix.
	recording atomic.Bool

	// grace before the post-launch liveness check; shortened in tests.
	grace time.Duration

	// probeCamera runs the pre-start camera self-test; nil disables it.
	probeCamera func() error
}

// NewSupervisor creates a supervisor writing chunks into localDir.
func NewSupervisor(backend Backend, localDir string) *Supervisor {
	return &Supervisor{
		backend:  backend,
		localDir: localDir,
		state:    StateIdle,
		grace:    launchGrace,
	}
}

// EnableCameraProbe turns on a best-effort camera self-test using the given
// probe binary (rpicam-hello) before the backend starts. Probe failures are
// logged, not fatal: the authoritative check is the backend launch itself.
func (s *Supervisor) EnableCameraProbe(binary string) {
	s.probeCamera = func() error {
		return exec.Command(binary, "-t", "1000", "--nopreview").Run()
	}
}

// Start launches the backend for a new recording session.
// Returns ErrBackendLaunch (or ErrCameraBusy) when the backend cannot start
// or exits within the launch grace period.
func (s *Supervisor) Start(cfg SessionConfig) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInvalidTransition, "start from %s", s.state)
	}
	s.state = StateStarting
	s.sessionPrefix = chunk.SessionPrefix(time.Now())
	prefix := s.sessionPrefix
	s.mu.Unlock()

	if s.probeCamera != nil {
		if err := s.probeCamera(); err != nil {
			log.Warn("camera self-test failed", "error", err)
		}
	}

	cfg.OutputPattern = chunk.OutputPattern(s.localDir, prefix)

	log.Info("starting capture backend",
		"pattern", cfg.OutputPattern,
		"segment", cfg.SegmentDuration,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"bitrate", cfg.Bitrate,
		"framerate", cfg.Framerate,
		"preview", cfg.Preview,
	)

	if err := s.backend.Start(cfg); err != nil {
		s.setState(StateStopped)
		return err
	}

	// An immediate exit (camera held by another process, bad arguments)
	// surfaces within the grace window.
	time.Sleep(s.grace)

	if !s.backend.Alive() {
		s.setState(StateStopped)
		return launchError(s.backend.Diagnostics())
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	s.recording.Store(true)

	log.Info("capture backend running", "session", prefix)
	return nil
}

// launchError classifies an immediate backend exit.
func launchError(diag string) error {
	if strings.Contains(diag, "failed to acquire camera") ||
		strings.Contains(diag, "Pipeline handler in use") {
		return errors.Wrapf(errors.ErrCameraBusy, "%s", diag)
	}
	return errors.Wrapf(errors.ErrBackendLaunch, "backend exited during startup: %s", diag)
}

// Liveness checks whether the backend is still running. Non-blocking.
// On unexpected exit the supervisor transitions to Stopped and returns
// ErrBackendCrash carrying the captured diagnostics.
func (s *Supervisor) Liveness() error {
	s.mu.Lock()
	running := s.state == StateRunning
	s.mu.Unlock()

	if !running {
		return nil
	}
	if s.backend.Alive() {
		return nil
	}

	s.recording.Store(false)
	s.setState(StateStopped)

	return errors.Wrapf(errors.ErrBackendCrash, "%s", s.backend.Diagnostics())
}

// ActiveChunk returns the path of the chunk currently open for writing and
// whether recording is in progress. The path is computed from the session
// output pattern and the highest segment index present, never from file
// modification times: the backend always writes to the highest index, and
// before the first segment appears the active chunk is index zero.
func (s *Supervisor) ActiveChunk() (string, bool) {
	if !s.recording.Load() {
		return "", false
	}

	s.mu.Lock()
	prefix := s.sessionPrefix
	s.mu.Unlock()

	maxIndex := 0
	entries, err := os.ReadDir(s.localDir)
	if err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			meta, err := chunk.ParseName(name)
			if err != nil {
				continue
			}
			if meta.Index > maxIndex {
				maxIndex = meta.Index
			}
		}
	}

	return filepath.Join(s.localDir, chunk.SegmentName(prefix, maxIndex)), true
}

// Stop requests graceful backend termination, forcing after timeout.
// Recording is marked stopped only after the backend has exited, so the
// shutdown-time transfer flush sees every chunk as eligible, including the
// final one the backend was writing.
func (s *Supervisor) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StateStarting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	log.Info("stopping capture backend", "timeout", timeout)

	err := s.backend.Stop(timeout)

	s.recording.Store(false)
	s.setState(StateStopped)

	if err != nil {
		return errors.Wrap(err, "stop capture backend")
	}
	log.Info("capture backend stopped")
	return nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Diagnostics returns the backend's captured output.
func (s *Supervisor) Diagnostics() string {
	return s.backend.Diagnostics()
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
