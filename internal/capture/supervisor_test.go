package capture

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/buzzcam/internal/chunk"
	"github.com/xtxerr/buzzcam/internal/errors"
)

// fakeBackend is a scriptable in-memory Backend.
type fakeBackend struct {
	mu       sync.Mutex
	alive    bool
	startErr error
	diag     string
	starts   int
	stops    int
}

func (f *fakeBackend) Start(cfg SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	return nil
}

func (f *fakeBackend) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeBackend) Stop(timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.alive = false
	return nil
}

func (f *fakeBackend) Diagnostics() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.diag
}

func (f *fakeBackend) setAlive(v bool) {
	f.mu.Lock()
	f.alive = v
	f.mu.Unlock()
}

func newTestSupervisor(t *testing.T, b Backend) *Supervisor {
	t.Helper()
	s := NewSupervisor(b, t.TempDir())
	s.grace = time.Millisecond
	return s
}

func sessionCfg() SessionConfig {
	return SessionConfig{
		SegmentDuration: time.Minute,
		Width:           1920,
		Height:          1080,
		Bitrate:         10_000_000,
		Framerate:       30,
	}
}

func TestSupervisor_StartRun(t *testing.T) {
	fb := &fakeBackend{alive: true}
	s := newTestSupervisor(t, fb)

	if s.State() != StateIdle {
		t.Fatalf("initial state: %s", s.State())
	}

	if err := s.Start(sessionCfg()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.State() != StateRunning {
		t.Errorf("state after start: %s", s.State())
	}
	if _, ok := s.ActiveChunk(); !ok {
		t.Error("expected active chunk while running")
	}

	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("state after stop: %s", s.State())
	}
	if _, ok := s.ActiveChunk(); ok {
		t.Error("no active chunk after stop")
	}
	if fb.stops != 1 {
		t.Errorf("expected 1 backend stop, got %d", fb.stops)
	}
}

func TestSupervisor_DoubleStart(t *testing.T) {
	fb := &fakeBackend{alive: true}
	s := newTestSupervisor(t, fb)

	if err := s.Start(sessionCfg()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(sessionCfg()); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSupervisor_LaunchFailure(t *testing.T) {
	tests := []struct {
		name string
		diag string
		want error
	}{
		{
			name: "generic exit",
			diag: "segfault in encoder",
			want: errors.ErrBackendLaunch,
		},
		{
			name: "camera held elsewhere",
			diag: "ERROR: *** failed to acquire camera /base/soc ***",
			want: errors.ErrCameraBusy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{alive: false, diag: tt.diag}
			s := newTestSupervisor(t, fb)

			err := s.Start(sessionCfg())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if s.State() != StateStopped {
				t.Errorf("state after launch failure: %s", s.State())
			}
			if _, ok := s.ActiveChunk(); ok {
				t.Error("no active chunk after launch failure")
			}
		})
	}
}

func TestSupervisor_StartError(t *testing.T) {
	fb := &fakeBackend{startErr: errors.Wrap(errors.ErrBackendLaunch, "exec")}
	s := newTestSupervisor(t, fb)

	if err := s.Start(sessionCfg()); !errors.Is(err, errors.ErrBackendLaunch) {
		t.Errorf("expected ErrBackendLaunch, got %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("state: %s", s.State())
	}
}

func TestSupervisor_LivenessCrash(t *testing.T) {
	fb := &fakeBackend{alive: true, diag: "encoder timeout"}
	s := newTestSupervisor(t, fb)

	if err := s.Start(sessionCfg()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Liveness(); err != nil {
		t.Fatalf("liveness while running: %v", err)
	}

	fb.setAlive(false)

	err := s.Liveness()
	if !errors.Is(err, errors.ErrBackendCrash) {
		t.Fatalf("expected ErrBackendCrash, got %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("state after crash: %s", s.State())
	}
	if _, ok := s.ActiveChunk(); ok {
		t.Error("no active chunk after crash")
	}

	// Subsequent polls are a no-op.
	if err := s.Liveness(); err != nil {
		t.Errorf("liveness after stop: %v", err)
	}
}

func TestSupervisor_ActiveChunkTracksHighestIndex(t *testing.T) {
	fb := &fakeBackend{alive: true}
	s := newTestSupervisor(t, fb)

	if err := s.Start(sessionCfg()); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.mu.Lock()
	prefix := s.sessionPrefix
	s.mu.Unlock()

	// Before any segment exists the active chunk is index zero.
	path, ok := s.ActiveChunk()
	if !ok {
		t.Fatal("expected active chunk")
	}
	if filepath.Base(path) != chunk.SegmentName(prefix, 0) {
		t.Errorf("expected index 0, got %s", path)
	}

	// Segments 0-2 on disk: the backend is writing index 2.
	for i := 0; i <= 2; i++ {
		name := chunk.SegmentName(prefix, i)
		if err := os.WriteFile(filepath.Join(s.localDir, name), []byte("v"), 0o644); err != nil {
			t.Fatalf("write segment: %v", err)
		}
	}
	// Stale chunks from an older session are ignored.
	old := "video_20200101_000000_0099.h264"
	if err := os.WriteFile(filepath.Join(s.localDir, old), []byte("v"), 0o644); err != nil {
		t.Fatalf("write old chunk: %v", err)
	}

	path, ok = s.ActiveChunk()
	if !ok {
		t.Fatal("expected active chunk")
	}
	if filepath.Base(path) != chunk.SegmentName(prefix, 2) {
		t.Errorf("expected index 2, got %s", path)
	}
}
