// Package capture owns the camera capture backend lifecycle.
//
// The backend is an external process (rpicam-vid) that writes one chunk file
// per segment boundary until terminated. It is isolated behind the Backend
// capability interface so the supervisor, transfer, and retention logic stay
// platform-agnostic; an in-process camera library would slot in as another
// implementation.
package capture

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/xtxerr/buzzcam/internal/errors"
)

// SessionConfig describes one capture session.
type SessionConfig struct {
	// OutputPattern is the printf-style path pattern for segment files,
	// e.g. ".../video_20250807_153033_%04d.h264".
	OutputPattern string

	// SegmentDuration is the length of each segment.
	SegmentDuration time.Duration

	// Width and Height are the capture resolution.
	Width  int
	Height int

	// Bitrate is the video bitrate in bits per second.
	Bitrate int

	// Framerate is the capture framerate.
	Framerate int

	// Preview shows the backend's live preview window.
	Preview bool
}

// Backend is the capability interface over a capture implementation.
type Backend interface {
	// Start launches the backend. Non-blocking; the backend runs until
	// stopped or it exits on its own.
	Start(cfg SessionConfig) error

	// Alive reports whether the backend is still running.
	Alive() bool

	// Stop requests graceful termination and waits up to timeout before
	// forcing. Safe to call when not running.
	Stop(timeout time.Duration) error

	// Diagnostics returns captured stdout/stderr for error reporting.
	Diagnostics() string
}

// lockedBuffer is a goroutine-safe byte buffer for capturing child output.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ProcessBackend runs the capture binary as an external process in its own
// process group, so termination signals also reach any helper children.
type ProcessBackend struct {
	binary string

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error

	stdout lockedBuffer
	stderr lockedBuffer
}

// NewProcessBackend creates a backend around the given capture binary.
func NewProcessBackend(binary string) *ProcessBackend {
	return &ProcessBackend{binary: binary}
}

// Start launches the capture process.
func (b *ProcessBackend) Start(cfg SessionConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd != nil && b.alive() {
		return errors.ErrBackendRunning
	}

	cmd := exec.Command(b.binary, buildArgs(cfg)...)
	cmd.Stdout = &b.stdout
	cmd.Stderr = &b.stderr
	// Own process group: lets Stop signal the whole tree at once.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(errors.ErrBackendLaunch, "exec %s: %v", b.binary, err)
	}

	done := make(chan struct{})
	b.cmd = cmd
	b.done = done

	go func() {
		err := cmd.Wait()
		b.mu.Lock()
		b.waitErr = err
		b.mu.Unlock()
		close(done)
	}()

	return nil
}

// buildArgs assembles the rpicam-vid command line for a session.
func buildArgs(cfg SessionConfig) []string {
	args := []string{
		"-t", "0", // record until terminated
		"--segment", strconv.FormatInt(cfg.SegmentDuration.Milliseconds(), 10),
		"-o", cfg.OutputPattern,
		"--width", strconv.Itoa(cfg.Width),
		"--height", strconv.Itoa(cfg.Height),
		"--bitrate", strconv.Itoa(cfg.Bitrate),
		"--framerate", strconv.Itoa(cfg.Framerate),
		"--codec", "h264",
		"--inline",
		"--flush",
	}
	if !cfg.Preview {
		args = append(args, "--nopreview")
	}
	return args
}

// Alive reports whether the capture process is still running.
func (b *ProcessBackend) Alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alive()
}

func (b *ProcessBackend) alive() bool {
	if b.cmd == nil {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

// ExitError returns the error the process exited with, if it has exited.
func (b *ProcessBackend) ExitError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil || b.alive() {
		return nil
	}
	return b.waitErr
}

// Stop terminates the process group: SIGTERM first, SIGKILL after timeout.
func (b *ProcessBackend) Stop(timeout time.Duration) error {
	b.mu.Lock()
	cmd, done := b.cmd, b.done
	b.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}

	// Negative PID targets the process group created at Start.
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal capture process group: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
	}

	_ = syscall.Kill(pgid, syscall.SIGKILL)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		return fmt.Errorf("capture process did not exit after SIGKILL")
	}
	return nil
}

// Diagnostics returns the captured child output, stderr last since that is
// where rpicam-vid reports camera acquisition failures.
func (b *ProcessBackend) Diagnostics() string {
	out := b.stdout.String()
	errOut := b.stderr.String()
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return "stdout: " + out + "\nstderr: " + errOut
	}
}
