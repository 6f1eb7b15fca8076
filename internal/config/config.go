// Package config provides configuration for the buzzcam recorder.
//
// Configuration is loaded from a YAML file and can be overridden per-field
// from command-line flags. All durations accept Go duration strings ("20m",
// "12h") or plain integer seconds; byte sizes accept "2GB" style strings or
// plain bytes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/buzzcam/internal/errors"
)

// Config represents the complete recorder configuration.
type Config struct {
	// Storage configures the two storage tiers.
	Storage StorageConfig `yaml:"storage"`

	// Capture configures the camera capture backend.
	Capture CaptureConfig `yaml:"capture"`

	// Transfer configures the background transfer worker.
	Transfer TransferConfig `yaml:"transfer"`

	// Retention configures age-based cleanup of the external tier.
	Retention RetentionConfig `yaml:"retention"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures the local and external storage tiers.
type StorageConfig struct {
	// LocalDir is the fast tier directory where chunks are written.
	LocalDir string `yaml:"local_dir"`

	// ExternalDir is the slow tier directory chunks are moved to.
	ExternalDir string `yaml:"external_dir"`

	// LocalLowWater is the free-space warning threshold for the local tier.
	LocalLowWater ByteSize `yaml:"local_low_water"`

	// ExternalLowWater is the free-space warning threshold for the external tier.
	ExternalLowWater ByteSize `yaml:"external_low_water"`
}

// CaptureConfig configures the camera capture backend.
type CaptureConfig struct {
	// ChunkDuration is the length of each video segment.
	ChunkDuration Duration `yaml:"chunk_duration"`

	// Resolution is the capture resolution as "WxH" (e.g. "1920x1080").
	Resolution string `yaml:"resolution"`

	// Bitrate is the video bitrate in bits per second.
	Bitrate int `yaml:"bitrate"`

	// Framerate is the capture framerate in frames per second.
	Framerate int `yaml:"framerate"`

	// Preview enables the live camera preview window.
	Preview bool `yaml:"preview"`

	// LivenessInterval is how often the backend process is checked.
	LivenessInterval Duration `yaml:"liveness_interval"`

	// Binary is the capture executable. Defaults to rpicam-vid.
	Binary string `yaml:"binary"`

	// PreviewBinary is the preview executable. Defaults to rpicam-hello.
	PreviewBinary string `yaml:"preview_binary"`
}

// TransferConfig configures the background transfer worker.
type TransferConfig struct {
	// Interval is the wall-clock period between transfer cycles.
	Interval Duration `yaml:"interval"`

	// PollInterval is how often the worker wakes to check whether a
	// cycle is due. Kept short so shutdown and due cycles are noticed
	// promptly without busy-waiting.
	PollInterval Duration `yaml:"poll_interval"`
}

// RetentionConfig configures age-based cleanup of the external tier.
type RetentionConfig struct {
	// MaxAge is the cutoff age. Chunks strictly older are deleted.
	MaxAge Duration `yaml:"max_age"`

	// SweepInterval enables periodic sweeping when positive. The default
	// of zero preserves the original sweep-once-at-startup behavior.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON selects JSON log output instead of text.
	JSON bool `yaml:"json"`

	// File is the append-only log file path. Empty means
	// {storage.local_dir}/buzzcamd.log.
	File string `yaml:"file"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			LocalDir:         "/var/lib/buzzcam/local",
			ExternalDir:      "/mnt/external/buzzcam",
			LocalLowWater:    2 * 1024 * 1024 * 1024,
			ExternalLowWater: 5 * 1024 * 1024 * 1024,
		},
		Capture: CaptureConfig{
			ChunkDuration:    Duration(20 * time.Minute),
			Resolution:       "1920x1080",
			Bitrate:          10_000_000,
			Framerate:        30,
			Preview:          false,
			LivenessInterval: Duration(30 * time.Second),
			Binary:           "rpicam-vid",
			PreviewBinary:    "rpicam-hello",
		},
		Transfer: TransferConfig{
			Interval:     Duration(12 * time.Hour),
			PollInterval: Duration(time.Minute),
		},
		Retention: RetentionConfig{
			MaxAge:        Duration(30 * 24 * time.Hour),
			SweepInterval: 0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// EnsureDirectories creates the storage tier directories if needed.
// The external tier is best effort: an unmounted external drive must not
// prevent recording from starting.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.LocalDir, 0o755); err != nil {
		return fmt.Errorf("create local dir: %w", err)
	}
	// Creating a directory on an unmounted mount point would land on the
	// root filesystem, so only attempt it when the parent exists.
	if _, err := os.Stat(filepath.Dir(c.Storage.ExternalDir)); err == nil {
		_ = os.MkdirAll(c.Storage.ExternalDir, 0o755)
	}
	return nil
}

// LogFile returns the effective log file path.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Storage.LocalDir, "buzzcamd.log")
}

// Size returns the parsed capture resolution.
func (c *CaptureConfig) Size() (width, height int, err error) {
	return ParseResolution(c.Resolution)
}

// ParseResolution parses a "WxH" resolution string.
func ParseResolution(s string) (width, height int, err error) {
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return 0, 0, errors.Wrapf(errors.ErrInvalidResolution, "%q (want WxH)", s)
	}

	width, werr := strconv.Atoi(parts[0])
	height, herr := strconv.Atoi(parts[1])
	if werr != nil || herr != nil || width <= 0 || height <= 0 {
		return 0, 0, errors.Wrapf(errors.ErrInvalidResolution, "%q (want WxH)", s)
	}

	return width, height, nil
}
