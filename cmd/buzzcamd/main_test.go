package main

import (
	"testing"
	"time"

	"github.com/xtxerr/buzzcam/internal/config"
)

func TestApply_ExplicitFalseOverridesConfig(t *testing.T) {
	opts, err := parseFlags([]string{"-preview=false", "-log-json=false"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Capture.Preview = true
	cfg.Logging.JSON = true

	opts.apply(cfg)

	if cfg.Capture.Preview {
		t.Error("-preview=false should disable a config-enabled preview")
	}
	if cfg.Logging.JSON {
		t.Error("-log-json=false should disable config-enabled JSON logs")
	}
}

func TestApply_UnsetFlagsKeepConfig(t *testing.T) {
	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Capture.Preview = true
	cfg.Storage.LocalDir = "/data/local"
	cfg.Capture.Bitrate = 4_000_000

	opts.apply(cfg)

	if !cfg.Capture.Preview {
		t.Error("unset -preview should not touch config")
	}
	if cfg.Storage.LocalDir != "/data/local" {
		t.Errorf("unset -local should not touch config: %s", cfg.Storage.LocalDir)
	}
	if cfg.Capture.Bitrate != 4_000_000 {
		t.Errorf("unset -bitrate should not touch config: %d", cfg.Capture.Bitrate)
	}
}

func TestApply_Overrides(t *testing.T) {
	opts, err := parseFlags([]string{
		"-local", "/fast",
		"-external", "/slow",
		"-chunk-minutes", "5",
		"-transfer-hours", "0.5",
		"-resolution", "1280x720",
		"-bitrate", "2000000",
		"-framerate", "25",
		"-cleanup-days", "7",
		"-preview",
		"-log-level", "debug",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg := config.DefaultConfig()
	opts.apply(cfg)

	if cfg.Storage.LocalDir != "/fast" || cfg.Storage.ExternalDir != "/slow" {
		t.Errorf("dirs: %s, %s", cfg.Storage.LocalDir, cfg.Storage.ExternalDir)
	}
	if cfg.Capture.ChunkDuration.Duration() != 5*time.Minute {
		t.Errorf("chunk duration: %v", cfg.Capture.ChunkDuration.Duration())
	}
	if cfg.Transfer.Interval.Duration() != 30*time.Minute {
		t.Errorf("transfer interval: %v", cfg.Transfer.Interval.Duration())
	}
	if cfg.Capture.Resolution != "1280x720" {
		t.Errorf("resolution: %s", cfg.Capture.Resolution)
	}
	if cfg.Capture.Bitrate != 2_000_000 || cfg.Capture.Framerate != 25 {
		t.Errorf("bitrate/framerate: %d/%d", cfg.Capture.Bitrate, cfg.Capture.Framerate)
	}
	if cfg.Retention.MaxAge.Duration() != 7*24*time.Hour {
		t.Errorf("max age: %v", cfg.Retention.MaxAge.Duration())
	}
	if !cfg.Capture.Preview {
		t.Error("preview should be enabled")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level: %s", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("overridden config should validate: %v", err)
	}
}
