// buzzcamd is the continuous video recorder daemon.
//
// It captures chunked video onto the local storage tier, moves completed
// chunks to the external tier on a schedule, and ages out old recordings.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtxerr/buzzcam/internal/config"
	"github.com/xtxerr/buzzcam/internal/errors"
	"github.com/xtxerr/buzzcam/internal/logging"
	"github.com/xtxerr/buzzcam/internal/recorder"
)

// Version is set at build time via ldflags
var Version = "dev"

// options holds the parsed command line. set records which flags were given
// explicitly, so a flag can override a config value in either direction
// (e.g. -preview=false against a config file that enables preview).
type options struct {
	cfgPath       string
	localDir      string
	externalDir   string
	chunkMinutes  int
	transferHours float64
	resolution    string
	bitrate       int
	framerate     int
	cleanupDays   int
	preview       bool
	logLevel      string
	logJSON       bool
	showVersion   bool

	set map[string]bool
}

// parseFlags parses args into options.
func parseFlags(args []string) (*options, error) {
	o := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("buzzcamd", flag.ContinueOnError)
	fs.StringVar(&o.cfgPath, "config", "", "config file path")
	fs.StringVar(&o.localDir, "local", "", "local tier directory (overrides config)")
	fs.StringVar(&o.externalDir, "external", "", "external tier directory (overrides config)")
	fs.IntVar(&o.chunkMinutes, "chunk-minutes", 0, "chunk duration in minutes (overrides config)")
	fs.Float64Var(&o.transferHours, "transfer-hours", 0, "transfer interval in hours (overrides config)")
	fs.StringVar(&o.resolution, "resolution", "", "capture resolution WxH (overrides config)")
	fs.IntVar(&o.bitrate, "bitrate", 0, "video bitrate in bits/s (overrides config)")
	fs.IntVar(&o.framerate, "framerate", 0, "framerate in fps (overrides config)")
	fs.IntVar(&o.cleanupDays, "cleanup-days", 0, "external retention in days (overrides config)")
	fs.BoolVar(&o.preview, "preview", false, "show a live camera preview window")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&o.logJSON, "log-json", false, "JSON log output")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// apply overrides cfg with every explicitly given flag.
func (o *options) apply(cfg *config.Config) {
	if o.set["local"] {
		cfg.Storage.LocalDir = o.localDir
	}
	if o.set["external"] {
		cfg.Storage.ExternalDir = o.externalDir
	}
	if o.set["chunk-minutes"] {
		cfg.Capture.ChunkDuration = config.Duration(time.Duration(o.chunkMinutes) * time.Minute)
	}
	if o.set["transfer-hours"] {
		cfg.Transfer.Interval = config.Duration(time.Duration(o.transferHours * float64(time.Hour)))
	}
	if o.set["resolution"] {
		cfg.Capture.Resolution = o.resolution
	}
	if o.set["bitrate"] {
		cfg.Capture.Bitrate = o.bitrate
	}
	if o.set["framerate"] {
		cfg.Capture.Framerate = o.framerate
	}
	if o.set["cleanup-days"] {
		cfg.Retention.MaxAge = config.Duration(time.Duration(o.cleanupDays) * 24 * time.Hour)
	}
	if o.set["preview"] {
		cfg.Capture.Preview = o.preview
	}
	if o.set["log-level"] {
		cfg.Logging.Level = o.logLevel
	}
	if o.set["log-json"] {
		cfg.Logging.JSON = o.logJSON
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}

	if opts.showVersion {
		fmt.Println("buzzcamd", Version)
		return
	}

	// Load config
	cfg := config.DefaultConfig()
	if opts.cfgPath != "" {
		loaded, err := config.Load(opts.cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// CLI overrides
	opts.apply(cfg)

	// Validate
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// The log file lives on the local tier, so the directory must exist
	// before logging can start.
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "prepare storage: %v\n", err)
		os.Exit(1)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if err := logging.InitWithFile(level, cfg.Logging.JSON, cfg.LogFile()); err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		logging.Init(level, cfg.Logging.JSON)
	}
	defer logging.Close()

	logging.Info("buzzcamd starting", "version", Version)

	// SIGINT/SIGTERM cancel the run context; the service flushes pending
	// chunks before returning.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := recorder.New(cfg)
	if err := svc.Run(ctx); err != nil {
		if errors.IsSessionFatal(err) {
			logging.Error("capture session failed", "error", err)
		} else {
			logging.Error("recorder failed", "error", err)
		}
		logging.Close()
		os.Exit(1)
	}
}
