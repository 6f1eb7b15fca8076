package config

import (
	stderrors "errors"
	"fmt"

	"github.com/xtxerr/buzzcam/internal/errors"
)

// Validate checks the configuration for errors. Every returned error wraps
// one of the validation sentinels, so callers can branch with
// errors.IsValidation.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	if err := c.Capture.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("capture: %w", err))
	}

	if err := c.Transfer.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("transfer: %w", err))
	}

	if err := c.Retention.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retention: %w", err))
	}

	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	return nil
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	var errs []error

	if c.LocalDir == "" {
		errs = append(errs, errors.NewMissingField("local_dir"))
	}

	if c.ExternalDir == "" {
		errs = append(errs, errors.NewMissingField("external_dir"))
	}

	if c.LocalDir != "" && c.LocalDir == c.ExternalDir {
		errs = append(errs, errors.NewValidation("external_dir", "must differ from local_dir"))
	}

	if c.LocalLowWater < 0 || c.ExternalLowWater < 0 {
		errs = append(errs, errors.NewValidation("low water thresholds", "must be non-negative"))
	}

	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	return nil
}

// Validate checks the capture configuration.
func (c *CaptureConfig) Validate() error {
	var errs []error

	if c.ChunkDuration.Duration() <= 0 {
		errs = append(errs, errors.NewInvalidValue("chunk_duration", c.ChunkDuration.Duration(), "must be positive"))
	}

	if _, _, err := c.Size(); err != nil {
		errs = append(errs, err)
	}

	if c.Bitrate <= 0 {
		errs = append(errs, errors.NewInvalidValue("bitrate", c.Bitrate, "must be positive"))
	}

	if c.Framerate <= 0 {
		errs = append(errs, errors.NewInvalidValue("framerate", c.Framerate, "must be positive"))
	}

	if c.LivenessInterval.Duration() <= 0 {
		errs = append(errs, errors.NewInvalidValue("liveness_interval", c.LivenessInterval.Duration(), "must be positive"))
	}

	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	return nil
}

// Validate checks the transfer configuration.
func (c *TransferConfig) Validate() error {
	var errs []error

	if c.Interval.Duration() <= 0 {
		errs = append(errs, errors.NewInvalidValue("interval", c.Interval.Duration(), "must be positive"))
	}

	if c.PollInterval.Duration() <= 0 {
		errs = append(errs, errors.NewInvalidValue("poll_interval", c.PollInterval.Duration(), "must be positive"))
	}

	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	return nil
}

// Validate checks the retention configuration.
func (c *RetentionConfig) Validate() error {
	var errs []error

	if c.MaxAge.Duration() <= 0 {
		errs = append(errs, errors.NewInvalidValue("max_age", c.MaxAge.Duration(), "must be positive"))
	}

	if c.SweepInterval.Duration() < 0 {
		errs = append(errs, errors.NewInvalidValue("sweep_interval", c.SweepInterval.Duration(), "must be non-negative"))
	}

	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	return nil
}
