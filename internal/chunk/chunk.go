// Package chunk models bounded-duration video segment files and their
// placement on a storage tier.
//
// Chunks are named
//
//	video_<YYYYMMDD>_<HHMMSS>_<NNNN>.h264
//
// where the timestamp identifies the recording session and NNNN is the
// zero-padded rolling segment index assigned by the capture backend. The
// scheme sorts chronologically by name, so a plain name sort of a catalog
// listing is also a time sort.
package chunk

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Ext is the chunk file extension.
const Ext = ".h264"

// namePrefix starts every chunk filename.
const namePrefix = "video_"

// timeLayout is the session timestamp layout inside chunk names.
const timeLayout = "20060102_150405"

// Tier identifies a storage tier.
type Tier int

const (
	// TierLocal is the fast tier chunks are recorded to.
	TierLocal Tier = iota

	// TierExternal is the slow tier chunks are moved to.
	TierExternal
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierExternal:
		return "external"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// Chunk is a single video segment file on a tier.
type Chunk struct {
	// Name is the bare filename.
	Name string

	// Path is the absolute path on the tier.
	Path string

	// SizeBytes is the file size at scan time.
	SizeBytes int64

	// ModTime is the file modification time at scan time.
	ModTime time.Time

	// Tier is the tier the chunk currently lives on.
	Tier Tier
}

// CreatedAt returns the chunk creation time, derived from the filename
// timestamp when parseable and from the modification time otherwise.
func (c Chunk) CreatedAt() time.Time {
	if meta, err := ParseName(c.Name); err == nil {
		return meta.SessionStart
	}
	return c.ModTime
}

// Age returns the chunk age relative to now, measured by modification time.
func (c Chunk) Age(now time.Time) time.Duration {
	return now.Sub(c.ModTime)
}

// Meta is the information encoded in a chunk filename.
type Meta struct {
	// SessionStart is the recording session start timestamp.
	SessionStart time.Time

	// Index is the rolling segment index within the session.
	Index int
}

// SessionPrefix returns the filename prefix shared by all chunks of a
// session that started at t, e.g. "video_20250807_153033".
func SessionPrefix(t time.Time) string {
	return namePrefix + t.Format(timeLayout)
}

// SegmentName returns the filename for a segment of the given session.
func SegmentName(sessionPrefix string, index int) string {
	return fmt.Sprintf("%s_%04d%s", sessionPrefix, index, Ext)
}

// OutputPattern returns the printf-style output pattern handed to the
// capture backend, e.g. "/var/lib/buzzcam/local/video_20250807_153033_%04d.h264".
func OutputPattern(dir, sessionPrefix string) string {
	return filepath.Join(dir, sessionPrefix+"_%04d"+Ext)
}

// ParseName parses a chunk filename into its metadata.
func ParseName(name string) (Meta, error) {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, Ext) {
		return Meta{}, fmt.Errorf("not a chunk name: %q", name)
	}

	body := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), Ext)

	// body: <YYYYMMDD>_<HHMMSS>_<NNNN>
	parts := strings.Split(body, "_")
	if len(parts) != 3 {
		return Meta{}, fmt.Errorf("malformed chunk name: %q", name)
	}

	start, err := time.Parse(timeLayout, parts[0]+"_"+parts[1])
	if err != nil {
		return Meta{}, fmt.Errorf("malformed chunk timestamp in %q: %w", name, err)
	}

	index, err := strconv.Atoi(parts[2])
	if err != nil || index < 0 {
		return Meta{}, fmt.Errorf("malformed segment index in %q", name)
	}

	return Meta{SessionStart: start, Index: index}, nil
}

// IsChunkName reports whether name looks like a chunk filename.
func IsChunkName(name string) bool {
	_, err := ParseName(name)
	return err == nil
}
