package chunk

import (
	"os"
	"path/filepath"
	"sort"
)

// Catalog enumerates the chunk files present on one tier. It is a stateless
// scan over the tier directory; callers re-list on every cycle.
type Catalog struct {
	dir  string
	tier Tier
}

// NewCatalog creates a catalog over the given tier directory.
func NewCatalog(dir string, tier Tier) *Catalog {
	return &Catalog{dir: dir, tier: tier}
}

// Dir returns the tier directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// List returns all chunk files on the tier, oldest first (name order).
// Non-chunk files and subdirectories are ignored.
func (c *Catalog) List() ([]Chunk, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !IsChunkName(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Raced with a concurrent delete; the next scan will settle it.
			continue
		}

		chunks = append(chunks, Chunk{
			Name:      name,
			Path:      filepath.Join(c.dir, name),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
			Tier:      c.tier,
		})
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Name < chunks[j].Name
	})

	return chunks, nil
}
