package corpus

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/curserve/memsearchd/pkg/ingestion"
	"github.com/curserve/memsearchd/pkg/logging"
)

// entry is a single mapped file: its resident byte view and the function
// that releases the underlying OS resource.
type entry struct {
	// data is the mapped byte view. Its length equals the file's size at the
	// time the entry was created.
	data []byte
	// release unmaps data. It is idempotent is not guaranteed, so it must be
	// called exactly once.
	release func() error
}

// File is a read-only view of a single cached file, returned by Entries for
// consumption by the search engine. It is a snapshot: the byte slice remains
// valid only as long as the cache entry it was taken from has not been
// removed or replaced.
type File struct {
	// Path is the absolute path under which the file was cached.
	Path string
	// Data is the mapped (or loaded) byte content of the file.
	Data []byte
}

// Cache owns the set of per-file page mappings for a single tenant's
// registered root directory. Per the concurrency model, a Cache is mutated
// only by the dispatcher worker goroutine and is never mutated concurrently
// with itself; the mutex here exists only to make read access (Entries,
// Count) safe to call from a concurrently running search fan-out without
// requiring the caller to reason about happens-before edges by hand.
type Cache struct {
	mu      sync.RWMutex
	root    string
	entries map[string]*entry
	logger  *logging.Logger
}

// New creates an empty Cache. Build must be called before the cache is
// useful.
func New(logger *logging.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Root returns the root directory the cache was built from.
func (c *Cache) Root() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root
}

// Count returns the number of files currently mapped.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot slice of every mapped file. The slice and the
// File values it contains must not be retained past the next mutation of the
// cache (Replace, Remove, or Close).
func (c *Cache) Entries() []File {
	c.mu.RLock()
	defer c.mu.RUnlock()

	files := make([]File, 0, len(c.entries))
	for path, e := range c.entries {
		files = append(files, File{Path: path, Data: e.data})
	}
	return files
}

// Build walks root, admitting every file the ingestion policy accepts, and
// maps each into memory. A failure to open or map any single file is logged
// and that file is skipped; Build only fails if root itself cannot be
// walked at all.
func Build(root string, logger *logging.Logger) (*Cache, error) {
	c := New(logger)
	c.root = root

	err := walk(root, func(path string, _ fs.DirEntry) error {
		size, ok := statRegular(path)
		if !ok {
			return nil
		}
		if !ingestion.Admit(path, size) {
			return nil
		}

		e, err := mapPath(path, size)
		if err != nil {
			if logger != nil {
				logger.Warnf("skipping %s: %v", path, err)
			}
			return nil
		}

		c.entries[path] = e
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to walk root")
	}

	return c, nil
}

// mapPath opens and maps the file at path, which must already be known to
// have the given size.
func mapPath(path string, size int64) (*entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open file")
	}
	defer f.Close()

	data, release, err := mmapFile(f, size)
	if err != nil {
		return nil, errors.Wrap(err, "unable to map file")
	}

	return &entry{data: data, release: release}, nil
}

// canonicalize resolves path to its canonical form, falling back to the
// original path if resolution fails (e.g. the path no longer exists).
func canonicalize(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// removeCanonical removes every existing entry whose canonical form equals
// the canonical form of path. It assumes the caller already holds c.mu.
func (c *Cache) removeCanonical(path string) {
	target := canonicalize(path)
	for key, e := range c.entries {
		if canonicalize(key) == target {
			e.release()
			delete(c.entries, key)
		}
	}
}

// Replace is the incremental update path invoked by the Change Observer in
// response to a Create or Modify event. It collapses any existing alias of
// path (an entry whose canonical form matches path's canonical form) before
// inserting a fresh mapping. Rejection by the ingestion policy is a no-op,
// not an error; only a failure to open or map the file is returned.
func (c *Cache) Replace(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	size, ok := statRegular(path)
	if !ok {
		// Not a regular file right now; a Remove event will follow or has
		// already preceded this one.
		return nil
	}

	if !ingestion.AllowedExtension(path) {
		return nil
	}

	c.removeCanonical(path)

	if !ingestion.AllowedSize(size) {
		return nil
	}

	e, err := mapPath(path, size)
	if err != nil {
		return errors.Wrapf(err, "unable to map %s", path)
	}

	c.entries[path] = e
	return nil
}

// Remove is the incremental update path invoked by the Change Observer in
// response to a Remove event. It collapses every entry whose canonical form
// matches path's canonical form.
func (c *Cache) Remove(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeCanonical(path)
	return nil
}

// Close releases every mapping held by the cache. The cache must not be used
// afterward.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for path, e := range c.entries {
		if err := e.release(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "unable to release mapping for %s", path)
		}
	}
	c.entries = make(map[string]*entry)
	return firstErr
}
