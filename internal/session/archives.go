package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kinereplay/backend/internal/archive"
	"github.com/kinereplay/backend/internal/frames"
	"github.com/kinereplay/backend/internal/models"
)

// shortID safely truncates an ID for logging (handles short IDs gracefully)
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ArchiveCache keeps DuckDB frame archives of ingested data files so a data
// file replayed again with the same scene is not parsed a second time.
type ArchiveCache struct {
	dir  string
	opts archive.Options
	mu   sync.RWMutex
	// cache tracks which keys have an archive (key -> dbPath)
	cache map[string]string
}

// NewArchiveCache creates a cache in dir, picking up archives already there.
func NewArchiveCache(dir string, opts archive.Options) *ArchiveCache {
	os.MkdirAll(dir, 0755)

	c := &ArchiveCache{
		dir:   dir,
		opts:  opts,
		cache: make(map[string]string),
	}
	c.scanExisting()
	return c
}

func cacheKey(sceneFileID, dataFileID string) string {
	return sceneFileID + "_" + dataFileID
}

func (c *ArchiveCache) scanExisting() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		fmt.Printf("[Archives] Warning: failed to scan archive directory: %v\n", err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "frames_") || filepath.Ext(name) != ".duckdb" {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, "frames_"), ".duckdb")
		c.cache[key] = filepath.Join(c.dir, name)
	}

	fmt.Printf("[Archives] Scanned %d existing frame archives\n", len(c.cache))
}

// Path returns where the archive for a scene/data pair is stored.
func (c *ArchiveCache) Path(sceneFileID, dataFileID string) string {
	return filepath.Join(c.dir, fmt.Sprintf("frames_%s.duckdb", cacheKey(sceneFileID, dataFileID)))
}

// Has reports whether an archive exists for the pair.
func (c *ArchiveCache) Has(sceneFileID, dataFileID string) bool {
	c.mu.RLock()
	_, ok := c.cache[cacheKey(sceneFileID, dataFileID)]
	c.mu.RUnlock()
	return ok
}

// Load returns the archived frames for the pair. It returns nil without an
// error when there is no usable archive.
func (c *ArchiveCache) Load(ctx context.Context, sceneFileID, dataFileID string, entries []models.InputMapEntry) (*frames.Store, error) {
	key := cacheKey(sceneFileID, dataFileID)
	c.mu.RLock()
	path, ok := c.cache[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	a, err := archive.Open(path, c.opts)
	if err != nil {
		c.mu.Lock()
		delete(c.cache, key)
		c.mu.Unlock()
		return nil, nil
	}
	defer a.Close()

	if !a.Compatible(entries) {
		fmt.Printf("[Archives] Archive %s does not match the scene input map, ignoring\n", shortID(key))
		return nil, nil
	}

	fmt.Printf("[Archives] Loading frames for %s from archive\n", shortID(key))
	store, err := a.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive: %w", err)
	}
	return store, nil
}

// Save archives an ingested store for the pair. The archive is written to a
// private temporary file and renamed into place, so concurrent saves of the
// same pair never expose or remove each other's file.
func (c *ArchiveCache) Save(ctx context.Context, sceneFileID, dataFileID string, store *frames.Store) error {
	tmp := filepath.Join(c.dir, "tmp_"+uuid.New().String()+".duckdb")
	if err := archive.Save(ctx, tmp, store, c.opts); err != nil {
		removeArchiveFiles(tmp)
		return err
	}

	path := c.Path(sceneFileID, dataFileID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Rename(tmp, path); err != nil {
		removeArchiveFiles(tmp)
		return fmt.Errorf("failed to install archive: %w", err)
	}
	c.cache[cacheKey(sceneFileID, dataFileID)] = path
	return nil
}

// removeArchiveFiles deletes a DuckDB file and its write-ahead log.
func removeArchiveFiles(path string) {
	os.Remove(path)
	os.Remove(path + ".wal")
}

// DeleteFile removes every archive built from the given scene or data file.
func (c *ArchiveCache) DeleteFile(fileID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, path := range c.cache {
		scene, data, _ := strings.Cut(key, "_")
		if scene != fileID && data != fileID {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fmt.Printf("[Archives] Warning: failed to remove %s: %v\n", path, err)
			continue
		}
		delete(c.cache, key)
		removed++
	}
	if removed > 0 {
		fmt.Printf("[Archives] Removed %d archives for file %s\n", removed, shortID(fileID))
	}
	return removed
}

// Stats returns statistics about the cache.
func (c *ArchiveCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var totalSize int64
	for _, path := range c.cache {
		if info, err := os.Stat(path); err == nil {
			totalSize += info.Size()
		}
	}

	return map[string]interface{}{
		"archiveCount": len(c.cache),
		"totalSize":    totalSize,
		"archiveDir":   c.dir,
	}
}
