// Package cache implements the read-through source/preview cache described
// in spec §5 ("Shared resources") — a disk cache of fetched/decoded source
// videos and extracted preview frames, keyed by source hash, with atomic
// temp+rename writes and the cache-usage/clear-cache maintenance operations
// exposed at /maintenance/*.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	patrickmn "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/sheetcap/sheetcap/internal/logger"
)

// DefaultTTL is how long a preview/source cache entry's in-memory metadata
// record is kept. Resolve does not read these records; it always checks the
// disk for the cached file.
const DefaultTTL = 30 * time.Minute

// FetchFunc resolves a cache miss by producing the cached file's content at
// dstPath (a temp path; the cache itself renames it into place, so FetchFunc
// writes dstPath directly).
type FetchFunc func(dstPath string) error

// Cache is a read-through, disk-backed cache of resolved source videos and
// extracted preview frames. It is keyed by a source hash (e.g. of a YouTube
// URL or source descriptor) so repeated preview/source requests for the same
// input avoid refetching or re-decoding.
type Cache struct {
	dir    string
	meta   *patrickmn.Cache
	group  singleflight.Group
	mu     sync.Mutex
}

// Entry describes a resolved, cached item.
type Entry struct {
	Key       string
	Path      string
	Size      int64
	FromCache bool
}

// New creates a Cache rooted at dir, creating it if necessary.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:  dir,
		meta: patrickmn.New(DefaultTTL, 10*time.Minute),
	}, nil
}

// KeyFor hashes a source identifier (a YouTube URL, or a local file's
// absolute path, etc) into the cache key spec §5 calls the "source hash".
func KeyFor(sourceIdentifier string) string {
	sum := sha256.Sum256([]byte(sourceIdentifier))
	return hex.EncodeToString(sum[:])[:32]
}

// Resolve returns the cached file for key if present, otherwise calls fetch
// exactly once (even under concurrent callers for the same key, via
// singleflight) and atomically installs the result before returning it.
func (c *Cache) Resolve(key, ext string, fetch FetchFunc) (Entry, error) {
	finalPath := c.pathFor(key, ext)

	if info, err := os.Stat(finalPath); err == nil {
		c.meta.SetDefault(key, finalPath)
		return Entry{Key: key, Path: finalPath, Size: info.Size(), FromCache: true}, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Double check: another goroutine may have populated it while we
		// waited to enter the singleflight group.
		if info, statErr := os.Stat(finalPath); statErr == nil {
			return Entry{Key: key, Path: finalPath, Size: info.Size(), FromCache: true}, nil
		}

		tmpPath := finalPath + ".tmp-" + randSuffix()
		if err := fetch(tmpPath); err != nil {
			os.Remove(tmpPath)
			return nil, err
		}

		if err := os.Rename(tmpPath, finalPath); err != nil {
			os.Remove(tmpPath)
			return nil, fmt.Errorf("install cache entry: %w", err)
		}

		info, err := os.Stat(finalPath)
		if err != nil {
			return nil, err
		}
		return Entry{Key: key, Path: finalPath, Size: info.Size(), FromCache: false}, nil
	})
	if err != nil {
		return Entry{}, err
	}

	c.meta.SetDefault(key, finalPath)
	return v.(Entry), nil
}

func (c *Cache) pathFor(key, ext string) string {
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	return filepath.Join(c.dir, key+ext)
}

// Usage reports total bytes currently held in the cache directory.
func (c *Cache) Usage() (totalBytes int64, totalHuman string, err error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, "", fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.IsDir() {
			totalBytes += info.Size()
		}
	}
	return totalBytes, humanize.Bytes(uint64(totalBytes)), nil
}

// ClearResult reports what Clear did, per the /maintenance/clear-cache
// response shape in spec §6.
type ClearResult struct {
	ReclaimedBytes int64
	ReclaimedHuman string
	ClearedPaths   []string
	SkippedPaths   []string
}

// Clear removes every file in the cache directory, skipping (and reporting)
// any in-flight temp file (its name contains ".tmp-") and any file whose
// remove fails.
func (c *Cache) Clear() (ClearResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return ClearResult{}, fmt.Errorf("read cache dir: %w", err)
	}

	var result ClearResult
	for _, e := range entries {
		path := filepath.Join(c.dir, e.Name())
		if isInFlight(e.Name()) {
			result.SkippedPaths = append(result.SkippedPaths, path)
			continue
		}
		info, err := e.Info()
		if err != nil {
			result.SkippedPaths = append(result.SkippedPaths, path)
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to remove cache entry", "path", path, "err", err)
			result.SkippedPaths = append(result.SkippedPaths, path)
			continue
		}
		result.ReclaimedBytes += info.Size()
		result.ClearedPaths = append(result.ClearedPaths, path)
	}

	c.meta.Flush()
	result.ReclaimedHuman = humanize.Bytes(uint64(result.ReclaimedBytes))
	return result, nil
}

func isInFlight(name string) bool {
	return strings.Contains(name, ".tmp-")
}

var randCounter int64
var randMu sync.Mutex

func randSuffix() string {
	randMu.Lock()
	defer randMu.Unlock()
	randCounter++
	return fmt.Sprintf("%d-%d", os.Getpid(), randCounter)
}
