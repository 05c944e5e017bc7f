package cache_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sheetcap/sheetcap/internal/cache"
)

func TestResolveMissFetchesAndCaches(t *testing.T) {
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int32
	fetch := func(dst string) error {
		atomic.AddInt32(&calls, 1)
		return os.WriteFile(dst, []byte("data"), 0644)
	}

	key := cache.KeyFor("https://example.com/video")

	e1, err := c.Resolve(key, ".mp4", fetch)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e1.FromCache {
		t.Error("first resolve should be a miss")
	}

	e2, err := c.Resolve(key, ".mp4", fetch)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !e2.FromCache {
		t.Error("second resolve should be a hit")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected fetch called once, got %d", calls)
	}
	if e1.Path != e2.Path {
		t.Errorf("expected stable path across resolves, got %q vs %q", e1.Path, e2.Path)
	}
}

func TestResolveConcurrentDedupesViaSingleflight(t *testing.T) {
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int32
	fetch := func(dst string) error {
		atomic.AddInt32(&calls, 1)
		return os.WriteFile(dst, []byte("data"), 0644)
	}

	key := cache.KeyFor("same-source")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Resolve(key, ".mp4", fetch); err != nil {
				t.Errorf("Resolve: %v", err)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly one fetch under concurrency, got %d", calls)
	}
}

func TestResolveWritesAtomicallyNoPartialFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key := cache.KeyFor("bad-source")
	_, err = c.Resolve(key, ".mp4", func(dst string) error {
		os.WriteFile(dst, []byte("partial"), 0644)
		return fmt.Errorf("network failure")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	finalPath := filepath.Join(dir, key+".mp4")
	if _, statErr := os.Stat(finalPath); !os.IsNotExist(statErr) {
		t.Error("expected no final file to exist after fetch failure")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected temp file to be cleaned up, found %d entries", len(entries))
	}
}

func TestUsageAndClear(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		key := cache.KeyFor(fmt.Sprintf("source-%d", i))
		if _, err := c.Resolve(key, ".mp4", func(dst string) error {
			return os.WriteFile(dst, make([]byte, 100), 0644)
		}); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}

	total, human, err := c.Usage()
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if total != 300 {
		t.Errorf("expected 300 bytes total, got %d", total)
	}
	if human == "" {
		t.Error("expected non-empty human-readable size")
	}

	result, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if result.ReclaimedBytes != 300 {
		t.Errorf("expected 300 bytes reclaimed, got %d", result.ReclaimedBytes)
	}
	if len(result.ClearedPaths) != 3 {
		t.Errorf("expected 3 cleared paths, got %d", len(result.ClearedPaths))
	}

	total, _, err = c.Usage()
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if total != 0 {
		t.Errorf("expected cache empty after clear, got %d bytes", total)
	}
}
