package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/teampat/obs-playout-mac/internal/platform/database"
)

// countingProber records how many times each path is probed.
type countingProber struct {
	mu      sync.Mutex
	calls   map[string]int
	seconds float64
	err     error
}

func (p *countingProber) probe(ctx context.Context, path string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[path]++
	return p.seconds, p.err
}

func (p *countingProber) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

func newTestCache(t *testing.T, prober *countingProber) *DurationCache {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cache, err := NewDurationCache(db, prober.probe, testLogger())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return cache
}

func TestDurationCache_probes_once_per_unchanged_file(t *testing.T) {
	prober := &countingProber{seconds: 42.5}
	cache := newTestCache(t, prober)

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	for i := 0; i < 3; i++ {
		seconds, err := cache.Duration(context.Background(), path)
		if err != nil {
			t.Fatalf("Duration call %d: %v", i, err)
		}
		if seconds != 42.5 {
			t.Errorf("Duration call %d = %v, want 42.5", i, seconds)
		}
	}
	if got := prober.count(path); got != 1 {
		t.Errorf("probe invoked %d times, want 1", got)
	}
}

func TestDurationCache_reprobes_when_mtime_changes(t *testing.T) {
	prober := &countingProber{seconds: 10}
	cache := newTestCache(t, prober)

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := cache.Duration(context.Background(), path); err != nil {
		t.Fatalf("first Duration: %v", err)
	}

	// Rewriting the file with a different mtime invalidates the entry.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if _, err := cache.Duration(context.Background(), path); err != nil {
		t.Fatalf("second Duration: %v", err)
	}
	if got := prober.count(path); got != 2 {
		t.Errorf("probe invoked %d times, want 2 after mtime change", got)
	}
}

func TestDurationCache_missing_file(t *testing.T) {
	prober := &countingProber{seconds: 10}
	cache := newTestCache(t, prober)

	_, err := cache.Duration(context.Background(), filepath.Join(t.TempDir(), "absent.mp4"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if prober.count("absent.mp4") != 0 {
		t.Error("prober must not run for a missing file")
	}
}

func TestDurationCache_probe_failure_is_not_cached(t *testing.T) {
	prober := &countingProber{err: errors.New("ffprobe exploded")}
	cache := newTestCache(t, prober)

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := cache.Duration(context.Background(), path); err == nil {
		t.Fatal("expected probe error")
	}

	// Once the probe recovers, the value must come through.
	prober.mu.Lock()
	prober.err = nil
	prober.seconds = 7
	prober.mu.Unlock()

	seconds, err := cache.Duration(context.Background(), path)
	if err != nil {
		t.Fatalf("Duration after recovery: %v", err)
	}
	if seconds != 7 {
		t.Errorf("Duration = %v, want 7", seconds)
	}
	if got := prober.count(path); got != 2 {
		t.Errorf("probe invoked %d times, want 2", got)
	}
}
