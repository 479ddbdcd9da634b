package media

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Prober measures the duration of a media file in seconds.
type Prober func(ctx context.Context, path string) (float64, error)

// FFProbeDuration probes a file's duration with ffprobe.
func FFProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}
	return seconds, nil
}

// DurationCache answers duration lookups from SQLite, probing only files it
// has not seen or whose mtime changed since the cached probe.
type DurationCache struct {
	db    *sql.DB
	probe Prober
	log   *slog.Logger
}

// NewDurationCache migrates the cache table. A nil probe defaults to
// FFProbeDuration.
func NewDurationCache(db *sql.DB, probe Prober, log *slog.Logger) (*DurationCache, error) {
	if probe == nil {
		probe = FFProbeDuration
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS media_durations (
		path TEXT PRIMARY KEY,
		seconds REAL NOT NULL,
		mtime INTEGER NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("migrate media_durations: %w", err)
	}
	return &DurationCache{db: db, probe: probe, log: log}, nil
}

// Duration returns the cached duration for path, probing and caching on a
// miss. The file's mtime invalidates stale entries.
func (c *DurationCache) Duration(ctx context.Context, path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	mtime := info.ModTime().Unix()

	var seconds float64
	err = c.db.QueryRow(
		`SELECT seconds FROM media_durations WHERE path = ? AND mtime = ?`,
		path, mtime).Scan(&seconds)
	if err == nil {
		return seconds, nil
	}
	if err != sql.ErrNoRows {
		c.log.Warn("duration cache read failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	seconds, err = c.probe(ctx, path)
	if err != nil {
		return 0, err
	}

	if _, err := c.db.Exec(
		`INSERT INTO media_durations (path, seconds, mtime) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET seconds = excluded.seconds, mtime = excluded.mtime`,
		path, seconds, mtime); err != nil {
		c.log.Warn("duration cache write failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return seconds, nil
}
