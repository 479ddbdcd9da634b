package media

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// Kind classifies a catalog entry.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// Item is a playable file found under the media root.
type Item struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".m4v":  true,
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Classify returns the media kind for a filename, or false for files that
// are neither video nor image.
func Classify(name string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if videoExtensions[ext] {
		return KindVideo, true
	}
	if imageExtensions[ext] {
		return KindImage, true
	}
	return "", false
}

// Catalog enumerates playable files under the media root. The root is
// re-read on every scan so settings changes take effect without a restart.
type Catalog struct {
	root func() string
	log  *slog.Logger
}

// NewCatalog returns a catalog rooted at whatever root currently returns.
func NewCatalog(root func() string, log *slog.Logger) *Catalog {
	return &Catalog{root: root, log: log}
}

// List walks the media root and returns every video and image file, sorted
// by path. Hidden files and directories are skipped. Unreadable
// subdirectories are logged and skipped rather than failing the whole scan.
func (c *Catalog) List() ([]Item, error) {
	root := c.root()
	items := []Item{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.log.Warn("media scan skipping entry",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		kind, ok := Classify(d.Name())
		if !ok {
			return nil
		}
		items = append(items, Item{Path: path, Name: d.Name(), Kind: kind})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}
