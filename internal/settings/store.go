package settings

import (
	"database/sql"
	"fmt"
	"sync"
)

// Settings is the operator-editable server configuration persisted across
// restarts.
type Settings struct {
	MediaRoot   string `json:"media_root"`
	OBSURL      string `json:"obs_url"`
	OBSPassword string `json:"obs_password"`
	TargetScene string `json:"target_scene"`
	VideoSource string `json:"video_source"`
	ImageSource string `json:"image_source"`
}

const (
	keyMediaRoot   = "media_root"
	keyOBSURL      = "obs_url"
	keyOBSPassword = "obs_password"
	keyTargetScene = "target_scene"
	keyVideoSource = "video_source"
	keyImageSource = "image_source"
)

// Store persists Settings in SQLite as key/value rows and keeps an in-memory
// copy for lock-cheap reads on the playout hot path.
type Store struct {
	db *sql.DB

	mu      sync.RWMutex
	current Settings
}

// NewStore migrates the settings table and loads the persisted values.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS app_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("migrate app_config: %w", err)
	}
	return nil
}

// Seed inserts defaults for any key not yet present, leaving persisted
// operator choices untouched. Called once at startup with env-derived
// values.
func (s *Store) Seed(defaults Settings) error {
	for key, value := range map[string]string{
		keyMediaRoot:   defaults.MediaRoot,
		keyOBSURL:      defaults.OBSURL,
		keyOBSPassword: defaults.OBSPassword,
		keyTargetScene: defaults.TargetScene,
		keyVideoSource: defaults.VideoSource,
		keyImageSource: defaults.ImageSource,
	} {
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO app_config (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return s.reload()
}

// Current returns the in-memory copy of the settings.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save upserts every settings key and refreshes the in-memory copy.
func (s *Store) Save(settings Settings) error {
	for key, value := range map[string]string{
		keyMediaRoot:   settings.MediaRoot,
		keyOBSURL:      settings.OBSURL,
		keyOBSPassword: settings.OBSPassword,
		keyTargetScene: settings.TargetScene,
		keyVideoSource: settings.VideoSource,
		keyImageSource: settings.ImageSource,
	} {
		if _, err := s.db.Exec(
			`INSERT INTO app_config (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}

	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()
	return nil
}

// SaveTargetScene updates only the target scene setting.
func (s *Store) SaveTargetScene(scene string) error {
	settings := s.Current()
	settings.TargetScene = scene
	return s.Save(settings)
}

// reload reads all rows back into the in-memory copy.
func (s *Store) reload() error {
	rows, err := s.db.Query(`SELECT key, value FROM app_config`)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	var loaded Settings
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan settings row: %w", err)
		}
		switch key {
		case keyMediaRoot:
			loaded.MediaRoot = value
		case keyOBSURL:
			loaded.OBSURL = value
		case keyOBSPassword:
			loaded.OBSPassword = value
		case keyTargetScene:
			loaded.TargetScene = value
		case keyVideoSource:
			loaded.VideoSource = value
		case keyImageSource:
			loaded.ImageSource = value
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read settings rows: %w", err)
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}
