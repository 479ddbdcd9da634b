package playout

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/teampat/obs-playout-mac/internal/platform/metrics"
	"github.com/teampat/obs-playout-mac/internal/switcher"
)

// Durations looks up the length of a video file in seconds.
type Durations interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Notifier receives every state change for fan-out to observers.
type Notifier interface {
	OnAirChanged(OnAirRecord)
	EngineStatusChanged(connected bool)
}

// Service is the playout state machine. It is the single writer of the
// OnAirRecord and serializes transitions so concurrent operator requests
// cannot interleave their engine call sequences: one playout transition runs
// at a time, later callers wait.
type Service struct {
	eng       Engine
	rec       *Reconciler
	cfg       func() Config
	durations Durations
	notifier  Notifier
	log       *slog.Logger
	met       *metrics.Metrics

	// transitionMu serializes PlayVideo/ShowImage/StopAll end to end.
	transitionMu sync.Mutex

	stateMu sync.RWMutex
	onAir   OnAirRecord
}

// NewService returns a Service in the empty (nothing on air) state.
// Metrics and Notifier may be nil (e.g. in tests).
func NewService(eng Engine, rec *Reconciler, cfg func() Config, durations Durations, notifier Notifier, log *slog.Logger, met *metrics.Metrics) *Service {
	return &Service{
		eng:       eng,
		rec:       rec,
		cfg:       cfg,
		durations: durations,
		notifier:  notifier,
		log:       log,
		met:       met,
		onAir:     OnAirRecord{Kind: KindNone},
	}
}

// OnAir returns the current on-air record.
func (s *Service) OnAir() OnAirRecord {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.onAir
}

// Snapshot returns the observer-facing state, identical to the join-time
// replay payload.
func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		OBSConnected: s.eng.Connected(),
		OnAir:        s.OnAir(),
	}
}

// validatePath accepts a candidate iff its string form begins with the
// configured media root. A plain prefix check, not a canonicalized-path
// containment check.
func (s *Service) validatePath(path string) error {
	root := s.cfg().MediaRoot
	if root == "" || !strings.HasPrefix(path, root) {
		return &InvalidPathError{Path: path}
	}
	return nil
}

// PlayVideo puts the video file at path on air. The path must be inside the
// media root and OBS must be connected. On any fatal step the on-air record
// is left unchanged and the error is returned; the engine may be left
// partially updated.
func (s *Service) PlayVideo(ctx context.Context, path string) error {
	if err := s.validatePath(path); err != nil {
		return err
	}
	if !s.eng.Connected() {
		return ErrNotConnected
	}

	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	cfg := s.cfg()
	s.switchProgramScene(ctx, cfg)

	if out := s.rec.EnsureSource(ctx, KindVideo); out.Fatal() {
		s.failTransition()
		return out.Err
	}
	s.rec.HideSource(ctx, KindImage)
	s.rec.ShowSource(ctx, KindVideo)

	// "Already stopped" is an expected outcome here, not a failure.
	if err := s.eng.TriggerMediaAction(ctx, cfg.VideoSource, switcher.MediaActionStop); err != nil {
		s.log.Debug("pre-play stop failed", slog.String("error", err.Error()))
	}

	settings := map[string]any{
		"local_file":    path,
		"is_local_file": true,
	}
	if err := s.eng.SetInputSettings(ctx, cfg.VideoSource, settings, true); err != nil {
		s.failTransition()
		return err
	}

	if err := s.eng.TriggerMediaAction(ctx, cfg.VideoSource, switcher.MediaActionRestart); err != nil {
		s.log.Warn("restart playback failed", slog.String("error", err.Error()))
	}
	if err := s.eng.SetMediaCursor(ctx, cfg.VideoSource, 0); err != nil {
		s.log.Debug("reset media cursor failed", slog.String("error", err.Error()))
	}
	s.rec.FitToCanvas(ctx, KindVideo)

	record := OnAirRecord{
		Kind:      KindVideo,
		Path:      path,
		Filename:  filepath.Base(path),
		StartedAt: time.Now().UTC(),
	}
	if d, err := s.durations.Duration(ctx, path); err != nil {
		s.log.Warn("duration probe failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	} else {
		record.DurationSec = &d
	}

	s.commit(record)
	s.log.Info("video on air", slog.String("file", record.Filename))
	return nil
}

// ShowImage puts the image file at path on air. Symmetric to PlayVideo
// without the stop/restart media semantics.
func (s *Service) ShowImage(ctx context.Context, path string) error {
	if err := s.validatePath(path); err != nil {
		return err
	}
	if !s.eng.Connected() {
		return ErrNotConnected
	}

	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	cfg := s.cfg()
	s.switchProgramScene(ctx, cfg)

	if out := s.rec.EnsureSource(ctx, KindImage); out.Fatal() {
		s.failTransition()
		return out.Err
	}
	s.rec.HideSource(ctx, KindVideo)
	s.rec.ShowSource(ctx, KindImage)

	if err := s.eng.SetInputSettings(ctx, cfg.ImageSource, map[string]any{"file": path}, true); err != nil {
		s.failTransition()
		return err
	}
	s.rec.FitToCanvas(ctx, KindImage)

	record := OnAirRecord{
		Kind:      KindImage,
		Path:      path,
		Filename:  filepath.Base(path),
		StartedAt: time.Now().UTC(),
	}
	s.commit(record)
	s.log.Info("image on air", slog.String("file", record.Filename))
	return nil
}

// StopAll takes everything off air. Both managed sources are hidden
// best-effort; the on-air record is cleared and broadcast unconditionally,
// even when the hides fail, so stop is never blocked by engine
// inconsistency.
func (s *Service) StopAll(ctx context.Context) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	if s.eng.Connected() {
		s.rec.HideSource(ctx, KindVideo)
		s.rec.HideSource(ctx, KindImage)
	}
	s.commit(OnAirRecord{Kind: KindNone})
	s.log.Info("playout stopped")
}

// Progress reads the engine's playback position for the on-air video. When
// nothing is on air, OBS is disconnected, or the query fails, it degrades to
// the synthetic "no media" sample.
func (s *Service) Progress(ctx context.Context) ProgressSample {
	if s.OnAir().Kind != KindVideo || !s.eng.Connected() {
		return ProgressSample{}
	}
	status, err := s.eng.MediaStatus(ctx, s.cfg().VideoSource)
	if err != nil {
		s.log.Debug("media status query failed", slog.String("error", err.Error()))
		return ProgressSample{}
	}
	return ProgressSample{
		HasMedia:    true,
		Playing:     status.State == switcher.MediaStatePlaying,
		State:       status.State,
		DurationSec: status.Duration.Seconds(),
		CursorSec:   status.Cursor.Seconds(),
	}
}

// Scenes lists the scene names OBS currently knows about.
func (s *Service) Scenes(ctx context.Context) ([]string, error) {
	if !s.eng.Connected() {
		return nil, ErrNotConnected
	}
	return s.eng.SceneList(ctx)
}

// ConnectEngine dials OBS with the configured URL and credential and
// broadcasts the new connection status. Reconnection is manual only: a
// dropped link stays down until an operator calls this again.
func (s *Service) ConnectEngine(ctx context.Context) error {
	cfg := s.cfg()
	if err := s.eng.Connect(ctx, cfg.OBSURL, cfg.OBSPassword); err != nil {
		return err
	}
	s.setConnected(true)
	return nil
}

// DisconnectEngine drops the OBS link. Idempotent; always succeeds locally.
func (s *Service) DisconnectEngine() {
	s.eng.Disconnect()
	s.setConnected(false)
}

// EngineClosed records a remote close of the OBS link. Wired to the switcher
// client's disconnect callback.
func (s *Service) EngineClosed() {
	s.setConnected(false)
}

func (s *Service) setConnected(up bool) {
	if s.met != nil {
		s.met.SetOBSConnected(up)
	}
	if s.notifier != nil {
		s.notifier.EngineStatusChanged(up)
	}
}

// switchProgramScene puts the configured target scene into program before a
// transition. Skipped in follow mode; failure is best-effort.
func (s *Service) switchProgramScene(ctx context.Context, cfg Config) {
	if cfg.TargetScene == "" || cfg.TargetScene == FollowCurrentScene {
		return
	}
	if err := s.eng.SetCurrentProgramScene(ctx, cfg.TargetScene); err != nil {
		s.log.Warn("switch program scene failed",
			slog.String("scene", cfg.TargetScene),
			slog.String("error", err.Error()))
	}
}

// commit atomically replaces the on-air record and broadcasts it.
func (s *Service) commit(record OnAirRecord) {
	s.stateMu.Lock()
	s.onAir = record
	s.stateMu.Unlock()

	if s.met != nil {
		s.met.IncTransition(string(record.Kind))
	}
	if s.notifier != nil {
		s.notifier.OnAirChanged(record)
	}
}

func (s *Service) failTransition() {
	if s.met != nil {
		s.met.IncTransitionError()
	}
}
