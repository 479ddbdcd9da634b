package playout

import (
	"context"
	"time"

	"github.com/teampat/obs-playout-mac/internal/switcher"
)

// OBS input kinds for the two managed sources.
const (
	videoInputKind = "ffmpeg_source"
	imageInputKind = "image_source"
)

// Engine is the control surface of the compositing engine, implemented by
// *switcher.Client and faked in tests. Every call can fail independently of
// local state; callers classify each failure as fatal or best-effort.
type Engine interface {
	Connect(ctx context.Context, url, password string) error
	Disconnect() error
	Connected() bool

	GetInputSettings(ctx context.Context, input string) (kind string, settings map[string]any, err error)
	SetInputSettings(ctx context.Context, input string, settings map[string]any, overlay bool) error
	CreateInput(ctx context.Context, scene, input, kind string, settings map[string]any) error
	CreateSceneItem(ctx context.Context, scene, source string) (int, error)
	SceneItemID(ctx context.Context, scene, source string) (int, error)
	SetSceneItemEnabled(ctx context.Context, scene string, itemID int, enabled bool) error
	SetSceneItemTransform(ctx context.Context, scene string, itemID int, transform map[string]any) error
	CanvasSize(ctx context.Context) (width, height int, err error)
	CurrentProgramScene(ctx context.Context) (string, error)
	SetCurrentProgramScene(ctx context.Context, scene string) error
	SceneList(ctx context.Context) ([]string, error)
	TriggerMediaAction(ctx context.Context, input, action string) error
	MediaStatus(ctx context.Context, input string) (switcher.MediaStatus, error)
	SetMediaCursor(ctx context.Context, input string, cursor time.Duration) error
}
