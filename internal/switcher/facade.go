package switcher

import (
	"context"
	"time"
)

// Media actions accepted by TriggerMediaAction.
const (
	MediaActionStop    = "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_STOP"
	MediaActionRestart = "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_RESTART"
	MediaActionPlay    = "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_PLAY"
	MediaActionPause   = "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_PAUSE"
)

// MediaStatePlaying is the engine state reported while media is playing.
const MediaStatePlaying = "OBS_MEDIA_STATE_PLAYING"

// MediaStatus is the engine-reported playback position of a media input.
type MediaStatus struct {
	State    string
	Duration time.Duration
	Cursor   time.Duration
}

// GetInputSettings returns the input kind and current settings for an input.
func (c *Client) GetInputSettings(ctx context.Context, input string) (string, map[string]any, error) {
	var out struct {
		InputKind     string         `json:"inputKind"`
		InputSettings map[string]any `json:"inputSettings"`
	}
	err := c.Call(ctx, "GetInputSettings", map[string]any{"inputName": input}, &out)
	if err != nil {
		return "", nil, err
	}
	return out.InputKind, out.InputSettings, nil
}

// SetInputSettings updates an input's settings. With overlay true the given
// settings are merged into the existing ones instead of replacing them.
func (c *Client) SetInputSettings(ctx context.Context, input string, settings map[string]any, overlay bool) error {
	return c.Call(ctx, "SetInputSettings", map[string]any{
		"inputName":     input,
		"inputSettings": settings,
		"overlay":       overlay,
	}, nil)
}

// CreateInput creates a new input of the given kind directly inside scene.
func (c *Client) CreateInput(ctx context.Context, scene, input, kind string, settings map[string]any) error {
	params := map[string]any{
		"sceneName":        scene,
		"inputName":        input,
		"inputKind":        kind,
		"sceneItemEnabled": false,
	}
	if settings != nil {
		params["inputSettings"] = settings
	}
	return c.Call(ctx, "CreateInput", params, nil)
}

// CreateSceneItem attaches an existing source to scene and returns the new
// scene item id.
func (c *Client) CreateSceneItem(ctx context.Context, scene, source string) (int, error) {
	var out struct {
		SceneItemID int `json:"sceneItemId"`
	}
	err := c.Call(ctx, "CreateSceneItem", map[string]any{
		"sceneName":        scene,
		"sourceName":       source,
		"sceneItemEnabled": false,
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.SceneItemID, nil
}

// SceneItemID finds the scene item for source within scene by scanning the
// scene's item list. A missing item is reported as a not-found RequestError
// so callers can classify it with IsNotFound.
func (c *Client) SceneItemID(ctx context.Context, scene, source string) (int, error) {
	var out struct {
		SceneItems []struct {
			SceneItemID int    `json:"sceneItemId"`
			SourceName  string `json:"sourceName"`
		} `json:"sceneItems"`
	}
	err := c.Call(ctx, "GetSceneItemList", map[string]any{"sceneName": scene}, &out)
	if err != nil {
		return 0, err
	}
	for _, item := range out.SceneItems {
		if item.SourceName == source {
			return item.SceneItemID, nil
		}
	}
	return 0, &RequestError{
		RequestType: "GetSceneItemList",
		Code:        codeResourceNotFound,
		Comment:     "no scene item for source " + source,
	}
}

// SetSceneItemEnabled shows or hides a scene item.
func (c *Client) SetSceneItemEnabled(ctx context.Context, scene string, itemID int, enabled bool) error {
	return c.Call(ctx, "SetSceneItemEnabled", map[string]any{
		"sceneName":        scene,
		"sceneItemId":      itemID,
		"sceneItemEnabled": enabled,
	}, nil)
}

// SetSceneItemTransform applies a placement transform to a scene item.
func (c *Client) SetSceneItemTransform(ctx context.Context, scene string, itemID int, transform map[string]any) error {
	return c.Call(ctx, "SetSceneItemTransform", map[string]any{
		"sceneName":          scene,
		"sceneItemId":        itemID,
		"sceneItemTransform": transform,
	}, nil)
}

// CanvasSize returns the engine's base canvas dimensions.
func (c *Client) CanvasSize(ctx context.Context) (int, int, error) {
	var out struct {
		BaseWidth  int `json:"baseWidth"`
		BaseHeight int `json:"baseHeight"`
	}
	err := c.Call(ctx, "GetVideoSettings", nil, &out)
	if err != nil {
		return 0, 0, err
	}
	return out.BaseWidth, out.BaseHeight, nil
}

// CurrentProgramScene returns the name of the engine's active program scene.
func (c *Client) CurrentProgramScene(ctx context.Context) (string, error) {
	var out struct {
		CurrentProgramSceneName string `json:"currentProgramSceneName"`
	}
	err := c.Call(ctx, "GetCurrentProgramScene", nil, &out)
	if err != nil {
		return "", err
	}
	return out.CurrentProgramSceneName, nil
}

// SetCurrentProgramScene switches the engine's active program scene.
func (c *Client) SetCurrentProgramScene(ctx context.Context, scene string) error {
	return c.Call(ctx, "SetCurrentProgramScene", map[string]any{"sceneName": scene}, nil)
}

// SceneList returns the names of all scenes known to the engine.
func (c *Client) SceneList(ctx context.Context) ([]string, error) {
	var out struct {
		Scenes []struct {
			SceneName string `json:"sceneName"`
		} `json:"scenes"`
	}
	err := c.Call(ctx, "GetSceneList", nil, &out)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Scenes))
	for _, s := range out.Scenes {
		names = append(names, s.SceneName)
	}
	return names, nil
}

// TriggerMediaAction fires a media control action (stop/restart/play/pause)
// on a media input.
func (c *Client) TriggerMediaAction(ctx context.Context, input, action string) error {
	return c.Call(ctx, "TriggerMediaInputAction", map[string]any{
		"inputName":   input,
		"mediaAction": action,
	}, nil)
}

// MediaStatus reads the playback state, duration, and cursor of a media
// input. OBS reports both in milliseconds.
func (c *Client) MediaStatus(ctx context.Context, input string) (MediaStatus, error) {
	var out struct {
		MediaState    string  `json:"mediaState"`
		MediaDuration float64 `json:"mediaDuration"`
		MediaCursor   float64 `json:"mediaCursor"`
	}
	err := c.Call(ctx, "GetMediaInputStatus", map[string]any{"inputName": input}, &out)
	if err != nil {
		return MediaStatus{}, err
	}
	return MediaStatus{
		State:    out.MediaState,
		Duration: time.Duration(out.MediaDuration) * time.Millisecond,
		Cursor:   time.Duration(out.MediaCursor) * time.Millisecond,
	}, nil
}

// SetMediaCursor seeks a media input to the given position.
func (c *Client) SetMediaCursor(ctx context.Context, input string, cursor time.Duration) error {
	return c.Call(ctx, "SetMediaInputCursor", map[string]any{
		"inputName":   input,
		"mediaCursor": cursor.Milliseconds(),
	}, nil)
}
