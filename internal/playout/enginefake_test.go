package playout

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/teampat/obs-playout-mac/internal/switcher"
)

// fakeEngine is an in-memory stand-in for OBS. It tracks inputs and scene
// membership like the real engine and records every call in order so tests
// can assert on sequencing.
type fakeEngine struct {
	mu        sync.Mutex
	connected bool
	calls     []string

	inputs     map[string]string         // input name -> input kind
	sceneItems map[string]map[string]int // scene -> source -> item id
	enabled    map[int]bool
	nextItemID int

	currentScene     string
	canvasW, canvasH int

	mediaStatus    switcher.MediaStatus
	mediaStatusErr error

	connectErr          error
	createInputErr      error
	setInputSettingsErr error
	sceneItemLookupErr  error
	setItemEnabledErr   error
	currentSceneErr     error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		connected:    true,
		inputs:       map[string]string{},
		sceneItems:   map[string]map[string]int{},
		enabled:      map[int]bool{},
		nextItemID:   1,
		currentScene: "Program",
		canvasW:      1920,
		canvasH:      1080,
	}
}

func (f *fakeEngine) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// callIndex returns the position of the first recorded call starting with
// prefix, or -1.
func (f *fakeEngine) callIndex(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			return i
		}
	}
	return -1
}

func notFound(requestType string) error {
	return &switcher.RequestError{RequestType: requestType, Code: 600, Comment: "not found"}
}

func (f *fakeEngine) Connect(ctx context.Context, url, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Connect %s", url)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeEngine) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Disconnect")
	f.connected = false
	return nil
}

func (f *fakeEngine) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeEngine) GetInputSettings(ctx context.Context, input string) (string, map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetInputSettings %s", input)
	kind, ok := f.inputs[input]
	if !ok {
		return "", nil, notFound("GetInputSettings")
	}
	return kind, map[string]any{}, nil
}

func (f *fakeEngine) SetInputSettings(ctx context.Context, input string, settings map[string]any, overlay bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetInputSettings %s overlay=%v file=%v", input, overlay, firstNonNil(settings["local_file"], settings["file"]))
	return f.setInputSettingsErr
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func (f *fakeEngine) CreateInput(ctx context.Context, scene, input, kind string, settings map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateInput %s %s %s", scene, input, kind)
	if f.createInputErr != nil {
		return f.createInputErr
	}
	f.inputs[input] = kind
	f.attachLocked(scene, input)
	return nil
}

func (f *fakeEngine) CreateSceneItem(ctx context.Context, scene, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateSceneItem %s %s", scene, source)
	return f.attachLocked(scene, source), nil
}

func (f *fakeEngine) attachLocked(scene, source string) int {
	if f.sceneItems[scene] == nil {
		f.sceneItems[scene] = map[string]int{}
	}
	id := f.nextItemID
	f.nextItemID++
	f.sceneItems[scene][source] = id
	return id
}

func (f *fakeEngine) SceneItemID(ctx context.Context, scene, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SceneItemID %s %s", scene, source)
	if f.sceneItemLookupErr != nil {
		return 0, f.sceneItemLookupErr
	}
	id, ok := f.sceneItems[scene][source]
	if !ok {
		return 0, notFound("GetSceneItemList")
	}
	return id, nil
}

func (f *fakeEngine) SetSceneItemEnabled(ctx context.Context, scene string, itemID int, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetSceneItemEnabled %s %d %v", scene, itemID, enabled)
	if f.setItemEnabledErr != nil {
		return f.setItemEnabledErr
	}
	f.enabled[itemID] = enabled
	return nil
}

func (f *fakeEngine) SetSceneItemTransform(ctx context.Context, scene string, itemID int, transform map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetSceneItemTransform %s %d bounds=%vx%v", scene, itemID, transform["boundsWidth"], transform["boundsHeight"])
	return nil
}

func (f *fakeEngine) CanvasSize(ctx context.Context) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CanvasSize")
	return f.canvasW, f.canvasH, nil
}

func (f *fakeEngine) CurrentProgramScene(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CurrentProgramScene")
	if f.currentSceneErr != nil {
		return "", f.currentSceneErr
	}
	return f.currentScene, nil
}

func (f *fakeEngine) SetCurrentProgramScene(ctx context.Context, scene string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetCurrentProgramScene %s", scene)
	f.currentScene = scene
	return nil
}

func (f *fakeEngine) SceneList(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SceneList")
	scenes := make([]string, 0, len(f.sceneItems))
	for s := range f.sceneItems {
		scenes = append(scenes, s)
	}
	return scenes, nil
}

func (f *fakeEngine) TriggerMediaAction(ctx context.Context, input, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("TriggerMediaAction %s %s", input, action)
	return nil
}

func (f *fakeEngine) MediaStatus(ctx context.Context, input string) (switcher.MediaStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MediaStatus %s", input)
	return f.mediaStatus, f.mediaStatusErr
}

func (f *fakeEngine) SetMediaCursor(ctx context.Context, input string, cursor time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetMediaCursor %s %s", input, cursor)
	return nil
}

// fakeNotifier records every broadcast.
type fakeNotifier struct {
	mu       sync.Mutex
	onAir    []OnAirRecord
	statuses []bool
}

func (n *fakeNotifier) OnAirChanged(record OnAirRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onAir = append(n.onAir, record)
}

func (n *fakeNotifier) EngineStatusChanged(connected bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, connected)
}

func (n *fakeNotifier) lastOnAir(t *testing.T) OnAirRecord {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.onAir) == 0 {
		t.Fatal("no on-air broadcast recorded")
	}
	return n.onAir[len(n.onAir)-1]
}

// fakeDurations returns a fixed duration for every path.
type fakeDurations struct {
	seconds float64
	err     error
}

func (d fakeDurations) Duration(ctx context.Context, path string) (float64, error) {
	return d.seconds, d.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() Config {
	return Config{
		MediaRoot:   "/media/lib",
		OBSURL:      "ws://127.0.0.1:4455",
		TargetScene: FollowCurrentScene,
		VideoSource: "PlayoutVideo",
		ImageSource: "PlayoutImage",
	}
}

func newTestService(eng *fakeEngine, cfg Config) (*Service, *fakeNotifier) {
	log := testLogger()
	rec := NewReconciler(eng, func() Config { return cfg }, log)
	notifier := &fakeNotifier{}
	svc := NewService(eng, rec, func() Config { return cfg }, fakeDurations{seconds: 12.5}, notifier, log, nil)
	return svc, notifier
}
