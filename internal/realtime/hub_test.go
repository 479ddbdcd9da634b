package realtime

import (
	"log/slog"
	"net/http/httptest"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeState is a mutable snapshot source for hub tests.
type fakeState struct {
	mu   sync.Mutex
	snap Snapshot
}

func (s *fakeState) get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeState) set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

type hubFixture struct {
	state *fakeState
	hub   *Hub
	url   string
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	state := &fakeState{snap: Snapshot{
		OBSConnected: true,
		OnAir:        map[string]string{"kind": "none"},
	}}
	hub := NewHub(state.get, testLogger(), nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return &hubFixture{
		state: state,
		hub:   hub,
		url:   "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return env
}

func waitObservers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ObserverCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("observer count never reached %d, at %d", want, hub.ObserverCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_join_replays_status_then_on_air(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t)

	first := readEnvelope(t, conn)
	if first.Type != TypeOBSStatus {
		t.Fatalf("first replay message type %q, want %q", first.Type, TypeOBSStatus)
	}
	status, ok := first.Data.(map[string]any)
	if !ok || status["connected"] != true {
		t.Errorf("unexpected status payload %v", first.Data)
	}

	second := readEnvelope(t, conn)
	if second.Type != TypeOnAir {
		t.Fatalf("second replay message type %q, want %q", second.Type, TypeOnAir)
	}
	record, ok := second.Data.(map[string]any)
	if !ok || record["kind"] != "none" {
		t.Errorf("unexpected on-air payload %v", second.Data)
	}
}

func TestHub_broadcast_reaches_every_observer(t *testing.T) {
	f := newHubFixture(t)
	a := f.dial(t)
	b := f.dial(t)

	// Drain the join replays.
	for _, conn := range []*websocket.Conn{a, b} {
		readEnvelope(t, conn)
		readEnvelope(t, conn)
	}
	waitObservers(t, f.hub, 2)

	f.hub.BroadcastOnAir(map[string]string{"kind": "video", "filename": "clip.mp4"})

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		if env.Type != TypeOnAir {
			t.Fatalf("broadcast type %q, want %q", env.Type, TypeOnAir)
		}
		record := env.Data.(map[string]any)
		if record["filename"] != "clip.mp4" {
			t.Errorf("unexpected broadcast payload %v", env.Data)
		}
	}
}

func TestHub_refresh_request_replays_current_state(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t)
	readEnvelope(t, conn)
	readEnvelope(t, conn)

	// State changes between join and refresh; the refresh must reflect it.
	f.state.set(Snapshot{OBSConnected: false, OnAir: map[string]string{"kind": "image"}})

	if err := conn.WriteJSON(map[string]string{"type": "refresh"}); err != nil {
		t.Fatalf("write refresh: %v", err)
	}

	status := readEnvelope(t, conn)
	if status.Type != TypeOBSStatus || status.Data.(map[string]any)["connected"] != false {
		t.Errorf("unexpected refresh status %+v", status)
	}
	record := readEnvelope(t, conn)
	if record.Type != TypeOnAir || record.Data.(map[string]any)["kind"] != "image" {
		t.Errorf("unexpected refresh record %+v", record)
	}
}

func TestHub_unregisters_closed_observers(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t)
	readEnvelope(t, conn)
	readEnvelope(t, conn)
	waitObservers(t, f.hub, 1)

	conn.Close()
	waitObservers(t, f.hub, 0)

	// Broadcasting into an empty hub must not panic or block.
	f.hub.BroadcastProgress(map[string]bool{"has_media": false})
}

func TestHub_observer_churn_releases_goroutines(t *testing.T) {
	f := newHubFixture(t)
	before := runtime.NumGoroutine()

	for i := 0; i < 20; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		readEnvelope(t, conn)
		readEnvelope(t, conn)
		conn.Close()
	}
	waitObservers(t, f.hub, 0)

	// Every per-observer goroutine (read pump and pinger) must have exited.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if n := runtime.NumGoroutine(); n <= before+2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("goroutines before=%d after=%d: observer goroutines leaked",
				before, runtime.NumGoroutine())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_broadcast_status_payload(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t)
	readEnvelope(t, conn)
	readEnvelope(t, conn)
	waitObservers(t, f.hub, 1)

	f.hub.BroadcastOBSStatus(false)
	env := readEnvelope(t, conn)
	if env.Type != TypeOBSStatus || env.Data.(map[string]any)["connected"] != false {
		t.Errorf("unexpected status broadcast %+v", env)
	}
}
