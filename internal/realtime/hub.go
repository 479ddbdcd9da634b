package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teampat/obs-playout-mac/internal/platform/metrics"
)

// Message types pushed to observers.
const (
	TypeOBSStatus = "obs_status"
	TypeOnAir     = "on_air"
	TypeProgress  = "progress"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// Observers only send refresh requests; anything bigger is bogus.
	maxMessageSize = 512
)

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StatusPayload is the data of a TypeOBSStatus message.
type StatusPayload struct {
	Connected bool `json:"connected"`
}

// Snapshot is the state replayed to an observer on join and on explicit
// refresh: the engine connection status and the current on-air record.
type Snapshot struct {
	OBSConnected bool
	OnAir        any
}

// StateFunc supplies the current snapshot for replays.
type StateFunc func() Snapshot

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The UI may be served from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client wraps a connection with a write lock; gorilla connections permit
// only one concurrent writer and both broadcasts and replays write.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub fans process-wide state out to every connected observer. Joining
// observers immediately receive the current status and on-air record, so no
// observer ever sees a stale blank state.
type Hub struct {
	state StateFunc
	log   *slog.Logger
	met   *metrics.Metrics

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub returns a hub replaying state from state. Metrics may be nil.
func NewHub(state StateFunc, log *slog.Logger, met *metrics.Metrics) *Hub {
	return &Hub{
		state:   state,
		log:     log,
		met:     met,
		clients: make(map[*client]bool),
	}
}

// ServeHTTP upgrades the request to a WebSocket observer connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	cl := &client{conn: conn}
	h.register(cl)
	h.log.Debug("observer connected", slog.String("remote", r.RemoteAddr))

	// Replay-on-join, before the client can observe any broadcast gap.
	h.replay(cl)

	go h.readPump(cl)
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl] = true
	n := len(h.clients)
	h.mu.Unlock()
	if h.met != nil {
		h.met.SetObservers(n)
	}
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	if !h.clients[cl] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, cl)
	n := len(h.clients)
	h.mu.Unlock()
	cl.conn.Close()
	if h.met != nil {
		h.met.SetObservers(n)
	}
	h.log.Debug("observer disconnected")
}

// ObserverCount returns the number of connected observers.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// replay pushes the current status and on-air record to a single observer.
func (h *Hub) replay(cl *client) {
	snap := h.state()
	h.send(cl, envelope{Type: TypeOBSStatus, Data: StatusPayload{Connected: snap.OBSConnected}})
	h.send(cl, envelope{Type: TypeOnAir, Data: snap.OnAir})
}

// send writes one message to one observer, dropping the connection on
// failure.
func (h *Hub) send(cl *client, env envelope) {
	cl.mu.Lock()
	cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := cl.conn.WriteJSON(env)
	cl.mu.Unlock()

	if err != nil {
		h.log.Debug("observer write failed", slog.String("error", err.Error()))
		h.unregister(cl)
		return
	}
	if h.met != nil {
		h.met.IncWSMessages()
	}
}

// broadcast pushes one message to every observer. All observers see the
// same sequence of broadcasts.
func (h *Hub) broadcast(env envelope) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		h.send(cl, env)
	}
}

// BroadcastOBSStatus pushes an engine connection status change.
func (h *Hub) BroadcastOBSStatus(connected bool) {
	h.broadcast(envelope{Type: TypeOBSStatus, Data: StatusPayload{Connected: connected}})
}

// BroadcastOnAir pushes a new on-air record.
func (h *Hub) BroadcastOnAir(record any) {
	h.broadcast(envelope{Type: TypeOnAir, Data: record})
}

// BroadcastProgress pushes a playback progress sample.
func (h *Hub) BroadcastProgress(sample any) {
	h.broadcast(envelope{Type: TypeProgress, Data: sample})
}

// readPump consumes observer messages until the connection dies. The only
// recognized request is {"type":"refresh"}, answered with the same pair of
// messages as the join-time replay.
func (h *Hub) readPump(cl *client) {
	defer h.unregister(cl)

	cl.conn.SetReadLimit(maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The ping goroutine owns its ticker and exits when done closes, so an
	// observer disconnect never strands it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				cl.mu.Lock()
				cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := cl.conn.WriteMessage(websocket.PingMessage, nil)
				cl.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("observer read error", slog.String("error", err.Error()))
			}
			return
		}
		var req struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		if req.Type == "refresh" {
			h.replay(cl)
		}
	}
}
