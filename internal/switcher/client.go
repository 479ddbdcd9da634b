package switcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teampat/obs-playout-mac/internal/platform/metrics"
)

// ErrNotConnected is returned when a call is attempted without an identified
// OBS connection.
var ErrNotConnected = errors.New("obs is not connected")

// ConnectionError wraps a failure to establish or authenticate the OBS link.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to obs at %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RequestError is an error reported by OBS for a single request.
type RequestError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *RequestError) Error() string {
	if e.Comment != "" {
		return fmt.Sprintf("obs request %s failed (code %d): %s", e.RequestType, e.Code, e.Comment)
	}
	return fmt.Sprintf("obs request %s failed (code %d)", e.RequestType, e.Code)
}

// codeResourceNotFound is the obs-websocket RequestStatus code for a missing
// input, scene, or scene item.
const codeResourceNotFound = 600

// IsNotFound reports whether err is an OBS "resource not found" response.
func IsNotFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Code == codeResourceNotFound
}

const handshakeTimeout = 10 * time.Second

// Client is a typed facade over a single obs-websocket v5 connection.
// It performs no retry, queueing, or automatic reconnection: every call can
// fail independently and callers decide what is fatal.
type Client struct {
	log *slog.Logger
	met *metrics.Metrics

	// connectMu serializes Connect end to end, so concurrent calls cannot
	// each dial and install a connection. At most one engine connection
	// exists per client.
	connectMu sync.Mutex

	// writeMu serializes frame writes; gorilla connections permit only one
	// concurrent writer.
	writeMu sync.Mutex

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	pending      map[string]chan requestResponse
	onDisconnect func()
}

// New returns an unconnected client. Metrics may be nil.
func New(log *slog.Logger, met *metrics.Metrics) *Client {
	return &Client{
		log:     log,
		met:     met,
		pending: make(map[string]chan requestResponse),
	}
}

// OnDisconnect registers a callback fired once when the connection is closed
// by the remote side (not by Disconnect).
func (c *Client) OnDisconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// Connected reports whether an identified connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the obs-websocket endpoint and performs the Hello/Identify
// handshake, authenticating with password when OBS requires it.
// Connecting while already connected is a no-op.
func (c *Client) Connect(ctx context.Context, url, password string) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return &ConnectionError{URL: url, Err: err}
	}

	if err := c.identify(conn, password); err != nil {
		conn.Close()
		return &ConnectionError{URL: url, Err: err}
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.pending = make(map[string]chan requestResponse)
	c.mu.Unlock()

	c.log.Info("obs connected", slog.String("url", url))
	go c.readLoop(conn)
	return nil
}

// identify runs the Hello/Identify/Identified exchange on a fresh connection.
func (c *Client) identify(conn *websocket.Conn, password string) error {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	var frame inMessage
	if err := conn.ReadJSON(&frame); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if frame.Op != opHello {
		return fmt.Errorf("expected hello frame, got op %d", frame.Op)
	}
	var hello helloData
	if err := json.Unmarshal(frame.D, &hello); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	identify := identifyData{RPCVersion: rpcVersion}
	if hello.Authentication != nil {
		identify.Authentication = authResponse(password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}
	if err := conn.WriteJSON(outMessage{Op: opIdentify, D: identify}); err != nil {
		return fmt.Errorf("write identify: %w", err)
	}

	if err := conn.ReadJSON(&frame); err != nil {
		return fmt.Errorf("read identified: %w", err)
	}
	if frame.Op != opIdentified {
		return fmt.Errorf("authentication rejected (op %d)", frame.Op)
	}
	return nil
}

// Disconnect closes the connection. It is idempotent and always succeeds
// locally; the registered OnDisconnect callback is not fired.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.failPendingLocked()
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	conn.Close()
	c.log.Info("obs disconnected")
	return nil
}

// readLoop correlates responses with pending calls until the socket dies.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var frame inMessage
		if err := conn.ReadJSON(&frame); err != nil {
			c.handleClosed(conn, err)
			return
		}
		switch frame.Op {
		case opRequestResponse:
			var rr requestResponse
			if err := json.Unmarshal(frame.D, &rr); err != nil {
				c.log.Warn("obs sent malformed response", slog.String("error", err.Error()))
				continue
			}
			c.mu.Lock()
			ch := c.pending[rr.RequestID]
			delete(c.pending, rr.RequestID)
			c.mu.Unlock()
			if ch != nil {
				ch <- rr
			}
		case opEvent:
			// Events are not subscribed; ignore anything OBS pushes anyway.
		}
	}
}

// handleClosed tears down state after a remote close or read failure.
func (c *Client) handleClosed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Already replaced or locally disconnected.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	c.failPendingLocked()
	fn := c.onDisconnect
	c.mu.Unlock()

	conn.Close()
	c.log.Warn("obs connection lost", slog.String("error", err.Error()))
	if fn != nil {
		fn()
	}
}

// failPendingLocked closes every in-flight call channel. Callers see
// ErrNotConnected. c.mu must be held.
func (c *Client) failPendingLocked() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Call issues a request and waits for its correlated response. params is
// marshaled as the request payload; when out is non-nil the response payload
// is unmarshaled into it. A non-success status from OBS yields a
// *RequestError.
func (c *Client) Call(ctx context.Context, requestType string, params any, out any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	id := uuid.NewString()
	ch := make(chan requestResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if c.met != nil {
		c.met.IncOBSCall()
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(outMessage{Op: opRequest, D: requestData{
		RequestType: requestType,
		RequestID:   id,
		RequestData: params,
	}})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		if c.met != nil {
			c.met.IncOBSCallError()
		}
		return fmt.Errorf("write %s: %w", requestType, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case rr, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if !rr.RequestStatus.Result {
			if c.met != nil {
				c.met.IncOBSCallError()
			}
			return &RequestError{
				RequestType: requestType,
				Code:        rr.RequestStatus.Code,
				Comment:     rr.RequestStatus.Comment,
			}
		}
		if out != nil && len(rr.ResponseData) > 0 {
			if err := json.Unmarshal(rr.ResponseData, out); err != nil {
				return fmt.Errorf("decode %s response: %w", requestType, err)
			}
		}
		return nil
	}
}
