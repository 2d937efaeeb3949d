/*
Control channel over a single full-duplex WebSocket.

One receiver goroutine owns all reads and tags incoming messages by shape:
responses resolve pending requests by id, error responses fail them with a
GlassesError, signal notifications fan out through the subscription
registry, and anything else is logged and ignored. All public calls are
send-only; writes are serialized by a mutex as the underlying connection
supports a single writer.
*/

package g3ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	gws "github.com/gorilla/websocket"

	"github.com/tobiipro/g3go/g3types"
	"github.com/tobiipro/g3go/logging"
)

// Subprotocol is the WebSocket sub-protocol tag spoken by the device.
const Subprotocol = "g3api"

// DefaultSubscriberQueueSize bounds each local signal subscriber channel.
// On overflow the oldest queued body is dropped.
const DefaultSubscriberQueueSize = 100

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options configures Dial.
type Options struct {
	// Logger for channel events. Defaults to a component logger.
	Logger *logging.Logger
	// Header is passed to the WebSocket handshake.
	Header http.Header
	// SubscriberQueueSize overrides DefaultSubscriberQueueSize.
	SubscriberQueueSize int
	// Dialer overrides the default gorilla dialer (proxy, TLS, timeouts).
	Dialer *gws.Dialer
}

type pendingResult struct {
	body g3types.Value
	err  error
}

// Connection is a control channel to a Glasses 3 device.
type Connection struct {
	conn   *gws.Conn
	logger *logging.Logger

	state atomic.Int32

	writeMu sync.Mutex

	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan pendingResult

	signals *signalRegistry

	receiverDone chan struct{}
	closeOnce    sync.Once
	closeErr     error
}

// Dial opens a control channel to the given ws:// URL, negotiating the
// g3api sub-protocol, and starts the receiver.
func Dial(ctx context.Context, wsURL string, opts *Options) (*Connection, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("g3ws")
	}

	dialer := opts.Dialer
	if dialer == nil {
		d := *gws.DefaultDialer
		dialer = &d
	}
	dialer.Subprotocols = []string{Subprotocol}

	c := &Connection{
		logger:       logger,
		pending:      make(map[uint64]chan pendingResult),
		receiverDone: make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	queueSize := opts.SubscriberQueueSize
	if queueSize <= 0 {
		queueSize = DefaultSubscriberQueueSize
	}
	c.signals = newSignalRegistry(c, queueSize, logger)

	conn, resp, err := dialer.DialContext(ctx, wsURL, opts.Header)
	if err != nil {
		c.state.Store(int32(StateClosed))
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake with %s failed (status %d): %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket handshake with %s failed: %w", wsURL, err)
	}
	c.conn = conn
	c.state.Store(int32(StateOpen))

	logger.WithFields(logging.Fields{
		"url":         wsURL,
		"subprotocol": conn.Subprotocol(),
	}).Debug("Control channel open")

	go c.receiver()
	return c, nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// request is the wire form of a control request. Body distinguishes three
// states: absent (GET), JSON null (subscribe) and any other value.
type request struct {
	ID     uint64           `json:"id"`
	Path   g3types.URI      `json:"path"`
	Method string           `json:"method"`
	Params interface{}      `json:"params,omitempty"`
	Body   *json.RawMessage `json:"body,omitempty"`
}

// Require sends the request with a fresh id and returns the body of the
// matching response. An error response becomes a *GlassesError. Cancelling
// the context abandons the request; a late response is discarded.
func (c *Connection) Require(ctx context.Context, req Request) (g3types.Value, error) {
	if c.State() != StateOpen {
		return g3types.Value{}, ErrNotOpen
	}

	id := c.nextID.Add(1)
	wire := request{
		ID:     id,
		Path:   req.Path,
		Method: req.Method,
		Params: req.Params,
		Body:   req.body,
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return g3types.Value{}, fmt.Errorf("failed to encode request for %s: %w", req.Path, err)
	}

	ch := make(chan pendingResult, 1)
	c.pendingMu.Lock()
	if c.State() != StateOpen {
		c.pendingMu.Unlock()
		return g3types.Value{}, ErrNotOpen
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.writeMessage(payload); err != nil {
		c.removePending(id)
		return g3types.Value{}, fmt.Errorf("failed to send request for %s: %w", req.Path, err)
	}

	select {
	case <-ctx.Done():
		c.removePending(id)
		return g3types.Value{}, ctx.Err()
	case res := <-ch:
		return res.body, res.err
	}
}

// RequireGet sends a GET request for the given path.
func (c *Connection) RequireGet(ctx context.Context, uri g3types.URI, params interface{}) (g3types.Value, error) {
	return c.Require(ctx, NewGetRequest(uri, params))
}

// RequirePost sends a POST request for the given path. A nil body is sent
// as the empty list, which the device treats differently from null.
func (c *Connection) RequirePost(ctx context.Context, uri g3types.URI, body interface{}) (g3types.Value, error) {
	req, err := NewPostRequest(uri, body)
	if err != nil {
		return g3types.Value{}, err
	}
	return c.Require(ctx, req)
}

// SubscribeToSignal subscribes to the signal at the given path. The first
// local subscriber establishes the server-side subscription; later ones
// share it. See g3types.Control for the channel semantics.
func (c *Connection) SubscribeToSignal(ctx context.Context, uri g3types.URI) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return c.signals.subscribe(ctx, uri)
}

// Close rejects all pending requests, performs the closing handshake and
// waits for the receiver to exit. It is idempotent.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.failPending(ErrConnectionClosed)
		c.signals.closeAll()

		c.writeMu.Lock()
		deadline := closeHandshakeDeadline()
		err := c.conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		if err != nil && err != gws.ErrCloseSent {
			c.logger.WithError(err).Debug("Close handshake write failed")
		}

		c.closeErr = c.conn.Close()
		<-c.receiverDone
		c.state.Store(int32(StateClosed))
		c.logger.Debug("Control channel closed")
	})
	return c.closeErr
}

func (c *Connection) writeMessage(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.State() != StateOpen {
		return ErrNotOpen
	}
	return c.conn.WriteMessage(gws.TextMessage, payload)
}

func (c *Connection) removePending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// failPending atomically rejects every in-flight request.
func (c *Connection) failPending(cause error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- pendingResult{err: fmt.Errorf("request abandoned: %w", cause)}
		delete(c.pending, id)
	}
}

// receiver owns all reads on the socket. It exits on the first transport
// error, failing whatever is still pending.
func (c *Connection) receiver() {
	defer close(c.receiverDone)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.State() == StateOpen {
				c.state.Store(int32(StateClosing))
				c.logger.WithError(err).Debug("Control channel receive failed")
				c.failPending(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
				c.signals.closeAll()
				c.state.Store(int32(StateClosed))
			} else {
				c.failPending(ErrConnectionClosed)
			}
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage tags a message by shape. Exactly one of the three valid
// shapes triggers handling; any other shape leaves state unchanged.
func (c *Connection) handleMessage(data []byte) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		c.logInvalid(data, &g3types.InvalidResponseError{Message: "not a JSON object"})
		return
	}

	rawID, hasID := fields["id"]
	rawBody, hasBody := fields["body"]
	rawError, hasError := fields["error"]
	rawSignal, hasSignal := fields["signal"]

	switch {
	case hasID && hasError:
		var id uint64
		var code int
		var message string
		if json.Unmarshal(rawID, &id) != nil || json.Unmarshal(rawError, &code) != nil {
			c.logInvalid(data, &g3types.InvalidResponseError{Message: "malformed error response"})
			return
		}
		if rawMessage, ok := fields["message"]; ok {
			if json.Unmarshal(rawMessage, &message) != nil {
				c.logInvalid(data, &g3types.InvalidResponseError{Message: "malformed error message"})
				return
			}
		}
		c.resolve(id, pendingResult{err: &GlassesError{Code: code, Message: message}})

	case hasID && hasBody:
		var id uint64
		if json.Unmarshal(rawID, &id) != nil {
			c.logInvalid(data, &g3types.InvalidResponseError{Message: "malformed response id"})
			return
		}
		c.resolve(id, pendingResult{body: g3types.NewValue(rawBody)})

	case hasSignal && hasBody:
		id, err := g3types.SignalIDFromJSON(rawSignal)
		if err != nil {
			c.logInvalid(data, &g3types.InvalidResponseError{Message: "malformed signal id"})
			return
		}
		c.signals.dispatch(id, rawBody)

	default:
		c.logInvalid(data, &g3types.InvalidResponseError{Message: "unknown message shape"})
	}
}

func (c *Connection) resolve(id uint64, res pendingResult) {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		// Cancelled or unknown id; the response is discarded.
		c.logger.WithField("id", id).Debug("Discarding response with no pending request")
		return
	}
	ch <- res
}

func (c *Connection) logInvalid(data []byte, err *g3types.InvalidResponseError) {
	const max = 256
	preview := string(data)
	if len(preview) > max {
		preview = preview[:max] + "..."
	}
	c.logger.WithFields(logging.Fields{
		"message": preview,
	}).WithError(err).Warn("Ignoring invalid message from device")
}
