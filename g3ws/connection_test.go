package g3ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice is an in-process g3api endpoint. Every received request is
// handed to the handler, which replies through send. Raw frames can be
// injected with sendRaw.
type fakeDevice struct {
	t       *testing.T
	server  *httptest.Server
	upgrade gws.Upgrader

	mu      sync.Mutex
	conn    *gws.Conn
	handler func(req map[string]json.RawMessage, send func(interface{}))

	requests []map[string]json.RawMessage
}

func newFakeDevice(t *testing.T, handler func(req map[string]json.RawMessage, send func(interface{}))) *fakeDevice {
	t.Helper()
	d := &fakeDevice{
		t:       t,
		handler: handler,
		upgrade: gws.Upgrader{Subprotocols: []string{Subprotocol}},
	}
	d.server = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDevice) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrade.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req map[string]json.RawMessage
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		d.mu.Lock()
		d.requests = append(d.requests, req)
		handler := d.handler
		d.mu.Unlock()
		if handler != nil {
			handler(req, d.send)
		}
	}
}

func (d *fakeDevice) setHandler(handler func(req map[string]json.RawMessage, send func(interface{}))) {
	d.mu.Lock()
	d.handler = handler
	d.mu.Unlock()
}

func (d *fakeDevice) send(message interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return
	}
	if err := d.conn.WriteJSON(message); err != nil {
		d.t.Logf("fake device write failed: %v", err)
	}
}

func (d *fakeDevice) sendRaw(frame string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return
	}
	if err := d.conn.WriteMessage(gws.TextMessage, []byte(frame)); err != nil {
		d.t.Logf("fake device write failed: %v", err)
	}
}

func (d *fakeDevice) recordedRequests() []map[string]json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]map[string]json.RawMessage, len(d.requests))
	copy(out, d.requests)
	return out
}

func (d *fakeDevice) wsURL() string {
	return "ws" + strings.TrimPrefix(d.server.URL, "http")
}

func dialFake(t *testing.T, d *fakeDevice) *Connection {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, d.wsURL(), nil)
	require.NoError(t, err, "Dial should succeed against the fake device")
	t.Cleanup(func() { conn.Close() })
	return conn
}

// echoID parses the id of a received request.
func echoID(req map[string]json.RawMessage) uint64 {
	var id uint64
	_ = json.Unmarshal(req["id"], &id)
	return id
}

func TestConnection_NegotiatesSubprotocol(t *testing.T) {
	device := newFakeDevice(t, nil)
	conn := dialFake(t, device)
	assert.Equal(t, StateOpen, conn.State(), "Channel should be open after dial")
}

func TestConnection_RequestCorrelationOutOfOrder(t *testing.T) {
	// The device answers the second request first; each caller must
	// still receive its own body.
	device := newFakeDevice(t, nil)
	var pending []map[string]json.RawMessage
	var pendingMu sync.Mutex
	device.setHandler(func(req map[string]json.RawMessage, send func(interface{})) {
		pendingMu.Lock()
		pending = append(pending, req)
		if len(pending) == 2 {
			first, second := pending[0], pending[1]
			send(map[string]interface{}{"id": echoID(second), "body": "duration-body"})
			send(map[string]interface{}{"id": echoID(first), "body": "name-body"})
		}
		pendingMu.Unlock()
	})
	conn := dialFake(t, device)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		path string
		body string
		err  error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		body, err := conn.RequireGet(ctx, "/recorder.name", nil)
		s, _ := body.Str()
		results <- result{path: "/recorder.name", body: s, err: err}
	}()
	// Give the first request a head start so ids are assigned in order.
	time.Sleep(50 * time.Millisecond)
	go func() {
		defer wg.Done()
		body, err := conn.RequireGet(ctx, "/recorder.duration", nil)
		s, _ := body.Str()
		results <- result{path: "/recorder.duration", body: s, err: err}
	}()
	wg.Wait()
	close(results)

	bodies := map[string]string{}
	for res := range results {
		require.NoError(t, res.err)
		bodies[res.path] = res.body
	}
	assert.Equal(t, "name-body", bodies["/recorder.name"], "First caller should get the id=1 body")
	assert.Equal(t, "duration-body", bodies["/recorder.duration"], "Second caller should get the id=2 body")
}

func TestConnection_ErrorPropagationDoesNotPoisonChannel(t *testing.T) {
	device := newFakeDevice(t, func(req map[string]json.RawMessage, send func(interface{})) {
		var path string
		_ = json.Unmarshal(req["path"], &path)
		if path == "/bogus!act" {
			send(map[string]interface{}{"id": echoID(req), "error": 404, "message": "no such path"})
			return
		}
		send(map[string]interface{}{"id": echoID(req), "body": true})
	})
	conn := dialFake(t, device)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := conn.RequirePost(ctx, "/bogus!act", nil)
	var glassesErr *GlassesError
	require.ErrorAs(t, err, &glassesErr)
	assert.Equal(t, 404, glassesErr.Code)
	assert.Equal(t, "no such path", glassesErr.Message)

	// The next request on the same channel succeeds.
	body, err := conn.RequirePost(ctx, "/recorder!start", nil)
	require.NoError(t, err)
	ok, err := body.Bool()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConnection_InvalidShapesAreTolerated(t *testing.T) {
	device := newFakeDevice(t, func(req map[string]json.RawMessage, send func(interface{})) {
		send(map[string]interface{}{"id": echoID(req), "body": "fine"})
	})
	conn := dialFake(t, device)

	// None of these match a valid shape; the receiver must survive all
	// of them.
	device.sendRaw(`"just a string"`)
	device.sendRaw(`{"unexpected":"keys"}`)
	device.sendRaw(`{"id":12345,"neither":"body nor error"}`)
	device.sendRaw(`not json at all`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	body, err := conn.RequireGet(ctx, "/recorder.name", nil)
	require.NoError(t, err, "Channel should still work after invalid messages")
	s, err := body.Str()
	require.NoError(t, err)
	assert.Equal(t, "fine", s)
}

func TestConnection_PostBodyEncoding(t *testing.T) {
	bodies := make(chan string, 3)
	device := newFakeDevice(t, func(req map[string]json.RawMessage, send func(interface{})) {
		bodies <- string(req["body"])
		send(map[string]interface{}{"id": echoID(req), "body": true})
	})
	conn := dialFake(t, device)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A nil body is the empty list, not null.
	_, err := conn.RequirePost(ctx, "/recorder!start", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", <-bodies)

	// A scalar body passes through.
	_, err = conn.RequirePost(ctx, "/recorder.folder", "myfolder")
	require.NoError(t, err)
	assert.Equal(t, `"myfolder"`, <-bodies)

	// Subscription uses an explicit null body.
	_, err = conn.Require(ctx, newPostNullRequest("/recorder:started"))
	require.NoError(t, err)
	assert.Equal(t, "null", <-bodies)
}

func TestConnection_CancelledRequireDiscardsLateResponse(t *testing.T) {
	release := make(chan struct{})
	device := newFakeDevice(t, func(req map[string]json.RawMessage, send func(interface{})) {
		go func() {
			<-release
			send(map[string]interface{}{"id": echoID(req), "body": "late"})
		}()
	})
	conn := dialFake(t, device)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := conn.RequireGet(ctx, "/recorder.name", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Deliver the late response; the channel must stay usable.
	close(release)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	device.setHandler(func(req map[string]json.RawMessage, send func(interface{})) {
		send(map[string]interface{}{"id": echoID(req), "body": "ok"})
	})
	body, err := conn.RequireGet(ctx2, "/recorder.name", nil)
	require.NoError(t, err)
	s, _ := body.Str()
	assert.Equal(t, "ok", s)
}

func TestConnection_CloseFailsPendingRequests(t *testing.T) {
	device := newFakeDevice(t, nil) // never answers
	conn := dialFake(t, device)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		_, err := conn.RequireGet(ctx, "/recorder.name", nil)
		errs <- err
	}()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not failed on close")
	}
	assert.Equal(t, StateClosed, conn.State())

	_, err := conn.RequireGet(ctx, "/recorder.name", nil)
	assert.ErrorIs(t, err, ErrNotOpen)
}
