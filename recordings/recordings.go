/*
Live mirror of the device's recordings collection.

The mirror holds an ordered, newest-first view of the recordings on the
device and keeps it consistent with the child-added and child-removed
signals. User code observes it read-only; the mirror exclusively owns the
ordered map from uuid to entry.
*/

package recordings

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tobiipro/g3go/g3types"
	"github.com/tobiipro/g3go/logging"
)

// EventKind classifies mirror events.
type EventKind int

const (
	// Added means a recording was added.
	Added EventKind = iota
	// Removed means a recording was removed.
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event pairs an event kind with the signal body that caused it.
type Event struct {
	Kind EventKind
	Body g3types.SignalBody
}

const eventQueueSize = 100

// Recordings is the recordings API component and mirror.
type Recordings struct {
	g3types.APIComponent

	conn       g3types.Control
	httpURL    string
	httpClient *http.Client
	logger     *logging.Logger

	mu       sync.RWMutex
	children []*Recording // newest first
	byUUID   map[string]*Recording

	events chan Event

	mirrorMu sync.Mutex
	running  bool
}

// New creates the recordings component rooted at apiURI. httpURL may be
// empty when the device handle was built without one; file URL resolution
// is then unavailable.
func New(conn g3types.Control, apiURI g3types.URI, httpURL string, logger *logging.Logger) *Recordings {
	if logger == nil {
		logger = logging.Default().WithComponent("recordings")
	}
	return &Recordings{
		APIComponent: g3types.NewAPIComponent(apiURI),
		conn:         conn,
		httpURL:      httpURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
		byUUID:       make(map[string]*Recording),
		events:       make(chan Event, eventQueueSize),
	}
}

// GetName reads the component name.
func (r *Recordings) GetName(ctx context.Context) (string, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "name"), nil)
	if err != nil {
		return "", err
	}
	return body.Str()
}

// Delete removes the recording with the given uuid from the device.
func (r *Recordings) Delete(ctx context.Context, uuid string) (bool, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "delete"), []string{uuid})
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// SubscribeToChildAdded subscribes to the child-added signal.
func (r *Recordings) SubscribeToChildAdded(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "child-added"))
}

// SubscribeToChildRemoved subscribes to the child-removed signal.
func (r *Recordings) SubscribeToChildRemoved(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "child-removed"))
}

// SubscribeToDeleted subscribes to the deleted signal.
func (r *Recordings) SubscribeToDeleted(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "deleted"))
}

// SubscribeToScanStart subscribes to the scan-start signal.
func (r *Recordings) SubscribeToScanStart(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "scan-start"))
}

// SubscribeToScanDone subscribes to the scan-done signal.
func (r *Recordings) SubscribeToScanDone(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "scan-done"))
}

// Events is the mirror event queue, fed while KeepUpdated is active.
func (r *Recordings) Events() <-chan Event {
	return r.events
}

// Len returns the number of mirrored recordings.
func (r *Recordings) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.children)
}

// At returns the recording at the given position, newest first.
func (r *Recordings) At(i int) *Recording {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.children) {
		return nil
	}
	return r.children[i]
}

// Get returns the mirrored recording with the given uuid, or nil.
func (r *Recordings) Get(uuid string) *Recording {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUUID[uuid]
}

// UUIDs returns the mirrored uuids, newest first.
func (r *Recordings) UUIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.children))
	for i, child := range r.children {
		out[i] = child.UUID()
	}
	return out
}

// StopFunc releases a KeepUpdated acquisition: it unsubscribes from both
// signals, stops the handlers and waits for their exit.
type StopFunc func(ctx context.Context) error

// KeepUpdated fetches the current children and keeps the mirror
// consistent by handling child-added and child-removed signals until the
// returned StopFunc is called. A second acquisition while one is active
// is a warning, not an error, and returns a no-op StopFunc.
func (r *Recordings) KeepUpdated(ctx context.Context) (StopFunc, error) {
	r.mirrorMu.Lock()
	defer r.mirrorMu.Unlock()
	if r.running {
		r.logger.Warn("Attempted starting children handlers when already started")
		return func(context.Context) error { return nil }, nil
	}

	if err := r.fetchChildren(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch recordings: %w", err)
	}

	addedCh, unsubAdded, err := r.SubscribeToChildAdded(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to child-added: %w", err)
	}
	removedCh, unsubRemoved, err := r.SubscribeToChildRemoved(ctx)
	if err != nil {
		// Release what was already taken.
		if uerr := unsubAdded(ctx); uerr != nil {
			r.logger.WithError(uerr).Warn("Failed to release child-added subscription")
		}
		return nil, fmt.Errorf("failed to subscribe to child-removed: %w", err)
	}

	handlerCtx, cancel := context.WithCancel(context.Background())
	group, handlerCtx := errgroup.WithContext(handlerCtx)
	group.Go(func() error {
		r.handleAdded(handlerCtx, addedCh)
		return nil
	})
	group.Go(func() error {
		r.handleRemoved(handlerCtx, removedCh)
		return nil
	})
	r.running = true

	stop := func(stopCtx context.Context) error {
		r.mirrorMu.Lock()
		defer r.mirrorMu.Unlock()
		if !r.running {
			r.logger.Warn("Attempted stopping children handlers before starting them")
			return nil
		}
		var firstErr error
		if err := unsubAdded(stopCtx); err != nil {
			firstErr = err
		}
		if err := unsubRemoved(stopCtx); err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
		if err := group.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.running = false
		return firstErr
	}
	return stop, nil
}

// fetchChildren loads the initial children list, reversed so the newest
// recording comes first.
func (r *Recordings) fetchChildren(ctx context.Context) error {
	body, err := r.conn.RequireGet(ctx, r.Root(), nil)
	if err != nil {
		return err
	}
	var listing struct {
		Children []string `json:"children"`
	}
	if err := body.Decode(&listing); err != nil {
		return fmt.Errorf("unexpected recordings listing: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.children = make([]*Recording, 0, len(listing.Children))
	r.byUUID = make(map[string]*Recording, len(listing.Children))
	for _, uuid := range listing.Children {
		r.insertFrontLocked(uuid)
	}
	return nil
}

// insertFrontLocked prepends a recording; the device emits added children
// in creation order, so the front is always the newest.
func (r *Recordings) insertFrontLocked(uuid string) {
	if _, ok := r.byUUID[uuid]; ok {
		return
	}
	rec := newRecording(r.conn, r.Root(), uuid, r.httpURL, r.httpClient, r.logger)
	r.children = append([]*Recording{rec}, r.children...)
	r.byUUID[uuid] = rec
}

func (r *Recordings) handleAdded(ctx context.Context, bodies <-chan g3types.SignalBody) {
	for {
		select {
		case <-ctx.Done():
			return
		case body, ok := <-bodies:
			if !ok {
				return
			}
			uuid, err := g3types.FirstString(body)
			if err != nil {
				r.logger.WithError(err).Warn("Malformed child-added signal")
				continue
			}
			r.mu.Lock()
			r.insertFrontLocked(uuid)
			r.mu.Unlock()
			r.publish(ctx, Event{Kind: Added, Body: body})
		}
	}
}

func (r *Recordings) handleRemoved(ctx context.Context, bodies <-chan g3types.SignalBody) {
	for {
		select {
		case <-ctx.Done():
			return
		case body, ok := <-bodies:
			if !ok {
				return
			}
			uuid, err := g3types.FirstString(body)
			if err != nil {
				r.logger.WithError(err).Warn("Malformed child-removed signal")
				continue
			}
			r.mu.Lock()
			if _, ok := r.byUUID[uuid]; ok {
				delete(r.byUUID, uuid)
				for i, child := range r.children {
					if child.UUID() == uuid {
						r.children = append(r.children[:i], r.children[i+1:]...)
						break
					}
				}
			}
			r.mu.Unlock()
			r.publish(ctx, Event{Kind: Removed, Body: body})
		}
	}
}

func (r *Recordings) publish(ctx context.Context, event Event) {
	select {
	case r.events <- event:
	case <-ctx.Done():
	}
}
