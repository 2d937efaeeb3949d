/*
Refcounted signal subscriptions.

The device hands out one signal id per path; the registry holds at most
one server-side subscription per path no matter how many local
subscribers exist. The first local subscriber pays the subscribe
round-trip, the last one leaving pays the unsubscribe. Subscribe and
unsubscribe POSTs for the same path never overlap.
*/

package g3ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tobiipro/g3go/g3types"
	"github.com/tobiipro/g3go/logging"
)

type pathSubscription struct {
	// mu serializes the subscribe/unsubscribe POSTs of this path.
	// Subscribers joining mid-flight block here and then reuse the
	// established signal id without another round-trip.
	mu sync.Mutex

	uri         g3types.URI
	established bool
	signalID    g3types.SignalID
	rawSignalID json.RawMessage

	subscribers map[uint64]chan g3types.SignalBody
}

type signalRegistry struct {
	conn      *Connection
	logger    *logging.Logger
	queueSize int

	mu        sync.Mutex
	paths     map[g3types.URI]*pathSubscription
	byID      map[g3types.SignalID]*pathSubscription
	nextSubID uint64
	closed    bool

	dropWarn rate.Sometimes
	dropped  uint64
}

func newSignalRegistry(conn *Connection, queueSize int, logger *logging.Logger) *signalRegistry {
	return &signalRegistry{
		conn:      conn,
		logger:    logger,
		queueSize: queueSize,
		paths:     make(map[g3types.URI]*pathSubscription),
		byID:      make(map[g3types.SignalID]*pathSubscription),
		dropWarn:  rate.Sometimes{Interval: time.Second},
	}
}

func (r *signalRegistry) subscribe(ctx context.Context, uri g3types.URI) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrConnectionClosed
	}
	ps, ok := r.paths[uri]
	if !ok {
		ps = &pathSubscription{
			uri:         uri,
			subscribers: make(map[uint64]chan g3types.SignalBody),
		}
		r.paths[uri] = ps
	}
	r.mu.Unlock()

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.established {
		body, err := r.conn.Require(ctx, newPostNullRequest(uri))
		if err != nil {
			r.forgetIfUnused(ps)
			return nil, nil, fmt.Errorf("subscribe to %s failed: %w", uri, err)
		}
		id, err := g3types.SignalIDFromJSON(body.Raw())
		if err != nil || id.IsFalse() {
			r.forgetIfUnused(ps)
			return nil, nil, &SubscribeError{URI: uri}
		}
		r.mu.Lock()
		ps.established = true
		ps.signalID = id
		ps.rawSignalID = append(json.RawMessage(nil), body.Raw()...)
		r.byID[id] = ps
		r.mu.Unlock()
	}

	ch := make(chan g3types.SignalBody, r.queueSize)
	r.mu.Lock()
	r.nextSubID++
	subID := r.nextSubID
	ps.subscribers[subID] = ch
	r.mu.Unlock()

	unsubscribe := func(ctx context.Context) error {
		return r.unsubscribe(ctx, ps, subID)
	}
	return ch, unsubscribe, nil
}

func (r *signalRegistry) unsubscribe(ctx context.Context, ps *pathSubscription, subID uint64) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	r.mu.Lock()
	ch, ok := ps.subscribers[subID]
	if ok {
		delete(ps.subscribers, subID)
		close(ch)
	}
	remaining := len(ps.subscribers)
	closed := r.closed
	r.mu.Unlock()

	if !ok {
		// Already unsubscribed, or the registry shut down underneath us.
		return nil
	}

	if remaining > 0 || !ps.established {
		return nil
	}

	if !closed {
		body, err := r.conn.Require(ctx, newPostRawRequest(ps.uri, ps.rawSignalID))
		if err != nil {
			return fmt.Errorf("unsubscribe from %s failed: %w", ps.uri, err)
		}
		success, err := body.Bool()
		if err != nil || !success {
			return &UnsubscribeError{URI: ps.uri}
		}
	}

	r.mu.Lock()
	delete(r.paths, ps.uri)
	delete(r.byID, ps.signalID)
	ps.established = false
	r.mu.Unlock()
	return nil
}

// forgetIfUnused drops a path entry whose subscribe POST failed before any
// subscriber was registered.
func (r *signalRegistry) forgetIfUnused(ps *pathSubscription) {
	r.mu.Lock()
	if !ps.established && len(ps.subscribers) == 0 {
		delete(r.paths, ps.uri)
	}
	r.mu.Unlock()
}

// dispatch fans a signal body out to every subscriber of the signal id.
// Each subscriber receives its own copy. Full channels drop their oldest
// entry so a stalled consumer only hurts itself. The registry lock is held
// for the whole fan-out; every send is non-blocking, and holding it keeps
// sends ordered against channel close on unsubscribe.
func (r *signalRegistry) dispatch(id g3types.SignalID, body json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.byID[id]
	if !ok {
		r.logger.WithField("signal", string(id)).Debug("Signal with no local subscribers")
		return
	}

	for _, ch := range ps.subscribers {
		bodyCopy := make(g3types.SignalBody, len(body))
		copy(bodyCopy, body)
		select {
		case ch <- bodyCopy:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- bodyCopy:
			default:
			}
			r.dropped++
			dropped := r.dropped
			r.dropWarn.Do(func() {
				r.logger.WithFields(logging.Fields{
					"signal":  string(id),
					"dropped": dropped,
				}).Warn("Signal subscriber queue full, dropping oldest")
			})
		}
	}
}

// closeAll closes every subscriber channel; used on connection teardown.
func (r *signalRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, ps := range r.paths {
		for id, ch := range ps.subscribers {
			close(ch)
			delete(ps.subscribers, id)
		}
	}
	r.paths = make(map[g3types.URI]*pathSubscription)
	r.byID = make(map[g3types.SignalID]*pathSubscription)
}

func closeHandshakeDeadline() time.Time {
	return time.Now().Add(2 * time.Second)
}
