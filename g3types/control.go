package g3types

import "context"

// UnsubscribeFunc releases one local signal subscription. When the last
// subscriber of a path unsubscribes, the server-side subscription is
// released too.
type UnsubscribeFunc func(ctx context.Context) error

// Control is the request/subscribe surface of the control channel. API
// components depend on this interface rather than on the concrete
// websocket connection so they can be exercised against fakes.
type Control interface {
	// RequireGet sends a GET request for the given path and returns the
	// response body. params may be nil.
	RequireGet(ctx context.Context, uri URI, params interface{}) (Value, error)

	// RequirePost sends a POST request for the given path and returns the
	// response body. A nil body is sent as the empty list; the JSON null
	// body of the subscribe wire form is sent only by SubscribeToSignal.
	RequirePost(ctx context.Context, uri URI, body interface{}) (Value, error)

	// SubscribeToSignal subscribes to the signal at the given path. The
	// returned channel receives one defensive copy of each signal body.
	// Channels are bounded (default capacity 100) with a drop-oldest
	// overflow policy.
	SubscribeToSignal(ctx context.Context, uri URI) (<-chan SignalBody, UnsubscribeFunc, error)
}
