/*
Control channel error types.

Application errors mirror the device's error responses and never poison the
channel; transport errors are fatal and fail every in-flight request.
*/

package g3ws

import (
	"errors"
	"fmt"

	"github.com/tobiipro/g3go/g3types"
)

// ErrConnectionClosed is wrapped into every error caused by the channel
// shutting down, including the rejection of pending requests.
var ErrConnectionClosed = errors.New("control channel closed")

// ErrNotOpen is returned when a request is issued outside the Open state.
var ErrNotOpen = errors.New("control channel is not open")

// GlassesError is a server-declared failure carried by an error response.
type GlassesError struct {
	Code    int
	Message string
}

func (e *GlassesError) Error() string {
	return fmt.Sprintf("glasses error: %s (code: %d)", e.Message, e.Code)
}

// Is matches any GlassesError with the same code.
func (e *GlassesError) Is(target error) bool {
	t, ok := target.(*GlassesError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// SubscribeError is returned when the device rejects a subscribe request
// by answering false instead of a signal id.
type SubscribeError struct {
	URI g3types.URI
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscription of %s was unsuccessful: the glasses returned false", e.URI)
}

// UnsubscribeError is returned when the device answers anything but true
// to an unsubscribe request.
type UnsubscribeError struct {
	URI g3types.URI
}

func (e *UnsubscribeError) Error() string {
	return fmt.Sprintf("unsubscription of %s was unsuccessful: the glasses returned false", e.URI)
}
