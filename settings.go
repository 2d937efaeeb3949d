package g3go

import (
	"context"

	"github.com/tobiipro/g3go/g3types"
)

// Settings holds the persistent device settings.
type Settings struct {
	g3types.APIComponent
	conn g3types.Control
}

// NewSettings creates the settings component rooted at apiURI.
func NewSettings(conn g3types.Control, apiURI g3types.URI) *Settings {
	return &Settings{
		APIComponent: g3types.NewAPIComponent(apiURI),
		conn:         conn,
	}
}

// GetGazeFrequency returns the configured gaze frequency in Hz.
func (s *Settings) GetGazeFrequency(ctx context.Context) (int64, error) {
	body, err := s.conn.RequireGet(ctx, s.EndpointURI(g3types.KindProperty, "gaze-frequency"), nil)
	if err != nil {
		return 0, err
	}
	return body.Int()
}

// SetGazeFrequency writes the gaze frequency in Hz.
func (s *Settings) SetGazeFrequency(ctx context.Context, value int64) (bool, error) {
	body, err := s.conn.RequirePost(ctx, s.EndpointURI(g3types.KindProperty, "gaze-frequency"), value)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// GetGazeOverlay reports whether recordings get a gaze overlay.
func (s *Settings) GetGazeOverlay(ctx context.Context) (bool, error) {
	body, err := s.conn.RequireGet(ctx, s.EndpointURI(g3types.KindProperty, "gaze-overlay"), nil)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// SetGazeOverlay configures whether recordings get a gaze overlay.
func (s *Settings) SetGazeOverlay(ctx context.Context, value bool) (bool, error) {
	body, err := s.conn.RequirePost(ctx, s.EndpointURI(g3types.KindProperty, "gaze-overlay"), value)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// GetName returns the component name.
func (s *Settings) GetName(ctx context.Context) (string, error) {
	body, err := s.conn.RequireGet(ctx, s.EndpointURI(g3types.KindProperty, "name"), nil)
	if err != nil {
		return "", err
	}
	return body.Str()
}

// SubscribeToChanged subscribes to the changed signal, emitted when any
// setting changes.
func (s *Settings) SubscribeToChanged(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return s.conn.SubscribeToSignal(ctx, s.EndpointURI(g3types.KindSignal, "changed"))
}
