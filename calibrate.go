package g3go

import (
	"context"

	"github.com/tobiipro/g3go/g3types"
)

// Calibrate runs the gaze calibration of the device.
type Calibrate struct {
	g3types.APIComponent
	conn g3types.Control
}

// NewCalibrate creates the calibration component rooted at apiURI.
func NewCalibrate(conn g3types.Control, apiURI g3types.URI) *Calibrate {
	return &Calibrate{
		APIComponent: g3types.NewAPIComponent(apiURI),
		conn:         conn,
	}
}

// GetName returns the component name.
func (c *Calibrate) GetName(ctx context.Context) (string, error) {
	body, err := c.conn.RequireGet(ctx, c.EndpointURI(g3types.KindProperty, "name"), nil)
	if err != nil {
		return "", err
	}
	return body.Str()
}

// EmitMarkers makes the device emit calibration marker signals.
func (c *Calibrate) EmitMarkers(ctx context.Context) (bool, error) {
	body, err := c.conn.RequirePost(ctx, c.EndpointURI(g3types.KindAction, "emit-markers"), nil)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// Run performs a calibration and reports whether it succeeded.
func (c *Calibrate) Run(ctx context.Context) (bool, error) {
	body, err := c.conn.RequirePost(ctx, c.EndpointURI(g3types.KindAction, "run"), nil)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// SubscribeToMarker subscribes to the marker signal.
func (c *Calibrate) SubscribeToMarker(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return c.conn.SubscribeToSignal(ctx, c.EndpointURI(g3types.KindSignal, "marker"))
}
