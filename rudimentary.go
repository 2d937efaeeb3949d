package g3go

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tobiipro/g3go/g3types"
	"github.com/tobiipro/g3go/logging"
)

// rudimentaryKeepaliveInterval is how often the rudimentary streams need
// a keepalive to keep flowing.
const rudimentaryKeepaliveInterval = 5 * time.Second

// Rudimentary exposes the low-frequency sample endpoints of the device.
// The sample properties only deliver data while a keepalive loop is
// running; see KeepAlive.
type Rudimentary struct {
	g3types.APIComponent
	conn   g3types.Control
	logger *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRudimentary creates the rudimentary component rooted at apiURI.
func NewRudimentary(conn g3types.Control, apiURI g3types.URI, logger *logging.Logger) *Rudimentary {
	if logger == nil {
		logger = logging.Default().WithComponent("rudimentary")
	}
	return &Rudimentary{
		APIComponent: g3types.NewAPIComponent(apiURI),
		conn:         conn,
		logger:       logger,
	}
}

func (r *Rudimentary) getValue(ctx context.Context, name string) (g3types.Value, error) {
	return r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, name), nil)
}

// GetGazeSample returns the latest gaze sample.
func (r *Rudimentary) GetGazeSample(ctx context.Context) (g3types.Value, error) {
	return r.getValue(ctx, "gaze-sample")
}

// GetEventSample returns the latest event sample.
func (r *Rudimentary) GetEventSample(ctx context.Context) (g3types.Value, error) {
	return r.getValue(ctx, "event-sample")
}

// GetIMUSample returns the latest IMU sample.
func (r *Rudimentary) GetIMUSample(ctx context.Context) (g3types.Value, error) {
	return r.getValue(ctx, "imu-sample")
}

// GetSyncPortSample returns the latest sync-port sample.
func (r *Rudimentary) GetSyncPortSample(ctx context.Context) (g3types.Value, error) {
	return r.getValue(ctx, "sync-port-sample")
}

// GetName returns the component name.
func (r *Rudimentary) GetName(ctx context.Context) (string, error) {
	body, err := r.getValue(ctx, "name")
	if err != nil {
		return "", err
	}
	return body.Str()
}

// GetSceneQuality returns the scene camera encoding quality.
func (r *Rudimentary) GetSceneQuality(ctx context.Context) (int64, error) {
	body, err := r.getValue(ctx, "scene-quality")
	if err != nil {
		return 0, err
	}
	return body.Int()
}

// SetSceneQuality writes the scene camera encoding quality.
func (r *Rudimentary) SetSceneQuality(ctx context.Context, value int64) (bool, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindProperty, "scene-quality"), value)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// GetSceneScale returns the scene camera scale.
func (r *Rudimentary) GetSceneScale(ctx context.Context) (int64, error) {
	body, err := r.getValue(ctx, "scene-scale")
	if err != nil {
		return 0, err
	}
	return body.Int()
}

// SetSceneScale writes the scene camera scale.
func (r *Rudimentary) SetSceneScale(ctx context.Context, value int64) (bool, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindProperty, "scene-scale"), value)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// CalibrateAction triggers a calibration through the rudimentary
// component.
func (r *Rudimentary) CalibrateAction(ctx context.Context) (bool, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "calibrate"), nil)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// Keepalive sends one keepalive to the rudimentary streams.
func (r *Rudimentary) Keepalive(ctx context.Context) (bool, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "keepalive"), nil)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// SendEvent stores a tagged event through the rudimentary component.
func (r *Rudimentary) SendEvent(ctx context.Context, tag string, object interface{}) (bool, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "send-event"), []interface{}{tag, object})
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// SubscribeToGaze subscribes to the gaze signal.
func (r *Rudimentary) SubscribeToGaze(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "gaze"))
}

// SubscribeToEvent subscribes to the event signal.
func (r *Rudimentary) SubscribeToEvent(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "event"))
}

// SubscribeToIMU subscribes to the imu signal.
func (r *Rudimentary) SubscribeToIMU(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "imu"))
}

// SubscribeToScene subscribes to the scene signal.
func (r *Rudimentary) SubscribeToScene(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "scene"))
}

// SubscribeToSyncPort subscribes to the sync-port signal.
func (r *Rudimentary) SubscribeToSyncPort(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "sync-port"))
}

// KeepAlive starts a loop that keeps the rudimentary streams alive with
// a keepalive every five seconds. It blocks until the first keepalive
// has been acknowledged and returns a stop function; the loop also stops
// when the device declines a keepalive. Starting a second loop is a
// warning and returns a no-op stop.
func (r *Rudimentary) KeepAlive(ctx context.Context) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.logger.Warn("Keepalive loop already running")
		return func() {}, nil
	}

	ok, err := r.Keepalive(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("the glasses rudimentary streams did not want to stay alive")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(rudimentaryKeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				r.logger.Debug("Sending keepalive")
				ok, err := r.Keepalive(loopCtx)
				if err != nil {
					if loopCtx.Err() == nil {
						r.logger.WithError(err).Warn("Keepalive failed, stopping loop")
					}
					return
				}
				if !ok {
					r.logger.Warn("The glasses rudimentary streams did not want to stay alive")
					return
				}
			}
		}
	}()

	stop := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.cancel == nil {
			return
		}
		r.cancel()
		<-r.done
		r.cancel = nil
		r.done = nil
		r.logger.Debug("Keepalive loop stopped")
	}
	return stop, nil
}
