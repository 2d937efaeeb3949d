package g3go

import (
	"context"
	"time"

	"github.com/tobiipro/g3go/g3types"
)

// Recorder controls the ongoing recording of the device.
type Recorder struct {
	g3types.APIComponent
	conn g3types.Control
}

// NewRecorder creates the recorder component rooted at apiURI.
func NewRecorder(conn g3types.Control, apiURI g3types.URI) *Recorder {
	return &Recorder{
		APIComponent: g3types.NewAPIComponent(apiURI),
		conn:         conn,
	}
}

func (r *Recorder) getString(ctx context.Context, name string) (string, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, name), nil)
	if err != nil {
		return "", err
	}
	return body.Str()
}

func (r *Recorder) postBool(ctx context.Context, kind g3types.EndpointKind, name string, body interface{}) (bool, error) {
	value, err := r.conn.RequirePost(ctx, r.EndpointURI(kind, name), body)
	if err != nil {
		return false, err
	}
	return value.Bool()
}

// GetCreated returns the creation time of the ongoing recording, or
// ok=false when no recording is ongoing.
func (r *Recorder) GetCreated(ctx context.Context) (time.Time, bool, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "created"), nil)
	if err != nil {
		return time.Time{}, false, err
	}
	if body.IsNull() {
		return time.Time{}, false, nil
	}
	created, err := body.Str()
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := g3types.ParseTime(created)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// GetCurrentGazeFrequency returns the gaze frequency of the ongoing
// recording.
func (r *Recorder) GetCurrentGazeFrequency(ctx context.Context) (int64, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "current-gaze-frequency"), nil)
	if err != nil {
		return 0, err
	}
	return body.Int()
}

// GetDuration returns the duration of the ongoing recording, or ok=false
// when no recording is ongoing.
func (r *Recorder) GetDuration(ctx context.Context) (time.Duration, bool, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "duration"), nil)
	if err != nil {
		return 0, false, err
	}
	seconds, err := body.Float64()
	if err != nil {
		return 0, false, err
	}
	if value, ok := g3types.ParseSeconds(seconds); ok {
		return time.Duration(value * float64(time.Second)), true, nil
	}
	return 0, false, nil
}

// GetFolder returns the folder of the ongoing recording, or ok=false when
// the device reports none.
func (r *Recorder) GetFolder(ctx context.Context) (string, bool, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "folder"), nil)
	if err != nil {
		return "", false, err
	}
	if body.IsNull() {
		return "", false, nil
	}
	folder, err := body.Str()
	return folder, err == nil, err
}

// SetFolder writes the folder of the ongoing recording.
func (r *Recorder) SetFolder(ctx context.Context, value string) (bool, error) {
	return r.postBool(ctx, g3types.KindProperty, "folder", value)
}

// GetGazeOverlay reports whether the ongoing recording has a gaze
// overlay.
func (r *Recorder) GetGazeOverlay(ctx context.Context) (bool, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "gaze-overlay"), nil)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// GetGazeSamples returns the gaze sample count so far, or ok=false when
// not available.
func (r *Recorder) GetGazeSamples(ctx context.Context) (int64, bool, error) {
	return r.getCount(ctx, "gaze-samples")
}

// GetValidGazeSamples returns the valid gaze sample count so far, or
// ok=false when not available.
func (r *Recorder) GetValidGazeSamples(ctx context.Context) (int64, bool, error) {
	return r.getCount(ctx, "valid-gaze-samples")
}

func (r *Recorder) getCount(ctx context.Context, name string) (int64, bool, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, name), nil)
	if err != nil {
		return 0, false, err
	}
	n, err := body.Int()
	if err != nil {
		return 0, false, err
	}
	value, ok := g3types.ParseCount(n)
	return value, ok, nil
}

// GetName returns the component name.
func (r *Recorder) GetName(ctx context.Context) (string, error) {
	return r.getString(ctx, "name")
}

// GetRemainingTime returns the remaining recording time given battery
// and storage.
func (r *Recorder) GetRemainingTime(ctx context.Context) (time.Duration, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "remaining-time"), nil)
	if err != nil {
		return 0, err
	}
	seconds, err := body.Int()
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// GetTimezone returns the timezone of the ongoing recording, or ok=false
// when the device reports none.
func (r *Recorder) GetTimezone(ctx context.Context) (string, bool, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "timezone"), nil)
	if err != nil {
		return "", false, err
	}
	if body.IsNull() {
		return "", false, nil
	}
	tz, err := body.Str()
	return tz, err == nil, err
}

// GetUUID returns the uuid of the ongoing recording, or ok=false when no
// recording is ongoing.
func (r *Recorder) GetUUID(ctx context.Context) (string, bool, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "uuid"), nil)
	if err != nil {
		return "", false, err
	}
	if body.IsNull() {
		return "", false, nil
	}
	uuid, err := body.Str()
	return uuid, err == nil, err
}

// GetVisibleName returns the display name of the ongoing recording, or
// ok=false when the device reports none.
func (r *Recorder) GetVisibleName(ctx context.Context) (string, bool, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "visible-name"), nil)
	if err != nil {
		return "", false, err
	}
	if body.IsNull() {
		return "", false, nil
	}
	name, err := body.Str()
	return name, err == nil, err
}

// SetVisibleName writes the display name of the ongoing recording.
func (r *Recorder) SetVisibleName(ctx context.Context, value string) (bool, error) {
	return r.postBool(ctx, g3types.KindProperty, "visible-name", value)
}

// Start starts a recording.
func (r *Recorder) Start(ctx context.Context) (bool, error) {
	return r.postBool(ctx, g3types.KindAction, "start", nil)
}

// Stop stops the ongoing recording, keeping it.
func (r *Recorder) Stop(ctx context.Context) (bool, error) {
	return r.postBool(ctx, g3types.KindAction, "stop", nil)
}

// Cancel discards the ongoing recording.
func (r *Recorder) Cancel(ctx context.Context) error {
	_, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "cancel"), nil)
	return err
}

// Snapshot stores a snapshot in the ongoing recording.
func (r *Recorder) Snapshot(ctx context.Context) (bool, error) {
	return r.postBool(ctx, g3types.KindAction, "snapshot", nil)
}

// SendEvent stores a tagged event in the ongoing recording.
func (r *Recorder) SendEvent(ctx context.Context, tag string, object interface{}) (bool, error) {
	return r.postBool(ctx, g3types.KindAction, "send-event", []interface{}{tag, object})
}

// MetaInsert stores a metadata entry in the ongoing recording. A nil
// value removes the key.
func (r *Recorder) MetaInsert(ctx context.Context, key string, value *string) (bool, error) {
	return r.postBool(ctx, g3types.KindAction, "meta-insert", []interface{}{key, value})
}

// MetaKeys lists the metadata keys of the ongoing recording.
func (r *Recorder) MetaKeys(ctx context.Context) ([]string, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "meta-keys"), nil)
	if err != nil {
		return nil, err
	}
	return body.Strings()
}

// MetaLookup reads one metadata entry of the ongoing recording.
func (r *Recorder) MetaLookup(ctx context.Context, key string) (string, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "meta-lookup"), []string{key})
	if err != nil {
		return "", err
	}
	return body.Str()
}

// SubscribeToStarted subscribes to the started signal. Its body carries
// the uuid of the new recording.
func (r *Recorder) SubscribeToStarted(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "started"))
}

// SubscribeToStopped subscribes to the stopped signal.
func (r *Recorder) SubscribeToStopped(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return r.conn.SubscribeToSignal(ctx, r.EndpointURI(g3types.KindSignal, "stopped"))
}
