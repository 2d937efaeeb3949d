package g3go

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobiipro/g3go/g3types"
)

// scriptedControl is a writable in-memory device state. GETs read it,
// property POSTs write it, action POSTs are recorded and answer a
// scripted value.
type scriptedControl struct {
	mu         sync.Mutex
	properties map[g3types.URI]string
	actions    map[g3types.URI]string
	posts      map[g3types.URI][]string
}

func newScriptedControl() *scriptedControl {
	return &scriptedControl{
		properties: make(map[g3types.URI]string),
		actions:    make(map[g3types.URI]string),
		posts:      make(map[g3types.URI][]string),
	}
}

func (c *scriptedControl) RequireGet(_ context.Context, uri g3types.URI, _ interface{}) (g3types.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.properties[uri]
	if !ok {
		return g3types.Value{}, errors.New("no scripted property at " + string(uri))
	}
	return g3types.NewValue(json.RawMessage(raw)), nil
}

func (c *scriptedControl) RequirePost(_ context.Context, uri g3types.URI, body interface{}) (g3types.Value, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return g3types.Value{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts[uri] = append(c.posts[uri], string(encoded))
	if raw, ok := c.actions[uri]; ok {
		return g3types.NewValue(json.RawMessage(raw)), nil
	}
	// A property write stores the scalar and acknowledges.
	c.properties[uri] = string(encoded)
	return g3types.NewValue(json.RawMessage("true")), nil
}

func (c *scriptedControl) SubscribeToSignal(context.Context, g3types.URI) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	ch := make(chan g3types.SignalBody)
	return ch, func(context.Context) error { return nil }, nil
}

func TestSettings_SetThenGetRoundTrip(t *testing.T) {
	control := newScriptedControl()
	control.properties["/settings.gaze-frequency"] = "50"
	settings := NewSettings(control, "/settings")
	ctx := context.Background()

	frequency, err := settings.GetGazeFrequency(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 50, frequency)

	ok, err := settings.SetGazeFrequency(ctx, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	frequency, err = settings.GetGazeFrequency(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 100, frequency, "A written property reads back the written value")
}

func TestRecorder_AbsentValuesAreNotOK(t *testing.T) {
	control := newScriptedControl()
	control.properties["/recorder.duration"] = "-1"
	control.properties["/recorder.uuid"] = "null"
	control.properties["/recorder.gaze-samples"] = "-1"
	recorder := NewRecorder(control, "/recorder")
	ctx := context.Background()

	_, ok, err := recorder.GetDuration(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "-1 duration means no ongoing recording")

	_, ok, err = recorder.GetUUID(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "null uuid means no ongoing recording")

	_, ok, err = recorder.GetGazeSamples(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecorder_PresentValues(t *testing.T) {
	control := newScriptedControl()
	control.properties["/recorder.duration"] = "12.5"
	control.properties["/recorder.created"] = `"2023-03-14T09:26:53.589Z"`
	control.properties["/recorder.remaining-time"] = "5400"
	recorder := NewRecorder(control, "/recorder")
	ctx := context.Background()

	duration, ok, err := recorder.GetDuration(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12500*time.Millisecond, duration)

	created, ok, err := recorder.GetCreated(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2023, created.Year())

	remaining, err := recorder.GetRemainingTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, remaining)
}

func TestRecorder_ActionsPostListBodies(t *testing.T) {
	control := newScriptedControl()
	control.actions["/recorder!start"] = "true"
	control.actions["/recorder!send-event"] = "true"
	control.actions["/recorder!meta-keys"] = `["study","subject"]`
	recorder := NewRecorder(control, "/recorder")
	ctx := context.Background()

	started, err := recorder.Start(ctx)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Len(t, control.posts["/recorder!start"], 1)

	ok, err := recorder.SendEvent(ctx, "marker", map[string]interface{}{"n": 1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["marker",{"n":1}]`, control.posts["/recorder!send-event"][0])

	keys, err := recorder.MetaKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"study", "subject"}, keys)
}

func TestSystem_BatteryAndClock(t *testing.T) {
	control := newScriptedControl()
	control.properties["/system.version"] = `"1.20.3"`
	control.properties["/system.time"] = `"2023-03-14T09:26:53Z"`
	control.properties["/system/battery.level"] = "0.83"
	control.properties["/system/battery.state"] = `"good"`
	control.actions["/system!available-gaze-frequencies"] = "[50,100]"
	system := NewSystem(control, "/system")
	ctx := context.Background()

	version, err := system.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.20.3", version)

	deviceTime, err := system.GetTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.March, deviceTime.Month())

	level, err := system.Battery().GetLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.83, level)

	state, err := system.Battery().GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatteryGood, state)

	freqs, err := system.AvailableGazeFrequencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{50, 100}, freqs)
}

func TestSystem_SetTimeFormatsAsDeviceExpects(t *testing.T) {
	control := newScriptedControl()
	control.actions["/system!set-time"] = "true"
	system := NewSystem(control, "/system")

	value := time.Date(2023, 3, 14, 9, 26, 53, 0, time.UTC)
	ok, err := system.SetTime(context.Background(), value)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["2023-03-14T09:26:53Z"]`, control.posts["/system!set-time"][0])
}
