package g3go

import (
	"context"
	"time"

	"github.com/tobiipro/g3go/g3types"
)

// System exposes device identity, firmware and clock state.
type System struct {
	g3types.APIComponent
	conn    g3types.Control
	battery *Battery
}

// NewSystem creates the system component rooted at apiURI, including its
// battery subcomponent.
func NewSystem(conn g3types.Control, apiURI g3types.URI) *System {
	return &System{
		APIComponent: g3types.NewAPIComponent(apiURI),
		conn:         conn,
		battery:      NewBattery(conn, g3types.URI(string(apiURI)+"/battery")),
	}
}

// Battery is the battery subcomponent.
func (s *System) Battery() *Battery {
	return s.battery
}

func (s *System) getString(ctx context.Context, name string) (string, error) {
	body, err := s.conn.RequireGet(ctx, s.EndpointURI(g3types.KindProperty, name), nil)
	if err != nil {
		return "", err
	}
	return body.Str()
}

func (s *System) getBool(ctx context.Context, name string) (bool, error) {
	body, err := s.conn.RequireGet(ctx, s.EndpointURI(g3types.KindProperty, name), nil)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// GetHeadUnitSerial returns the serial number of the head unit.
func (s *System) GetHeadUnitSerial(ctx context.Context) (string, error) {
	return s.getString(ctx, "head-unit-serial")
}

// GetRecordingUnitSerial returns the serial number of the recording
// unit, which is also the default hostname.
func (s *System) GetRecordingUnitSerial(ctx context.Context) (string, error) {
	return s.getString(ctx, "recording-unit-serial")
}

// GetName returns the component name.
func (s *System) GetName(ctx context.Context) (string, error) {
	return s.getString(ctx, "name")
}

// GetVersion returns the firmware version.
func (s *System) GetVersion(ctx context.Context) (string, error) {
	return s.getString(ctx, "version")
}

// GetNTPIsEnabled reports whether NTP time synchronization is enabled.
func (s *System) GetNTPIsEnabled(ctx context.Context) (bool, error) {
	return s.getBool(ctx, "ntp-is-enabled")
}

// GetNTPIsSynchronized reports whether the clock is NTP synchronized.
func (s *System) GetNTPIsSynchronized(ctx context.Context) (bool, error) {
	return s.getBool(ctx, "ntp-is-synchronized")
}

// GetTime returns the device wall-clock time.
func (s *System) GetTime(ctx context.Context) (time.Time, error) {
	value, err := s.getString(ctx, "time")
	if err != nil {
		return time.Time{}, err
	}
	return g3types.ParseTime(value)
}

// GetTimezone returns the configured timezone.
func (s *System) GetTimezone(ctx context.Context) (string, error) {
	return s.getString(ctx, "timezone")
}

// AvailableGazeFrequencies lists the gaze frequencies the device
// supports.
func (s *System) AvailableGazeFrequencies(ctx context.Context) ([]int64, error) {
	body, err := s.conn.RequirePost(ctx, s.EndpointURI(g3types.KindAction, "available-gaze-frequencies"), nil)
	if err != nil {
		return nil, err
	}
	var freqs []int64
	if err := body.Decode(&freqs); err != nil {
		return nil, err
	}
	return freqs, nil
}

// SetTime sets the device wall-clock time. Fails when NTP is enabled.
func (s *System) SetTime(ctx context.Context, value time.Time) (bool, error) {
	body, err := s.conn.RequirePost(ctx, s.EndpointURI(g3types.KindAction, "set-time"), []string{g3types.FormatTime(value)})
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// SetTimezone sets the configured timezone.
func (s *System) SetTimezone(ctx context.Context, value string) (bool, error) {
	body, err := s.conn.RequirePost(ctx, s.EndpointURI(g3types.KindAction, "set-timezone"), []string{value})
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// UseNTP enables or disables NTP time synchronization.
func (s *System) UseNTP(ctx context.Context, value bool) (bool, error) {
	body, err := s.conn.RequirePost(ctx, s.EndpointURI(g3types.KindAction, "use-ntp"), []bool{value})
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// BatteryState is the coarse battery level reported by the device.
type BatteryState string

const (
	BatteryFull    BatteryState = "full"
	BatteryGood    BatteryState = "good"
	BatteryLow     BatteryState = "low"
	BatteryVeryLow BatteryState = "verylow"
	BatteryUnknown BatteryState = "unknown"
)

// Battery exposes the battery state of the head unit.
type Battery struct {
	g3types.APIComponent
	conn g3types.Control
}

// NewBattery creates the battery component rooted at apiURI.
func NewBattery(conn g3types.Control, apiURI g3types.URI) *Battery {
	return &Battery{
		APIComponent: g3types.NewAPIComponent(apiURI),
		conn:         conn,
	}
}

// GetCharging reports whether the battery is charging.
func (b *Battery) GetCharging(ctx context.Context) (bool, error) {
	body, err := b.conn.RequireGet(ctx, b.EndpointURI(g3types.KindProperty, "charging"), nil)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// GetLevel returns the battery charge level in [0, 1].
func (b *Battery) GetLevel(ctx context.Context) (float64, error) {
	body, err := b.conn.RequireGet(ctx, b.EndpointURI(g3types.KindProperty, "level"), nil)
	if err != nil {
		return 0, err
	}
	return body.Float64()
}

// GetName returns the component name.
func (b *Battery) GetName(ctx context.Context) (string, error) {
	body, err := b.conn.RequireGet(ctx, b.EndpointURI(g3types.KindProperty, "name"), nil)
	if err != nil {
		return "", err
	}
	return body.Str()
}

// GetRemainingTime returns the estimated remaining runtime.
func (b *Battery) GetRemainingTime(ctx context.Context) (time.Duration, error) {
	body, err := b.conn.RequireGet(ctx, b.EndpointURI(g3types.KindProperty, "remaining-time"), nil)
	if err != nil {
		return 0, err
	}
	seconds, err := body.Int()
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// GetState returns the coarse battery state.
func (b *Battery) GetState(ctx context.Context) (BatteryState, error) {
	body, err := b.conn.RequireGet(ctx, b.EndpointURI(g3types.KindProperty, "state"), nil)
	if err != nil {
		return BatteryUnknown, err
	}
	state, err := body.Str()
	if err != nil {
		return BatteryUnknown, err
	}
	return BatteryState(state), nil
}

// SubscribeToStateChanged subscribes to the state-changed signal.
func (b *Battery) SubscribeToStateChanged(ctx context.Context) (<-chan g3types.SignalBody, g3types.UnsubscribeFunc, error) {
	return b.conn.SubscribeToSignal(ctx, b.EndpointURI(g3types.KindSignal, "state-changed"))
}
