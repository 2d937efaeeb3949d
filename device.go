/*
g3go controls Tobii Glasses 3 devices over the LAN.

A Device is the composition root: it owns the control channel and the
API components speaking over it, and can open a live RTSP media session.
Create one with the connectors in connect.go or directly from a dialed
control channel.
*/

package g3go

import (
	"context"

	"github.com/tobiipro/g3go/g3types"
	"github.com/tobiipro/g3go/g3ws"
	"github.com/tobiipro/g3go/logging"
	"github.com/tobiipro/g3go/recordings"
	"github.com/tobiipro/g3go/streams"
)

// Default URL components used when connecting by hostname without
// discovery.
const (
	DefaultRTSPLivePath = "/live/all"
	DefaultRTSPPort     = 8554
	DefaultHTTPPort     = 80
)

// Device is a connected Glasses 3 device.
type Device struct {
	conn    *g3ws.Connection
	rtspURL string
	httpURL string
	logger  *logging.Logger

	recorder    *Recorder
	recordings  *recordings.Recordings
	settings    *Settings
	system      *System
	calibrate   *Calibrate
	rudimentary *Rudimentary
}

// NewDevice builds a device handle around an open control channel. The
// RTSP and HTTP URLs are optional; features needing them fail with
// FeatureNotAvailableError when left empty.
func NewDevice(conn *g3ws.Connection, rtspURL, httpURL string, logger *logging.Logger) *Device {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Device{
		conn:    conn,
		rtspURL: rtspURL,
		httpURL: httpURL,
		logger:  logger,
	}
	// Sub-facades are cheap; eager construction keeps ownership simple.
	d.recorder = NewRecorder(conn, "/recorder")
	d.recordings = recordings.New(conn, "/recordings", httpURL, logger.WithComponent("recordings"))
	d.settings = NewSettings(conn, "/settings")
	d.system = NewSystem(conn, "/system")
	d.calibrate = NewCalibrate(conn, "/calibrate")
	d.rudimentary = NewRudimentary(conn, "/rudimentary", logger.WithComponent("rudimentary"))
	return d
}

// Connection exposes the underlying control channel.
func (d *Device) Connection() *g3ws.Connection {
	return d.conn
}

// Recorder is the recorder component.
func (d *Device) Recorder() *Recorder {
	return d.recorder
}

// Recordings is the recordings component and mirror.
func (d *Device) Recordings() *recordings.Recordings {
	return d.recordings
}

// Settings is the settings component.
func (d *Device) Settings() *Settings {
	return d.settings
}

// System is the system component.
func (d *Device) System() *System {
	return d.system
}

// Calibrate is the calibration component.
func (d *Device) Calibrate() *Calibrate {
	return d.calibrate
}

// Rudimentary is the rudimentary-streams component.
func (d *Device) Rudimentary() *Rudimentary {
	return d.rudimentary
}

// RTSPURL returns the live-stream URL, empty when not configured.
func (d *Device) RTSPURL() string {
	return d.rtspURL
}

// HTTPURL returns the HTTP base URL, empty when not configured.
func (d *Device) HTTPURL() string {
	return d.httpURL
}

// StreamRTSP opens a live RTSP media session with the selected streams
// and starts playing. The caller owns the returned session and must
// Close it; closing tears the session down and releases its transports.
func (d *Device) StreamRTSP(ctx context.Context, opts streams.Options) (*streams.Streams, error) {
	if d.rtspURL == "" {
		return nil, &g3types.FeatureNotAvailableError{Feature: "RTSP URL"}
	}
	if opts.Logger == nil {
		opts.Logger = d.logger.WithComponent("streams")
	}
	session, err := streams.Connect(ctx, d.rtspURL, opts)
	if err != nil {
		return nil, err
	}
	if err := session.Play(); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

// Close shuts the control channel down. Pending requests fail with a
// transport error.
func (d *Device) Close() error {
	return d.conn.Close()
}
