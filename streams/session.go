/*
RTSP media session.

Connect dials the RTSP server, DESCRIBEs the presentation, SETUPs one
track per selected stream and registers the RTP/RTCP callbacks. The
transport follows the URL scheme: rtsp:// uses UDP, rtspt:// interleaves
over the TCP control connection. Keep-alive requests are driven by the
client per the server's session timeout; Close tears the session down and
releases the transports unconditionally.
*/

package streams

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"

	"github.com/tobiipro/g3go/logging"
)

// ErrNotImplemented is returned when a reserved stream (audio, sync, imu,
// events) is selected.
var ErrNotImplemented = errors.New("stream type is not implemented")

// StreamNotFoundError is returned when the presentation does not carry a
// track for a selected stream.
type StreamNotFoundError struct {
	Type StreamType
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("no %s track (media %s index %d) in the RTSP presentation",
		e.Type, e.Type.MediaType(), e.Type.MediaIndex())
}

// Options selects the streams of the session. The zero value selects the
// scene camera only.
type Options struct {
	SceneCamera bool
	Audio       bool
	EyeCameras  bool
	Gaze        bool
	Sync        bool
	IMU         bool
	Events      bool

	// Logger defaults to a component logger.
	Logger *logging.Logger
}

func (o Options) selected() []StreamType {
	var types []StreamType
	if o.SceneCamera {
		types = append(types, SceneCamera)
	}
	if o.Audio {
		types = append(types, Audio)
	}
	if o.EyeCameras {
		types = append(types, EyeCameras)
	}
	if o.Gaze {
		types = append(types, Gaze)
	}
	if o.Sync {
		types = append(types, Sync)
	}
	if o.IMU {
		types = append(types, IMU)
	}
	if o.Events {
		types = append(types, Events)
	}
	if len(types) == 0 {
		types = []StreamType{SceneCamera}
	}
	return types
}

// Streams is a live RTSP media session holding one Stream per selected
// track.
type Streams struct {
	client  *gortsplib.Client
	logger  *logging.Logger
	streams map[StreamType]*Stream

	closeOnce sync.Once
}

// Connect sets up an RTSP media session with the selected streams. The
// session is not playing yet; call Play.
func Connect(ctx context.Context, rtspURL string, opts Options) (*Streams, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("streams")
	}

	types := opts.selected()
	for _, t := range types {
		if !t.isVideo() && t != Gaze {
			return nil, fmt.Errorf("%s: %w", t, ErrNotImplemented)
		}
	}

	u, err := base.ParseURL(rtspURL)
	if err != nil {
		return nil, fmt.Errorf("invalid RTSP URL %q: %w", rtspURL, err)
	}

	client := &gortsplib.Client{}
	if u.Scheme == "rtspt" {
		// Interleave RTP over the control connection.
		transport := gortsplib.TransportTCP
		client.Transport = &transport
		u.Scheme = "rtsp"
	}

	if err := client.Start(u.Scheme, u.Host); err != nil {
		return nil, fmt.Errorf("failed to connect to RTSP server %s: %w", u.Host, err)
	}

	s := &Streams{
		client:  client,
		logger:  logger,
		streams: make(map[StreamType]*Stream, len(types)),
	}

	desc, _, err := client.Describe(u)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("DESCRIBE failed: %w", err)
	}

	for _, t := range types {
		media := findMedia(desc, t)
		if media == nil {
			client.Close()
			return nil, &StreamNotFoundError{Type: t}
		}

		clockRate := videoTimestampGranularity
		if len(media.Formats) > 0 {
			clockRate = media.Formats[0].ClockRate()
		}
		stream := newStream(t, clockRate, logger)
		s.streams[t] = stream

		if _, err := client.Setup(desc.BaseURL, media, 0, 0); err != nil {
			client.Close()
			s.closeStreams()
			return nil, fmt.Errorf("SETUP of %s failed: %w", t, err)
		}

		if len(media.Formats) > 0 {
			client.OnPacketRTP(media, media.Formats[0], stream.handleRTP)
		}
		client.OnPacketRTCP(media, stream.handleRTCP)
	}

	logger.WithFields(logging.Fields{
		"url":    rtspURL,
		"tracks": len(s.streams),
	}).Debug("RTSP session set up")
	return s, nil
}

// findMedia locates the track of a stream type by media type and index.
func findMedia(desc *description.Session, t StreamType) *description.Media {
	index := 0
	for _, media := range desc.Medias {
		if string(media.Type) != t.MediaType() {
			continue
		}
		if index == t.MediaIndex() {
			return media
		}
		index++
	}
	return nil
}

// Play starts the streaming.
func (s *Streams) Play() error {
	if _, err := s.client.Play(nil); err != nil {
		return fmt.Errorf("PLAY failed: %w", err)
	}
	return nil
}

// SceneCamera returns the scene camera video stream, or nil when it was
// not selected.
func (s *Streams) SceneCamera() *VideoStream {
	return s.video(SceneCamera)
}

// EyeCameras returns the eye cameras video stream, or nil when it was
// not selected.
func (s *Streams) EyeCameras() *VideoStream {
	return s.video(EyeCameras)
}

// Gaze returns the gaze data stream, or nil when it was not selected.
func (s *Streams) Gaze() *DataStream {
	if stream, ok := s.streams[Gaze]; ok {
		return &DataStream{Stream: stream}
	}
	return nil
}

func (s *Streams) video(t StreamType) *VideoStream {
	if stream, ok := s.streams[t]; ok {
		return &VideoStream{Stream: stream}
	}
	return nil
}

// Stream returns the base stream of a type, or nil.
func (s *Streams) Stream(t StreamType) *Stream {
	return s.streams[t]
}

// Stats returns the counters of every set-up stream.
func (s *Streams) Stats() map[StreamType]Stats {
	out := make(map[StreamType]Stats, len(s.streams))
	for t, stream := range s.streams {
		out[t] = stream.Stats()
	}
	return out
}

// Close tears the session down (TEARDOWN plus transport close) and ends
// the per-stream queues so demuxers drain and exit. It is idempotent.
func (s *Streams) Close() {
	s.closeOnce.Do(func() {
		s.client.Close()
		s.closeStreams()
		s.logger.Debug("RTSP session closed")
	})
}

func (s *Streams) closeStreams() {
	for _, stream := range s.streams {
		stream.closeQueues()
	}
}
