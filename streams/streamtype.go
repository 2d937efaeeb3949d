/*
Live media streaming from a Glasses 3 device.

A device serves its live streams in one RTSP media session. Every stream
is identified by its media type and its index among the medias of that
type: the scene camera is video 0, the eye cameras video 1, and the gaze,
sync, IMU and event data streams are application 0 through 3.
*/

package streams

import "fmt"

// StreamType identifies one media stream of the RTSP session.
type StreamType int

const (
	SceneCamera StreamType = iota
	Audio
	EyeCameras
	Gaze
	Sync
	IMU
	Events
)

func (t StreamType) String() string {
	switch t {
	case SceneCamera:
		return "scene_camera"
	case Audio:
		return "audio"
	case EyeCameras:
		return "eye_cameras"
	case Gaze:
		return "gaze"
	case Sync:
		return "sync"
	case IMU:
		return "imu"
	case Events:
		return "events"
	}
	return fmt.Sprintf("StreamType(%d)", int(t))
}

// MediaType returns the RTSP media type carrying this stream.
func (t StreamType) MediaType() string {
	switch t {
	case SceneCamera, EyeCameras:
		return "video"
	case Audio:
		return "audio"
	default:
		return "application"
	}
}

// MediaIndex returns the index of this stream among the session medias of
// its media type.
func (t StreamType) MediaIndex() int {
	switch t {
	case SceneCamera, Audio, Gaze:
		return 0
	case EyeCameras, Sync:
		return 1
	case IMU:
		return 2
	case Events:
		return 3
	}
	return 0
}

// isVideo reports whether the stream carries H.264 video.
func (t StreamType) isVideo() bool {
	return t == SceneCamera || t == EyeCameras
}
