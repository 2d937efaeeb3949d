package recordings

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/tobiipro/g3go/g3types"
	"github.com/tobiipro/g3go/logging"
)

// Recording is one server-owned recording. It holds only what it needs to
// issue requests: the control channel, its path under the recordings
// root, its uuid and the HTTP base URL. Its lifetime is bounded by the
// owning device handle.
type Recording struct {
	g3types.APIComponent

	conn       g3types.Control
	uuid       string
	httpURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func newRecording(conn g3types.Control, baseURI g3types.URI, uuid, httpURL string, httpClient *http.Client, logger *logging.Logger) *Recording {
	return &Recording{
		APIComponent: g3types.NewAPIComponent(g3types.URI(string(baseURI) + "/" + uuid)),
		conn:         conn,
		uuid:         uuid,
		httpURL:      httpURL,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// NewRecording builds a standalone recording handle, for callers that
// know a uuid without running the mirror.
func NewRecording(conn g3types.Control, recordingsURI g3types.URI, uuid, httpURL string) *Recording {
	return newRecording(conn, recordingsURI, uuid, httpURL,
		&http.Client{Timeout: 10 * time.Second},
		logging.Default().WithComponent("recordings"))
}

// UUID returns the device-assigned uuid of the recording.
func (r *Recording) UUID() string {
	return r.uuid
}

func (r *Recording) getString(ctx context.Context, name string) (string, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, name), nil)
	if err != nil {
		return "", err
	}
	return body.Str()
}

// GetCreated returns the creation time of the recording.
func (r *Recording) GetCreated(ctx context.Context) (time.Time, error) {
	created, err := r.getString(ctx, "created")
	if err != nil {
		return time.Time{}, err
	}
	return g3types.ParseTime(created)
}

// GetDuration returns the duration, or ok=false while the device reports
// it as not yet available.
func (r *Recording) GetDuration(ctx context.Context) (time.Duration, bool, error) {
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

// GetFolder returns the folder name.
func (r *Recording) GetFolder(ctx context.Context) (string, error) {
	return r.getString(ctx, "folder")
}

// GetGazeOverlay reports whether the recording has a gaze overlay.
func (r *Recording) GetGazeOverlay(ctx context.Context) (bool, error) {
	body, err := r.conn.RequireGet(ctx, r.EndpointURI(g3types.KindProperty, "gaze-overlay"), nil)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// GetGazeSamples returns the gaze sample count, or ok=false while the
// device reports it as not yet available.
func (r *Recording) GetGazeSamples(ctx context.Context) (int64, bool, error) {
	return r.getCount(ctx, "gaze-samples")
}

// GetValidGazeSamples returns the valid gaze sample count, or ok=false
// while the device reports it as not yet available.
func (r *Recording) GetValidGazeSamples(ctx context.Context) (int64, bool, error) {
	return r.getCount(ctx, "valid-gaze-samples")
}

func (r *Recording) getCount(ctx context.Context, name string) (int64, bool, error) {
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

// GetHTTPPath returns the HTTP path of the recording folder.
func (r *Recording) GetHTTPPath(ctx context.Context) (string, error) {
	return r.getString(ctx, "http-path")
}

// GetRTSPPath returns the RTSP path for replaying the recording.
func (r *Recording) GetRTSPPath(ctx context.Context) (string, error) {
	return r.getString(ctx, "rtsp-path")
}

// GetName returns the recording name.
func (r *Recording) GetName(ctx context.Context) (string, error) {
	return r.getString(ctx, "name")
}

// GetTimezone returns the timezone the recording was made in.
func (r *Recording) GetTimezone(ctx context.Context) (string, error) {
	return r.getString(ctx, "timezone")
}

// GetVisibleName returns the display name.
func (r *Recording) GetVisibleName(ctx context.Context) (string, error) {
	return r.getString(ctx, "visible-name")
}

// SetVisibleName writes the display name.
func (r *Recording) SetVisibleName(ctx context.Context, value string) (bool, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindProperty, "visible-name"), value)
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// MetaInsert stores a metadata entry. A nil value removes the key.
func (r *Recording) MetaInsert(ctx context.Context, key string, value *string) (bool, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "meta-insert"), []interface{}{key, value})
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// MetaKeys lists the metadata keys.
func (r *Recording) MetaKeys(ctx context.Context) ([]string, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "meta-keys"), nil)
	if err != nil {
		return nil, err
	}
	return body.Strings()
}

// MetaLookup reads one metadata entry.
func (r *Recording) MetaLookup(ctx context.Context, key string) (string, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "meta-lookup"), []string{key})
	if err != nil {
		return "", err
	}
	return body.Str()
}

// Metadata reads every metadata entry of the recording. Values are
// base64-decoded when decodable and returned raw otherwise.
func (r *Recording) Metadata(ctx context.Context) (map[string]string, error) {
	keys, err := r.MetaKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := r.MetaLookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if decoded, derr := base64.StdEncoding.DecodeString(value); derr == nil {
			out[key] = string(decoded)
		} else {
			out[key] = value
		}
	}
	return out, nil
}

// Move moves the recording to another folder.
func (r *Recording) Move(ctx context.Context, folder string) (bool, error) {
	body, err := r.conn.RequirePost(ctx, r.EndpointURI(g3types.KindAction, "move"), []string{folder})
	if err != nil {
		return false, err
	}
	return body.Bool()
}

// SceneVideoURL resolves the URL of the recording's scene video file from
// the recording.g3 index.
func (r *Recording) SceneVideoURL(ctx context.Context) (string, error) {
	dataURL, index, err := r.fetchIndex(ctx)
	if err != nil {
		return "", err
	}
	if index.SceneCamera == nil || index.SceneCamera.File == "" {
		r.logger.WithField("url", dataURL).Warn("Could not retrieve scene video file name from recording data")
		return "", &g3types.InvalidResponseError{Message: "recording index has no scenecamera file"}
	}
	return dataURL + "/" + index.SceneCamera.File, nil
}

// GazeDataURL resolves the URL of the recording's decompressed gaze data
// file from the recording.g3 index.
func (r *Recording) GazeDataURL(ctx context.Context) (string, error) {
	dataURL, index, err := r.fetchIndex(ctx)
	if err != nil {
		return "", err
	}
	if index.Gaze == nil || index.Gaze.File == "" {
		r.logger.WithField("url", dataURL).Warn("Could not retrieve gaze data file name from recording data")
		return "", &g3types.InvalidResponseError{Message: "recording index has no gaze file"}
	}
	return dataURL + "/" + index.Gaze.File + "?use-content-encoding=true", nil
}

// Files fetches and parses the recording.g3 index.
func (r *Recording) Files(ctx context.Context) (*FileIndex, error) {
	_, index, err := r.fetchIndex(ctx)
	return index, err
}

func (r *Recording) fetchIndex(ctx context.Context) (string, *FileIndex, error) {
	if r.httpURL == "" {
		return "", nil, &g3types.FeatureNotAvailableError{Feature: "HTTP URL"}
	}
	httpPath, err := r.GetHTTPPath(ctx)
	if err != nil {
		return "", nil, err
	}
	dataURL := r.httpURL + httpPath
	index, err := fetchFileIndex(ctx, r.httpClient, dataURL)
	if err != nil {
		return dataURL, nil, err
	}
	return dataURL, index, nil
}

