package recordings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobiipro/g3go/g3types"
)

func TestRecording_Getters(t *testing.T) {
	control := newFakeControl()
	control.getResponses["/recordings/u1.created"] = `"2023-03-14T09:26:53.589Z"`
	control.getResponses["/recordings/u1.duration"] = "12.5"
	control.getResponses["/recordings/u1.folder"] = `"20230314T092653Z"`
	control.getResponses["/recordings/u1.rtsp-path"] = `"/recordings?uuid=u1"`
	rec := NewRecording(control, "/recordings", "u1", "")
	ctx := context.Background()

	created, err := rec.GetCreated(ctx)
	require.NoError(t, err)
	assert.Equal(t, 14, created.Day())

	duration, ok, err := rec.GetDuration(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12500*time.Millisecond, duration)

	folder, err := rec.GetFolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20230314T092653Z", folder)

	rtspPath, err := rec.GetRTSPPath(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/recordings?uuid=u1", rtspPath)

	assert.Equal(t, "u1", rec.UUID())
}

func TestRecording_FileURLsFromIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/recordings/u1", r.URL.Path)
		w.Write([]byte(`{
			"name": "u1",
			"meta-folder": "meta",
			"duration": 12.5,
			"scenecamera": {"file": "scenevideo.mp4"},
			"gaze": {"file": "gazedata.gz"},
			"events": {"file": "eventdata.gz"},
			"imu": {"file": "imudata.gz"}
		}`))
	}))
	defer server.Close()

	control := newFakeControl()
	control.getResponses["/recordings/u1.http-path"] = `"/recordings/u1"`
	rec := NewRecording(control, "/recordings", "u1", server.URL)
	ctx := context.Background()

	videoURL, err := rec.SceneVideoURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/recordings/u1/scenevideo.mp4", videoURL)

	gazeURL, err := rec.GazeDataURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/recordings/u1/gazedata.gz?use-content-encoding=true", gazeURL)

	index, err := rec.Files(ctx)
	require.NoError(t, err)
	assert.Equal(t, "meta", index.MetaFolder)
	assert.Equal(t, "eventdata.gz", index.Events.File)
	assert.Equal(t, "imudata.gz", index.IMU.File)
}

func TestRecording_FileURLsWithoutHTTPURL(t *testing.T) {
	control := newFakeControl()
	rec := NewRecording(control, "/recordings", "u1", "")

	_, err := rec.SceneVideoURL(context.Background())
	var notAvailable *g3types.FeatureNotAvailableError
	require.ErrorAs(t, err, &notAvailable)
}

func TestRecording_IndexWithoutComponentIsInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "u1"}`))
	}))
	defer server.Close()

	control := newFakeControl()
	control.getResponses["/recordings/u1.http-path"] = `"/recordings/u1"`
	rec := NewRecording(control, "/recordings", "u1", server.URL)

	_, err := rec.SceneVideoURL(context.Background())
	var invalid *g3types.InvalidResponseError
	require.ErrorAs(t, err, &invalid)
}

// metaControl scripts the meta actions for Metadata.
type metaControl struct {
	*fakeControl
}

func (m *metaControl) RequirePost(_ context.Context, uri g3types.URI, body interface{}) (g3types.Value, error) {
	switch uri {
	case "/recordings/u1!meta-keys":
		return g3types.NewValue([]byte(`["study","note"]`)), nil
	case "/recordings/u1!meta-lookup":
		keys, _ := body.([]string)
		if len(keys) == 1 && keys[0] == "study" {
			// "encoded" in base64.
			return g3types.NewValue([]byte(`"ZW5jb2RlZA=="`)), nil
		}
		return g3types.NewValue([]byte(`"plain text"`)), nil
	}
	return g3types.Value{}, nil
}

func TestRecording_MetadataDecodesBase64WhenDecodable(t *testing.T) {
	control := &metaControl{fakeControl: newFakeControl()}
	rec := NewRecording(control, "/recordings", "u1", "")

	meta, err := rec.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "encoded", meta["study"], "Base64 values are decoded")
	assert.Equal(t, "plain text", meta["note"], "Undecodable values pass through raw")
}
