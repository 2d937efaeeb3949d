package g3go

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobiipro/g3go/g3types"
	"github.com/tobiipro/g3go/streams"
)

func TestNewDevice_ConstructsSubFacadesEagerly(t *testing.T) {
	device := NewDevice(nil, "", "", nil)

	assert.NotNil(t, device.Recorder())
	assert.NotNil(t, device.Recordings())
	assert.NotNil(t, device.Settings())
	assert.NotNil(t, device.System())
	assert.NotNil(t, device.System().Battery())
	assert.NotNil(t, device.Calibrate())
	assert.NotNil(t, device.Rudimentary())

	assert.Equal(t, g3types.URI("/recorder"), device.Recorder().Root())
	assert.Equal(t, g3types.URI("/recordings"), device.Recordings().Root())
	assert.Equal(t, g3types.URI("/system/battery"), device.System().Battery().Root())
}

func TestStreamRTSP_RequiresRTSPURL(t *testing.T) {
	device := NewDevice(nil, "", "http://glasses-X:80", nil)

	_, err := device.StreamRTSP(context.Background(), streams.Options{})
	var notAvailable *g3types.FeatureNotAvailableError
	require.ErrorAs(t, err, &notAvailable)
}
