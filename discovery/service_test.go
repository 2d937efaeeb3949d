package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService() *Service {
	return &Service{
		Hostname: "glasses-X",
		Type:     G3ServiceType,
		Server:   "glasses-X.local.",
		Port:     80,
		IPv4:     net.ParseIP("192.168.1.20"),
		IPv6:     net.ParseIP("fe80::1"),
		RTSP:     &RTSPRecord{Port: 8554, LivePath: "/live/all", RecordingsPath: "/recordings"},
	}
}

func TestService_URLsFromHostname(t *testing.T) {
	s := testService()

	wsURL, err := s.WSURL(false, Either)
	require.NoError(t, err)
	assert.Equal(t, "ws://glasses-X/websocket", wsURL)

	rtspURL, err := s.RTSPURL(false, Either)
	require.NoError(t, err)
	assert.Equal(t, "rtsp://glasses-X:8554/live/all", rtspURL)

	httpURL, err := s.HTTPURL(false, Either)
	require.NoError(t, err)
	assert.Equal(t, "http://glasses-X:80", httpURL)
}

func TestService_URLsFromIP(t *testing.T) {
	s := testService()

	wsURL, err := s.WSURL(true, V4Only)
	require.NoError(t, err)
	assert.Equal(t, "ws://192.168.1.20/websocket", wsURL)

	wsURL, err = s.WSURL(true, V6Only)
	require.NoError(t, err)
	assert.Equal(t, "ws://[fe80::1]/websocket", wsURL)
}

func TestService_MissingAddressFamily(t *testing.T) {
	s := testService()
	s.IPv6 = nil

	_, err := s.WSURL(true, V6Only)
	var incomplete *IncompleteServiceError
	require.ErrorAs(t, err, &incomplete)

	// Either falls back to the present family.
	wsURL, err := s.WSURL(true, Either)
	require.NoError(t, err)
	assert.Equal(t, "ws://192.168.1.20/websocket", wsURL)
}

func TestService_NoRTSPRecord(t *testing.T) {
	s := testService()
	s.RTSP = nil

	rtspURL, err := s.RTSPURL(false, Either)
	require.NoError(t, err, "A missing RTSP record is not an error")
	assert.Empty(t, rtspURL)

	// The service is still usable for control.
	wsURL, err := s.WSURL(false, Either)
	require.NoError(t, err)
	assert.Equal(t, "ws://glasses-X/websocket", wsURL)
}

func TestRTSPRecordFromEntry_ParsesTXT(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		Port: 8554,
		Text: []string{"path=/live/all", "recordings=/recordings", "ignored", "other=x"},
	}
	record := rtspRecordFromEntry(entry)
	assert.Equal(t, 8554, record.Port)
	assert.Equal(t, "/live/all", record.LivePath)
	assert.Equal(t, "/recordings", record.RecordingsPath)
}

func TestWaitForSingleService_FiltersByFamily(t *testing.T) {
	events := make(chan Event, 4)
	v4Only := &Service{Hostname: "a", Port: 80, IPv4: net.ParseIP("10.0.0.1")}
	v6Only := &Service{Hostname: "b", Port: 80, IPv6: net.ParseIP("fe80::2")}

	events <- Event{Kind: Removed, Service: v4Only}
	events <- Event{Kind: Added, Service: v6Only}
	events <- Event{Kind: Added, Service: v4Only}

	service, err := WaitForSingleService(context.Background(), events, time.Second, V4Only)
	require.NoError(t, err)
	assert.Equal(t, "a", service.Hostname, "Removed events and non-matching families are skipped")
}

func TestWaitForSingleService_TimesOut(t *testing.T) {
	events := make(chan Event)
	_, err := WaitForSingleService(context.Background(), events, 100*time.Millisecond, Either)
	var notFound *ServiceNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestServiceComplete(t *testing.T) {
	s := &Service{Hostname: "glasses-X", Port: 80, IPv4: net.ParseIP("10.0.0.1")}
	assert.True(t, s.complete())

	assert.False(t, (&Service{Hostname: "glasses-X", Port: 80}).complete(),
		"A record without any resolved address is incomplete")
	assert.False(t, (&Service{Hostname: "glasses-X", IPv4: net.ParseIP("10.0.0.1")}).complete(),
		"A record without a port is incomplete")
}
