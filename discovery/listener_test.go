package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobiipro/g3go/logging"
)

func newTestListener(rtsp *RTSPRecord) *Listener {
	return &Listener{
		logger:   logging.NewLogger("test"),
		timeout:  time.Second,
		services: make(map[string]*Service),
		expiry:   make(map[string]*time.Timer),
		events:   make(chan Event, eventQueueSize),
		expired:  make(chan string, eventQueueSize),
		rtspLookup: func(context.Context, string) *RTSPRecord {
			return rtsp
		},
	}
}

func entryFor(hostname string, ip string) *zeroconf.ServiceEntry {
	entry := &zeroconf.ServiceEntry{
		ServiceRecord: *zeroconf.NewServiceRecord(hostname, G3ServiceType, MDNSDomain),
		HostName:      hostname + ".local.",
		Port:          80,
		TTL:           120,
	}
	if ip != "" {
		entry.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	}
	return entry
}

func nextEvent(t *testing.T, l *Listener) Event {
	t.Helper()
	select {
	case event := <-l.events:
		return event
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return Event{}
	}
}

func TestListener_AddedCarriesPairedRTSPRecord(t *testing.T) {
	l := newTestListener(&RTSPRecord{Port: 8554, LivePath: "/live/all"})
	ctx := context.Background()

	l.addOrUpdate(ctx, entryFor("glasses-X", "192.168.1.20"))

	event := nextEvent(t, l)
	assert.Equal(t, Added, event.Kind)
	assert.Equal(t, "glasses-X", event.Service.Hostname)
	require.NotNil(t, event.Service.RTSP)

	wsURL, err := event.Service.WSURL(false, Either)
	require.NoError(t, err)
	assert.Equal(t, "ws://glasses-X/websocket", wsURL)
	rtspURL, err := event.Service.RTSPURL(false, Either)
	require.NoError(t, err)
	assert.Equal(t, "rtsp://glasses-X:8554/live/all", rtspURL)

	assert.Contains(t, l.Services(), "glasses-X")
}

func TestListener_AddedWithoutRTSPStillEmits(t *testing.T) {
	l := newTestListener(nil)
	ctx := context.Background()

	l.addOrUpdate(ctx, entryFor("glasses-X", "192.168.1.20"))

	event := nextEvent(t, l)
	assert.Equal(t, Added, event.Kind)
	assert.Nil(t, event.Service.RTSP, "A failed RTSP lookup leaves the record nil")
	rtspURL, err := event.Service.RTSPURL(false, Either)
	require.NoError(t, err)
	assert.Empty(t, rtspURL)
}

func TestListener_IncompleteAddIsSuppressed(t *testing.T) {
	l := newTestListener(nil)
	ctx := context.Background()

	l.addOrUpdate(ctx, entryFor("glasses-X", ""))

	select {
	case event := <-l.events:
		t.Fatalf("unexpected event %v for incomplete record", event.Kind)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Empty(t, l.Services(), "A failed detail fetch does not add the service")
}

func TestListener_IncompleteUpdateKeepsPreviousRecord(t *testing.T) {
	l := newTestListener(nil)
	ctx := context.Background()

	l.addOrUpdate(ctx, entryFor("glasses-X", "192.168.1.20"))
	nextEvent(t, l)

	l.addOrUpdate(ctx, entryFor("glasses-X", ""))

	select {
	case event := <-l.events:
		t.Fatalf("unexpected event %v for incomplete update", event.Kind)
	case <-time.After(100 * time.Millisecond):
	}
	service := l.Services()["glasses-X"]
	require.NotNil(t, service)
	assert.NotNil(t, service.IPv4, "The previous record stays in place")
}

func TestListener_UpdateReplacesRecord(t *testing.T) {
	l := newTestListener(nil)
	ctx := context.Background()

	l.addOrUpdate(ctx, entryFor("glasses-X", "192.168.1.20"))
	nextEvent(t, l)

	l.addOrUpdate(ctx, entryFor("glasses-X", "192.168.1.99"))
	event := nextEvent(t, l)
	assert.Equal(t, Updated, event.Kind)
	assert.Equal(t, "192.168.1.99", event.Service.IPv4.String())
}

func TestListener_RemoveIsImmediate(t *testing.T) {
	l := newTestListener(nil)
	ctx := context.Background()

	l.addOrUpdate(ctx, entryFor("glasses-X", "192.168.1.20"))
	nextEvent(t, l)

	l.remove(ctx, "glasses-X")
	event := nextEvent(t, l)
	assert.Equal(t, Removed, event.Kind)
	assert.Empty(t, l.Services())

	// Removing an unknown service publishes nothing.
	l.remove(ctx, "glasses-Y")
	select {
	case event := <-l.events:
		t.Fatalf("unexpected event %v", event.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}
