package streams

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"golang.org/x/time/rate"

	"github.com/tobiipro/g3go/logging"
)

const (
	// videoTimestampGranularity is the RTP clock rate of the video
	// streams, and the fallback for streams that do not announce one.
	videoTimestampGranularity = 90000

	// frameQueueSize bounds the demuxed NAL-unit and decoded frame
	// channels.
	frameQueueSize = 10
	// dataQueueSize bounds the demuxed payload and decoded JSON channels.
	dataQueueSize = 100
	// rtcpQueueSize bounds the observer RTCP channel. It is statistics
	// only: overflow drops the new packet, never stalls reception.
	rtcpQueueSize = 100
)

// ntpEpochOffset is the difference in seconds between the NTP era
// (1900-01-01) and the Unix era (1970-01-01).
const ntpEpochOffset = 2208988800

// timedPacket pairs an RTP packet with its derived wall-clock time.
type timedPacket struct {
	pkt *rtp.Packet
	ntp *time.Time
}

// Stats holds per-stream counters, mainly for debugging.
type Stats struct {
	RTPReceived   uint64
	DemuxedOut    uint64
	Decoded       uint64
	RTCPDropped   uint64
	SenderReports uint64
}

// Stream is one media stream of a live RTSP session. RTP packets flow
// from the transport callback through an internal queue to the stream's
// demuxer; RTCP sender reports anchor the RTP timeline to wall-clock
// time.
type Stream struct {
	typ       StreamType
	clockRate int
	logger    *logging.Logger

	rtpQueue  *unboundedQueue[timedPacket]
	rtcpQueue chan rtcp.Packet

	// anchor is the last received sender-report pair. Written by the
	// RTCP callback, read on every RTP packet.
	anchorMu    sync.Mutex
	lastNTP     time.Time
	lastRTCPTS  uint32
	anchored    bool

	rtpReceived   atomic.Uint64
	demuxedOut    atomic.Uint64
	decoded       atomic.Uint64
	rtcpDropped   atomic.Uint64
	senderReports atomic.Uint64

	dropWarn rate.Sometimes
}

func newStream(typ StreamType, clockRate int, logger *logging.Logger) *Stream {
	if clockRate <= 0 {
		clockRate = videoTimestampGranularity
	}
	return &Stream{
		typ:       typ,
		clockRate: clockRate,
		logger:    logger.WithComponent("streams/" + typ.String()),
		rtpQueue:  newUnboundedQueue[timedPacket](),
		rtcpQueue: make(chan rtcp.Packet, rtcpQueueSize),
		dropWarn:  rate.Sometimes{Interval: time.Second},
	}
}

// Type returns the stream's type.
func (s *Stream) Type() StreamType {
	return s.typ
}

// RTCP exposes received RTCP packets to observers. The channel is lossy:
// when it is full new packets are dropped with a warning.
func (s *Stream) RTCP() <-chan rtcp.Packet {
	return s.rtcpQueue
}

// Stats returns a snapshot of the stream counters.
func (s *Stream) Stats() Stats {
	return Stats{
		RTPReceived:   s.rtpReceived.Load(),
		DemuxedOut:    s.demuxedOut.Load(),
		Decoded:       s.decoded.Load(),
		RTCPDropped:   s.rtcpDropped.Load(),
		SenderReports: s.senderReports.Load(),
	}
}

// handleRTP derives the packet's wall-clock time from the last sender
// report and enqueues it for the demuxer. Before the first sender report
// the time is unknown and nil is carried instead.
func (s *Stream) handleRTP(pkt *rtp.Packet) {
	s.rtpReceived.Add(1)

	var ntp *time.Time
	s.anchorMu.Lock()
	if s.anchored {
		// Signed difference so a timestamp wrap between the report and
		// the packet still yields the right delta.
		delta := int32(pkt.Timestamp - s.lastRTCPTS)
		t := s.lastNTP.Add(time.Duration(float64(delta) / float64(s.clockRate) * float64(time.Second)))
		ntp = &t
	}
	s.anchorMu.Unlock()

	s.rtpQueue.push(timedPacket{pkt: pkt, ntp: ntp})
}

// handleRTCP records sender reports for timestamp anchoring and forwards
// every packet to the observer queue.
func (s *Stream) handleRTCP(pkt rtcp.Packet) {
	select {
	case s.rtcpQueue <- pkt:
	default:
		s.rtcpDropped.Add(1)
		s.dropWarn.Do(func() {
			s.logger.WithFields(logging.Fields{
				"dropped": s.rtcpDropped.Load(),
			}).Warn("RTCP queue full, dropping new packets; consume the queue to prevent this")
		})
	}

	sr, ok := pkt.(*rtcp.SenderReport)
	if !ok {
		return
	}
	s.senderReports.Add(1)

	ntp := ntpToTime(sr.NTPTime)
	s.anchorMu.Lock()
	s.lastNTP = ntp
	s.lastRTCPTS = sr.RTPTime
	s.anchored = true
	s.anchorMu.Unlock()
}

// closeQueues ends the internal queues so demuxers drain and exit.
func (s *Stream) closeQueues() {
	s.rtpQueue.close()
}

// ntpToTime converts a 64-bit NTP timestamp (32.32 fixed point seconds
// since 1900) to wall-clock time.
func ntpToTime(ts uint64) time.Time {
	secs := int64(ts>>32) - ntpEpochOffset
	frac := ts & 0xffffffff
	nanos := int64(float64(frac) / (1 << 32) * float64(time.Second))
	return time.Unix(secs, nanos)
}
