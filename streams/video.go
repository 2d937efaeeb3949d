/*
H.264 video demuxing and decoding.

RTP payloads carry NAL units per RFC 6184. Single NAL units pass through;
FU-A fragments (type 28) are reassembled by concatenating payloads
between the start and end bits and rebuilding the original header byte.
Slices are withheld until a parameter set (SPS or PPS) has been emitted,
since a decoder cannot accept the stream before one.
*/

package streams

import (
	"context"
	"image"
	"time"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"

	"github.com/tobiipro/g3go/logging"
)

const (
	// naluTypeFUA is the RTP payload type of a fragmentation unit
	// (RFC 6184 section 5.8).
	naluTypeFUA = 28

	fMask      = 0b10000000
	nriMask    = 0b01100000
	typeMask   = 0b00011111
	fuaSBit    = 0b10000000
	fuaEBit    = 0b01000000
)

// startCodePrefix is prepended to each NAL unit before it is handed to
// the decoder.
var startCodePrefix = []byte{0x00, 0x00, 0x01}

// NALUnit is a network abstraction layer unit: one header byte followed
// by the payload, without a start code.
type NALUnit struct {
	Data []byte
	// NTP is the wall-clock time of the carrying RTP packet, nil before
	// the first RTCP sender report.
	NTP *time.Time
}

// Type returns the 5-bit NAL unit type.
func (n NALUnit) Type() h264.NALUType {
	if len(n.Data) == 0 {
		return 0
	}
	return h264.NALUType(n.Data[0] & typeMask)
}

// WithStartCode returns the unit as Annex-B bytes for a decoder.
func (n NALUnit) WithStartCode() []byte {
	out := make([]byte, 0, len(startCodePrefix)+len(n.Data))
	out = append(out, startCodePrefix...)
	out = append(out, n.Data...)
	return out
}

// Frame is a decoded video frame with its wall-clock time.
type Frame struct {
	Image image.Image
	NTP   *time.Time
}

// FrameDecoder is an opaque H.264 decoder. Decode receives one Annex-B
// NAL unit and returns zero or more frames in presentation order; the
// decoder is free to buffer across calls.
type FrameDecoder interface {
	Decode(annexB []byte) ([]image.Image, error)
}

// VideoStream is an H.264 media stream.
type VideoStream struct {
	*Stream
}

// Demux reassembles NAL units from the stream's RTP packets and returns
// a channel of them, capacity 10. The demuxer goroutine is owned by the
// context: cancel it and the channel closes. Packets are consumed in
// arrival order; no reordering by sequence number is performed.
func (v *VideoStream) Demux(ctx context.Context) <-chan NALUnit {
	out := make(chan NALUnit, frameQueueSize)
	go v.demux(ctx, out)
	return out
}

func (v *VideoStream) demux(ctx context.Context, out chan<- NALUnit) {
	defer close(out)

	var (
		paramSetSeen bool
		assembly     []byte
		assemblyNTP  *time.Time
		assembling   bool
	)

	emit := func(unit NALUnit) bool {
		select {
		case out <- unit:
			v.demuxedOut.Add(1)
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		item, ok := v.rtpQueue.pop(ctx)
		if !ok {
			return
		}
		payload := item.pkt.Payload
		if len(payload) == 0 {
			continue
		}

		naluType := h264.NALUType(payload[0] & typeMask)
		switch {
		case naluType == h264.NALUTypeSPS || naluType == h264.NALUTypePPS:
			paramSetSeen = true
			if !emit(NALUnit{Data: payload, NTP: item.ntp}) {
				return
			}

		case !paramSetSeen:
			// A decoder cannot accept the stream before a parameter
			// set, so everything earlier is dropped.

		case naluType == h264.NALUTypeNonIDR || naluType == h264.NALUTypeIDR:
			if !emit(NALUnit{Data: payload, NTP: item.ntp}) {
				return
			}

		case naluType == naluTypeFUA:
			if len(payload) < 2 {
				v.logger.Debug("Dropping truncated fragmentation unit")
				continue
			}
			indicator, fuHeader := payload[0], payload[1]
			fragment := payload[2:]
			switch {
			case fuHeader&fuaSBit != 0:
				header := indicator&(fMask|nriMask) | fuHeader&typeMask
				assembly = append(assembly[:0], header)
				assembly = append(assembly, fragment...)
				assemblyNTP = item.ntp
				assembling = true
			case !assembling:
				// A continuation without a start in progress is
				// corruption, most likely a lost packet.
				v.logger.Debug("Dropping fragmentation unit with no assembly in progress")
				continue
			default:
				assembly = append(assembly, fragment...)
			}
			if assembling && fuHeader&fuaEBit != 0 {
				unit := make([]byte, len(assembly))
				copy(unit, assembly)
				assembling = false
				if !emit(NALUnit{Data: unit, NTP: assemblyNTP}) {
					return
				}
			}

		default:
			v.logger.WithFields(logging.Fields{
				"nalu_type": int(naluType),
			}).Warn("Unhandled NAL unit type")
		}
	}
}

// Decode demuxes the stream and feeds each NAL unit, prefixed with the
// Annex-B start code, into the decoder. Every decoded frame is forwarded
// in order, paired with the NAL unit's wall-clock time. The returned
// channel has capacity 10 and closes when the context is cancelled or
// the stream ends.
func (v *VideoStream) Decode(ctx context.Context, decoder FrameDecoder) <-chan Frame {
	out := make(chan Frame, frameQueueSize)
	nalUnits := v.Demux(ctx)
	go func() {
		defer close(out)
		for unit := range nalUnits {
			images, err := decoder.Decode(unit.WithStartCode())
			if err != nil {
				v.logger.WithError(err).Warn("Decoder rejected NAL unit")
				continue
			}
			for _, img := range images {
				select {
				case out <- Frame{Image: img, NTP: unit.NTP}:
					v.decoded.Add(1)
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
