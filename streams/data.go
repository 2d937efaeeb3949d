/*
Application data demuxing and decoding.

The gaze, sync, IMU and event streams carry one JSON object per RTP
payload. Empty payloads occur legitimately as heartbeats and are dropped
at the decode stage, as is anything that fails to parse.
*/

package streams

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tobiipro/g3go/g3types"
)

// Payload is one raw datagram with its wall-clock time.
type Payload struct {
	Data []byte
	// NTP is nil before the first RTCP sender report.
	NTP *time.Time
}

// Sample is one decoded JSON object with its wall-clock time.
type Sample struct {
	Value g3types.Value
	NTP   *time.Time
}

// DataStream is a JSON-datagram media stream.
type DataStream struct {
	*Stream
}

// Demux forwards the raw RTP payloads paired with their timestamps. The
// channel has capacity 100 and closes when the context is cancelled or
// the stream ends.
func (d *DataStream) Demux(ctx context.Context) <-chan Payload {
	out := make(chan Payload, dataQueueSize)
	go func() {
		defer close(out)
		for {
			item, ok := d.rtpQueue.pop(ctx)
			if !ok {
				return
			}
			payload := Payload{Data: item.pkt.Payload, NTP: item.ntp}
			select {
			case out <- payload:
				d.demuxedOut.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Decode demuxes the stream and parses each payload as JSON. Payloads
// that fail to parse are logged and skipped, including the empty
// heartbeat datagrams.
func (d *DataStream) Decode(ctx context.Context) <-chan Sample {
	out := make(chan Sample, dataQueueSize)
	payloads := d.Demux(ctx)
	go func() {
		defer close(out)
		for payload := range payloads {
			if !json.Valid(payload.Data) {
				if len(payload.Data) == 0 {
					d.logger.Debug("Received data that couldn't be decoded since it was empty")
				} else {
					d.logger.Debug("Received data that couldn't be decoded")
				}
				continue
			}
			raw := make(json.RawMessage, len(payload.Data))
			copy(raw, payload.Data)
			select {
			case out <- Sample{Value: g3types.NewValue(raw), NTP: payload.NTP}:
				d.decoded.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
