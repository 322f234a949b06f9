package pipeline

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/andrijaa/opusrtp-streamer/internal/audio"
	"github.com/andrijaa/opusrtp-streamer/internal/jitter"
	"github.com/andrijaa/opusrtp-streamer/internal/metrics"
	"github.com/andrijaa/opusrtp-streamer/internal/rtpcodec"
	"github.com/andrijaa/opusrtp-streamer/internal/transport"
	"github.com/andrijaa/opusrtp-streamer/pkg/pcmio"
)

// ReceiverStats are the receiver-owned monotonic counters not already
// tracked inside the jitter buffer itself.
type ReceiverStats struct {
	PacketsReceived         uint64
	BytesReceived           uint64
	DecodeErrors            uint64
	PLCFramesEmitted        uint64
	PlaybackUnderrunOverrun uint64
	SSRCMismatchDrops       uint64
	EmptyPayloadDrops       uint64
	ProtocolErrors          uint64
}

// Receiver runs two concurrent activities: UDP ingress (parse +
// jitter-buffer insert) and the 20ms playout tick (buffer pop +
// decode/PLC + sink write). The jitter.Buffer is the only state shared
// between them.
type Receiver struct {
	udp     *transport.Receiver
	buf     *jitter.Buffer
	decoder *audio.Decoder
	sink    pcmio.Sink
	log     *zap.Logger
	msink   metrics.Sink

	interval time.Duration

	ssrc    uint32
	hasSSRC bool

	stats ReceiverStats
}

// NewReceiver builds a receiver listening on udp, reordering through buf,
// decoding with a fresh Opus decoder, and writing frames to sink.
func NewReceiver(udp *transport.Receiver, buf *jitter.Buffer, sink pcmio.Sink, interval time.Duration, log *zap.Logger, msink metrics.Sink) (*Receiver, error) {
	dec, err := audio.NewDecoder()
	if err != nil {
		return nil, err
	}
	if msink == nil {
		msink = metrics.Noop{}
	}
	return &Receiver{
		udp:      udp,
		buf:      buf,
		decoder:  dec,
		sink:     sink,
		log:      log,
		msink:    msink,
		interval: interval,
	}, nil
}

// Run starts ingress and playout and blocks until ctx is canceled, at
// which point ingress closes its socket and playout flushes by simply
// returning — there is no pending-frame queue to flush beyond the
// jitter buffer itself, which is discarded on shutdown.
func (r *Receiver) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		r.ingressLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		r.playoutLoop(ctx)
	}()

	wg.Wait()
	return nil
}

func (r *Receiver) ingressLoop(ctx context.Context) {
	defer r.udp.Close()
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := r.udp.Recv(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			r.log.Debug("udp recv error", zap.Error(err))
			continue
		}

		pkt, err := rtpcodec.Parse(buf[:n])
		if err != nil {
			atomic.AddUint64(&r.stats.ProtocolErrors, 1)
			r.msink.CounterInc("protocol_errors", 1)
			continue
		}
		if len(pkt.Payload) == 0 {
			atomic.AddUint64(&r.stats.EmptyPayloadDrops, 1)
			r.msink.CounterInc("empty_payload_drops", 1)
			continue
		}
		if !r.acceptSSRC(pkt.SSRC) {
			atomic.AddUint64(&r.stats.SSRCMismatchDrops, 1)
			r.msink.CounterInc("ssrc_mismatch_drops", 1)
			continue
		}

		atomic.AddUint64(&r.stats.PacketsReceived, 1)
		atomic.AddUint64(&r.stats.BytesReceived, uint64(n))
		r.msink.CounterInc("packets_received", 1)
		r.msink.CounterInc("bytes_received", float64(n))

		payload := make([]byte, len(pkt.Payload))
		copy(payload, pkt.Payload)
		r.buf.Insert(jitter.Packet{
			Sequence:  pkt.Sequence,
			Timestamp: pkt.Timestamp,
			Payload:   payload,
		}, time.Now())
	}
}

// acceptSSRC enforces a one-stream-per-port assumption: the first
// observed SSRC becomes the stream identity, and any later packet with
// a different SSRC is dropped. Only the ingress goroutine touches
// ssrc/hasSSRC, so no lock is needed.
func (r *Receiver) acceptSSRC(ssrc uint32) bool {
	if !r.hasSSRC {
		r.ssrc = ssrc
		r.hasSSRC = true
		return true
	}
	return ssrc == r.ssrc
}

func (r *Receiver) playoutLoop(ctx context.Context) {
	start := time.Now()
	var n int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deadline := start.Add(time.Duration(n+1) * r.interval)
		waitUntilDeadline(ctx, deadline, r.interval)
		r.tick()
		n++
	}
}

// tick pops a packet (real or PLC) and writes its frame to the sink, or
// emits silence if the buffer has not yet primed.
func (r *Receiver) tick() {
	if !r.buf.Primed() {
		r.writeFrame(audio.NewSilentFrame())
		return
	}

	pkt, ok := r.buf.Pop()
	if !ok {
		r.emitPLC()
		return
	}

	frame, err := r.decoder.Decode(pkt.Payload)
	if err != nil {
		atomic.AddUint64(&r.stats.DecodeErrors, 1)
		r.msink.CounterInc("decode_errors", 1)
		r.log.Debug("opus decode failed, concealing", zap.Error(err))
		r.emitPLC()
		return
	}
	r.writeFrame(frame)
}

func (r *Receiver) emitPLC() {
	frame := r.decoder.DecodePLC()
	atomic.AddUint64(&r.stats.PLCFramesEmitted, 1)
	r.msink.CounterInc("plc_frames_emitted", 1)
	r.writeFrame(frame)
}

func (r *Receiver) writeFrame(frame audio.Frame) {
	if err := r.sink.Write(frame); err != nil {
		atomic.AddUint64(&r.stats.PlaybackUnderrunOverrun, 1)
		r.msink.CounterInc("playback_underrun_or_overrun", 1)
	}
}

// Stats returns a snapshot of the receiver-owned counters. Jitter-buffer
// owned counters (packets_late/lost/reordered/duplicate/overflow/resync)
// live on the Buffer itself.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		PacketsReceived:         atomic.LoadUint64(&r.stats.PacketsReceived),
		BytesReceived:           atomic.LoadUint64(&r.stats.BytesReceived),
		DecodeErrors:            atomic.LoadUint64(&r.stats.DecodeErrors),
		PLCFramesEmitted:        atomic.LoadUint64(&r.stats.PLCFramesEmitted),
		PlaybackUnderrunOverrun: atomic.LoadUint64(&r.stats.PlaybackUnderrunOverrun),
		SSRCMismatchDrops:       atomic.LoadUint64(&r.stats.SSRCMismatchDrops),
		EmptyPayloadDrops:       atomic.LoadUint64(&r.stats.EmptyPayloadDrops),
		ProtocolErrors:          atomic.LoadUint64(&r.stats.ProtocolErrors),
	}
}
