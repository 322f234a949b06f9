package pipeline

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/andrijaa/opusrtp-streamer/internal/audio"
	"github.com/andrijaa/opusrtp-streamer/internal/metrics"
	"github.com/andrijaa/opusrtp-streamer/internal/obs"
	"github.com/andrijaa/opusrtp-streamer/internal/rtpcodec"
	"github.com/andrijaa/opusrtp-streamer/internal/transport"
	"github.com/andrijaa/opusrtp-streamer/pkg/pcmio"
)

// SenderStats are the sender-owned monotonic counters.
type SenderStats struct {
	PacketsSent  uint64
	BytesSent    uint64
	EncodeErrors uint64
	SendErrors   uint64
	PacingSkew   uint64
}

// Sender reads normalized frames, encodes them to Opus, packetizes them
// as RTP, and transmits them on a steady 20ms cadence.
type Sender struct {
	norm    *audio.Normalizer
	encoder *audio.Encoder
	udp     *transport.Sender
	log     *zap.Logger
	sink    metrics.Sink

	ssrc uint32
	seq  uint16
	ts   uint32

	interval time.Duration

	stats SenderStats
}

// NewSender builds a sender over src, transmitting to the address udp is
// already dialed against. interval is the pacing period (20ms by
// default; the CLI --interval-ms flag may override it for testing,
// though sequence/timestamp arithmetic never changes with it).
func NewSender(src pcmio.Source, udp *transport.Sender, interval time.Duration, log *zap.Logger, sink metrics.Sink) (*Sender, error) {
	enc, err := audio.NewEncoder()
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.Noop{}
	}
	return &Sender{
		norm:     audio.NewNormalizer(src),
		encoder:  enc,
		udp:      udp,
		log:      log,
		sink:     sink,
		ssrc:     rand.Uint32(),
		interval: interval,
	}, nil
}

// Run drives the sender loop until the PCM source reports EOF or ctx is
// canceled. The pacing discipline computes each send deadline from a
// monotonic anchor (start plus N*interval) rather than accumulating
// sleeps, so the stream never drifts under scheduling jitter.
func (s *Sender) Run(ctx context.Context) error {
	start := time.Now()
	var n int64

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, ok, err := s.norm.Next()
		if err != nil {
			return obs.Wrap(obs.KindIO, "pipeline.Sender.Run", err)
		}
		if !ok {
			return nil
		}

		deadline := start.Add(time.Duration(n+1) * s.interval)
		if waitUntilDeadline(ctx, deadline, s.interval) {
			atomic.AddUint64(&s.stats.PacingSkew, 1)
			s.sink.CounterInc("pacing_skew", 1)
		}

		if err := s.sendFrame(frame); err != nil {
			s.log.Debug("frame send failed", zap.Error(err))
		}
		n++
	}
}

func (s *Sender) sendFrame(frame audio.Frame) error {
	payload, err := s.encoder.Encode(frame)
	if err != nil {
		atomic.AddUint64(&s.stats.EncodeErrors, 1)
		s.sink.CounterInc("encode_errors", 1)
		return err
	}

	pkt := rtpcodec.Packet{
		Sequence:  s.seq,
		Timestamp: s.ts,
		SSRC:      s.ssrc,
		Payload:   payload,
	}
	buf, err := rtpcodec.Serialize(pkt)
	if err != nil {
		return err
	}

	n, err := s.udp.Send(buf)
	if err != nil {
		atomic.AddUint64(&s.stats.SendErrors, 1)
		s.sink.CounterInc("send_error", 1)
		return err
	}

	// Sequence/timestamp only advance once a packet is actually
	// transmitted — a skipped frame (encode failure) creates a gap the
	// receiver treats as loss rather than silently renumbering the
	// stream.
	s.seq++
	s.ts += rtpcodec.TimestampIncrement
	atomic.AddUint64(&s.stats.PacketsSent, 1)
	atomic.AddUint64(&s.stats.BytesSent, uint64(n))
	s.sink.CounterInc("packets_sent", 1)
	s.sink.CounterInc("bytes_sent", float64(n))
	return nil
}

// Stats returns a snapshot of the sender's counters.
func (s *Sender) Stats() SenderStats {
	return SenderStats{
		PacketsSent:  atomic.LoadUint64(&s.stats.PacketsSent),
		BytesSent:    atomic.LoadUint64(&s.stats.BytesSent),
		EncodeErrors: atomic.LoadUint64(&s.stats.EncodeErrors),
		SendErrors:   atomic.LoadUint64(&s.stats.SendErrors),
		PacingSkew:   atomic.LoadUint64(&s.stats.PacingSkew),
	}
}
