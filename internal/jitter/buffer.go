package jitter

import (
	"sort"
	"sync"
	"time"

	"github.com/andrijaa/opusrtp-streamer/internal/metrics"
	"github.com/andrijaa/opusrtp-streamer/internal/rtpcodec"
)

// FrameDurationMs is the fixed playout cadence the buffer is sized
// against.
const FrameDurationMs = 20

// DefaultDepthMs is the buffer's default priming depth (3 frames).
const DefaultDepthMs = 60

// ReorderWindow bounds how far ahead or behind next_expected_sequence a
// packet may be before it is treated as a stream reset rather than
// ordinary reorder/loss.
const ReorderWindow = 3000

// MaxCapacityFactor bounds the queue at MaxCapacityFactor * depth frames
// before the oldest packet is dropped to make room.
const MaxCapacityFactor = 8

// Packet is a parsed RTP packet held in the jitter buffer.
type Packet struct {
	Sequence  uint16
	Timestamp uint32
	Payload   []byte
}

// Stats holds the monotonic counters the buffer itself is responsible for.
type Stats struct {
	PacketsLate      uint64
	PacketsLost      uint64
	PacketsReordered uint64
	PacketsDuplicate uint64
	PacketsOverflow  uint64
	Resyncs          uint64
}

// Buffer is a sequence-ordered reorder queue sitting between ingress and
// playout — the only mutable state shared between them. Every method
// takes the internal lock for the duration of an O(log n) search/insert.
type Buffer struct {
	mu sync.Mutex

	queue        []Packet
	nextExpected uint16

	primed          bool
	hasFirstArrival bool
	firstArrival    time.Time

	depthMs     int
	depthFrames int
	maxCapacity int

	stats  Stats
	jitter jitterEstimator
	sink   metrics.Sink
}

// New creates a Buffer with the given priming depth in milliseconds
// (rounded down to whole 20ms frames, minimum one frame) and an
// observability sink for the counters/gauges it drives.
func New(depthMs int, sink metrics.Sink) *Buffer {
	if depthMs < FrameDurationMs {
		depthMs = FrameDurationMs
	}
	depthFrames := depthMs / FrameDurationMs
	if sink == nil {
		sink = metrics.Noop{}
	}
	return &Buffer{
		depthMs:     depthMs,
		depthFrames: depthFrames,
		maxCapacity: depthFrames * MaxCapacityFactor,
		sink:        sink,
	}
}

func seqLess(a, b uint16) bool {
	return rtpcodec.WrappingDiff(a, b) < 0
}

// Insert discards late and duplicate packets, inserts anything within
// the reorder window in sequence-sorted position, and resyncs the
// stream on a jump beyond ReorderWindow in either direction.
func (b *Buffer) Insert(pkt Packet, arrival time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasFirstArrival {
		b.firstArrival = arrival
		b.hasFirstArrival = true
		// The first packet fixes the stream's starting sequence.
		b.nextExpected = pkt.Sequence
	}
	b.jitter.update(pkt.Timestamp, arrival)
	b.sink.GaugeSet("current_jitter_estimate_ms", b.jitter.estimate)

	d := rtpcodec.WrappingDiff(pkt.Sequence, b.nextExpected)
	if d > ReorderWindow || d < -ReorderWindow {
		b.resyncLocked(pkt)
		return
	}

	if d < 0 {
		b.stats.PacketsLate++
		b.sink.CounterInc("packets_late", 1)
		return
	}

	idx := sort.Search(len(b.queue), func(i int) bool {
		return !seqLess(b.queue[i].Sequence, pkt.Sequence)
	})
	if idx < len(b.queue) && b.queue[idx].Sequence == pkt.Sequence {
		b.stats.PacketsDuplicate++
		b.sink.CounterInc("packets_duplicate", 1)
		return
	}

	wasNotTail := idx < len(b.queue)
	b.queue = append(b.queue, Packet{})
	copy(b.queue[idx+1:], b.queue[idx:])
	b.queue[idx] = pkt

	if d > 0 && wasNotTail {
		b.stats.PacketsReordered++
		b.sink.CounterInc("packets_reordered", 1)
	}

	b.enforceCapacityLocked()
	b.checkPrimedLocked()
	b.sink.GaugeSet("jitter_buffer_fill", float64(len(b.queue)))
}

func (b *Buffer) resyncLocked(pkt Packet) {
	b.queue = b.queue[:0]
	b.nextExpected = pkt.Sequence
	b.primed = false
	b.hasFirstArrival = true
	b.firstArrival = time.Now()
	b.queue = append(b.queue, pkt)
	b.stats.Resyncs++
	b.sink.CounterInc("resync", 1)
	b.sink.GaugeSet("jitter_buffer_fill", float64(len(b.queue)))
}

func (b *Buffer) enforceCapacityLocked() {
	for len(b.queue) > b.maxCapacity {
		b.queue = b.queue[1:]
		b.stats.PacketsOverflow++
		b.sink.CounterInc("packets_overflow", 1)
	}
}

func (b *Buffer) checkPrimedLocked() {
	if b.primed {
		return
	}
	if len(b.queue) >= b.depthFrames || time.Since(b.firstArrival) >= time.Duration(b.depthMs)*time.Millisecond {
		b.primed = true
	}
}

// Primed reports whether the buffer has completed its priming phase,
// re-evaluating the wall-clock half of the priming condition even absent
// new inserts.
func (b *Buffer) Primed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkPrimedLocked()
	return b.primed
}

// Pop must only be called once Primed() is true. It always advances
// nextExpected by exactly one (with 16-bit wraparound), regardless of
// which of the three cases below fires.
func (b *Buffer) Pop() (Packet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.primed {
		return Packet{}, false
	}
	defer func() { b.nextExpected++ }()

	if len(b.queue) > 0 && b.queue[0].Sequence == b.nextExpected {
		pkt := b.queue[0]
		b.queue = b.queue[1:]
		b.sink.GaugeSet("jitter_buffer_fill", float64(len(b.queue)))
		return pkt, true
	}

	b.stats.PacketsLost++
	b.sink.CounterInc("packets_lost", 1)
	return Packet{}, false
}

// Stats returns a snapshot of the buffer-owned counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Fill returns the current queue length, for the jitter_buffer_fill
// gauge.
func (b *Buffer) Fill() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// jitterEstimator implements the RFC 3550 section 6.4.1 exponentially
// smoothed interarrival jitter estimate, adapted to Opus-over-RTP's 48kHz
// clock and expressed in milliseconds for the gauge.
type jitterEstimator struct {
	have        bool
	lastTransit float64
	estimate    float64
}

func (j *jitterEstimator) update(rtpTimestamp uint32, arrival time.Time) {
	transit := float64(arrival.UnixNano())/1e6 - float64(rtpTimestamp)/float64(rtpcodec.RTPClockRate)*1000
	if j.have {
		d := transit - j.lastTransit
		if d < 0 {
			d = -d
		}
		j.estimate += (d - j.estimate) / 16
	}
	j.lastTransit = transit
	j.have = true
}
