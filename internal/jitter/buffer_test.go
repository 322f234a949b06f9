package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andrijaa/opusrtp-streamer/internal/metrics"
)

func primeBuffer(t *testing.T, b *Buffer, firstSeq uint16, n int) {
	t.Helper()
	now := time.Now()
	for i := 0; i < n; i++ {
		b.Insert(Packet{Sequence: firstSeq + uint16(i), Timestamp: uint32(i) * 960}, now.Add(time.Duration(i)*20*time.Millisecond))
	}
	require.True(t, b.Primed())
}

func TestInsertInOrderAndPopDrains(t *testing.T) {
	b := New(60, metrics.Noop{})
	primeBuffer(t, b, 0, 3)

	pkt, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(0), pkt.Sequence)

	pkt, ok = b.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(1), pkt.Sequence)
}

func TestLatePacketDiscarded(t *testing.T) {
	b := New(60, metrics.Noop{})
	primeBuffer(t, b, 10, 3)
	_, _ = b.Pop() // consumes seq 10, nextExpected becomes 11

	b.Insert(Packet{Sequence: 10}, time.Now())
	require.Equal(t, uint64(1), b.Stats().PacketsLate)
}

func TestDuplicatePacketDiscarded(t *testing.T) {
	b := New(60, metrics.Noop{})
	now := time.Now()
	b.Insert(Packet{Sequence: 5}, now)
	b.Insert(Packet{Sequence: 5}, now)
	require.Equal(t, uint64(1), b.Stats().PacketsDuplicate)
}

func TestOutOfOrderInsertReorders(t *testing.T) {
	b := New(60, metrics.Noop{})
	now := time.Now()
	b.Insert(Packet{Sequence: 0}, now)
	b.Insert(Packet{Sequence: 2}, now)
	b.Insert(Packet{Sequence: 1}, now)

	require.Equal(t, uint64(1), b.Stats().PacketsReordered)
}

func TestGapProducesLossOnPop(t *testing.T) {
	b := New(40, metrics.Noop{}) // 2 frames depth
	now := time.Now()
	b.Insert(Packet{Sequence: 0}, now)
	b.Insert(Packet{Sequence: 2}, now.Add(20*time.Millisecond))
	require.True(t, b.Primed())

	pkt, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(0), pkt.Sequence)

	_, ok = b.Pop() // seq 1 never arrived
	require.False(t, ok)
	require.Equal(t, uint64(1), b.Stats().PacketsLost)

	pkt, ok = b.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(2), pkt.Sequence)
}

func TestSequenceWraparoundIsOrdinaryOrder(t *testing.T) {
	b := New(60, metrics.Noop{})
	now := time.Now()
	b.Insert(Packet{Sequence: 65534}, now)
	b.Insert(Packet{Sequence: 65535}, now)
	b.Insert(Packet{Sequence: 0}, now)

	require.Equal(t, uint64(0), b.Stats().PacketsLate)
	require.Equal(t, uint64(0), b.Stats().Resyncs)

	pkt, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, uint16(65534), pkt.Sequence)
}

func TestLargeForwardJumpResyncs(t *testing.T) {
	b := New(60, metrics.Noop{})
	now := time.Now()
	b.Insert(Packet{Sequence: 100}, now)
	b.Insert(Packet{Sequence: 40000}, now)

	require.Equal(t, uint64(1), b.Stats().Resyncs)
	require.Equal(t, 1, b.Fill())
}

func TestOverflowDropsOldest(t *testing.T) {
	b := New(20, metrics.Noop{}) // depthFrames=1, maxCapacity=8
	now := time.Now()
	// No Pop runs between these inserts, so the queue grows past
	// capacity, forcing an overflow drop.
	for i := uint16(0); i < 10; i++ {
		b.Insert(Packet{Sequence: i + 100}, now)
	}
	require.True(t, b.Stats().PacketsOverflow > 0)
	require.LessOrEqual(t, b.Fill(), 8)
}

func TestPrimesOnWallClockAbsentEnoughPackets(t *testing.T) {
	b := New(60, metrics.Noop{}) // depthFrames=3, only one packet ever arrives
	b.Insert(Packet{Sequence: 0}, time.Now().Add(-100*time.Millisecond))
	require.True(t, b.Primed())
}

func TestPopBeforePrimedNeverAdvances(t *testing.T) {
	b := New(1000, metrics.Noop{}) // huge depth, never primes from count alone
	_, ok := b.Pop()
	require.False(t, ok)
	require.Equal(t, uint64(0), b.Stats().PacketsLost)
}
