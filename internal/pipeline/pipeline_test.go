package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andrijaa/opusrtp-streamer/internal/audio"
	"github.com/andrijaa/opusrtp-streamer/internal/jitter"
	"github.com/andrijaa/opusrtp-streamer/internal/transport"
	"github.com/andrijaa/opusrtp-streamer/pkg/pcmio"
)

// toneSource emits n frames worth of a fixed tone at 16kHz mono, then
// io.EOF, exercising the sender end-to-end without a real WAV file.
type toneSource struct {
	remaining int
}

func (t *toneSource) Next() (pcmio.Block, error) {
	if t.remaining <= 0 {
		return pcmio.Block{}, io.EOF
	}
	t.remaining--
	samples := make([]int16, audio.FrameSamples)
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	return pcmio.Block{Samples: samples, SampleRate: audio.SampleRate, Channels: 1}, nil
}

func (t *toneSource) Close() error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	frames [][]int16
}

func (s *recordingSink) Write(frame []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int16, len(frame))
	copy(cp, frame)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// TestSendReceiveLoopback drives a real sender over a real loopback UDP
// socket into a real receiver, and checks that the sender transmitted
// packets and the receiver wrote frames to the sink.
func TestSendReceiveLoopback(t *testing.T) {
	udpRecv, err := transport.NewReceiver(0)
	require.NoError(t, err)
	defer udpRecv.Close()

	port := udpRecv.LocalAddr().Port
	udpSend, err := transport.NewSender(fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer udpSend.Close()

	log := zap.NewNop()
	buf := jitter.New(jitter.DefaultDepthMs, nil)
	sink := &recordingSink{}

	recv, err := NewReceiver(udpRecv, buf, sink, 20*time.Millisecond, log, nil)
	require.NoError(t, err)

	snd, err := NewSender(&toneSource{remaining: 20}, udpSend, 20*time.Millisecond, log, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var recvWg sync.WaitGroup
	recvWg.Add(1)
	go func() {
		defer recvWg.Done()
		_ = recv.Run(ctx)
	}()

	_ = snd.Run(ctx) // returns once toneSource reports EOF
	// Give the receiver's playout tick a few more cycles to drain
	// whatever is still in flight, then stop it.
	time.Sleep(100 * time.Millisecond)
	cancel()
	recvWg.Wait()

	require.Greater(t, sink.count(), 0)
	require.Greater(t, snd.Stats().PacketsSent, uint64(0))
}
