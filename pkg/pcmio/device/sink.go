package device

import (
	"errors"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/andrijaa/opusrtp-streamer/internal/obs"
)

// ringCapacity is how many 20ms frames the sink will queue ahead of the
// audio callback before Write starts blocking.
const ringCapacity = 8

// blockTimeout bounds how long Write blocks on a full ring before the
// frame is dropped.
const blockTimeout = 5 * time.Millisecond

// ErrDropped is returned by Write when the ring buffer was still full
// after blockTimeout.
var ErrDropped = errors.New("device: frame dropped, ring buffer full")

// Sink plays mono 16-bit frames through the default output device.
type Sink struct {
	stream       *portaudio.Stream
	outputBuffer []int16
	frames       chan []int16
	closed       chan struct{}
}

// NewSink opens the default output device at sampleRate with one
// channel and framesPerBuffer samples per audio callback (320 at
// 16kHz/20ms matches the frame size the core always writes).
func NewSink(sampleRate float64, framesPerBuffer int) (*Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, obs.Wrap(obs.KindResource, "device.NewSink", err)
	}

	s := &Sink{
		outputBuffer: make([]int16, framesPerBuffer),
		frames:       make(chan []int16, ringCapacity),
		closed:       make(chan struct{}),
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, sampleRate, framesPerBuffer, s.outputBuffer)
	if err != nil {
		portaudio.Terminate()
		return nil, obs.Wrap(obs.KindResource, "device.NewSink", err)
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, obs.Wrap(obs.KindResource, "device.NewSink", err)
	}

	go s.playLoop()
	return s, nil
}

func (s *Sink) playLoop() {
	silence := make([]int16, len(s.outputBuffer))
	for {
		select {
		case <-s.closed:
			return
		case frame := <-s.frames:
			n := copy(s.outputBuffer, frame)
			for i := n; i < len(s.outputBuffer); i++ {
				s.outputBuffer[i] = 0
			}
			if err := s.stream.Write(); err != nil {
				continue
			}
		case <-time.After(blockTimeout):
			copy(s.outputBuffer, silence)
			_ = s.stream.Write()
		}
	}
}

// Write enqueues frame for playback, blocking up to blockTimeout if the
// ring is full and dropping (returning ErrDropped) if it is still full
// after that — the playout controller's ≤5ms block/drop policy.
func (s *Sink) Write(frame []int16) error {
	cp := make([]int16, len(frame))
	copy(cp, frame)

	select {
	case s.frames <- cp:
		return nil
	default:
	}

	timer := time.NewTimer(blockTimeout)
	defer timer.Stop()
	select {
	case s.frames <- cp:
		return nil
	case <-timer.C:
		return ErrDropped
	}
}

// Close stops playback and releases the device.
func (s *Sink) Close() error {
	close(s.closed)
	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		portaudio.Terminate()
		return obs.Wrap(obs.KindResource, "device.Sink.Close", err)
	}
	if err := s.stream.Close(); err != nil {
		portaudio.Terminate()
		return obs.Wrap(obs.KindResource, "device.Sink.Close", err)
	}
	return portaudio.Terminate()
}
