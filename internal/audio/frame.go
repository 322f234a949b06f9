package audio

// SampleRate is the fixed codec sample rate the core normalizes every
// input stream to.
const SampleRate = 16000

// FrameDurationMs is the fixed frame duration the whole pipeline is built
// around: one PCM frame, one Opus frame, one RTP packet.
const FrameDurationMs = 20

// FrameSamples is the number of mono int16 samples in one 20ms frame at
// SampleRate (16000 * 0.020).
const FrameSamples = SampleRate * FrameDurationMs / 1000

// Frame is a fixed-duration, immutable-once-produced block of mono 16kHz
// signed 16-bit samples. Always exactly FrameSamples long.
type Frame []int16

// NewSilentFrame returns a zero-filled frame, used before the jitter
// buffer primes and whenever PLC itself fails.
func NewSilentFrame() Frame {
	return make(Frame, FrameSamples)
}
