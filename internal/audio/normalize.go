package audio

import (
	"errors"
	"io"

	"github.com/andrijaa/opusrtp-streamer/pkg/pcmio"
)

// FoldToMono averages stereo sample pairs into mono, saturating to the
// int16 range. Mono input passes through unchanged.
func FoldToMono(samples []int16, channels uint8) []int16 {
	if channels <= 1 {
		return samples
	}
	// Channels beyond the first two are ignored.
	frames := len(samples) / int(channels)
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		l := int32(samples[i*int(channels)])
		r := int32(samples[i*int(channels)+1])
		mono[i] = saturateInt16((l + r) / 2)
	}
	return mono
}

func saturateInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// ResampleLinear resamples mono PCM from inputRate to outputRate using
// linear interpolation. Deterministic for a given input and configuration.
func ResampleLinear(input []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(input) == 0 {
		out := make([]int16, len(input))
		copy(out, input)
		return out
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputSamples := int(float64(len(input)) * ratio)
	out := make([]int16, outputSamples)

	for i := 0; i < outputSamples; i++ {
		srcPos := float64(i) / ratio
		idx1 := int(srcPos)
		frac := srcPos - float64(idx1)
		idx2 := idx1 + 1
		if idx1 >= len(input) {
			idx1 = len(input) - 1
		}
		if idx2 >= len(input) {
			idx2 = len(input) - 1
		}
		s1 := float64(input[idx1])
		s2 := float64(input[idx2])
		out[i] = int16(s1*(1-frac) + s2*frac)
	}
	return out
}

// Normalizer turns an arbitrary pcmio.Source into a lazy, finite sequence
// of 20ms 16kHz mono Frames: fold to mono, resample to 16kHz, and pack
// into fixed FrameSamples-length frames, zero-padding the final partial
// frame.
type Normalizer struct {
	src  pcmio.Source
	buf  []int16
	done bool
}

// NewNormalizer wraps src.
func NewNormalizer(src pcmio.Source) *Normalizer {
	return &Normalizer{src: src}
}

// Next returns the next normalized frame, or ok=false once the source is
// exhausted and every buffered sample has been emitted.
func (n *Normalizer) Next() (Frame, bool, error) {
	for len(n.buf) < FrameSamples && !n.done {
		block, err := n.src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				n.done = true
				break
			}
			return nil, false, err
		}
		mono := FoldToMono(block.Samples, block.Channels)
		resampled := ResampleLinear(mono, int(block.SampleRate), SampleRate)
		n.buf = append(n.buf, resampled...)
	}

	if len(n.buf) == 0 {
		return nil, false, nil
	}

	if len(n.buf) < FrameSamples {
		frame := make(Frame, FrameSamples)
		copy(frame, n.buf)
		n.buf = nil
		return frame, true, nil
	}

	frame := make(Frame, FrameSamples)
	copy(frame, n.buf[:FrameSamples])
	n.buf = n.buf[FrameSamples:]
	return frame, true, nil
}
