package audio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andrijaa/opusrtp-streamer/pkg/pcmio"
)

func TestFoldToMonoAverages(t *testing.T) {
	stereo := []int16{100, 200, -100, -200}
	mono := FoldToMono(stereo, 2)
	require.Equal(t, []int16{150, -150}, mono)
}

func TestFoldToMonoPassthrough(t *testing.T) {
	mono := []int16{1, 2, 3}
	require.Equal(t, mono, FoldToMono(mono, 1))
}

func TestFoldToMonoSaturates(t *testing.T) {
	stereo := []int16{32767, 32767}
	mono := FoldToMono(stereo, 2)
	require.Equal(t, int16(32767), mono[0])
}

func TestResampleLinearIdentity(t *testing.T) {
	in := []int16{1, 2, 3, 4}
	out := ResampleLinear(in, 16000, 16000)
	require.Equal(t, in, out)
}

func TestResampleLinearDownsampleHalves(t *testing.T) {
	in := make([]int16, 100)
	for i := range in {
		in[i] = int16(i)
	}
	out := ResampleLinear(in, 32000, 16000)
	require.Equal(t, 50, len(out))
}

func TestResampleLinearDeterministic(t *testing.T) {
	in := []int16{0, 1000, -500, 250, 999}
	a := ResampleLinear(in, 8000, 16000)
	b := ResampleLinear(in, 8000, 16000)
	require.Equal(t, a, b)
}

type fakeSource struct {
	blocks []pcmio.Block
	idx    int
}

func (f *fakeSource) Next() (pcmio.Block, error) {
	if f.idx >= len(f.blocks) {
		return pcmio.Block{}, io.EOF
	}
	b := f.blocks[f.idx]
	f.idx++
	return b, nil
}

func (f *fakeSource) Close() error { return nil }

func TestNormalizerEmitsFixedSizeFrames(t *testing.T) {
	samples := make([]int16, FrameSamples+10)
	src := &fakeSource{blocks: []pcmio.Block{
		{Samples: samples, SampleRate: SampleRate, Channels: 1},
	}}
	n := NewNormalizer(src)

	frame, ok, err := n.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, frame, FrameSamples)

	frame, ok, err = n.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, frame, FrameSamples) // zero-padded partial frame

	_, ok, err = n.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNormalizerEmptySourceYieldsNoFrames(t *testing.T) {
	src := &fakeSource{}
	n := NewNormalizer(src)
	_, ok, err := n.Next()
	require.NoError(t, err)
	require.False(t, ok)
}
