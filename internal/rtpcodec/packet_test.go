package rtpcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	cases := []Packet{
		{Sequence: 0, Timestamp: 0, SSRC: 0x12345678, Payload: []byte{0x01}},
		{Sequence: 65535, Timestamp: 4294967295, SSRC: 1, Payload: []byte{}},
		{Sequence: 42, Timestamp: 960 * 42, SSRC: 0xdeadbeef, Payload: make([]byte, 200)},
	}
	for _, p := range cases {
		buf, err := Serialize(p)
		require.NoError(t, err)
		require.Len(t, buf, 12+len(p.Payload))
		require.Equal(t, byte(0x80), buf[0], "V=2,P=0,X=0,CC=0 fixed byte")
		require.Equal(t, byte(OpusPayloadType), buf[1]&0x7F)

		got, err := Parse(buf)
		require.NoError(t, err)
		require.Equal(t, p.Sequence, got.Sequence)
		require.Equal(t, p.Timestamp, got.Timestamp)
		require.Equal(t, p.SSRC, got.SSRC)
		require.Equal(t, len(p.Payload), len(got.Payload))
	}
}

func TestParseTooShort(t *testing.T) {
	_, err := Parse(make([]byte, 11))
	require.ErrorIs(t, err, ErrTooShort)
}

func TestParseUnsupportedVersion(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 0x40 // version 1
	_, err := Parse(buf)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParseRejectsCSRCExtensionPadding(t *testing.T) {
	base := func() []byte {
		buf := make([]byte, 12)
		buf[0] = 0x80
		return buf
	}

	withPadding := base()
	withPadding[0] |= 0x20
	_, err := Parse(withPadding)
	require.ErrorIs(t, err, ErrUnsupportedHeader)

	withExtension := base()
	withExtension[0] |= 0x10
	_, err = Parse(withExtension)
	require.ErrorIs(t, err, ErrUnsupportedHeader)

	withCSRC := base()
	withCSRC[0] |= 0x02
	_, err = Parse(withCSRC)
	require.ErrorIs(t, err, ErrUnsupportedHeader)
}

func TestSerializeRejectsOversizePayload(t *testing.T) {
	_, err := Serialize(Packet{Payload: make([]byte, MaxPayloadSize+1)})
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestWrappingDiff(t *testing.T) {
	require.Equal(t, int32(1), WrappingDiff(0, 65535))
	require.Equal(t, int32(-1), WrappingDiff(65535, 0))
	require.Equal(t, int32(0), WrappingDiff(42, 42))
	require.Equal(t, int32(5), WrappingDiff(10, 5))
	require.Equal(t, int32(-5), WrappingDiff(5, 10))
}

func TestSequenceMonotonicWraparound(t *testing.T) {
	seqs := []uint16{65533, 65534, 65535, 0, 1, 2}
	for i := 1; i < len(seqs); i++ {
		d := WrappingDiff(seqs[i], seqs[i-1])
		require.Equal(t, int32(1), d)
	}
}
