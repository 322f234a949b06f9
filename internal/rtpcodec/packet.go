package rtpcodec

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

// OpusPayloadType is the dynamic RTP payload type this stream always
// carries; negotiated out of band and fixed for the lifetime of the
// process.
const OpusPayloadType = 111

// RTPClockRate is Opus-over-RTP's fixed 48kHz clock, independent of the
// codec's actual sample rate, per RFC 7587.
const RTPClockRate = 48000

// TimestampIncrement is the per-20ms-frame advance of the RTP timestamp
// at the 48kHz Opus clock (16000 Hz * 0.020s * 3 == 48000 Hz * 0.020s).
const TimestampIncrement = 960

// headerSize is the fixed RTP header length this profile always uses:
// no CSRC list, no extension.
const headerSize = 12

// MaxPayloadSize bounds a single RTP payload to keep one packet inside a
// conservative UDP MTU budget (1500 byte Ethernet frame minus IP/UDP/RTP
// overhead headroom).
const MaxPayloadSize = 1500 - 40

// Packet is a parsed or about-to-be-serialized RTP packet, reduced to the
// fields this profile cares about.
type Packet struct {
	Sequence  uint16
	Timestamp uint32
	SSRC      uint32
	Payload   []byte
}

var (
	// ErrTooShort is returned when a buffer is shorter than the fixed
	// 12-byte header.
	ErrTooShort = errors.New("rtpcodec: buffer shorter than RTP header")
	// ErrUnsupportedVersion is returned when the version bits are not 2.
	ErrUnsupportedVersion = errors.New("rtpcodec: unsupported RTP version")
	// ErrUnsupportedHeader is returned for a CSRC list, header extension,
	// or padding bit — fields this profile never produces and the
	// receiver is not obligated to parse.
	ErrUnsupportedHeader = errors.New("rtpcodec: unsupported header fields (csrc/extension/padding)")
	// ErrPayloadTooLarge is returned by Serialize when the payload is
	// longer than MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("rtpcodec: payload exceeds maximum size")
)

// Serialize produces the wire bytes for p: a fixed first byte 0x80
// (V=2, P=0, X=0, CC=0), second byte payload_type&0x7F (M=0), big-endian
// sequence/timestamp/ssrc, then the raw payload.
func Serialize(p Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(p.Payload), MaxPayloadSize)
	}
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Padding:        false,
			Extension:      false,
			Marker:         false,
			PayloadType:    OpusPayloadType,
			SequenceNumber: p.Sequence,
			Timestamp:      p.Timestamp,
			SSRC:           p.SSRC,
		},
		Payload: p.Payload,
	}
	return pkt.Marshal()
}

// Parse validates and decodes buf into a Packet. Parsing is total on any
// 12+-byte buffer that passes header validation — the payload is simply
// the remainder of buf, with no payload-type filtering at this layer.
func Parse(buf []byte) (Packet, error) {
	if len(buf) < headerSize {
		return Packet{}, ErrTooShort
	}

	versionBits := buf[0] >> 6
	if versionBits != 2 {
		return Packet{}, ErrUnsupportedVersion
	}

	padding := buf[0]&0x20 != 0
	extension := buf[0]&0x10 != 0
	csrcCount := buf[0] & 0x0F
	if padding || extension || csrcCount > 0 {
		return Packet{}, ErrUnsupportedHeader
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		return Packet{}, fmt.Errorf("rtpcodec: %w", err)
	}

	return Packet{
		Sequence:  pkt.SequenceNumber,
		Timestamp: pkt.Timestamp,
		SSRC:      pkt.SSRC,
		Payload:   pkt.Payload,
	}, nil
}

// WrappingDiff returns a-b as a signed 16-bit difference, the standard RTP
// idiom for comparing sequence numbers across the 2^16 wraparound: a
// sequence of 0 is one greater than 65535.
func WrappingDiff(a, b uint16) int32 {
	return int32(int16(a - b))
}
