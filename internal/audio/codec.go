package audio

import (
	"gopkg.in/hraban/opus.v2"

	"github.com/andrijaa/opusrtp-streamer/internal/obs"
)

// Bitrate is the Opus encoder bitrate for speech at 16kHz mono. The exact
// Opus mode (CELT/SILK/hybrid) is left to the encoder library's defaults.
const Bitrate = 24000

// maxOpusPacket is a generous upper bound for one encoded Opus frame at
// this bitrate and frame size.
const maxOpusPacket = 1275

// Encoder wraps an Opus encoder configured for mono 16kHz speech, the
// codec contract the frame normalizer and RTP packetizer are built
// around.
type Encoder struct {
	enc *opus.Encoder
}

// NewEncoder creates a voice-tuned Opus encoder.
func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, obs.Wrap(obs.KindCodec, "audio.NewEncoder", err)
	}
	if err := enc.SetBitrate(Bitrate); err != nil {
		return nil, obs.Wrap(obs.KindCodec, "audio.NewEncoder", err)
	}
	return &Encoder{enc: enc}, nil
}

// Encode encodes one 20ms frame to an Opus payload.
func (e *Encoder) Encode(frame Frame) ([]byte, error) {
	buf := make([]byte, maxOpusPacket)
	n, err := e.enc.Encode(frame, buf)
	if err != nil {
		return nil, obs.Wrap(obs.KindCodec, "audio.Encode", err)
	}
	return buf[:n], nil
}

// Decoder wraps an Opus decoder configured for mono 16kHz speech, with
// packet loss concealment support.
type Decoder struct {
	dec *opus.Decoder
}

// NewDecoder creates a decoder matching Encoder's configuration.
func NewDecoder() (*Decoder, error) {
	dec, err := opus.NewDecoder(SampleRate, 1)
	if err != nil {
		return nil, obs.Wrap(obs.KindCodec, "audio.NewDecoder", err)
	}
	return &Decoder{dec: dec}, nil
}

// Decode decodes a real Opus payload into one 20ms frame.
func (d *Decoder) Decode(payload []byte) (Frame, error) {
	pcm := make([]int16, FrameSamples)
	n, err := d.dec.Decode(payload, pcm)
	if err != nil {
		return nil, obs.Wrap(obs.KindCodec, "audio.Decode", err)
	}
	return Frame(pcm[:n]), nil
}

// DecodePLC synthesizes a concealment frame for a lost packet by driving
// the decoder with a nil payload, per the hraban/opus PLC convention. If
// the underlying decoder itself fails to synthesize a frame, it falls
// back to silence rather than propagating the error to the playout tick.
func (d *Decoder) DecodePLC() Frame {
	pcm := make([]int16, FrameSamples)
	n, err := d.dec.Decode(nil, pcm)
	if err != nil {
		return NewSilentFrame()
	}
	return Frame(pcm[:n])
}
