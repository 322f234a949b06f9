package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andrijaa/opusrtp-streamer/internal/obs"
	"github.com/andrijaa/opusrtp-streamer/pkg/pcmio"
)

// blockSamples is how many samples per channel NewFileSource reads per
// Next() call — an arbitrary chunk size; the frame normalizer downstream
// is responsible for repacking into fixed 20ms frames regardless of how
// this source chunks its reads.
const blockSamples = 1600

// Source streams interleaved 16-bit PCM samples out of a RIFF/WAVE file,
// walking chunks until it finds "fmt " and "data" (ignoring any others,
// e.g. "LIST"), the idiom common across the pack's WAV readers.
type Source struct {
	f             *os.File
	sampleRate    uint32
	channels      uint8
	bitsPerSample uint16
	remaining     int64 // bytes left in the data chunk
}

var (
	errNotRIFF   = errors.New("wav: not a RIFF/WAVE file")
	errNoFmt     = errors.New("wav: missing fmt chunk")
	errNoData    = errors.New("wav: missing data chunk")
	errBadFormat = errors.New("wav: only 16-bit PCM is supported")
)

// NewFileSource opens path and parses its RIFF header, positioning the
// read cursor at the start of the data chunk.
func NewFileSource(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, obs.Wrap(obs.KindIO, "wav.NewFileSource", err)
	}

	s := &Source{f: f}
	if err := s.parseHeader(); err != nil {
		f.Close()
		return nil, obs.Wrap(obs.KindConfig, "wav.NewFileSource", err)
	}
	return s, nil
}

func (s *Source) parseHeader() error {
	var riffHeader [12]byte
	if _, err := io.ReadFull(s.f, riffHeader[:]); err != nil {
		return errNotRIFF
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return errNotRIFF
	}

	haveFmt := false
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(s.f, chunkHeader[:]); err != nil {
			break
		}
		id := string(chunkHeader[0:4])
		size := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(s.f, body); err != nil {
				return errNoFmt
			}
			if len(body) < 16 {
				return errBadFormat
			}
			s.channels = uint8(binary.LittleEndian.Uint16(body[2:4]))
			s.sampleRate = binary.LittleEndian.Uint32(body[4:8])
			s.bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			if s.bitsPerSample != 16 {
				return errBadFormat
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return errNoFmt
			}
			s.remaining = int64(size)
			return nil
		default:
			if _, err := s.f.Seek(int64(size)+int64(size%2), io.SeekCurrent); err != nil {
				return fmt.Errorf("wav: skipping chunk %q: %w", id, err)
			}
		}
	}
	return errNoData
}

// Next reads up to blockSamples samples per channel and returns them as
// one pcmio.Block, or io.EOF once the data chunk is exhausted.
func (s *Source) Next() (pcmio.Block, error) {
	if s.remaining <= 0 {
		return pcmio.Block{}, io.EOF
	}

	want := int64(blockSamples) * int64(s.channels) * 2
	if want > s.remaining {
		want = s.remaining
	}
	raw := make([]byte, want)
	n, err := io.ReadFull(s.f, raw)
	if err != nil && err != io.ErrUnexpectedEOF {
		return pcmio.Block{}, obs.Wrap(obs.KindIO, "wav.Source.Next", err)
	}
	raw = raw[:n]
	s.remaining -= int64(n)

	samples := make([]int16, n/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	return pcmio.Block{
		Samples:    samples,
		SampleRate: s.sampleRate,
		Channels:   s.channels,
	}, nil
}

// Close releases the underlying file handle.
func (s *Source) Close() error { return s.f.Close() }
