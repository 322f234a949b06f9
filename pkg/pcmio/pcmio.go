package pcmio

import "io"

// Block is one arbitrary-sized chunk of interleaved 16-bit signed PCM
// samples at a source's native rate and channel count.
type Block struct {
	Samples    []int16
	SampleRate uint32
	Channels   uint8
}

// Source produces a lazy, finite sequence of PCM blocks. Next returns
// io.EOF (wrapped or bare) once the source is exhausted.
type Source interface {
	Next() (Block, error)
	Close() error
}

// Sink accepts 320-sample 16-bit mono frames at 16kHz, one at a time.
type Sink interface {
	Write(frame []int16) error
	Close() error
}

// EOF is the sentinel a Source returns to signal a clean end of stream.
var EOF = io.EOF
