package obs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the propagation policy of the error
// handling design: config errors are fatal at startup, I/O and codec
// errors are logged and counted, protocol errors drop the offending
// packet, resource errors shut down the affected pipeline.
type Kind int

const (
	// KindUnknown is the zero value for an Error constructed without an
	// explicit kind, and what KindOf reports for errors that are not an
	// *Error.
	KindUnknown Kind = iota
	KindConfig
	KindIO
	KindCodec
	KindProtocol
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindIO:
		return "io"
	case KindCodec:
		return "codec"
	case KindProtocol:
		return "protocol"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Error is the single exported error type for the core. Op names the
// failing operation (e.g. "transport.Recv", "audio.Decode") so log lines stay
// greppable without string-matching the message.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, &obs.Error{Kind: obs.KindCodec}) style checks.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Wrap classifies err under kind, tagging it with the operation name.
// Wrap(nil, ...) returns nil so call sites can wrap unconditionally:
//
//	if err := sock.Read(buf); err != nil {
//		return obs.Wrap(obs.KindIO, "transport.Recv", err)
//	}
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
