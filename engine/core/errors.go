package core

import (
	"errors"
)

var (
	// transient, retried on the next tick
	ErrSurfaceLost      = errors.New("surface lost or out of date")
	ErrAcquireTimeout   = errors.New("timed out acquiring a surface frame")
	ErrSurfaceSuspended = errors.New("surface has zero size")
	ErrStaleTarget      = errors.New("frame target belongs to a previous surface configuration")
	ErrFenceTimeout     = errors.New("timed out waiting for frame fence")

	// resource exhaustion, the caller decides what to evict or drop
	ErrOutOfAtlasSpace = errors.New("out of atlas space")
	ErrAudioQueueFull  = errors.New("audio cue queue is full")

	ErrStaleHandle = errors.New("stale texture handle")

	// fatal
	ErrDeviceLost          = errors.New("gpu device lost")
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrInvalidDraw       = errors.New("invalid draw request")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrClosed            = errors.New("already closed")
	ErrUnknown           = errors.New("unknown")
)

// Kind groups errors by how the frame loop reacts to them.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTransient
	KindExhaustion
	KindStaleReference
	KindFatal
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindExhaustion:
		return "resource-exhaustion"
	case KindStaleReference:
		return "stale-reference"
	case KindFatal:
		return "fatal"
	case KindInvalid:
		return "invalid"
	}
	return "unknown"
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrSurfaceLost, KindTransient},
	{ErrAcquireTimeout, KindTransient},
	{ErrSurfaceSuspended, KindTransient},
	{ErrStaleTarget, KindTransient},
	{ErrFenceTimeout, KindTransient},
	{ErrOutOfAtlasSpace, KindExhaustion},
	{ErrAudioQueueFull, KindExhaustion},
	{ErrStaleHandle, KindStaleReference},
	{ErrDeviceLost, KindFatal},
	{ErrUnsupportedPlatform, KindFatal},
	{ErrUnsupportedFormat, KindInvalid},
	{ErrInvalidDraw, KindInvalid},
	{ErrInvalidConfig, KindInvalid},
}

// KindOf classifies err, looking through wrapping. Fatal wins when an
// error wraps more than one sentinel.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrDeviceLost) || errors.Is(err, ErrUnsupportedPlatform) {
		return KindFatal
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

func IsFatal(err error) bool {
	return KindOf(err) == KindFatal
}
