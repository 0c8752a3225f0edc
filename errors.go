package warble

import "errors"

var (
	// ErrNotReady is returned by payload-dependent accessors called
	// before Ready has resolved.
	ErrNotReady = errors.New("warble: payload not loaded, call Ready first")

	// ErrWrongType is returned by extractors when the message kind does
	// not match the requested variant.
	ErrWrongType = errors.New("warble: unexpected message type")

	// ErrBadSayable is returned by Say when the payload is not one of
	// the supported sayable types.
	ErrBadSayable = errors.New("warble: unrecognized sayable payload")
)
