package protocol

import "errors"

var (
	ErrInvalidState     = errors.New("protocol: invalid state")
	ErrInvalidAngle     = errors.New("protocol: invalid angle")
	ErrTruncatedMessage = errors.New("protocol: truncated message")
	ErrMalformedText    = errors.New("protocol: malformed text report")
	ErrInvalidHeading   = errors.New("protocol: invalid heading")
	ErrEmptyFrame       = errors.New("protocol: empty frame")
	ErrInvalidFrame     = errors.New("protocol: invalid frame")
)
