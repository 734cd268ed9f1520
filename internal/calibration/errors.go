package calibration

import "errors"

var (
	ErrIndexOutOfRange    = errors.New("point index out of range")
	ErrInvalidCount       = errors.New("point count out of range")
	ErrInvalidSampleCount = errors.New("sample count must be positive")
	ErrInvalidThreshold   = errors.New("threshold must be a fraction in 0..1")
	ErrInvalidReference   = errors.New("reference must be a finite non-negative value")
	ErrInvalidOrientation = errors.New("unknown fit orientation")
	ErrDuplicateReference = errors.New("reference already used by another active point")
	ErrPointHasData       = errors.New("point holds captured data, reset it first")
	ErrBusy               = errors.New("capture in progress")
	ErrNotReady           = errors.New("not every active point is complete")
	ErrClosed             = errors.New("session closed")
)
