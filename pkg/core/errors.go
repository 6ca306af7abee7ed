package core

import "github.com/pkg/errors"

// Sentinel errors. Callers match them with errors.Is; producers wrap them with context.
var (
	// ErrInvalidConfig is returned when options cannot describe a working renderer.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrChannelMismatch is returned when a declared input width disagrees with the
	// width produced by the encoders and conditioning channels.
	ErrChannelMismatch = errors.New("input channel width mismatch")
	// ErrIndexOutOfRange is returned by conditioning lookups outside the vocabulary.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrCodeCount is returned when per-ray codes do not line up with the rays.
	ErrCodeCount = errors.New("conditioning code count does not match ray count")
	// ErrNonFinite is returned when a field produces NaN or Inf.
	ErrNonFinite = errors.New("non-finite field output")
	// ErrRayFormat is returned for malformed ray rows.
	ErrRayFormat = errors.New("malformed ray")
)
