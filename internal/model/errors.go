package model

import "errors"

// Error taxonomy for the alignment pipeline. Per-frame errors (ErrInvalidImage,
// ErrDetectionFailure, ErrPoseSolverFailure) are recovered locally by the
// pipeline; ErrInitialization is fatal at session construction time;
// ErrPipelineClosed is returned synchronously to a caller submitting after
// shutdown. Frame drops under back-pressure are not errors at all — they are
// reported through an atomic counter.
var (
	ErrInitialization   = errors.New("initialization error")
	ErrInvalidImage     = errors.New("invalid image")
	ErrDetectionFailure = errors.New("detection failure")
	ErrSortFailure      = errors.New("grid sort failure")
	ErrPoseSolverFailure = errors.New("pose solver failure")
	ErrLengthMismatch   = errors.New("left/right point count mismatch")
	ErrPipelineClosed   = errors.New("pipeline closed")
)
