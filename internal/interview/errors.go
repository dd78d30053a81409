package interview

import "errors"

var (
	// ErrNotActive marks requests that need an interview in progress.
	ErrNotActive = errors.New("no interview is active")
	// ErrConnectionFault is returned by Run after a recovered panic.
	ErrConnectionFault = errors.New("connection error occurred")
)
