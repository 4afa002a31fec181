package receipt

import "fmt"

// Status is the processing state of a receipt.
type Status string

const (
	// StatusUploaded means the file is stored but not yet processed.
	StatusUploaded Status = "uploaded"
	// StatusProcessing means an extraction run is in flight.
	StatusProcessing Status = "processing"
	// StatusProcessed means extraction finished and extracted_data is present.
	StatusProcessed Status = "processed"
	// StatusError means the last extraction attempt failed.
	StatusError Status = "error"
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusProcessed, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s is an end state of an extraction run.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusError
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Processing must be entered before either terminal state; a processed
// or errored receipt may be reprocessed, which re-enters processing. Nothing
// ever returns to uploaded.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusUploaded:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessed || next == StatusError
	case StatusProcessed, StatusError:
		return next == StatusProcessing
	}
	return false
}

// Transition validates and returns the next status, or an error describing
// the illegal jump.
func (s Status) Transition(next Status) (Status, error) {
	if !next.Valid() {
		return s, fmt.Errorf("unknown receipt status %q", next)
	}
	if !s.CanTransition(next) {
		return s, fmt.Errorf("illegal status transition %s -> %s", s, next)
	}
	return next, nil
}
