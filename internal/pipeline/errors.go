package pipeline

import (
	"errors"
	"fmt"

	"github.com/raseedhq/raseed-backend/internal/receipt"
)

// ErrUnavailable means no extraction client is configured. The receipt is
// left untouched.
var ErrUnavailable = errors.New("extraction service not available")

// ErrAlreadyProcessing means another extraction run currently owns the
// receipt. The caller can retry once that run reaches a terminal status.
var ErrAlreadyProcessing = errors.New("receipt is already being processed")

// ParseError means the model answered but its output could not be parsed as
// JSON. It carries the raw model text and the low-confidence fallback record
// built from it, so callers and logs can inspect what the model actually
// said. The fallback is not persisted; the receipt is marked error instead.
type ParseError struct {
	Raw      string
	Fallback *receipt.ExtractedData
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
