package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors.
type ErrorKind string

const (
	// KindSchema - required canonical field missing, or feature schema /
	// model artifact version mismatch. Fatal for the record or batch.
	KindSchema ErrorKind = "schema"

	// KindDataQuality - non-numeric amount, unparseable date, negative
	// duration. Recovered locally via imputation; the record is annotated
	// as degraded rather than rejected.
	KindDataQuality ErrorKind = "data_quality"

	// KindModelUnavailable - anomaly model artifact failed to load or the
	// remote call failed. The batch fails the anomaly stage explicitly;
	// the score is never silently substituted with zero.
	KindModelUnavailable ErrorKind = "model_unavailable"

	// KindConfiguration - invalid thresholds or engine configuration.
	// Rejected before any scoring starts.
	KindConfiguration ErrorKind = "configuration"
)

// BatchScope is the record identifier used for batch-level errors.
const BatchScope = "batch"

// Error is the engine's error type. Every error carries the offending record
// identifier (or BatchScope) and a kind; errors are never used for ordinary
// control flow inside the scoring pipeline.
type Error struct {
	Kind     ErrorKind
	RecordID string
	Message  string
	Err      error
}

// NewError builds an engine error for a record or the whole batch.
func NewError(kind ErrorKind, recordID, message string) *Error {
	return &Error{Kind: kind, RecordID: recordID, Message: message}
}

// WrapError builds an engine error around an underlying cause.
func WrapError(kind ErrorKind, recordID, message string, err error) *Error {
	return &Error{Kind: kind, RecordID: recordID, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.RecordID, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.RecordID, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
