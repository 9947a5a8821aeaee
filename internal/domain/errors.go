package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed input (bad document, empty bytes, bad filters).
	ErrValidation = errors.New("validation failed")
	// ErrGeneration signals a description generation failure (timeout, non-2xx, empty answer).
	ErrGeneration = errors.New("description generation failed")
	// ErrEmbedding signals an embedding provider failure.
	ErrEmbedding = errors.New("embedding failed")
	// ErrStore signals a document store or vector index failure.
	ErrStore = errors.New("store unavailable")
	// ErrConsistency signals drift the synchronizer cannot repair on its own.
	ErrConsistency = errors.New("consistency violation")
	// ErrInvalidQuery signals a search query rejected before execution.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrCanceled signals a run interrupted between documents.
	ErrCanceled = errors.New("canceled")
)

// CollisionError reports two documents whose short ids map to the same point id.
type CollisionError struct {
	PointID        uint64
	DocumentShort  string
	PayloadShortID string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("%s: point %d belongs to %q, document derives %q",
		ErrConsistency.Error(), e.PointID, e.PayloadShortID, e.DocumentShort)
}

func (e *CollisionError) Unwrap() error { return ErrConsistency }

// IsTransient reports whether err is worth retrying.
// Validation and query errors are permanent; everything else from a provider or store may heal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidQuery),
		errors.Is(err, ErrConsistency),
		errors.Is(err, ErrCanceled):
		return false
	}
	return true
}
