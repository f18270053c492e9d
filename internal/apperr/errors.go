// Package apperr defines the application error taxonomy shared across layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing book, chapter, or highlight.
	ErrNotFound = errors.New("not found")
	// ErrInvalid signals a malformed client request.
	ErrInvalid = errors.New("invalid request")
)

// ImportError reports a malformed or unreadable EPUB source.
type ImportError struct {
	Source string // original filename or URL
	Reason string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("import %s: %s", e.Source, e.Reason)
}

func (e *ImportError) Unwrap() error { return e.Err }

// NewImportError builds an ImportError with an optional cause.
func NewImportError(source, reason string, err error) *ImportError {
	return &ImportError{Source: source, Reason: reason, Err: err}
}

// IsImportError reports whether err is (or wraps) an ImportError.
func IsImportError(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie)
}

// AIServiceError reports an upstream chat-completion failure: missing
// credentials, network error, non-2xx status, or an unusable response body.
type AIServiceError struct {
	StatusCode int // zero when the request never reached the upstream
	Reason     string
	Err        error
}

func (e *AIServiceError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("ai service: %s (status %d): %v", e.Reason, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("ai service: %s (status %d)", e.Reason, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("ai service: %s: %v", e.Reason, e.Err)
	default:
		return fmt.Sprintf("ai service: %s", e.Reason)
	}
}

func (e *AIServiceError) Unwrap() error { return e.Err }

// NewAIServiceError builds an AIServiceError with an optional cause.
func NewAIServiceError(status int, reason string, err error) *AIServiceError {
	return &AIServiceError{StatusCode: status, Reason: reason, Err: err}
}

// IsAIServiceError reports whether err is (or wraps) an AIServiceError.
func IsAIServiceError(err error) bool {
	var ae *AIServiceError
	return errors.As(err, &ae)
}
