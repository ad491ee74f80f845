package service

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
)

var (
	// ErrValidation marks client-caused input errors.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a queue item id does not exist.
	ErrNotFound = errors.New("queue item not found")

	// ErrNoAdapter is returned when no publisher is configured for a platform.
	ErrNoAdapter = errors.New("no publisher configured for platform")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// PublishError is returned by platform publishers. Transient errors are worth
// retrying automatically; permanent ones mean the platform rejected the post.
type PublishError struct {
	Platform  models.Platform
	Transient bool
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: %v", e.Platform, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func Transient(p models.Platform, err error) error {
	return &PublishError{Platform: p, Transient: true, Err: err}
}

func Permanent(p models.Platform, err error) error {
	return &PublishError{Platform: p, Transient: false, Err: err}
}

// HTTPStatusError is a non-2xx response from a platform API.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// StatusError classifies an HTTP response status from a platform API.
func StatusError(p models.Platform, status int, body string) error {
	err := &HTTPStatusError{Status: status, Body: body}
	if status == 429 || status >= 500 {
		return Transient(p, err)
	}
	return Permanent(p, err)
}

// ErrorKindOf maps an error to the kind recorded on a failed item.
// Unclassified errors count as transient: timeouts and network failures
// surface that way from the HTTP stack.
func ErrorKindOf(err error) models.ErrorKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		if pe.Transient {
			return models.ErrorKindTransient
		}
		return models.ErrorKindPermanent
	}
	return models.ErrorKindTransient
}
