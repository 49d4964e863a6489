package persistence

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/danmuck/boardsync/internal/board"
)

var (
	ErrMissingServiceURL = errors.New("persistence: missing service url")
	ErrMissingChannel    = errors.New("persistence: missing channel id or url")
	ErrMissingUploader   = errors.New("persistence: no uploader configured")
)

// HTTPError is a non-2xx response from the board service.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("persistence: %s %s: %s: %s", e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("persistence: %s %s: %s", e.Method, e.URL, e.Status)
}

// Unwrap classifies 401 and 403 as authorization failures.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return board.ErrAuthorization
	}
	return nil
}
