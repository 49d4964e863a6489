package board

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks connection-level failures; retryable up to the configured ceiling.
	ErrTransport = errors.New("board: transport failure")
	// ErrAuthorization marks token acquisition or rejection failures; never retried.
	ErrAuthorization = errors.New("board: authorization failure")
	// ErrMalformedEvent marks inbound frames that cannot be routed.
	ErrMalformedEvent = errors.New("board: malformed event")
	// ErrPaginationInconsistency marks a next-link chain that repeats or never terminates.
	ErrPaginationInconsistency = errors.New("board: pagination inconsistency")
	// ErrUnknownContentType marks content whose declared type cannot be decoded.
	ErrUnknownContentType = errors.New("board: unknown content type")
	// ErrMissingEncryptionKey marks content or channels without a key reference.
	ErrMissingEncryptionKey = errors.New("board: missing encryption key url")
)

// EncryptionError reports an item-level encrypt/decrypt failure.
type EncryptionError struct {
	Index int
	Op    string
	Err   error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("board: %s item[%d]: %v", e.Op, e.Index, e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// PartialBatchError reports a chunked write that stopped after Completed of Total batches.
type PartialBatchError struct {
	Completed int
	Total     int
	Err       error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("board: batch %d/%d failed: %v", e.Completed+1, e.Total, e.Err)
}

func (e *PartialBatchError) Unwrap() error { return e.Err }
