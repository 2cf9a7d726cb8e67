package request

import (
	"errors"
	"fmt"
)

var (
	// ErrBatchAlreadyCompleted is returned when a batch is used after it was finalized
	ErrBatchAlreadyCompleted = errors.New("batch already completed")

	// ErrNoActiveBatch is returned by CompleteBatch on a builder that is not bound to a batch
	ErrNoActiveBatch = errors.New("no active batch")

	// ErrDuplicateEntryKey is returned when two entry keys name the same property
	ErrDuplicateEntryKey = errors.New("entry data names the same property twice")

	// ErrUnknownParameter is returned when a function call names a parameter the import does not declare
	ErrUnknownParameter = errors.New("unknown function parameter")

	// ErrContentIDOutOfScope is returned when a $n reference does not name an
	// earlier request of the same change set
	ErrContentIDOutOfScope = errors.New("content ID reference outside the current change set")

	// ErrMissingKey is returned when an entry path cannot be built from the supplied key
	ErrMissingKey = errors.New("missing key value")
)

// ContentWriteError reports a failure to materialize a request payload
type ContentWriteError struct {
	Op         string // "entry" or "link"
	Collection string
	Err        error
}

// Error implements the error interface
func (e *ContentWriteError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("write %s content for %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("write %s content: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *ContentWriteError) Unwrap() error {
	return e.Err
}

// IsContentWriteError returns true if the error came from a content writer
func IsContentWriteError(err error) bool {
	var cerr *ContentWriteError
	return errors.As(err, &cerr)
}

// IsBatchAlreadyCompleted returns true if the error is ErrBatchAlreadyCompleted
func IsBatchAlreadyCompleted(err error) bool {
	return errors.Is(err, ErrBatchAlreadyCompleted)
}
