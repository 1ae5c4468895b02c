package dispatch

import "errors"

var (
	ErrNotFound        = errors.New("message not found")
	ErrContactNotFound = errors.New("contact not found")
	ErrNotRetryable    = errors.New("message is not in a retryable state")
)
