package reconcile

import "errors"

var (
	// ErrNotFound is returned when no row matches a provider message id.
	ErrNotFound = errors.New("provider message not found")

	// ErrInvalidPayload is returned when a callback lacks an id or status.
	ErrInvalidPayload = errors.New("missing message_id or status")
)
