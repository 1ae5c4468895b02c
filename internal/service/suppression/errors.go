package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound          = errors.New("suppression entry not found")
	ErrIdentifierMissing = errors.New("identifier is required")
	ErrInvalidChannel    = errors.New("invalid channel")
)
