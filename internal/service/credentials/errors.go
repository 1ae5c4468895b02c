package credentials

import "errors"

// Sentinel errors for credential resolution. A decrypt failure is never
// reported as ErrNotConfigured.
var (
	ErrNotFound      = errors.New("integration not found")
	ErrNotConfigured = errors.New("integration not configured")
	ErrDecrypt       = errors.New("integration secret could not be decrypted")
	ErrNoKeys        = errors.New("no encryption keys configured")
)

// ResolveError carries an operator-facing reason alongside its sentinel.
type ResolveError struct {
	Err    error
	Reason string
}

func (e *ResolveError) Error() string { return e.Reason }
func (e *ResolveError) Unwrap() error { return e.Err }
