package emailjob

import "errors"

var (
	ErrNotFound      = errors.New("email job not found")
	ErrNotRetryable  = errors.New("email job has no failed recipients to retry")
	ErrJobInProgress = errors.New("email job is still sending")
)
