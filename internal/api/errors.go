package api

import (
	"errors"
	"net/http"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/httputil"
	"github.com/jadidihosein68/osaconnect/internal/service/campaign"
	"github.com/jadidihosein68/osaconnect/internal/service/dispatch"
	"github.com/jadidihosein68/osaconnect/internal/service/emailjob"
	"github.com/jadidihosein68/osaconnect/internal/service/suppression"
)

// respondServiceError maps service errors onto HTTP statuses. Anything
// unrecognized is a 500 with the cause logged, never echoed.
func respondServiceError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.Validation(w, verr.Field, verr.Message)
	case errors.Is(err, dispatch.ErrNotFound),
		errors.Is(err, emailjob.ErrNotFound),
		errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, suppression.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, dispatch.ErrNotRetryable),
		errors.Is(err, emailjob.ErrNotRetryable),
		errors.Is(err, emailjob.ErrJobInProgress),
		errors.Is(err, campaign.ErrAlreadyLaunched):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, suppression.ErrIdentifierMissing),
		errors.Is(err, suppression.ErrInvalidChannel):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
