package alerts

import (
	"context"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

// Repository persists alerts.
type Repository interface {
	CreateAlert(ctx context.Context, a *domain.Alert) error
}
