package ports

import (
	"context"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// EventRepository persists account audit events.
type EventRepository interface {
	InsertEvent(ctx context.Context, event *domain.AccountEvent) error
}
