package ports

import (
	"context"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// EventService records account audit events.
type EventService interface {
	Record(ctx context.Context, event domain.AccountEvent) error
}

// EventRecorder accepts events from the transport layer without blocking the
// request that produced them.
type EventRecorder interface {
	Enqueue(event domain.AccountEvent)
}
