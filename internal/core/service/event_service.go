package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

type eventService struct {
	eventRepo ports.EventRepository
	log       zerolog.Logger
}

// NewEventService returns an EventService implementation.
func NewEventService(eventRepo ports.EventRepository, log zerolog.Logger) ports.EventService {
	return &eventService{eventRepo: eventRepo, log: log}
}

// Record persists a single account event.
func (s *eventService) Record(ctx context.Context, event domain.AccountEvent) error {
	if event.Type == "" {
		return fmt.Errorf("record event: missing event type")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if err := s.eventRepo.InsertEvent(ctx, &event); err != nil {
		return fmt.Errorf("record event: %w", err)
	}

	s.log.Debug().
		Str("type", string(event.Type)).
		Str("user_id", event.UserID).
		Int("status", event.StatusCode).
		Msg("account event recorded")

	return nil
}
