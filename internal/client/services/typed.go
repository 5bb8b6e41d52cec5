package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mlukins/cellar/internal/client/models"
)

func newOpID() string { return uuid.NewString() }

// Typed wrappers validating the domain payloads before anything is queued.
// A validation failure surfaces immediately; it must never become a parked
// outbox entry the server would only reject.

func (s *CellarService) AddWine(ctx context.Context, w models.Wine) (*models.Record, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wine: %w", err)
	}
	return s.Insert(ctx, models.EntityWine, w.FieldMap())
}

func (s *CellarService) AddBottle(ctx context.Context, b models.Bottle) (*models.Record, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bottle: %w", err)
	}
	return s.Insert(ctx, models.EntityBottle, b.FieldMap())
}

func (s *CellarService) AddTasting(ctx context.Context, t models.Tasting) (*models.Record, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tasting: %w", err)
	}
	return s.Insert(ctx, models.EntityTasting, t.FieldMap())
}

func (s *CellarService) AddLocation(ctx context.Context, l models.Location) (*models.Record, error) {
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid location: %w", err)
	}
	return s.Insert(ctx, models.EntityLocation, l.FieldMap())
}
