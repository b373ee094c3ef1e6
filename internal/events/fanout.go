package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// NamedHandler is one consumer of the outbox.
type NamedHandler struct {
	Name    string
	Handler DeliveryHandler
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

// FanOut delivers each entry to every handler. When a tracker is set,
// handlers that already succeeded for an entry are skipped on redelivery, so
// one failing consumer does not duplicate work for the others.
type FanOut struct {
	handlers []NamedHandler
	tracker  processedTracker
}

// NewFanOut builds a fan-out handler. tracker may be nil.
func NewFanOut(tracker *ProcessedStore, handlers ...NamedHandler) *FanOut {
	f := &FanOut{}
	if tracker != nil {
		f.tracker = tracker
	}
	for _, h := range handlers {
		if h.Handler != nil {
			f.handlers = append(f.handlers, h)
		}
	}
	return f
}

// Len reports how many consumers are attached.
func (f *FanOut) Len() int { return len(f.handlers) }

func (f *FanOut) Handle(ctx context.Context, entry OutboxEntry) error {
	var errs []error
	for _, h := range f.handlers {
		if f.tracker != nil {
			done, err := f.tracker.AlreadyProcessed(ctx, h.Name, entry.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
				continue
			}
			if done {
				continue
			}
		}
		if err := h.Handler.Handle(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
			continue
		}
		if f.tracker != nil {
			if _, err := f.tracker.MarkProcessed(ctx, h.Name, entry.ID); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
