// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openclub/event-registration/internal/model"
	"github.com/openclub/event-registration/internal/notification"
	"github.com/openclub/event-registration/internal/repository"
)

// MinimumAge is the registration age floor. The browser enforces it too, but
// the policy is owned here so it holds for every caller.
const MinimumAge = 18

// RegistrationService coordinates the registration transaction and the
// post-commit confirmation.
type RegistrationService struct {
	store       repository.RegistrationStore
	dispatcher  notification.Dispatcher
	log         *logrus.Logger
	maxAttempts int
}

// NewRegistrationService constructs a RegistrationService. maxAttempts bounds
// transparent retries after storage conflicts; values below 1 are clamped.
func NewRegistrationService(
	store repository.RegistrationStore,
	dispatcher notification.Dispatcher,
	log *logrus.Logger,
	maxAttempts int,
) *RegistrationService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RegistrationService{
		store:       store,
		dispatcher:  dispatcher,
		log:         log,
		maxAttempts: maxAttempts,
	}
}

// Register runs one registration attempt end to end. Business rejections
// (already registered, at capacity, underage, unknown event) come back as the
// model sentinel errors. Storage conflicts are retried up to maxAttempts
// before surfacing as model.ErrConflict. The confirmation is dispatched only
// after the transaction has committed, and its outcome cannot affect the
// result.
func (s *RegistrationService) Register(ctx context.Context, req model.RegisterRequest) (*model.RegistrationOutcome, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.EventTitle = strings.TrimSpace(req.EventTitle)

	// Whitespace-only values pass struct validation but are blank after
	// trimming; reject them here as a business rejection, not a server error.
	if req.Email == "" || req.EventTitle == "" {
		return nil, model.ErrMissingFields
	}
	if req.Age < MinimumAge {
		return nil, model.ErrUnderage
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		outcome, err := s.store.Register(ctx, req)
		if err == nil {
			s.log.WithFields(logrus.Fields{
				"registration_id": outcome.Registration.ID,
				"event":           outcome.Event.Title,
				"attempt":         attempt,
			}).Info("registration committed")

			s.dispatcher.Dispatch(notification.Confirmation{
				RegistrationID: outcome.Registration.ID,
				FirstName:      outcome.Person.FirstName,
				Email:          outcome.Person.Email,
				EventTitle:     outcome.Event.Title,
				EventDate:      outcome.Event.Date,
				EventLocation:  outcome.Event.Location,
			})
			return outcome, nil
		}

		if !errors.Is(err, model.ErrConflict) {
			return nil, err
		}

		lastErr = err
		s.log.WithError(err).WithField("attempt", attempt).
			Warn("registration conflict, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}

	return nil, fmt.Errorf("registration retries exhausted: %w", lastErr)
}

// EventService handles event provisioning and read operations.
type EventService struct {
	events        repository.EventStore
	registrations repository.RegistrationStore
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(events repository.EventStore, registrations repository.RegistrationStore) *EventService {
	return &EventService{events: events, registrations: registrations}
}

// CreateEvent validates the request and delegates to the repository.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	if req.Title == "" {
		return nil, fmt.Errorf("event title is required")
	}
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be a positive integer")
	}
	if req.Capacity > 100_000 {
		return nil, fmt.Errorf("capacity cannot exceed 100,000")
	}
	return s.events.Create(ctx, req)
}

// ListEvents returns all events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	return s.events.GetByID(ctx, id)
}

// ListRegistrations returns all registrations for an event.
func (s *EventService) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.registrations.ListByEvent(ctx, eventID)
}
