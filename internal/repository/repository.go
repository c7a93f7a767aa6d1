// Package repository implements all database queries for the event
// registration system. It uses pgx directly (no ORM) for transparency and
// performance.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openclub/event-registration/internal/model"
)

// EventStore handles persistence for events.
type EventStore interface {
	Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
}

// RegistrationStore handles persistence for registrations, including the
// atomic registration transaction.
type RegistrationStore interface {
	// Register runs the whole registration as one transaction: resolve or
	// create the person, resolve (or create, when allowed) the event, check
	// for a duplicate registration, check capacity, insert the registration
	// and increment the event's registered count. Any failure rolls the
	// transaction back. Business rejections come back as the model sentinel
	// errors; storage races come back wrapped in model.ErrConflict.
	Register(ctx context.Context, req model.RegisterRequest) (*model.RegistrationOutcome, error)

	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
}

// Postgres error codes that mark a retryable race between transactions.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// conflictError maps storage-level race signals onto model.ErrConflict so the
// service layer can retry the transaction. Other errors pass through.
func conflictError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return true
	}
	return false
}
