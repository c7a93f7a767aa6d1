package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclub/event-registration/internal/model"
)

// RegistrationRepository is the PostgreSQL implementation of RegistrationStore.
type RegistrationRepository struct {
	db *pgxpool.Pool

	// autoCreateEvents enables placeholder-event creation when a
	// registration references an unseen title.
	autoCreateEvents bool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool, autoCreateEvents bool) *RegistrationRepository {
	return &RegistrationRepository{db: db, autoCreateEvents: autoCreateEvents}
}

// Register performs a concurrency-safe registration inside one transaction.
//
// A naive read-then-write of registered_count is broken: two transactions can
// read the same count before either writes back, both pass the capacity
// check, and the event oversells. The fix here is pessimistic locking:
// the event row is read with SELECT … FOR UPDATE, which blocks every other
// registration attempt on the same event until this transaction commits or
// rolls back. The duplicate check, capacity check, insert and increment all
// happen under that lock, so attempts on one event are fully serialized.
//
// Races the lock cannot cover (two transactions creating the same person or
// event, a duplicate slipping in through a different code path) are caught by
// the unique constraints and surfaced as model.ErrConflict for the caller to
// retry.
func (r *RegistrationRepository) Register(ctx context.Context, req model.RegisterRequest) (*model.RegistrationOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	// Every exit path before Commit releases the row lock.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var person *model.Person
	person, err = r.resolvePerson(ctx, tx, req)
	if err != nil {
		return nil, wrapConflict(err)
	}

	var event *model.Event
	event, err = r.resolveEventForUpdate(ctx, tx, req.EventTitle)
	if err != nil {
		return nil, wrapConflict(err)
	}

	// Duplicate check. The unique constraint on (person_id, event_id) is the
	// backstop; this check exists to reject with a friendly message instead
	// of a constraint error.
	var dupCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE person_id = $1 AND event_id = $2`,
		person.ID, event.ID,
	).Scan(&dupCount)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if dupCount > 0 {
		err = model.ErrAlreadyRegistered
		return nil, err
	}

	// Capacity check, under the row lock acquired above.
	if event.IsFull() {
		err = model.ErrAtCapacity
		return nil, err
	}

	reg := &model.Registration{
		ID:        uuid.New().String(),
		PersonID:  person.ID,
		EventID:   event.ID,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO registrations (id, person_id, event_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		reg.ID, reg.PersonID, reg.EventID, reg.CreatedAt,
	)
	if err != nil {
		return nil, wrapConflict(fmt.Errorf("insert registration: %w", err))
	}

	// Increment in place rather than writing back a computed value, so the
	// stored count can never regress.
	_, err = tx.Exec(ctx,
		`UPDATE events SET registered_count = registered_count + 1 WHERE id = $1`,
		event.ID,
	)
	if err != nil {
		return nil, wrapConflict(fmt.Errorf("increment registered_count: %w", err))
	}
	event.RegisteredCount++

	// Serialization and deadlock failures can surface at commit time too;
	// route them through the same conflict mapping so the caller retries.
	if err = tx.Commit(ctx); err != nil {
		return nil, wrapConflict(fmt.Errorf("commit transaction: %w", err))
	}

	return &model.RegistrationOutcome{Registration: reg, Person: person, Event: event}, nil
}

// resolvePerson looks a person up by email and creates one when absent.
// On a repeat registration the stored record wins; the supplied name and age
// are ignored.
func (r *RegistrationRepository) resolvePerson(ctx context.Context, tx pgx.Tx, req model.RegisterRequest) (*model.Person, error) {
	var p model.Person
	err := tx.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, age, created_at
		 FROM persons WHERE email = $1`,
		req.Email,
	).Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Age, &p.CreatedAt)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get person: %w", err)
	}

	p = model.Person{
		ID:        uuid.New().String(),
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Age:       req.Age,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO persons (id, email, first_name, last_name, age, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Email, p.FirstName, p.LastName, p.Age, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	return &p, nil
}

// resolveEventForUpdate locks the event row for the rest of the transaction.
// When the title is unseen and auto-creation is enabled, a placeholder event
// is inserted; the insert makes this transaction the row's owner, which is as
// strong as the explicit lock.
func (r *RegistrationRepository) resolveEventForUpdate(ctx context.Context, tx pgx.Tx, title string) (*model.Event, error) {
	var e model.Event
	err := tx.QueryRow(ctx,
		`SELECT id, title, description, date, location, capacity, registered_count, created_at
		 FROM events
		 WHERE title = $1
		 FOR UPDATE`,
		title,
	).Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Location, &e.Capacity, &e.RegisteredCount, &e.CreatedAt)
	if err == nil {
		return &e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	if !r.autoCreateEvents {
		return nil, model.ErrEventNotFound
	}

	e = model.Event{
		ID:              uuid.New().String(),
		Title:           title,
		Date:            time.Now().UTC(),
		Location:        model.PlaceholderLocation,
		Capacity:        model.PlaceholderCapacity,
		RegisteredCount: 0,
		CreatedAt:       time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO events (id, title, description, date, location, capacity, registered_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Title, e.Description, e.Date, e.Location, e.Capacity, e.RegisteredCount, e.CreatedAt,
	)
	if err != nil {
		// A rival transaction may have created the same title first; the
		// unique violation surfaces as a retryable conflict and the retry
		// finds the committed row.
		return nil, fmt.Errorf("insert placeholder event: %w", err)
	}
	return &e, nil
}

// ListByEvent returns all registrations for a given event.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, person_id, event_id, created_at
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(&reg.ID, &reg.PersonID, &reg.EventID, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func wrapConflict(err error) error {
	if conflictError(err) {
		return fmt.Errorf("%w: %v", model.ErrConflict, err)
	}
	return err
}
