// Package model defines the core domain types for the event registration system.
package model

import "time"

// Person is an attendee identified by their email address.
// A person is created on their first registration; the name and age supplied
// with later registrations are ignored (first write wins).
type Person struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"createdAt"`
}

// FullName returns the person's display name.
func (p *Person) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Event represents an event with a fixed registration capacity.
type Event struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Date            time.Time `json:"date"`
	Location        string    `json:"location"`
	Capacity        int       `json:"capacity"`
	RegisteredCount int       `json:"registeredCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Remaining returns the number of available slots.
func (e *Event) Remaining() int {
	return e.Capacity - e.RegisteredCount
}

// IsFull returns true when no slots remain.
func (e *Event) IsFull() bool {
	return e.RegisteredCount >= e.Capacity
}

// Placeholder attributes for events auto-created on a registration
// referencing a title that has never been seen before.
const (
	PlaceholderCapacity = 100
	PlaceholderLocation = "To be announced"
)

// Registration links one person to one event. The (person, event) pair is
// unique, enforced by a storage-level constraint.
type Registration struct {
	ID        string    `json:"id"`
	PersonID  string    `json:"personId"`
	EventID   string    `json:"eventId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegisterRequest is the payload for registering a person for an event.
type RegisterRequest struct {
	FirstName  string `json:"firstName" validate:"required,max=100"`
	LastName   string `json:"lastName" validate:"required,max=100"`
	Age        int    `json:"age" validate:"required,gte=18,lte=150"`
	Email      string `json:"email" validate:"required,email"`
	EventTitle string `json:"eventTitle" validate:"required,max=255"`
}

// RegistrationOutcome bundles everything a committed registration produced.
// Person and Event are included so the confirmation notification can be
// assembled without going back to storage.
type RegistrationOutcome struct {
	Registration *Registration
	Person       *Person
	Event        *Event
}

// CreateEventRequest is the payload for provisioning a new event.
type CreateEventRequest struct {
	Title       string    `json:"title" validate:"required,max=255"`
	Description string    `json:"description"`
	Date        time.Time `json:"date" validate:"required"`
	Location    string    `json:"location" validate:"required,max=255"`
	Capacity    int       `json:"capacity" validate:"required,gt=0,lte=100000"`
}

// Response is the standard JSON envelope: {"status": "success"|"error", ...}.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}
