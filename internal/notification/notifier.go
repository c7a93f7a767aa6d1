// Package notification delivers registration confirmations after the
// transaction has committed. Delivery is best-effort: a failure here is
// logged and retried, but never affects the committed registration.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Confirmation carries everything needed to notify a person about their
// committed registration.
type Confirmation struct {
	RegistrationID string    `json:"registration_id"`
	FirstName      string    `json:"first_name"`
	Email          string    `json:"email"`
	EventTitle     string    `json:"event_title"`
	EventDate      time.Time `json:"event_date"`
	EventLocation  string    `json:"event_location"`
}

// Subject returns the confirmation email subject line.
func (c Confirmation) Subject() string {
	return fmt.Sprintf("Registration confirmed: %s", c.EventTitle)
}

// Body returns the plain-text confirmation email body.
func (c Confirmation) Body() string {
	return fmt.Sprintf(
		"Hi %s,\n\n"+
			"You are registered for %s.\n\n"+
			"Date: %s\n"+
			"Location: %s\n"+
			"Registration ID: %s\n\n"+
			"See you there!\n",
		c.FirstName,
		c.EventTitle,
		c.EventDate.Format("Mon, 02 Jan 2006 15:04 MST"),
		c.EventLocation,
		c.RegistrationID,
	)
}

// Notifier delivers a single confirmation. Implementations exist for SMTP and
// for the console; swapping in Slack/SMS later only needs a new Notifier.
type Notifier interface {
	Notify(ctx context.Context, c Confirmation) error
}

// ConsoleNotifier logs the confirmation instead of sending it. Used in
// development and whenever email is disabled.
type ConsoleNotifier struct {
	log *logrus.Logger
}

// NewConsole constructs a ConsoleNotifier.
func NewConsole(log *logrus.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{log: log}
}

func (n *ConsoleNotifier) Notify(_ context.Context, c Confirmation) error {
	n.log.WithFields(logrus.Fields{
		"registration_id": c.RegistrationID,
		"email":           c.Email,
		"event":           c.EventTitle,
	}).Info("confirmation (console notifier)")
	return nil
}
