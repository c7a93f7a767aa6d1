package notification

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Dispatcher hands a confirmation off for asynchronous delivery. Dispatch
// must return quickly and must not propagate delivery failures: by the time
// it runs, the registration has already committed.
type Dispatcher interface {
	Dispatch(c Confirmation)
}

// DirectDispatcher delivers in a background goroutine without a queue.
// Used when Redis is disabled; failed deliveries are logged and dropped.
type DirectDispatcher struct {
	notifier Notifier
	log      *logrus.Logger
	timeout  time.Duration
}

// NewDirectDispatcher constructs a DirectDispatcher.
func NewDirectDispatcher(notifier Notifier, log *logrus.Logger) *DirectDispatcher {
	return &DirectDispatcher{notifier: notifier, log: log, timeout: 30 * time.Second}
}

func (d *DirectDispatcher) Dispatch(c Confirmation) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, c); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"registration_id": c.RegistrationID,
				"email":           c.Email,
			}).Error("confirmation delivery failed")
		}
	}()
}
