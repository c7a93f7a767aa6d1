package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	called chan Confirmation
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, c Confirmation) error {
	n.called <- c
	return n.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func sampleConfirmation() Confirmation {
	return Confirmation{
		RegistrationID: "reg-1",
		FirstName:      "Ada",
		Email:          "ada@example.com",
		EventTitle:     "Launch",
		EventDate:      time.Date(2026, 9, 12, 18, 0, 0, 0, time.UTC),
		EventLocation:  "Main hall",
	}
}

func TestDirectDispatcherDelivers(t *testing.T) {
	notifier := &recordingNotifier{called: make(chan Confirmation, 1)}
	d := NewDirectDispatcher(notifier, quietLogger())

	d.Dispatch(sampleConfirmation())

	select {
	case got := <-notifier.called:
		assert.Equal(t, "reg-1", got.RegistrationID)
	case <-time.After(time.Second):
		t.Fatal("notifier was never called")
	}
}

// A failed delivery is logged and dropped; Dispatch itself must never fail or
// block the caller.
func TestDirectDispatcherSwallowsFailure(t *testing.T) {
	notifier := &recordingNotifier{
		called: make(chan Confirmation, 1),
		err:    errors.New("smtp: connection refused"),
	}
	d := NewDirectDispatcher(notifier, quietLogger())

	done := make(chan struct{})
	go func() {
		d.Dispatch(sampleConfirmation())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a failing notifier")
	}
	<-notifier.called
}

func TestConsoleNotifier(t *testing.T) {
	n := NewConsole(quietLogger())
	require.NoError(t, n.Notify(context.Background(), sampleConfirmation()))
}

func TestConfirmationSubjectAndBody(t *testing.T) {
	c := sampleConfirmation()

	assert.Equal(t, "Registration confirmed: Launch", c.Subject())

	body := c.Body()
	assert.Contains(t, body, "Hi Ada,")
	assert.Contains(t, body, "Launch")
	assert.Contains(t, body, "Main hall")
	assert.Contains(t, body, "reg-1")
}

// memoryTaskStore backs the queue loops in tests: plain slices instead of
// Redis lists and sorted sets.
type memoryTaskStore struct {
	mu        sync.Mutex
	queues    map[string][][]byte
	delayed   map[string][]scheduledPayload
	scheduled int
}

type scheduledPayload struct {
	readyAt time.Time
	payload []byte
}

func newMemoryTaskStore() *memoryTaskStore {
	return &memoryTaskStore{
		queues:  make(map[string][][]byte),
		delayed: make(map[string][]scheduledPayload),
	}
}

func (s *memoryTaskStore) Push(_ context.Context, queue string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[queue] = append(s.queues[queue], payload)
	return nil
}

func (s *memoryTaskStore) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		if items := s.queues[queue]; len(items) > 0 {
			payload := items[0]
			s.queues[queue] = items[1:]
			s.mu.Unlock()
			return payload, nil
		}
		s.mu.Unlock()

		if ctx.Err() != nil || time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *memoryTaskStore) Schedule(_ context.Context, queue string, readyAt time.Time, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayed[queue] = append(s.delayed[queue], scheduledPayload{readyAt: readyAt, payload: payload})
	s.scheduled++
	return nil
}

func (s *memoryTaskStore) PromoteDue(_ context.Context, delayed, target string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var remaining []scheduledPayload
	for _, entry := range s.delayed[delayed] {
		if entry.readyAt.After(now) {
			remaining = append(remaining, entry)
			continue
		}
		s.queues[target] = append(s.queues[target], entry.payload)
	}
	s.delayed[delayed] = remaining
	return nil
}

func (s *memoryTaskStore) queueLen(queue string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[queue])
}

func (s *memoryTaskStore) scheduledTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled
}

func (s *memoryTaskStore) first(queue string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if items := s.queues[queue]; len(items) > 0 {
		return items[0]
	}
	return nil
}

type countingNotifier struct {
	calls atomic.Int32
	err   error
}

func (n *countingNotifier) Notify(context.Context, Confirmation) error {
	n.calls.Add(1)
	return n.err
}

// A delivery that keeps failing is retried through the delayed set with
// backoff, then parked in the dead-letter queue once its attempts run out.
func TestQueueRetriesFailingNotifierThenParksInDLQ(t *testing.T) {
	store := newMemoryTaskStore()
	notifier := &countingNotifier{err: errors.New("smtp: connection refused")}
	cfg := QueueConfig{
		MaxAttempts:     2,
		BaseDelay:       time.Millisecond,
		PopTimeout:      5 * time.Millisecond,
		PromoteInterval: time.Millisecond,
	}.withDefaults()
	q := &Queue{store: store, notifier: notifier, cfg: cfg, log: quietLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	q.Dispatch(sampleConfirmation())

	require.Eventually(t, func() bool {
		return store.queueLen(cfg.DeadLetterQueue) == 1
	}, 5*time.Second, 5*time.Millisecond, "task never reached the dead-letter queue")
	cancel()
	q.Wait()

	assert.EqualValues(t, cfg.MaxAttempts, notifier.calls.Load())
	assert.Equal(t, cfg.MaxAttempts-1, store.scheduledTotal(), "each failure before the last should schedule a retry")

	var parked task
	require.NoError(t, json.Unmarshal(store.first(cfg.DeadLetterQueue), &parked))
	assert.Equal(t, cfg.MaxAttempts, parked.Attempts)
	assert.Equal(t, "reg-1", parked.Confirmation.RegistrationID)
}

// A queue built from a zero QueueConfig must still run: missing intervals and
// timeouts fall back to defaults instead of panicking the worker loops.
func TestQueueZeroConfigFallsBackToDefaults(t *testing.T) {
	assert.Equal(t, DefaultQueueConfig(), QueueConfig{}.withDefaults())

	partial := QueueConfig{MaxAttempts: 5}.withDefaults()
	assert.Equal(t, 5, partial.MaxAttempts)
	assert.Equal(t, DefaultQueueConfig().PromoteInterval, partial.PromoteInterval)

	q := &Queue{
		store:    newMemoryTaskStore(),
		notifier: &countingNotifier{},
		cfg:      QueueConfig{}.withDefaults(),
		log:      quietLogger(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue loops did not stop")
	}
}

func TestQueueBackoffDoubles(t *testing.T) {
	q := &Queue{cfg: QueueConfig{BaseDelay: 5 * time.Second}}

	assert.Equal(t, 5*time.Second, q.backoff(1))
	assert.Equal(t, 10*time.Second, q.backoff(2))
	assert.Equal(t, 20*time.Second, q.backoff(3))
}

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.NotEmpty(t, cfg.MainQueue)
	assert.NotEqual(t, cfg.MainQueue, cfg.DeadLetterQueue)
}
