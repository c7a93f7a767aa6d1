package notification

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Queue is a Redis-backed dispatcher with delayed retries and a dead-letter
// list. Layout: a main list the worker pops from, a sorted set of delayed
// retries scored by their ready time, and a dead-letter list for tasks that
// exhausted their attempts.
type Queue struct {
	store    taskStore
	notifier Notifier
	cfg      QueueConfig
	log      *logrus.Logger
	wg       sync.WaitGroup
}

// QueueConfig tunes queue behavior. Zero values fall back to defaults.
type QueueConfig struct {
	MainQueue       string
	DelayedQueue    string
	DeadLetterQueue string
	MaxAttempts     int
	BaseDelay       time.Duration
	PopTimeout      time.Duration
	PromoteInterval time.Duration
	NotifyTimeout   time.Duration
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MainQueue:       "event_registration:confirmations",
		DelayedQueue:    "event_registration:confirmations:delayed",
		DeadLetterQueue: "event_registration:confirmations:dlq",
		MaxAttempts:     3,
		BaseDelay:       5 * time.Second,
		PopTimeout:      5 * time.Second,
		PromoteInterval: time.Second,
		NotifyTimeout:   30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultQueueConfig. The worker loops
// rely on this: a zero PromoteInterval would panic the ticker and a zero
// PopTimeout would block the consumer forever.
func (c QueueConfig) withDefaults() QueueConfig {
	d := DefaultQueueConfig()
	if c.MainQueue == "" {
		c.MainQueue = d.MainQueue
	}
	if c.DelayedQueue == "" {
		c.DelayedQueue = d.DelayedQueue
	}
	if c.DeadLetterQueue == "" {
		c.DeadLetterQueue = d.DeadLetterQueue
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = d.PopTimeout
	}
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = d.PromoteInterval
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = d.NotifyTimeout
	}
	return c
}

// taskStore is the queue's persistence: named lists plus a delayed set scored
// by ready time. redisTaskStore implements it on Redis; tests supply an
// in-memory implementation.
type taskStore interface {
	Push(ctx context.Context, queue string, payload []byte) error
	// Pop blocks up to timeout and returns nil with no error when nothing
	// arrived in time.
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	Schedule(ctx context.Context, queue string, readyAt time.Time, payload []byte) error
	// PromoteDue moves entries whose ready time has passed from the delayed
	// set onto the target queue.
	PromoteDue(ctx context.Context, delayed, target string, now time.Time) error
}

type redisTaskStore struct {
	client *redis.Client
}

func (s *redisTaskStore) Push(ctx context.Context, queue string, payload []byte) error {
	return s.client.LPush(ctx, queue, payload).Err()
}

func (s *redisTaskStore) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := s.client.BRPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	// BRPop returns [queue, payload].
	if len(res) != 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

func (s *redisTaskStore) Schedule(ctx context.Context, queue string, readyAt time.Time, payload []byte) error {
	return s.client.ZAdd(ctx, queue, redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: payload,
	}).Err()
}

func (s *redisTaskStore) PromoteDue(ctx context.Context, delayed, target string, now time.Time) error {
	due, err := s.client.ZRangeByScore(ctx, delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return err
	}

	for _, payload := range due {
		pipe := s.client.TxPipeline()
		pipe.ZRem(ctx, delayed, payload)
		pipe.LPush(ctx, target, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

type task struct {
	ID           string       `json:"id"`
	Attempts     int          `json:"attempts"`
	EnqueuedAt   time.Time    `json:"enqueued_at"`
	Confirmation Confirmation `json:"confirmation"`
}

// NewQueue constructs a Queue and verifies the Redis connection.
func NewQueue(client *redis.Client, notifier Notifier, cfg QueueConfig, log *logrus.Logger) (*Queue, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Queue{
		store:    &redisTaskStore{client: client},
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		log:      log,
	}, nil
}

// Dispatch enqueues a confirmation for delivery. Enqueue failures are logged
// and dropped; the registration is already committed and must not be
// affected.
func (q *Queue) Dispatch(c Confirmation) {
	t := task{
		ID:           uuid.New().String(),
		EnqueuedAt:   time.Now().UTC(),
		Confirmation: c,
	}
	payload, err := json.Marshal(t)
	if err != nil {
		q.log.WithError(err).Error("marshal confirmation task")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.Push(ctx, q.cfg.MainQueue, payload); err != nil {
		q.log.WithError(err).WithField("registration_id", c.RegistrationID).
			Error("enqueue confirmation failed")
	}
}

// Start runs the consumer and the delayed-task promoter until ctx is
// cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(2)
	go q.consumeLoop(ctx)
	go q.promoteLoop(ctx)
}

// Wait blocks until both loops have stopped.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) consumeLoop(ctx context.Context) {
	defer q.wg.Done()
	q.log.Info("notification queue worker started")

	for {
		select {
		case <-ctx.Done():
			q.log.Info("notification queue worker stopped")
			return
		default:
		}

		payload, err := q.store.Pop(ctx, q.cfg.MainQueue, q.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			q.log.WithError(err).Error("pop confirmation task")
			time.Sleep(time.Second)
			continue
		}
		if payload == nil {
			continue
		}
		q.handle(ctx, payload)
	}
}

func (q *Queue) handle(ctx context.Context, payload []byte) {
	var t task
	if err := json.Unmarshal(payload, &t); err != nil {
		q.log.WithError(err).Error("unmarshal confirmation task, dropping")
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, q.cfg.NotifyTimeout)
	err := q.notifier.Notify(notifyCtx, t.Confirmation)
	cancel()
	if err == nil {
		return
	}

	t.Attempts++
	entry := q.log.WithError(err).WithFields(logrus.Fields{
		"task_id":  t.ID,
		"email":    t.Confirmation.Email,
		"attempts": t.Attempts,
	})

	if t.Attempts >= q.cfg.MaxAttempts {
		entry.Error("confirmation delivery exhausted retries, parking in DLQ")
		q.push(q.cfg.DeadLetterQueue, t)
		return
	}

	entry.Warn("confirmation delivery failed, scheduling retry")
	q.scheduleRetry(t)
}

// Backoff doubles per attempt: base, 2*base, 4*base, …
func (q *Queue) backoff(attempts int) time.Duration {
	return q.cfg.BaseDelay << (attempts - 1)
}

func (q *Queue) scheduleRetry(t task) {
	payload, err := json.Marshal(t)
	if err != nil {
		q.log.WithError(err).Error("marshal retry task")
		return
	}
	readyAt := time.Now().Add(q.backoff(t.Attempts))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.Schedule(ctx, q.cfg.DelayedQueue, readyAt, payload); err != nil {
		q.log.WithError(err).Error("schedule confirmation retry")
	}
}

func (q *Queue) push(queue string, t task) {
	payload, err := json.Marshal(t)
	if err != nil {
		q.log.WithError(err).Error("marshal task")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.Push(ctx, queue, payload); err != nil {
		q.log.WithError(err).Error("push task")
	}
}

// promoteLoop moves due retries from the delayed set back onto the main
// queue.
func (q *Queue) promoteLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := q.store.PromoteDue(ctx, q.cfg.DelayedQueue, q.cfg.MainQueue, time.Now())
			if err != nil && ctx.Err() == nil {
				q.log.WithError(err).Error("promote delayed confirmations")
			}
		}
	}
}
