// Package offline holds intents that could not be transmitted and replays
// them in enqueue order once a session is back.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/events"
	"github.com/ageniuscoder/mmchat/client/internal/storage"
)

var (
	// ErrUnavailable from a SendFunc pauses the drain without spending an attempt.
	ErrUnavailable = errors.New("offline: transport unavailable")
	// ErrPermanent from a SendFunc moves the action straight to the failed
	// list; retrying would get the same answer.
	ErrPermanent     = errors.New("offline: permanent failure")
	ErrUnknownAction = errors.New("offline: unknown action")
)

type Kind string

const (
	KindSend     Kind = "send"
	KindEdit     Kind = "edit"
	KindDelete   Kind = "delete"
	KindReact    Kind = "react"
	KindMarkRead Kind = "mark_read"
)

// Action is a durable intent. CorrelationID is stable across retries so
// receivers can drop a second delivery.
type Action struct {
	CorrelationID  string          `json:"correlation_id"`
	Kind           Kind            `json:"kind"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Intent         string          `json:"intent"`
	Payload        json.RawMessage `json:"payload"`
	Attempts       int             `json:"attempts"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	LastError      string          `json:"last_error,omitempty"`
}

type SendFunc func(ctx context.Context, a Action) error

type Queue struct {
	mu       sync.Mutex
	kv       storage.KV
	max      int
	items    []Action
	failed   []Action
	draining bool
	bus      *events.Bus
	log      *slog.Logger

	// OnFailed is called outside the lock when an action hits the retry
	// ceiling and moves to the failed list.
	OnFailed func(Action)
	// OnChange is called outside the lock after the queue length changed.
	OnChange func(size int)
}

// New loads whatever a previous run left behind.
func New(ctx context.Context, kv storage.KV, maxAttempts int, bus *events.Bus, logger *slog.Logger) (*Queue, error) {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{kv: kv, max: maxAttempts, bus: bus, log: logger.With("component", "offline")}
	if kv == nil {
		return q, nil
	}
	if err := storage.GetJSON(ctx, kv, storage.KeyOfflineQueue, &q.items); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("offline: load queue: %w", err)
	}
	if err := storage.GetJSON(ctx, kv, storage.KeyOfflineFailed, &q.failed); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("offline: load failed list: %w", err)
	}
	if len(q.items) > 0 {
		q.log.Info("restored offline queue", "size", len(q.items), "failed", len(q.failed))
	}
	return q, nil
}

// Enqueue appends a to the tail. An action whose correlation id is already
// queued is ignored.
func (q *Queue) Enqueue(ctx context.Context, a Action) error {
	if a.CorrelationID == "" {
		return errors.New("offline: action without correlation id")
	}
	if a.EnqueuedAt.IsZero() {
		a.EnqueuedAt = time.Now().UTC()
	}
	q.mu.Lock()
	for _, it := range q.items {
		if it.CorrelationID == a.CorrelationID {
			q.mu.Unlock()
			return nil
		}
	}
	q.items = append(q.items, a)
	err := q.persistLocked(ctx)
	size := len(q.items)
	q.mu.Unlock()

	q.changed(size)
	return err
}

// PushFront puts a back at the head, for an intent whose live send lost
// the transport and must still go out before anything queued after it.
func (q *Queue) PushFront(ctx context.Context, a Action) error {
	if a.CorrelationID == "" {
		return errors.New("offline: action without correlation id")
	}
	if a.EnqueuedAt.IsZero() {
		a.EnqueuedAt = time.Now().UTC()
	}
	q.mu.Lock()
	if indexOf(q.items, a.CorrelationID) >= 0 {
		q.mu.Unlock()
		return nil
	}
	q.items = append([]Action{a}, q.items...)
	err := q.persistLocked(ctx)
	size := len(q.items)
	q.mu.Unlock()

	q.changed(size)
	return err
}

// Fail puts a straight onto the failed list.
func (q *Queue) Fail(ctx context.Context, a Action, cause error) error {
	if cause != nil {
		a.LastError = cause.Error()
	}
	q.mu.Lock()
	if i := indexOf(q.items, a.CorrelationID); i >= 0 {
		q.items = append(q.items[:i], q.items[i+1:]...)
	}
	if indexOf(q.failed, a.CorrelationID) < 0 {
		q.failed = append(q.failed, a)
	}
	err := q.persistLocked(ctx)
	size := len(q.items)
	q.mu.Unlock()

	q.log.Warn("action failed permanently", "correlation_id", a.CorrelationID, "kind", a.Kind, "error", cause)
	if q.OnFailed != nil {
		q.OnFailed(a)
	}
	q.changed(size)
	return err
}

func (q *Queue) Peek() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Action{}, false
	}
	return q.items[0], true
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the queued actions in order.
func (q *Queue) Items() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Action(nil), q.items...)
}

// Failed returns the actions that hit the retry ceiling.
func (q *Queue) Failed() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Action(nil), q.failed...)
}

// Contains reports whether the correlation id is queued.
func (q *Queue) Contains(correlationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return indexOf(q.items, correlationID) >= 0
}

// Drain sends queued actions head first, one at a time. It stops at the
// first action that fails below the retry ceiling and returns that error;
// ErrUnavailable stops it without counting an attempt. Only one drain runs
// at a time; a concurrent call returns immediately.
func (q *Queue) Drain(ctx context.Context, send SendFunc) (int, error) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return 0, nil
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		head, ok := q.Peek()
		if !ok {
			return sent, nil
		}

		err := send(ctx, head)
		switch {
		case err == nil:
			q.remove(ctx, head.CorrelationID)
			sent++
		case errors.Is(err, ErrUnavailable), errors.Is(err, context.Canceled):
			return sent, err
		default:
			if q.recordFailure(ctx, head.CorrelationID, err, errors.Is(err, ErrPermanent)) {
				// moved to failed: carry on with the next one
				continue
			}
			q.log.Info("drain paused", "correlation_id", head.CorrelationID, "attempts", head.Attempts+1, "error", err)
			return sent, err
		}
	}
}

// recordFailure counts an attempt and reports whether the action went to
// the failed list.
func (q *Queue) recordFailure(ctx context.Context, correlationID string, cause error, permanent bool) bool {
	q.mu.Lock()
	i := indexOf(q.items, correlationID)
	if i < 0 {
		q.mu.Unlock()
		return true
	}
	q.items[i].Attempts++
	q.items[i].LastError = cause.Error()
	if !permanent && q.items[i].Attempts < q.max {
		if err := q.persistLocked(ctx); err != nil {
			q.log.Warn("persist offline queue", "error", err)
		}
		q.mu.Unlock()
		return false
	}

	a := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	q.failed = append(q.failed, a)
	if err := q.persistLocked(ctx); err != nil {
		q.log.Warn("persist offline queue", "error", err)
	}
	size := len(q.items)
	q.mu.Unlock()

	q.log.Warn("action failed permanently", "correlation_id", a.CorrelationID, "kind", a.Kind, "attempts", a.Attempts, "error", cause)
	if q.OnFailed != nil {
		q.OnFailed(a)
	}
	q.changed(size)
	return true
}

// Remove drops a queued action, e.g. when its ack arrived another way.
func (q *Queue) Remove(ctx context.Context, correlationID string) bool {
	return q.remove(ctx, correlationID)
}

func (q *Queue) remove(ctx context.Context, correlationID string) bool {
	q.mu.Lock()
	i := indexOf(q.items, correlationID)
	if i < 0 {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	if err := q.persistLocked(ctx); err != nil {
		q.log.Warn("persist offline queue", "error", err)
	}
	size := len(q.items)
	q.mu.Unlock()

	q.changed(size)
	return true
}

// Retry moves a failed action back to the tail with a fresh attempt budget.
func (q *Queue) Retry(ctx context.Context, correlationID string) (Action, error) {
	q.mu.Lock()
	i := indexOf(q.failed, correlationID)
	if i < 0 {
		q.mu.Unlock()
		return Action{}, ErrUnknownAction
	}
	a := q.failed[i]
	q.failed = append(q.failed[:i], q.failed[i+1:]...)
	a.Attempts = 0
	a.LastError = ""
	q.items = append(q.items, a)
	err := q.persistLocked(ctx)
	size := len(q.items)
	q.mu.Unlock()

	q.changed(size)
	return a, err
}

// Abandon forgets a failed action for good.
func (q *Queue) Abandon(ctx context.Context, correlationID string) (Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := indexOf(q.failed, correlationID)
	if i < 0 {
		return Action{}, ErrUnknownAction
	}
	a := q.failed[i]
	q.failed = append(q.failed[:i], q.failed[i+1:]...)
	return a, q.persistLocked(ctx)
}

func (q *Queue) persistLocked(ctx context.Context) error {
	if q.kv == nil {
		return nil
	}
	if err := storage.PutJSON(ctx, q.kv, storage.KeyOfflineQueue, q.items); err != nil {
		return err
	}
	return storage.PutJSON(ctx, q.kv, storage.KeyOfflineFailed, q.failed)
}

func (q *Queue) changed(size int) {
	q.bus.Publish(events.Change{Topic: events.TopicQueue, Data: size})
	if q.OnChange != nil {
		q.OnChange(size)
	}
}

func indexOf(items []Action, correlationID string) int {
	for i, it := range items {
		if it.CorrelationID == correlationID {
			return i
		}
	}
	return -1
}
