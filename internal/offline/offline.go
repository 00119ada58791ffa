// Package offline defers side-effecting actions until the network is back.
//
// An [ActionQueue] keeps one ordered list of pending payloads per scope in a
// durable bucket. Delivery is at-least-once and in order per scope: each
// delivered item is removed and persisted before the next is attempted, and
// the first failure stops the flush with the remainder left intact.
package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/gamekeep/internal/connectivity"
	"github.com/desertthunder/gamekeep/internal/kv"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// Pending is one recorded payload.
type Pending[T any] struct {
	Payload    T         `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// DeliverFunc sends one payload for scope.
type DeliverFunc[T any] func(ctx context.Context, scope string, payload T) error

// Gate runs actions once connectivity is available. [connectivity.Monitor] implements it.
type Gate interface {
	IsOnline() bool
	RunOnceWhenOnline(fn func()) func()
}

// Subscriber broadcasts connectivity changes. [connectivity.Monitor] implements it.
type Subscriber interface {
	Subscribe(fn func(connectivity.Status)) func()
}

// ActionQueue stores payloads that could not be delivered and replays them.
type ActionQueue[T any] struct {
	bucket  kv.Bucket
	deliver DeliverFunc[T]
	logger  *log.Logger
	now     func() time.Time

	mu      sync.Mutex // guards list read-modify-write
	flushMu sync.Mutex // one flush at a time
}

func NewActionQueue[T any](bucket kv.Bucket, deliver DeliverFunc[T], logger *log.Logger) *ActionQueue[T] {
	return &ActionQueue[T]{
		bucket:  bucket,
		deliver: deliver,
		logger:  shared.WithLogger(logger, "component", "offline"),
		now:     time.Now,
	}
}

func (q *ActionQueue[T]) load(scope string) ([]Pending[T], error) {
	var list []Pending[T]
	if _, err := q.bucket.Get(scope, &list); err != nil {
		return nil, fmt.Errorf("failed to read pending actions for %s: %w", scope, err)
	}
	return list, nil
}

func (q *ActionQueue[T]) store(scope string, list []Pending[T]) error {
	if len(list) == 0 {
		return q.bucket.Delete(scope)
	}
	return q.bucket.Set(scope, list)
}

// RecordIfFailed appends payload to the list at scope.
func (q *ActionQueue[T]) RecordIfFailed(scope string, payload T) error {
	if scope == "" {
		return fmt.Errorf("%w: scope is required", shared.ErrMissingArgument)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	list, err := q.load(scope)
	if err != nil {
		return err
	}
	list = append(list, Pending[T]{Payload: payload, EnqueuedAt: q.now()})
	if err := q.store(scope, list); err != nil {
		return fmt.Errorf("failed to record pending action for %s: %w", scope, err)
	}
	q.logger.Debug("recorded pending action", "scope", scope, "pending", len(list))
	return nil
}

// Pending returns the payloads waiting at scope, oldest first.
func (q *ActionQueue[T]) Pending(scope string) ([]Pending[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(scope)
}

// Scopes returns every scope with pending payloads.
func (q *ActionQueue[T]) Scopes() ([]string, error) {
	return q.bucket.Keys()
}

// Flush delivers the payloads at scope in order and returns how many were delivered.
func (q *ActionQueue[T]) Flush(ctx context.Context, scope string) (int, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	delivered := 0
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		q.mu.Lock()
		list, err := q.load(scope)
		q.mu.Unlock()
		if err != nil {
			return delivered, err
		}
		if len(list) == 0 {
			return delivered, nil
		}

		if err := q.deliver(ctx, scope, list[0].Payload); err != nil {
			q.logger.Warn("delivery failed, keeping pending actions", "scope", scope, "pending", len(list), "err", err)
			return delivered, err
		}

		// Appends only touch the tail, so the head is still the delivered item.
		q.mu.Lock()
		list, err = q.load(scope)
		if err == nil && len(list) > 0 {
			err = q.store(scope, list[1:])
		}
		q.mu.Unlock()
		if err != nil {
			return delivered, fmt.Errorf("failed to remove delivered action for %s: %w", scope, err)
		}
		delivered++
	}
}

// FlushAll flushes every scope. A failing scope does not stop the others.
func (q *ActionQueue[T]) FlushAll(ctx context.Context) (int, error) {
	scopes, err := q.Scopes()
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, scope := range scopes {
		n, err := q.Flush(ctx, scope)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", scope, err))
		}
	}
	return total, errors.Join(errs...)
}

// FlushWhenOnline schedules one flush of every scope for the next time gate is online.
func (q *ActionQueue[T]) FlushWhenOnline(ctx context.Context, gate Gate) func() {
	ctx = context.WithoutCancel(ctx)
	return gate.RunOnceWhenOnline(func() { q.flushLogged(ctx) })
}

func (q *ActionQueue[T]) flushLogged(ctx context.Context) {
	if n, err := q.FlushAll(ctx); err != nil {
		q.logger.Warn("flush incomplete", "delivered", n, "err", err)
	} else if n > 0 {
		q.logger.Info("flushed pending actions", "delivered", n)
	}
}

// Watch flushes every scope on each transition to online until the returned func is called.
func (q *ActionQueue[T]) Watch(ctx context.Context, sub Subscriber) func() {
	return sub.Subscribe(func(s connectivity.Status) {
		if s.State != connectivity.Online {
			return
		}
		go func() {
			if n, err := q.FlushAll(ctx); err != nil {
				q.logger.Warn("flush incomplete", "delivered", n, "err", err)
			}
		}()
	})
}
