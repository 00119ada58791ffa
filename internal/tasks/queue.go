package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/gamekeep/internal/backends"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// ErrQueueRunning is returned when a second loop is started on the same queue.
var ErrQueueRunning = errors.New("queue is already running")

// Resolver finds the backend owning a game. [backends.Set] implements it.
type Resolver interface {
	Resolve(id models.GameIdentity) (backends.Backend, error)
}

// Journal persists queue items. repositories.JobRepository implements it.
type Journal interface {
	Create(job *models.OperationJob) error
	Update(job *models.OperationJob) error
}

// Item is a read-only view of one queued or running operation.
type Item struct {
	ID         string
	Identity   models.GameIdentity
	Kind       models.OperationKind
	Status     models.JobStatus
	EnqueuedAt time.Time
	StartedAt  *time.Time
	// Elapsed is measured from StartedAt while running and from EnqueuedAt while queued.
	Elapsed time.Duration
}

// Options configure a [Queue]. Zero values are usable.
type Options struct {
	Sink    Sink
	Journal Journal
	Logger  *log.Logger
	Clock   func() time.Time
}

// Queue serializes operations across all backends with one execution slot.
type Queue struct {
	resolver Resolver
	sink     Sink
	journal  Journal
	logger   *log.Logger
	now      func() time.Time

	mu     sync.Mutex
	items  []*entry
	wake   chan struct{}
	active atomic.Bool
}

type entry struct {
	req       models.OperationRequest
	job       *models.OperationJob
	status    models.JobStatus
	startedAt *time.Time
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

func NewQueue(resolver Resolver, opts Options) *Queue {
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Queue{
		resolver: resolver,
		sink:     opts.Sink,
		journal:  opts.Journal,
		logger:   shared.WithLogger(opts.Logger, "component", "queue"),
		now:      opts.Clock,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue adds req to the tail of the queue. It reports false without an error
// when the game already has a queued or running item.
func (q *Queue) Enqueue(req models.OperationRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if _, err := q.resolver.Resolve(req.Identity); err != nil {
		return false, err
	}
	if req.ID == "" {
		req.ID = shared.GenerateID()
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = q.now()
	}

	q.mu.Lock()
	if q.findLocked(req.Identity) != nil {
		q.mu.Unlock()
		q.logger.Info("rejected duplicate request", "game", req.Identity, "op", req.Kind)
		return false, nil
	}

	e := &entry{req: req, job: models.NewOperationJob(req), status: models.JobQueued, done: make(chan struct{})}
	q.items = append(q.items, e)
	q.record(e.job, true)
	q.mu.Unlock()

	q.logger.Info("queued", "game", req.Identity, "op", req.Kind)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true, nil
}

// Remove drops a queued item, or cancels a running one and waits for it to
// settle. It reports false when there is nothing to remove or another caller
// already cancelled the item. It must not be called from a [Sink] callback of
// the same run.
func (q *Queue) Remove(id models.GameIdentity) bool {
	q.mu.Lock()
	e := q.findLocked(id)
	if e == nil {
		q.mu.Unlock()
		return false
	}

	if e.status == models.JobQueued {
		q.dropLocked(e)
		q.mu.Unlock()

		outcome := models.Aborted("removed from queue")
		e.job.Finish(outcome, q.now())
		q.record(e.job, false)
		q.sink.Finished(id, outcome)
		close(e.done)
		q.logger.Info("removed", "game", id)
		return true
	}

	first := !e.cancelled
	e.cancelled = true
	cancel := e.cancel
	q.mu.Unlock()

	if first {
		q.logger.Info("cancelling", "game", id)
		cancel()
	}
	<-e.done
	return first
}

// Cancel is [Queue.Remove] under the name callers outside the queue use.
func (q *Queue) Cancel(id models.GameIdentity) bool {
	return q.Remove(id)
}

// Has reports whether the game is queued or running.
func (q *Queue) Has(id models.GameIdentity) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.findLocked(id) != nil
}

// Len returns the number of queued and running items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// List returns every item in execution order.
func (q *Queue) List() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	items := make([]Item, 0, len(q.items))
	for _, e := range q.items {
		items = append(items, e.view(now))
	}
	return items
}

// Peek returns the running item, or the next one to run.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0].view(q.now()), true
}

// Run executes items one at a time until ctx is cancelled. A running item is
// aborted when ctx ends; queued items stay queued.
func (q *Queue) Run(ctx context.Context) error {
	return q.loop(ctx, false)
}

// Drain executes items until the queue is empty.
func (q *Queue) Drain(ctx context.Context) error {
	return q.loop(ctx, true)
}

func (q *Queue) loop(ctx context.Context, untilIdle bool) error {
	if !q.active.CompareAndSwap(false, true) {
		return ErrQueueRunning
	}
	defer q.active.Store(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		e, runCtx := q.next(ctx)
		if e == nil {
			if untilIdle {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
			}
			continue
		}

		q.execute(runCtx, e)
	}
}

// next marks the head of the queue running.
func (q *Queue) next(ctx context.Context) (*entry, context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.items {
		if e.status != models.JobQueued {
			continue
		}
		runCtx, cancel := context.WithCancel(ctx)
		now := q.now()
		e.status = models.JobRunning
		e.startedAt = &now
		e.cancel = cancel
		e.job.Start(now)
		q.record(e.job, false)
		return e, runCtx
	}
	return nil, nil
}

func (q *Queue) execute(ctx context.Context, e *entry) {
	id := e.req.Identity
	logger := q.logger.With("game", id, "op", e.req.Kind)
	logger.Info("started")

	run := newRunSink(id, q.sink)
	outcome := q.invoke(ctx, e.req, run.progress)
	e.cancel()

	q.mu.Lock()
	q.dropLocked(e)
	q.mu.Unlock()

	e.job.Finish(outcome, q.now())
	q.record(e.job, false)
	run.finish(outcome)
	close(e.done)

	logger.Info("finished", "status", outcome.Status, "message", outcome.Message)
}

// invoke resolves every path, panics included, to a terminal outcome.
func (q *Queue) invoke(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) (outcome models.OperationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("operation panicked", "game", req.Identity, "panic", r)
			outcome = models.Failed(fmt.Errorf("operation panicked: %v", r))
		}
	}()

	b, err := q.resolver.Resolve(req.Identity)
	if err != nil {
		return models.Failed(err)
	}
	return backends.Execute(ctx, b, req, onProgress)
}

// record writes the job to the journal. Journal failures are logged only.
func (q *Queue) record(job *models.OperationJob, create bool) {
	if q.journal == nil {
		return
	}
	var err error
	if create {
		err = q.journal.Create(job)
	} else {
		err = q.journal.Update(job)
	}
	if err != nil {
		q.logger.Warn("failed to journal job", "id", job.ID(), "status", job.Status(), "err", err)
	}
}

func (q *Queue) findLocked(id models.GameIdentity) *entry {
	for _, e := range q.items {
		if e.req.Identity == id {
			return e
		}
	}
	return nil
}

func (q *Queue) dropLocked(target *entry) {
	for i, e := range q.items {
		if e == target {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

func (e *entry) view(now time.Time) Item {
	item := Item{
		ID:         e.req.ID,
		Identity:   e.req.Identity,
		Kind:       e.req.Kind,
		Status:     e.status,
		EnqueuedAt: e.req.EnqueuedAt,
		StartedAt:  e.startedAt,
		Elapsed:    now.Sub(e.req.EnqueuedAt),
	}
	if e.startedAt != nil {
		item.Elapsed = now.Sub(*e.startedAt)
	}
	return item
}
