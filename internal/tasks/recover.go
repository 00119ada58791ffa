package tasks

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// JobStore is the journal view [Recover] needs. repositories.JobRepository implements it.
type JobStore interface {
	ByStatus(statuses ...models.JobStatus) ([]*models.OperationJob, error)
	Update(job *models.OperationJob) error
}

// RecoverResult counts what [Recover] did.
type RecoverResult struct {
	Interrupted int // rows left running, now aborted
	Requeued    int // rows left queued, closed and enqueued again
}

// Recover reconciles the journal after a restart. Rows left running are marked
// aborted. Rows left queued are closed and their requests enqueued again under
// fresh IDs, in their original order.
func Recover(ctx context.Context, store JobStore, q *Queue, logger *log.Logger) (RecoverResult, error) {
	logger = shared.WithLogger(logger, "component", "recover")
	var result RecoverResult

	jobs, err := store.ByStatus(models.JobRunning, models.JobQueued)
	if err != nil {
		return result, err
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if job.Status() == models.JobRunning {
			job.Finish(models.Aborted("interrupted"), time.Now())
			if err := store.Update(job); err != nil {
				return result, err
			}
			logger.Info("marked interrupted", "game", job.Identity(), "op", job.Kind())
			result.Interrupted++
			continue
		}

		req := job.Request()
		job.Finish(models.Aborted("requeued after restart"), time.Now())
		if err := store.Update(job); err != nil {
			return result, err
		}

		req.ID = shared.GenerateID()
		ok, err := q.Enqueue(req)
		if err != nil {
			logger.Warn("could not requeue", "game", req.Identity, "err", err)
			continue
		}
		if ok {
			result.Requeued++
		}
	}

	return result, nil
}
