package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/repositories"
	"github.com/desertthunder/gamekeep/internal/shared"
	tu "github.com/desertthunder/gamekeep/internal/testing"
)

func TestRecover(t *testing.T) {
	db, err := shared.OpenJournal(":memory:")
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer db.Close()
	repo := repositories.NewJobRepository(db)

	create := func(app string) *models.OperationJob {
		job := models.NewOperationJob(install(models.NewGameIdentity(app, models.GOG)))
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}
		return job
	}

	crashed := create("crashed")
	crashed.Start(time.Now())
	repo.Update(crashed)

	waiting := create("waiting")

	finished := create("finished")
	finished.Finish(models.Done(), time.Now())
	repo.Update(finished)

	f := newFixture(t, tu.NewFakeLauncher())
	q := NewQueue(f.set, Options{Journal: repo, Logger: shared.NopLogger()})

	result, err := Recover(context.Background(), repo, q, shared.NopLogger())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if result.Interrupted != 1 || result.Requeued != 1 {
		t.Errorf("unexpected result %+v", result)
	}

	got, err := repo.Get(crashed.ID())
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if got.Status() != models.JobAborted || got.Message() != "interrupted" {
		t.Errorf("crashed job = %s / %q", got.Status(), got.Message())
	}

	got, _ = repo.Get(waiting.ID())
	if got.Status() != models.JobAborted {
		t.Errorf("original queued row should be closed, got %s", got.Status())
	}

	items := q.List()
	if len(items) != 1 || items[0].Identity.AppName != "waiting" || items[0].ID == waiting.ID() {
		t.Errorf("expected waiting requeued under a new ID, got %+v", items)
	}

	queued, _ := repo.ByStatus(models.JobQueued)
	if len(queued) != 1 || queued[0].ID() != items[0].ID {
		t.Errorf("requeued job should be journaled, got %d queued rows", len(queued))
	}

	again, err := Recover(context.Background(), repo, NewQueue(f.set, Options{}), nil)
	if err != nil {
		t.Fatalf("second Recover failed: %v", err)
	}
	if again.Interrupted != 0 || again.Requeued != 1 {
		t.Errorf("second pass should only requeue the new row, got %+v", again)
	}
}
