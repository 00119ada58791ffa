package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/shared"
)

const jobColumns = `id, sequence, app_name, backend, kind, target_path, platform, status, message,
	enqueued_at, started_at, finished_at, created_at, updated_at, deleted_at`

// JobRepository implements models.Repository[*models.OperationJob] for the operation journal.
type JobRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.OperationJob] = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a job with the next sequence. The request ID is kept when present.
func (r *JobRepository) Create(job *models.OperationJob) error {
	sequence, err := NextSequence(r.db, "jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if job.ID() == "" {
		job.SetID(shared.GenerateID())
	}
	job.SetSequence(sequence)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO jobs (
			id, sequence, app_name, backend, kind, target_path, platform, status, message,
			enqueued_at, started_at, finished_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		job.ID(),
		sequence,
		job.Identity().AppName,
		string(job.Identity().Backend),
		string(job.Kind()),
		job.TargetPath(),
		job.Platform(),
		string(job.Status()),
		nullable(job.Message()),
		job.EnqueuedAt(),
		job.StartedAt(),
		job.FinishedAt(),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Get retrieves a job by ID, excluding soft-deleted jobs
func (r *JobRepository) Get(id string) (*models.OperationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? AND deleted_at IS NULL`

	job, err := scanJob(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return job, err
}

// Update writes the job's status, message and timestamps.
func (r *JobRepository) Update(job *models.OperationJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	query := `
		UPDATE jobs
		SET status = ?, message = ?, started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		string(job.Status()),
		nullable(job.Message()),
		job.StartedAt(),
		job.FinishedAt(),
		now,
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job not found or already deleted: %s", job.ID())
	}

	return nil
}

// Delete soft-deletes a job by ID
func (r *JobRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE jobs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves jobs newest first. Criteria keys: "backend", "app_name", "status", "limit".
func (r *JobRepository) List(criteria map[string]any) ([]*models.OperationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE deleted_at IS NULL`
	args := []any{}

	for _, key := range []string{"backend", "app_name", "status"} {
		if v, ok := criteria[key].(string); ok && v != "" {
			query += " AND " + key + " = ?"
			args = append(args, v)
		}
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return r.query(query, args...)
}

// ByStatus returns jobs in any of the given statuses in enqueue order.
func (r *JobRepository) ByStatus(statuses ...models.JobStatus) ([]*models.OperationJob, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE deleted_at IS NULL AND status IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY sequence ASC`

	return r.query(query, args...)
}

func (r *JobRepository) query(query string, args ...any) ([]*models.OperationJob, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.OperationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanJob scans one row of jobColumns into a [models.OperationJob]
func scanJob(row scanner) (*models.OperationJob, error) {
	var (
		id         string
		sequence   int
		appName    string
		backend    string
		kind       string
		targetPath string
		platform   string
		status     string
		message    sql.NullString
		enqueuedAt time.Time
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &appName, &backend, &kind, &targetPath, &platform, &status, &message,
		&enqueuedAt, &startedAt, &finishedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job := models.NewOperationJob(models.OperationRequest{
		ID:         id,
		Identity:   models.NewGameIdentity(appName, models.Backend(backend)),
		Kind:       models.OperationKind(kind),
		TargetPath: targetPath,
		Platform:   platform,
		EnqueuedAt: enqueuedAt,
	})
	job.SetSequence(sequence)
	job.SetStatus(models.JobStatus(status))
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)

	if message.Valid {
		job.SetMessage(message.String)
	}
	if startedAt.Valid {
		job.SetStartedAt(&startedAt.Time)
	}
	if finishedAt.Valid {
		job.SetFinishedAt(&finishedAt.Time)
	}
	if deletedAt.Valid {
		job.SetDeletedAt(&deletedAt.Time)
	}

	return job, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
