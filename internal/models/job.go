package models

import (
	"fmt"
	"time"
)

// JobStatus is the journal state of an [OperationJob].
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
	JobAborted JobStatus = "aborted"
)

// Terminal reports whether s is done, error or aborted.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobError || s == JobAborted
}

// JobStatusFor maps an outcome onto the journal status.
func JobStatusFor(o OperationOutcome) JobStatus {
	switch o.Status {
	case OutcomeDone:
		return JobDone
	case OutcomeAbort:
		return JobAborted
	default:
		return JobError
	}
}

// OperationJob is the persisted lifecycle of one [OperationRequest].
type OperationJob struct {
	id         string
	sequence   int
	identity   GameIdentity
	kind       OperationKind
	targetPath string
	platform   string
	status     JobStatus
	message    string
	enqueuedAt time.Time
	startedAt  *time.Time
	finishedAt *time.Time
	createdAt  time.Time
	updatedAt  time.Time
	deletedAt  *time.Time
}

// NewOperationJob creates a queued job mirroring req; the job ID is the request ID.
func NewOperationJob(req OperationRequest) *OperationJob {
	now := time.Now()
	return &OperationJob{
		id:         req.ID,
		identity:   req.Identity,
		kind:       req.Kind,
		targetPath: req.TargetPath,
		platform:   req.Platform,
		status:     JobQueued,
		enqueuedAt: req.EnqueuedAt,
		createdAt:  now,
		updatedAt:  now,
	}
}

func (j *OperationJob) ID() string { return j.id }
func (j *OperationJob) Sequence() int { return j.sequence }
func (j *OperationJob) Identity() GameIdentity { return j.identity }
func (j *OperationJob) Kind() OperationKind { return j.kind }
func (j *OperationJob) TargetPath() string { return j.targetPath }
func (j *OperationJob) Platform() string { return j.platform }
func (j *OperationJob) Status() JobStatus { return j.status }
func (j *OperationJob) Message() string { return j.message }
func (j *OperationJob) EnqueuedAt() time.Time { return j.enqueuedAt }
func (j *OperationJob) StartedAt() *time.Time { return j.startedAt }
func (j *OperationJob) FinishedAt() *time.Time { return j.finishedAt }
func (j *OperationJob) CreatedAt() time.Time { return j.createdAt }
func (j *OperationJob) UpdatedAt() time.Time { return j.updatedAt }
func (j *OperationJob) DeletedAt() *time.Time { return j.deletedAt }
func (j *OperationJob) SetID(id string) { j.id = id }
func (j *OperationJob) SetSequence(seq int) { j.sequence = seq }
func (j *OperationJob) SetStatus(s JobStatus) { j.status = s }
func (j *OperationJob) SetMessage(msg string) { j.message = msg }
func (j *OperationJob) SetStartedAt(t *time.Time) { j.startedAt = t }
func (j *OperationJob) SetFinishedAt(t *time.Time) { j.finishedAt = t }
func (j *OperationJob) SetCreatedAt(t time.Time) { j.createdAt = t }
func (j *OperationJob) SetUpdatedAt(t time.Time) { j.updatedAt = t }
func (j *OperationJob) SetDeletedAt(t *time.Time) { j.deletedAt = t }

// Request reconstructs the request this job was created from. Optional fields that are not journaled come back empty.
func (j *OperationJob) Request() OperationRequest {
	return OperationRequest{
		ID:         j.id,
		Identity:   j.identity,
		Kind:       j.kind,
		TargetPath: j.targetPath,
		Platform:   j.platform,
		EnqueuedAt: j.enqueuedAt,
	}
}

// Start marks the job running at t.
func (j *OperationJob) Start(t time.Time) {
	j.status = JobRunning
	j.startedAt = &t
}

// Finish records the terminal outcome at t.
func (j *OperationJob) Finish(o OperationOutcome, t time.Time) {
	j.status = JobStatusFor(o)
	j.message = o.Message
	j.finishedAt = &t
}

// Validate checks the job's identity, kind and status.
func (j *OperationJob) Validate() error {
	if j.id == "" {
		return fmt.Errorf("job id is required")
	}
	if err := j.identity.Validate(); err != nil {
		return err
	}
	if !j.kind.Valid() {
		return fmt.Errorf("unknown operation kind %q", j.kind)
	}
	switch j.status {
	case JobQueued, JobRunning, JobDone, JobError, JobAborted:
	default:
		return fmt.Errorf("invalid job status %q", j.status)
	}
	return nil
}

var _ Model = (*OperationJob)(nil)
