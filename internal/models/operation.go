package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationKind is the type of work a queued request performs.
type OperationKind string

const (
	OpInstall     OperationKind = "install"
	OpUpdate      OperationKind = "update"
	OpRepair      OperationKind = "repair"
	OpImport      OperationKind = "import"
	OpMoveInstall OperationKind = "move"
)

// Valid reports whether k is a known kind.
func (k OperationKind) Valid() bool {
	switch k {
	case OpInstall, OpUpdate, OpRepair, OpImport, OpMoveInstall:
		return true
	}
	return false
}

// OperationRequest describes one queued job. It is passed by value and never mutated after creation.
type OperationRequest struct {
	ID         string        `json:"id"`
	Identity   GameIdentity  `json:"identity"`
	Kind       OperationKind `json:"kind"`
	TargetPath string        `json:"target_path"`
	Platform   string        `json:"platform"`
	Branch     string        `json:"branch,omitempty"`
	Build      string        `json:"build,omitempty"`
	Language   string        `json:"language,omitempty"`
	DLCs       []string      `json:"dlcs,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// RequestOption customizes a request during [NewOperationRequest].
type RequestOption func(*OperationRequest)

func WithPlatform(p string) RequestOption { return func(r *OperationRequest) { r.Platform = p } }
func WithBranch(b string) RequestOption   { return func(r *OperationRequest) { r.Branch = b } }
func WithBuild(b string) RequestOption    { return func(r *OperationRequest) { r.Build = b } }
func WithLanguage(l string) RequestOption { return func(r *OperationRequest) { r.Language = l } }

// WithDLCs selects the DLCs to install. The slice is copied.
func WithDLCs(ids ...string) RequestOption {
	return func(r *OperationRequest) { r.DLCs = append([]string(nil), ids...) }
}

// NewOperationRequest creates a request with a fresh ID and the current time as EnqueuedAt.
func NewOperationRequest(id GameIdentity, kind OperationKind, targetPath string, opts ...RequestOption) OperationRequest {
	req := OperationRequest{
		ID:         uuid.New().String(),
		Identity:   id,
		Kind:       kind,
		TargetPath: targetPath,
		EnqueuedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// Validate checks the request before it is queued.
func (r OperationRequest) Validate() error {
	if err := r.Identity.Validate(); err != nil {
		return err
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown operation kind %q", r.Kind)
	}
	if (r.Kind == OpInstall || r.Kind == OpImport || r.Kind == OpMoveInstall) && r.TargetPath == "" {
		return fmt.Errorf("%s requires a target path", r.Kind)
	}
	return nil
}

// OutcomeStatus is the terminal state of an operation.
type OutcomeStatus string

const (
	OutcomeDone  OutcomeStatus = "done"
	OutcomeError OutcomeStatus = "error"
	OutcomeAbort OutcomeStatus = "abort"
)

// OperationOutcome is what every backend operation resolves to.
type OperationOutcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message,omitempty"`
}

func Done() OperationOutcome { return OperationOutcome{Status: OutcomeDone} }

// Failed captures err's message in an error outcome.
func Failed(err error) OperationOutcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return OperationOutcome{Status: OutcomeError, Message: msg}
}

// Aborted builds an abort outcome with an optional reason.
func Aborted(reason string) OperationOutcome {
	return OperationOutcome{Status: OutcomeAbort, Message: reason}
}

func (o OperationOutcome) OK() bool { return o.Status == OutcomeDone }

// ProgressSnapshot holds progress fields parsed from downloader output. Nil means not observed.
type ProgressSnapshot struct {
	Percent       *float64 `json:"percent,omitempty"`
	Bytes         *string  `json:"bytes,omitempty"`
	ETA           *string  `json:"eta,omitempty"`
	DownloadSpeed *float64 `json:"download_speed,omitempty"`
	DiskSpeed     *float64 `json:"disk_speed,omitempty"`
}

// IsEmpty reports whether no field has been observed.
func (p ProgressSnapshot) IsEmpty() bool {
	return p.Percent == nil && p.Bytes == nil && p.ETA == nil && p.DownloadSpeed == nil && p.DiskSpeed == nil
}

// ProgressFunc receives snapshots in the order they were produced.
type ProgressFunc func(ProgressSnapshot)
