// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/process"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// Script is the scripted behaviour of one fake process invocation.
type Script struct {
	Lines    []string        // streamed to OnOutput as stdout, in order
	Stdout   string          // appended to the captured stdout without streaming
	ExitCode int             // non-zero fails with shared.ErrProcessFailed
	Err      error           // returned as is
	Block    bool            // after Lines, wait until the context is cancelled
	Wait     <-chan struct{} // after Lines, wait for this channel or cancellation
}

// Call records one invocation of [FakeLauncher.Run].
type Call struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// Sub returns the first argument, the downloader subcommand.
func (c Call) Sub() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// FakeLauncher is a test double for [process.Launcher] that replays scripts
// keyed by "name sub", "sub" or "name", tried in that order.
type FakeLauncher struct {
	mu      sync.Mutex
	scripts map[string]Script
	calls   []Call
}

var _ process.Launcher = (*FakeLauncher)(nil)

func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{scripts: make(map[string]Script)}
}

// On registers s for key and returns the launcher for chaining.
func (f *FakeLauncher) On(key string, s Script) *FakeLauncher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[key] = s
	return f
}

// Calls returns every recorded invocation.
func (f *FakeLauncher) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns invocations whose subcommand is sub.
func (f *FakeLauncher) CallsTo(sub string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Sub() == sub {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeLauncher) script(call Call) Script {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)

	for _, key := range []string{call.Name + " " + call.Sub(), call.Sub(), call.Name} {
		if s, ok := f.scripts[key]; ok {
			return s
		}
	}
	return Script{}
}

func (f *FakeLauncher) Run(ctx context.Context, name string, args []string, opts process.Options) (process.Result, error) {
	s := f.script(Call{Name: name, Args: append([]string(nil), args...), Dir: opts.Dir, Env: opts.Env})

	res := process.Result{Stdout: strings.Join(s.Lines, "\n") + s.Stdout, ExitCode: s.ExitCode}
	cancelled := func() (process.Result, error) {
		res.ExitCode = -1
		return res, fmt.Errorf("%s interrupted: %w", name, ctx.Err())
	}

	for _, line := range s.Lines {
		if ctx.Err() != nil {
			return cancelled()
		}
		if opts.OnOutput != nil {
			opts.OnOutput(process.Stdout, line)
		}
	}

	switch {
	case s.Block:
		<-ctx.Done()
	case s.Wait != nil:
		select {
		case <-s.Wait:
		case <-ctx.Done():
		}
	}

	if ctx.Err() != nil {
		return cancelled()
	}
	if s.Err != nil {
		return res, s.Err
	}
	if s.ExitCode != 0 {
		return res, fmt.Errorf("%w: %s exited with code %d", shared.ErrProcessFailed, name, s.ExitCode)
	}
	return res, nil
}

// SinkEvent is one notification received by a [RecordingSink].
type SinkEvent struct {
	Identity models.GameIdentity
	Snapshot *models.ProgressSnapshot
	Outcome  *models.OperationOutcome
}

// RecordingSink records progress and outcome notifications in arrival order.
type RecordingSink struct {
	mu       sync.Mutex
	events   []SinkEvent
	finished chan models.OperationOutcome
	// OnProgress, when set, runs after each snapshot is recorded.
	OnProgress func(models.GameIdentity, models.ProgressSnapshot)
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{finished: make(chan models.OperationOutcome, 64)}
}

func (s *RecordingSink) Progress(id models.GameIdentity, snap models.ProgressSnapshot) {
	s.mu.Lock()
	s.events = append(s.events, SinkEvent{Identity: id, Snapshot: &snap})
	hook := s.OnProgress
	s.mu.Unlock()
	if hook != nil {
		hook(id, snap)
	}
}

func (s *RecordingSink) Finished(id models.GameIdentity, outcome models.OperationOutcome) {
	s.mu.Lock()
	s.events = append(s.events, SinkEvent{Identity: id, Outcome: &outcome})
	s.mu.Unlock()
	s.finished <- outcome
}

// Events returns a copy of everything recorded so far.
func (s *RecordingSink) Events() []SinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SinkEvent(nil), s.events...)
}

// Snapshots returns the recorded snapshots for id.
func (s *RecordingSink) Snapshots(id models.GameIdentity) []models.ProgressSnapshot {
	var out []models.ProgressSnapshot
	for _, e := range s.Events() {
		if e.Identity == id && e.Snapshot != nil {
			out = append(out, *e.Snapshot)
		}
	}
	return out
}

// WaitFinished blocks for the next outcome or fails the test after timeout.
func (s *RecordingSink) WaitFinished(t *testing.T, timeout time.Duration) models.OperationOutcome {
	t.Helper()
	select {
	case o := <-s.finished:
		return o
	case <-time.After(timeout):
		t.Fatal("timed out waiting for an outcome")
		return models.OperationOutcome{}
	}
}

// Outcomes returns the recorded outcomes for id.
func (s *RecordingSink) Outcomes(id models.GameIdentity) []models.OperationOutcome {
	var out []models.OperationOutcome
	for _, e := range s.Events() {
		if e.Identity == id && e.Outcome != nil {
			out = append(out, *e.Outcome)
		}
	}
	return out
}

// StaticGate is a connectivity gate flipped by hand.
type StaticGate struct {
	mu      sync.Mutex
	online  bool
	pending []func()
}

func NewStaticGate(online bool) *StaticGate {
	return &StaticGate{online: online}
}

func (g *StaticGate) IsOnline() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online
}

// SetOnline flips the gate; going online fires pending one-shot actions.
func (g *StaticGate) SetOnline(online bool) {
	g.mu.Lock()
	g.online = online
	var fire []func()
	if online {
		fire, g.pending = g.pending, nil
	}
	g.mu.Unlock()
	for _, fn := range fire {
		fn()
	}
}

func (g *StaticGate) RunOnceWhenOnline(fn func()) func() {
	g.mu.Lock()
	if g.online {
		g.mu.Unlock()
		fn()
		return func() {}
	}
	g.pending = append(g.pending, fn)
	g.mu.Unlock()
	return func() {}
}

// Pending returns the number of actions waiting for the gate to open.
func (g *StaticGate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// StaticCredentials reports a fixed login state per backend.
type StaticCredentials map[models.Backend]string

func (c StaticCredentials) Token(b models.Backend) (string, bool) {
	tok, ok := c[b]
	return tok, ok && tok != ""
}

func (c StaticCredentials) IsLoggedIn(b models.Backend) bool {
	_, ok := c[b]
	return ok
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Path should not exist: %s", path)
	}
}

func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

func dirOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i > 0 {
		return path[:i]
	}
	return "."
}
