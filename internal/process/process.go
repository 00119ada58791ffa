// Package process runs external downloader binaries.
//
// [ExecLauncher] starts the binary under a cancellable context, streams each
// stdout/stderr line to an optional callback and returns the captured output
// with the exit code.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// Stream identifies which pipe a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Options configures one invocation.
type Options struct {
	Dir string
	// Env entries are appended to the parent environment.
	Env []string
	// OnOutput receives every line. Calls are serialized across both streams.
	OnOutput func(stream Stream, line string)
}

// Result is the captured output of a finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// LastLine returns the last non-empty line of stderr, falling back to stdout.
func (r Result) LastLine() string {
	for _, out := range []string{r.Stderr, r.Stdout} {
		lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			if l := strings.TrimSpace(lines[i]); l != "" {
				return l
			}
		}
	}
	return ""
}

// Launcher runs an executable and waits for it to exit.
//
// A cancelled ctx terminates the process and Run returns an error for which
// errors.Is(err, context.Canceled) holds. A non-zero exit wraps
// [shared.ErrProcessFailed].
type Launcher interface {
	Run(ctx context.Context, name string, args []string, opts Options) (Result, error)
}

// ExecLauncher implements [Launcher] with os/exec.
type ExecLauncher struct {
	Logger *log.Logger
	// WaitDelay bounds how long Run waits for output after the process is
	// killed. Children that inherited its stdout or stderr are cut off then.
	WaitDelay time.Duration
}

var _ Launcher = (*ExecLauncher)(nil)

// NewExecLauncher creates a launcher logging through logger.
func NewExecLauncher(logger *log.Logger) *ExecLauncher {
	return &ExecLauncher{Logger: shared.WithLogger(logger, "component", "process"), WaitDelay: 5 * time.Second}
}

func (l *ExecLauncher) Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	logger := l.Logger
	if logger == nil {
		logger = shared.NopLogger()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	cmd.WaitDelay = l.WaitDelay

	var mu sync.Mutex
	stdout := newLineWriter(&mu, Stdout, opts.OnOutput)
	stderr := newLineWriter(&mu, Stderr, opts.OnOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug("starting process", "name", name, "args", args)
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: failed to start %s: %v", shared.ErrProcessFailed, name, err)
	}

	waitErr := cmd.Wait()
	stdout.flush()
	stderr.flush()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Debug("process cancelled", "name", name)
		return res, fmt.Errorf("%s interrupted: %w", name, ctxErr)
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) && res.ExitCode == 0 {
		// a child still holds the output pipes after a clean exit
		logger.Debug("output left open by a child process", "name", name)
		waitErr = nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("%w: %s exited with code %d: %s", shared.ErrProcessFailed, name, res.ExitCode, res.LastLine())
		}
		return res, fmt.Errorf("%w: %s: %v", shared.ErrProcessFailed, name, waitErr)
	}

	return res, nil
}

// maxLine caps a buffered line; longer output is split rather than held.
const maxLine = 1024 * 1024

// lineWriter splits process output into lines for OnOutput while capturing
// all of it. os/exec copies into it, so writes never block the child.
type lineWriter struct {
	mu      *sync.Mutex
	stream  Stream
	emit    func(Stream, string)
	partial []byte
	out     strings.Builder
}

var _ io.Writer = (*lineWriter)(nil)

func newLineWriter(mu *sync.Mutex, stream Stream, emit func(Stream, string)) *lineWriter {
	return &lineWriter{mu: mu, stream: stream, emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.line(w.partial[:i])
		w.partial = w.partial[i+1:]
	}
	if len(w.partial) >= maxLine {
		w.line(w.partial)
		w.partial = nil
	}
	return len(p), nil
}

// flush emits a trailing line without a newline.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.line(w.partial)
		w.partial = nil
	}
}

func (w *lineWriter) line(b []byte) {
	line := string(bytes.TrimSuffix(b, []byte{'\r'}))
	w.out.WriteString(line)
	w.out.WriteByte('\n')
	if w.emit != nil {
		w.emit(w.stream, line)
	}
}

// String returns everything captured so far, one line per row.
func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.String()
}
