package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/desertthunder/gamekeep/internal/formatter"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/tasks"
	"github.com/desertthunder/gamekeep/internal/ui"
)

// progressPrinter renders queue progress. On a terminal the current line is redrawn in place;
// otherwise every snapshot gets its own line.
type progressPrinter struct {
	w       io.Writer
	palette *ui.Palette
	inPlace bool

	mu       sync.Mutex
	dirty    bool
	outcomes map[models.GameIdentity]models.OperationOutcome
	order    []models.GameIdentity
}

var _ tasks.Sink = (*progressPrinter)(nil)

func newProgressPrinter(w io.Writer, palette *ui.Palette) *progressPrinter {
	return &progressPrinter{
		w:        w,
		palette:  palette,
		inPlace:  isTerminal(w),
		outcomes: make(map[models.GameIdentity]models.OperationOutcome),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (p *progressPrinter) Progress(id models.GameIdentity, snap models.ProgressSnapshot) {
	line := formatter.Progress(id, snap)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inPlace {
		fmt.Fprintf(p.w, "\r\033[K%s", line)
		p.dirty = true
		return
	}
	fmt.Fprintln(p.w, line)
}

func (p *progressPrinter) Finished(id models.GameIdentity, outcome models.OperationOutcome) {
	line := p.palette.Outcome(outcome, formatter.Outcome(id, outcome))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirty {
		fmt.Fprint(p.w, "\r\033[K")
		p.dirty = false
	}
	fmt.Fprintln(p.w, line)

	if _, seen := p.outcomes[id]; !seen {
		p.order = append(p.order, id)
	}
	p.outcomes[id] = outcome
}

// Outcome returns the last outcome reported for id.
func (p *progressPrinter) Outcome(id models.GameIdentity) (models.OperationOutcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.outcomes[id]
	return o, ok
}

// Failures counts outcomes that did not finish done.
func (p *progressPrinter) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, id := range p.order {
		if !p.outcomes[id].OK() {
			n++
		}
	}
	return n
}
