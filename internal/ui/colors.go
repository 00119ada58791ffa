package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/desertthunder/gamekeep/internal/models"
)

// Default is the palette used by the CLI.
var Default = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	plain bool
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

// Plain returns a copy of p that renders text unstyled.
func (p *Palette) Plain() *Palette {
	c := *p
	c.plain = true
	return &c
}

// For returns p when w is a terminal and a plain copy otherwise.
func (p *Palette) For(w io.Writer) *Palette {
	if f, ok := w.(interface{ Fd() uintptr }); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return p
	}
	return p.Plain()
}

func (p *Palette) render(s lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return s.Render(text)
}

func (p *Palette) Title(text string) string { return p.render(p.title, text) }
func (p *Palette) OK(text string) string    { return p.render(p.ok, text) }
func (p *Palette) Err(text string) string   { return p.render(p.err, text) }
func (p *Palette) Warn(text string) string  { return p.render(p.warn, text) }
func (p *Palette) Help(text string) string  { return p.render(p.help, text) }

// Job colors a journal status.
func (p *Palette) Job(s models.JobStatus) string {
	switch s {
	case models.JobDone:
		return p.OK(string(s))
	case models.JobError:
		return p.Err(string(s))
	case models.JobAborted, models.JobRunning:
		return p.Warn(string(s))
	default:
		return p.Help(string(s))
	}
}

// Outcome colors an outcome line by its status.
func (p *Palette) Outcome(o models.OperationOutcome, line string) string {
	switch o.Status {
	case models.OutcomeDone:
		return p.OK(line)
	case models.OutcomeAbort:
		return p.Warn(line)
	default:
		return p.Err(line)
	}
}

// Online colors a connectivity indicator.
func (p *Palette) Online(online bool) string {
	if online {
		return p.OK("online")
	}
	return p.Err("offline")
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
