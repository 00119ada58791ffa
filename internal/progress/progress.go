// Package progress turns downloader output lines into [models.ProgressSnapshot]s.
//
// A [Parser] accumulates fields from successive lines. The first match for a
// field in a cycle wins; later matches are ignored until the snapshot is
// emitted. Once every required field has been seen the snapshot is emitted
// and the accumulator resets. A partial accumulator left when the stream
// ends is dropped.
package progress

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/gamekeep/internal/models"
)

// Field is a bit set of snapshot fields.
type Field uint8

const (
	Percent Field = 1 << iota
	Bytes
	ETA
	DownloadSpeed
	DiskSpeed
)

// Has reports whether every bit of other is set in f.
func (f Field) Has(other Field) bool { return f&other == other }

func (f Field) String() string {
	names := []struct {
		f    Field
		name string
	}{{Percent, "percent"}, {Bytes, "bytes"}, {ETA, "eta"}, {DownloadSpeed, "download_speed"}, {DiskSpeed, "disk_speed"}}

	var parts []string
	for _, n := range names {
		if f&n.f != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Pattern extracts one field from its first capture group.
type Pattern struct {
	Field Field
	Re    *regexp.Regexp
}

// PatternSet is the pattern list and required fields for one downloader.
type PatternSet struct {
	Patterns []Pattern
	Required Field
}

var (
	etaRe           = regexp.MustCompile(`ETA: (\d{2}:\d{2}:\d{2})`)
	bytesRe         = regexp.MustCompile(`Downloaded: (\d+(?:\.\d+)? [KMGT]?i?B)`)
	downloadSpeedRe = regexp.MustCompile(`Download\s+-\s+(\d+(?:\.\d+)?) MiB/s`)
	diskSpeedRe     = regexp.MustCompile(`Disk\s+-\s+(\d+(?:\.\d+)?) MiB/s`)
)

// GOG is gogdl's output. Only percent is required; other fields ride along when seen.
func GOG() PatternSet {
	return PatternSet{
		Patterns: []Pattern{
			{Field: Percent, Re: regexp.MustCompile(`Progress: (\d+(?:\.\d+)?) `)},
			{Field: ETA, Re: etaRe},
			{Field: Bytes, Re: bytesRe},
			{Field: DownloadSpeed, Re: downloadSpeedRe},
			{Field: DiskSpeed, Re: diskSpeedRe},
		},
		Required: Percent,
	}
}

// Legendary is the Epic downloader's output.
func Legendary() PatternSet {
	return PatternSet{
		Patterns: []Pattern{
			{Field: Percent, Re: regexp.MustCompile(`Progress: (\d+(?:\.\d+)?)%`)},
			{Field: ETA, Re: etaRe},
			{Field: Bytes, Re: bytesRe},
			{Field: DownloadSpeed, Re: downloadSpeedRe},
			{Field: DiskSpeed, Re: diskSpeedRe},
		},
		Required: Percent | ETA | Bytes,
	}
}

// Nile is the Amazon downloader's output, which follows legendary's format.
func Nile() PatternSet {
	return Legendary()
}

// Parser accumulates fields from lines and emits complete snapshots.
type Parser struct {
	mu       sync.Mutex
	set      PatternSet
	emit     models.ProgressFunc
	seen     Field
	snapshot models.ProgressSnapshot
}

// NewParser creates a parser that calls emit for every complete snapshot.
// A nil emit discards snapshots.
func NewParser(set PatternSet, emit models.ProgressFunc) *Parser {
	if emit == nil {
		emit = func(models.ProgressSnapshot) {}
	}
	return &Parser{set: set, emit: emit}
}

// Feed parses one line of output.
func (p *Parser) Feed(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pat := range p.set.Patterns {
		if p.seen.Has(pat.Field) {
			continue
		}
		m := pat.Re.FindStringSubmatch(line)
		if len(m) < 2 {
			continue
		}
		if p.apply(pat.Field, m[1]) {
			p.seen |= pat.Field
		}
	}

	if p.set.Required != 0 && p.seen.Has(p.set.Required) {
		snap := p.snapshot
		p.reset()
		p.emit(snap)
	}
}

// Reset discards the partial accumulator.
func (p *Parser) Reset() {
	p.mu.Lock()
	p.reset()
	p.mu.Unlock()
}

// Pending reports which fields the current accumulator holds.
func (p *Parser) Pending() Field {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen
}

func (p *Parser) reset() {
	p.seen = 0
	p.snapshot = models.ProgressSnapshot{}
}

func (p *Parser) apply(f Field, raw string) bool {
	switch f {
	case Percent, DownloadSpeed, DiskSpeed:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}
		switch f {
		case Percent:
			p.snapshot.Percent = &v
		case DownloadSpeed:
			p.snapshot.DownloadSpeed = &v
		default:
			p.snapshot.DiskSpeed = &v
		}
	case Bytes:
		p.snapshot.Bytes = &raw
	case ETA:
		p.snapshot.ETA = &raw
	default:
		return false
	}
	return true
}
