// package formatter renders queue snapshots, installed games and job history as plain text, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/tasks"
)

// Format selects an output encoding.
type Format string

const (
	Text Format = "text"
	CSV  Format = "csv"
	JSON Format = "json"
)

// ParseFormat accepts text, csv or json, defaulting to text when empty.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return Text, nil
	case Text, CSV, JSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, csv or json)", s)
	}
}

// Size renders a byte count, or "unknown" when it was never measured.
func Size(n int64) string {
	if n <= 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}

// Elapsed renders a duration rounded to the second.
func Elapsed(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	return d.Round(time.Second).String()
}

// Progress renders one snapshot on a single line, skipping fields not yet observed.
func Progress(id models.GameIdentity, snap models.ProgressSnapshot) string {
	parts := []string{id.String()}
	if snap.Percent != nil {
		parts = append(parts, fmt.Sprintf("%5.1f%%", *snap.Percent))
	}
	if snap.Bytes != nil {
		parts = append(parts, *snap.Bytes)
	}
	if snap.DownloadSpeed != nil {
		parts = append(parts, fmt.Sprintf("down %.2f MiB/s", *snap.DownloadSpeed))
	}
	if snap.DiskSpeed != nil {
		parts = append(parts, fmt.Sprintf("disk %.2f MiB/s", *snap.DiskSpeed))
	}
	if snap.ETA != nil {
		parts = append(parts, "eta "+*snap.ETA)
	}
	return strings.Join(parts, "  ")
}

// Outcome renders a terminal outcome for id.
func Outcome(id models.GameIdentity, o models.OperationOutcome) string {
	if o.Message == "" {
		return fmt.Sprintf("%s: %s", id, o.Status)
	}
	return fmt.Sprintf("%s: %s (%s)", id, o.Status, o.Message)
}

// QueueToText lists queue items in execution order.
func QueueToText(items []tasks.Item) []byte {
	var buf bytes.Buffer
	if len(items) == 0 {
		buf.WriteString("Queue is empty\n")
		return buf.Bytes()
	}

	buf.WriteString(fmt.Sprintf("Queue: %d item(s)\n\n", len(items)))
	for i, item := range items {
		buf.WriteString(fmt.Sprintf("%d. [%s] %s %s (%s)\n", i+1, item.Status, item.Kind, item.Identity, Elapsed(item.Elapsed)))
	}
	return buf.Bytes()
}

// Installed maps each backend to its installed games.
type Installed map[models.Backend][]models.InstalledInfo

type installedRow struct {
	backend models.Backend
	models.InstalledInfo
}

// rows flattens games sorted by backend then app name.
func (in Installed) rows() []installedRow {
	var rows []installedRow
	for backend, games := range in {
		for _, g := range games {
			rows = append(rows, installedRow{backend: backend, InstalledInfo: g})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].backend != rows[j].backend {
			return rows[i].backend < rows[j].backend
		}
		return rows[i].AppName < rows[j].AppName
	})
	return rows
}

// InstalledToText lists installed games sorted by backend then app name.
func InstalledToText(games Installed) []byte {
	var buf bytes.Buffer
	rows := games.rows()
	if len(rows) == 0 {
		buf.WriteString("No games installed\n")
		return buf.Bytes()
	}

	buf.WriteString(fmt.Sprintf("Installed: %d game(s)\n\n", len(rows)))
	for _, g := range rows {
		version := g.Version
		if version == "" {
			version = "?"
		}
		pinned := ""
		if g.PinnedVersion {
			pinned = " [pinned]"
		}
		buf.WriteString(fmt.Sprintf("%s:%s  v%s  %s  %s  %s%s\n",
			g.backend, g.AppName, version, g.Platform, Size(g.InstallSize), g.InstallPath, pinned))
	}
	return buf.Bytes()
}

// InstalledToCSV converts installed games to CSV with columns: Backend, AppName, Version, BuildID, Platform, Size, Path, Pinned
func InstalledToCSV(games Installed) ([]byte, error) {
	records := [][]string{{"Backend", "AppName", "Version", "BuildID", "Platform", "Size", "Path", "Pinned"}}
	for _, g := range games.rows() {
		records = append(records, []string{
			string(g.backend),
			g.AppName,
			g.Version,
			g.BuildID,
			g.Platform,
			strconv.FormatInt(g.InstallSize, 10),
			g.InstallPath,
			strconv.FormatBool(g.PinnedVersion),
		})
	}
	return writeCSV(records)
}

// HistoryToText lists journal rows with times relative to now.
func HistoryToText(jobs []*models.OperationJob, now time.Time) []byte {
	var buf bytes.Buffer
	if len(jobs) == 0 {
		buf.WriteString("No operations recorded\n")
		return buf.Bytes()
	}

	for _, j := range jobs {
		when := humanize.RelTime(j.EnqueuedAt(), now, "ago", "from now")
		line := fmt.Sprintf("#%d  %-8s %-7s %s  queued %s", j.Sequence(), j.Status(), j.Kind(), j.Identity(), when)
		if started, finished := j.StartedAt(), j.FinishedAt(); started != nil && finished != nil {
			line += ", took " + Elapsed(finished.Sub(*started))
		}
		if j.Message() != "" {
			line += "  " + j.Message()
		}
		buf.WriteString(line + "\n")
	}
	return buf.Bytes()
}

// HistoryToCSV converts journal rows to CSV with columns: Sequence, ID, Backend, AppName, Kind, Status, Message, EnqueuedAt, StartedAt, FinishedAt
func HistoryToCSV(jobs []*models.OperationJob) ([]byte, error) {
	records := [][]string{{"Sequence", "ID", "Backend", "AppName", "Kind", "Status", "Message", "EnqueuedAt", "StartedAt", "FinishedAt"}}
	for _, j := range jobs {
		records = append(records, []string{
			strconv.Itoa(j.Sequence()),
			j.ID(),
			string(j.Identity().Backend),
			j.Identity().AppName,
			string(j.Kind()),
			string(j.Status()),
			j.Message(),
			j.EnqueuedAt().Format(time.RFC3339),
			timestamp(j.StartedAt()),
			timestamp(j.FinishedAt()),
		})
	}
	return writeCSV(records)
}

// historyRow is the JSON shape of one journal row.
type historyRow struct {
	Sequence   int        `json:"sequence"`
	ID         string     `json:"id"`
	Backend    string     `json:"backend"`
	AppName    string     `json:"app_name"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// HistoryToJSON encodes journal rows. Jobs keep their fields private, so they are copied first.
func HistoryToJSON(jobs []*models.OperationJob, pretty bool) ([]byte, error) {
	rows := make([]historyRow, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, historyRow{
			Sequence:   j.Sequence(),
			ID:         j.ID(),
			Backend:    string(j.Identity().Backend),
			AppName:    j.Identity().AppName,
			Kind:       string(j.Kind()),
			Status:     string(j.Status()),
			Message:    j.Message(),
			EnqueuedAt: j.EnqueuedAt(),
			StartedAt:  j.StartedAt(),
			FinishedAt: j.FinishedAt(),
		})
	}
	return ToJSON(rows, pretty)
}

// ToJSON marshals v, indented when pretty is set.
func ToJSON(v any, pretty bool) ([]byte, error) {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

func writeCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func timestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
