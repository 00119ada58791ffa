package formatter

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/tasks"
)

func ptr[T any](v T) *T { return &v }

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", Text, false},
		{"text", Text, false},
		{" CSV ", CSV, false},
		{"json", JSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Run("Size", func(t *testing.T) {
		if got := Size(0); got != "unknown" {
			t.Errorf("Size(0) = %q", got)
		}
		if got := Size(1_500_000); got != "1.5 MB" {
			t.Errorf("Size(1.5M) = %q", got)
		}
	})

	t.Run("Elapsed", func(t *testing.T) {
		if got := Elapsed(300 * time.Millisecond); got != "0s" {
			t.Errorf("Elapsed(300ms) = %q", got)
		}
		if got := Elapsed(90*time.Second + 400*time.Millisecond); got != "1m30s" {
			t.Errorf("Elapsed(90.4s) = %q", got)
		}
	})

	t.Run("Progress skips unobserved fields", func(t *testing.T) {
		id := models.NewGameIdentity("demo", models.GOG)
		line := Progress(id, models.ProgressSnapshot{Percent: ptr(42.5), ETA: ptr("00:01:10")})
		if !strings.HasPrefix(line, "gog:demo") || !strings.Contains(line, "42.5%") || !strings.Contains(line, "eta 00:01:10") {
			t.Errorf("unexpected progress line %q", line)
		}
		if strings.Contains(line, "MiB/s") {
			t.Errorf("speeds were not observed, got %q", line)
		}
	})

	t.Run("Outcome", func(t *testing.T) {
		id := models.NewGameIdentity("demo", models.Nile)
		if got := Outcome(id, models.Done()); got != "nile:demo: done" {
			t.Errorf("Outcome(done) = %q", got)
		}
		if got := Outcome(id, models.Aborted("removed from queue")); got != "nile:demo: abort (removed from queue)" {
			t.Errorf("Outcome(abort) = %q", got)
		}
	})
}

func TestQueueToText(t *testing.T) {
	if got := string(QueueToText(nil)); got != "Queue is empty\n" {
		t.Errorf("empty queue = %q", got)
	}

	items := []tasks.Item{
		{Identity: models.NewGameIdentity("first", models.GOG), Kind: models.OpInstall, Status: models.JobRunning, Elapsed: 65 * time.Second},
		{Identity: models.NewGameIdentity("second", models.Legendary), Kind: models.OpUpdate, Status: models.JobQueued},
	}
	out := string(QueueToText(items))
	for _, want := range []string{"Queue: 2 item(s)", "1. [running] install gog:first (1m5s)", "2. [queued] update legendary:second (0s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestInstalled(t *testing.T) {
	games := Installed{
		models.Nile: {{AppName: "zeta", Version: "3", InstallPath: "/games/zeta"}},
		models.GOG: {
			{AppName: "beta", Version: "1.0", BuildID: "55", Platform: "linux", InstallSize: 2_000_000, InstallPath: "/games/beta", PinnedVersion: true},
			{AppName: "alpha", InstallPath: "/games/alpha"},
		},
	}

	t.Run("text", func(t *testing.T) {
		out := string(InstalledToText(games))
		alpha, beta, zeta := strings.Index(out, "gog:alpha"), strings.Index(out, "gog:beta"), strings.Index(out, "nile:zeta")
		if alpha < 0 || beta < alpha || zeta < beta {
			t.Errorf("rows out of order:\n%s", out)
		}
		if !strings.Contains(out, "v?") || !strings.Contains(out, "2.0 MB") || !strings.Contains(out, "[pinned]") {
			t.Errorf("unexpected rendering:\n%s", out)
		}
		if got := string(InstalledToText(nil)); got != "No games installed\n" {
			t.Errorf("empty = %q", got)
		}
	})

	t.Run("csv", func(t *testing.T) {
		data, err := InstalledToCSV(games)
		if err != nil {
			t.Fatalf("InstalledToCSV failed: %v", err)
		}
		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 4 {
			t.Fatalf("expected header plus 3 rows, got %d", len(records))
		}
		if records[0][0] != "Backend" || records[2][1] != "beta" || records[2][5] != "2000000" || records[2][7] != "true" {
			t.Errorf("unexpected records %v", records)
		}
	})
}

func history(t *testing.T) []*models.OperationJob {
	t.Helper()
	done := models.NewOperationJob(models.NewOperationRequest(models.NewGameIdentity("demo", models.GOG), models.OpInstall, "/games"))
	done.SetSequence(2)
	start := done.EnqueuedAt().Add(time.Second)
	done.Start(start)
	done.Finish(models.Done(), start.Add(2*time.Minute))

	failed := models.NewOperationJob(models.NewOperationRequest(models.NewGameIdentity("other", models.Legendary), models.OpUpdate, ""))
	failed.SetSequence(1)
	failed.Finish(models.Failed(errStub("exit status 1")), failed.EnqueuedAt())

	return []*models.OperationJob{done, failed}
}

type errStub string

func (e errStub) Error() string { return string(e) }

func TestHistory(t *testing.T) {
	jobs := history(t)

	t.Run("text", func(t *testing.T) {
		out := string(HistoryToText(jobs, jobs[0].EnqueuedAt().Add(3*time.Minute)))
		for _, want := range []string{"#2", "done", "gog:demo", "3 minutes ago", "took 2m0s", "#1", "exit status 1"} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q in:\n%s", want, out)
			}
		}
		if got := string(HistoryToText(nil, time.Now())); got != "No operations recorded\n" {
			t.Errorf("empty = %q", got)
		}
	})

	t.Run("csv", func(t *testing.T) {
		data, err := HistoryToCSV(jobs)
		if err != nil {
			t.Fatalf("HistoryToCSV failed: %v", err)
		}
		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 3 || records[1][0] != "2" || records[2][5] != "error" || records[2][8] != "" {
			t.Errorf("unexpected records %v", records)
		}
	})

	t.Run("json", func(t *testing.T) {
		data, err := HistoryToJSON(jobs, false)
		if err != nil {
			t.Fatalf("HistoryToJSON failed: %v", err)
		}
		var rows []map[string]any
		if err := json.Unmarshal(data, &rows); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(rows) != 2 || rows[0]["app_name"] != "demo" || rows[1]["message"] != "exit status 1" {
			t.Errorf("unexpected rows %v", rows)
		}
		if _, ok := rows[1]["started_at"]; ok {
			t.Error("started_at should be omitted for a job that never ran")
		}
	})
}

func TestToJSON(t *testing.T) {
	compact, err := ToJSON(map[string]int{"a": 1}, false)
	if err != nil || string(compact) != "{\"a\":1}\n" {
		t.Errorf("compact = %q, %v", compact, err)
	}
	pretty, _ := ToJSON(map[string]int{"a": 1}, true)
	if !strings.Contains(string(pretty), "\n  \"a\": 1") {
		t.Errorf("pretty = %q", pretty)
	}
}
