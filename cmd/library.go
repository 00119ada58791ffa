package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gamekeep/internal/formatter"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/shared"
	"github.com/desertthunder/gamekeep/internal/tasks"
)

// Info prints remote metadata for a game and, when installed, whether an update is available.
func (r *Runner) Info(ctx context.Context, cmd *cli.Command) error {
	id, err := r.identityArg(cmd, "game")
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}
	b, err := r.backends.Resolve(id)
	if err != nil {
		return err
	}

	info, err := b.GetGameInfo(ctx, id.AppName)
	if err != nil {
		return fmt.Errorf("failed to get info for %s: %w", id, err)
	}
	installed, isInstalled := r.registry.Get(id)

	if cmd.Bool("json") {
		out := map[string]any{"info": info}
		if isInstalled {
			out["installed"] = installed
			out["update_available"] = info.UpdateAvailable(installed)
		}
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	title := info.Title
	if title == "" {
		title = id.AppName
	}
	r.writePlain("%s\n", r.palette.Title(title))
	r.writePlain("Latest:    %s (build %s)\n", info.LatestVersion, info.LatestBuildID)
	r.writePlain("Download:  %s\n", formatter.Size(info.DownloadSize))
	r.writePlain("Install:   %s\n", formatter.Size(info.InstallSize))
	if len(info.Platforms) > 0 {
		r.writePlain("Platforms: %s\n", strings.Join(info.Platforms, ", "))
	}
	if len(info.DLCs) > 0 {
		r.writePlain("DLCs:      %s\n", strings.Join(info.DLCs, ", "))
	}

	if !isInstalled {
		return r.writePlain("%s\n", r.palette.Help("not installed"))
	}
	r.writePlain("Installed: %s (build %s) at %s\n", installed.Version, installed.BuildID, installed.InstallPath)
	switch {
	case installed.PinnedVersion:
		return r.writePlain("%s\n", r.palette.Help("pinned, updates are skipped"))
	case info.UpdateAvailable(installed):
		return r.writePlain("%s\n", r.palette.Warn("update available"))
	default:
		return r.writePlain("%s\n", r.palette.OK("up to date"))
	}
}

// Installed lists installed games for every enabled backend, or only --backend.
func (r *Runner) Installed(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if err := r.open(); err != nil {
		return err
	}

	games := formatter.Installed{}
	if raw := cmd.String("backend"); raw != "" {
		tag, err := models.ParseBackend(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		games[tag] = r.registry.List(tag)
	} else {
		for _, b := range r.backends.All() {
			games[b.Name()] = r.registry.List(b.Name())
		}
	}

	switch format {
	case formatter.CSV:
		data, err := formatter.InstalledToCSV(games)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	case formatter.JSON:
		return r.writeJSON(games, cmd.Bool("pretty"))
	default:
		return r.writeBytes(formatter.InstalledToText(games))
	}
}

// History lists journal rows, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if err := r.open(); err != nil {
		return err
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if raw := cmd.String("backend"); raw != "" {
		tag, err := models.ParseBackend(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		criteria["backend"] = string(tag)
	}
	if app := cmd.String("app"); app != "" {
		criteria["app_name"] = app
	}
	if status := cmd.String("status"); status != "" {
		criteria["status"] = status
	}

	jobs, err := r.jobs.List(criteria)
	if err != nil {
		return err
	}

	switch format {
	case formatter.CSV:
		data, err := formatter.HistoryToCSV(jobs)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	case formatter.JSON:
		data, err := formatter.HistoryToJSON(jobs, cmd.Bool("pretty"))
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	default:
		return r.writeBytes(formatter.HistoryToText(jobs, time.Now()))
	}
}

// QueueSweep enqueues updates for every outdated game and runs them unless --check is set.
func (r *Runner) QueueSweep(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	if !r.checkConnectivity(ctx) {
		return fmt.Errorf("%w: cannot check for updates while offline", shared.ErrUnreachable)
	}

	printer := newProgressPrinter(r.output, r.palette)
	q, err := r.newQueue(ctx, printer)
	if err != nil {
		return err
	}

	result, err := tasks.NewSweeper(r.backends, r.registry, q, r.config.Queue.SweepRatePerSecond, r.logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	for _, s := range result.Skipped {
		r.writePlain("%s %s\n", r.palette.Help("skip"), fmt.Sprintf("%s: %s", s.Identity, s.Reason))
	}
	for _, id := range result.Enqueued {
		r.writePlain("%s %s\n", r.palette.Warn("update"), id)
	}
	if len(result.Enqueued) == 0 {
		r.writePlain("Everything is up to date\n")
	}
	if cmd.Bool("check") {
		return nil
	}

	if err := q.Drain(ctx); err != nil {
		return err
	}
	if n := printer.Failures(); n > 0 {
		return fmt.Errorf("%d update(s) did not complete", n)
	}
	return nil
}

// QueueResume runs the operations a previous run left queued.
func (r *Runner) QueueResume(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	r.checkConnectivity(ctx)

	printer := newProgressPrinter(r.output, r.palette)
	q, err := r.newQueue(ctx, printer)
	if err != nil {
		return err
	}
	if q.Len() == 0 {
		return r.writePlain("Nothing to resume\n")
	}
	if cmd.Bool("list") {
		return r.writeBytes(formatter.QueueToText(q.List()))
	}

	if err := q.Drain(ctx); err != nil {
		return err
	}
	if n := printer.Failures(); n > 0 {
		return fmt.Errorf("%d operation(s) did not complete", n)
	}
	return nil
}

// SettingsShow prints the stored settings for a game.
func (r *Runner) SettingsShow(ctx context.Context, cmd *cli.Command) error {
	id, err := r.identityArg(cmd, "game")
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}
	gs, err := r.settings.Get(id)
	if err != nil {
		return err
	}
	installed, _ := r.registry.Get(id)
	return r.writeJSON(map[string]any{"settings": gs, "pinned": installed.PinnedVersion}, true)
}

// SettingsSet updates only the settings whose flags were given.
func (r *Runner) SettingsSet(ctx context.Context, cmd *cli.Command) error {
	id, err := r.identityArg(cmd, "game")
	if err != nil {
		return err
	}
	if cmd.IsSet("pin") && cmd.IsSet("unpin") {
		return fmt.Errorf("%w: cannot specify both --pin and --unpin", shared.ErrInvalidArgument)
	}
	if err := r.open(); err != nil {
		return err
	}

	gs, err := r.settings.Get(id)
	if err != nil {
		return err
	}
	if cmd.IsSet("auto-update") {
		gs.AutoUpdate = cmd.Bool("auto-update")
	}
	if cmd.IsSet("lang") {
		gs.Language = cmd.String("lang")
	}
	if cmd.IsSet("launch-args") {
		gs.LaunchArgs = cmd.String("launch-args")
	}
	if err := r.settings.Set(id, gs); err != nil {
		return err
	}

	if cmd.IsSet("pin") || cmd.IsSet("unpin") {
		installed, ok := r.registry.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", shared.ErrNotInstalled, id)
		}
		installed.PinnedVersion = cmd.IsSet("pin")
		if err := r.registry.Put(id, installed); err != nil {
			return err
		}
	}

	r.logger.Info("settings saved", "game", id)
	return r.writePlain("✓ Settings saved for %s\n", id)
}

// TelemetryFlush sends every deferred play session.
func (r *Runner) TelemetryFlush(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	if r.recorder == nil {
		return fmt.Errorf("%w: telemetry endpoint is not configured", shared.ErrInvalidConfig)
	}
	if !r.checkConnectivity(ctx) {
		return fmt.Errorf("%w: sessions stay queued until connectivity returns", shared.ErrUnreachable)
	}

	n, err := r.recorder.Flush(ctx)
	r.writePlain("Delivered %d session(s)\n", n)
	return err
}

// Status reports connectivity, logins, installs, deferred telemetry and unfinished operations.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	r.writePlain("%s\n", r.palette.Title("gamekeep status"))
	if r.gate() == nil {
		r.writePlain("Network:   %s\n", r.palette.Help("not probed"))
	} else {
		online := r.checkConnectivity(ctx)
		line := r.palette.Online(online)
		if !online {
			line += fmt.Sprintf(" (next check in %s)", r.monitor.NextDelay())
		}
		r.writePlain("Network:   %s\n", line)
	}

	for _, b := range r.backends.All() {
		login := r.palette.Err("logged out")
		if r.tokens.IsLoggedIn(b.Name()) {
			login = r.palette.OK("logged in")
		}
		r.writePlain("%-10s %s, %d installed\n", b.Name()+":", login, len(r.registry.List(b.Name())))
	}

	unfinished, err := r.jobs.ByStatus(models.JobQueued, models.JobRunning)
	if err != nil {
		return err
	}
	r.writePlain("Queue:     %d unfinished operation(s)\n", len(unfinished))

	if r.recorder == nil {
		return r.writePlain("Telemetry: %s\n", r.palette.Help("disabled"))
	}
	scopes, err := r.recorder.Queue().Scopes()
	if err != nil {
		return err
	}
	pending := 0
	for _, scope := range scopes {
		list, err := r.recorder.Queue().Pending(scope)
		if err != nil {
			return err
		}
		pending += len(list)
	}
	return r.writePlain("Telemetry: %d session(s) waiting\n", pending)
}

// CacheClear drops cached game metadata for every backend, or only --backend.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	prefix := "gameinfo."
	if raw := cmd.String("backend"); raw != "" {
		tag, err := models.ParseBackend(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		prefix += string(tag)
	}

	names, err := r.store.Namespaces()
	if err != nil {
		return err
	}
	cleared := 0
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := r.store.Namespace(name).Clear(); err != nil {
			return fmt.Errorf("failed to clear %s: %w", name, err)
		}
		cleared++
	}

	r.logger.Info("cache cleared", "namespaces", cleared)
	return r.writePlain("✓ Cleared %d cache namespace(s)\n", cleared)
}
