package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gamekeep/internal/formatter"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// requestOptions maps the shared operation flags onto request options.
func requestOptions(cmd *cli.Command) []models.RequestOption {
	var opts []models.RequestOption
	if v := cmd.String("platform"); v != "" {
		opts = append(opts, models.WithPlatform(v))
	}
	if v := cmd.String("branch"); v != "" {
		opts = append(opts, models.WithBranch(v))
	}
	if v := cmd.String("build"); v != "" {
		opts = append(opts, models.WithBuild(v))
	}
	if v := cmd.String("lang"); v != "" {
		opts = append(opts, models.WithLanguage(v))
	}
	// An unset --dlc keeps the installed DLCs on update.
	if cmd.IsSet("dlc") {
		opts = append(opts, models.WithDLCs(cmd.StringSlice("dlc")...))
	}
	return opts
}

// runOperation enqueues req behind any recovered work, drains the queue and reports req's outcome.
func (r *Runner) runOperation(ctx context.Context, req models.OperationRequest) error {
	if err := r.open(); err != nil {
		return err
	}
	if _, err := r.backends.Resolve(req.Identity); err != nil {
		return err
	}
	if !r.checkConnectivity(ctx) {
		r.logger.Warn("no connectivity", "retry_in", r.monitor.NextDelay())
	}

	printer := newProgressPrinter(r.output, r.palette)
	q, err := r.newQueue(ctx, printer)
	if err != nil {
		return err
	}

	queued, err := q.Enqueue(req)
	if err != nil {
		return err
	}
	if !queued {
		r.logger.Info("running the pending request instead", "game", req.Identity, "reason", shared.ErrAlreadyQueued)
	}

	if err := q.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	outcome, ok := printer.Outcome(req.Identity)
	switch {
	case !ok:
		return fmt.Errorf("%w: %s did not run", shared.ErrCancelled, req.Identity)
	case outcome.Status == models.OutcomeAbort:
		return fmt.Errorf("%w: %s", shared.ErrCancelled, formatter.Outcome(req.Identity, outcome))
	case !outcome.OK():
		return fmt.Errorf("%s %s failed: %s", req.Kind, req.Identity, outcome.Message)
	}
	return nil
}

// Install downloads a game into --path, defaulting to <data_dir>/games.
func (r *Runner) Install(ctx context.Context, cmd *cli.Command) error {
	id, err := r.identityArg(cmd, "game")
	if err != nil {
		return err
	}
	path := cmd.String("path")
	if path == "" {
		if err := r.open(); err != nil {
			return err
		}
		path = filepath.Join(r.config.Paths.DataDir, "games")
	}
	if path, err = shared.ExpandPath(path); err != nil {
		return err
	}

	r.logger.Info("installing", "game", id, "path", path)
	return r.runOperation(ctx, models.NewOperationRequest(id, models.OpInstall, path, requestOptions(cmd)...))
}

// Update brings an installed game to the latest build, or to --build when given.
func (r *Runner) Update(ctx context.Context, cmd *cli.Command) error {
	id, err := r.identityArg(cmd, "game")
	if err != nil {
		return err
	}
	return r.runOperation(ctx, models.NewOperationRequest(id, models.OpUpdate, "", requestOptions(cmd)...))
}

// Repair verifies installed files with the parameters recorded at install time.
func (r *Runner) Repair(ctx context.Context, cmd *cli.Command) error {
	id, err := r.identityArg(cmd, "game")
	if err != nil {
		return err
	}
	return r.runOperation(ctx, models.NewOperationRequest(id, models.OpRepair, ""))
}

// Import registers an existing installation found at --path.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	id, err := r.identityArg(cmd, "game")
	if err != nil {
		return err
	}
	path, err := shared.ExpandPath(cmd.String("path"))
	if err != nil {
		return err
	}
	return r.runOperation(ctx, models.NewOperationRequest(id, models.OpImport, path, requestOptions(cmd)...))
}

// Move relocates an installation under --to.
func (r *Runner) Move(ctx context.Context, cmd *cli.Command) error {
	id, err := r.identityArg(cmd, "game")
	if err != nil {
		return err
	}
	path, err := shared.ExpandPath(cmd.String("to"))
	if err != nil {
		return err
	}
	return r.runOperation(ctx, models.NewOperationRequest(id, models.OpMoveInstall, path))
}

// Uninstall removes a game. It does not go through the queue.
func (r *Runner) Uninstall(ctx context.Context, cmd *cli.Command) error {
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

	outcome := b.Uninstall(ctx, id.AppName)
	r.writePlain("%s\n", r.palette.Outcome(outcome, formatter.Outcome(id, outcome)))
	if !outcome.OK() {
		return fmt.Errorf("uninstall %s failed: %s", id, outcome.Message)
	}
	return nil
}

// Launch runs a game until it exits or the command is interrupted, then reports the play session.
func (r *Runner) Launch(ctx context.Context, cmd *cli.Command) error {
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

	if !b.IsNative(id.AppName) {
		r.logger.Info("launching a non-native build", "game", id)
	}

	if r.recorder != nil {
		// Sessions deferred by earlier runs go out as soon as connectivity returns.
		stop := r.recorder.Queue().Watch(context.WithoutCancel(ctx), r.monitor)
		defer stop()
	}

	started := time.Now()
	launchErr := b.Launch(ctx, id.AppName, cmd.StringSlice("arg"))
	session := models.PlaySession{Identity: id, StartedAt: started, EndedAt: time.Now()}

	if r.recorder != nil {
		report := context.WithoutCancel(ctx)
		r.checkConnectivity(report)
		if err := r.recorder.Record(report, r.config.Telemetry.User, session); err != nil {
			r.logger.Warn("failed to record play session", "game", id, "err", err)
		}
	}

	if launchErr != nil {
		return launchErr
	}
	return r.writePlain("%s played for %s\n", id, formatter.Elapsed(session.Duration()))
}
