package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gamekeep/internal/auth"
	"github.com/desertthunder/gamekeep/internal/backends"
	"github.com/desertthunder/gamekeep/internal/connectivity"
	"github.com/desertthunder/gamekeep/internal/kv"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/offline"
	"github.com/desertthunder/gamekeep/internal/process"
	"github.com/desertthunder/gamekeep/internal/registry"
	"github.com/desertthunder/gamekeep/internal/repositories"
	"github.com/desertthunder/gamekeep/internal/settings"
	"github.com/desertthunder/gamekeep/internal/shared"
	"github.com/desertthunder/gamekeep/internal/tasks"
	"github.com/desertthunder/gamekeep/internal/ui"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Stores and backends are opened on first use by [Runner.open] and released by [Runner.Close].
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	palette    *ui.Palette
	launcher   process.Launcher

	store     *kv.Store
	db        *sql.DB
	registry  *registry.Registry
	settings  *settings.Store
	tokens    *auth.TokenStore
	monitor   *connectivity.Monitor
	backends  *backends.Set
	jobs      *repositories.JobRepository
	recorder  *offline.Recorder
	deliverer offline.SessionDeliverer
	opened    bool
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Input defaults to stdin. Store, DB, Launcher and Deliverer are built from the config when nil.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	Launcher   process.Launcher
	Store      *kv.Store
	DB         *sql.DB
	Deliverer  offline.SessionDeliverer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		palette:    ui.Default.For(opts.Output),
		launcher:   opts.Launcher,
		store:      opts.Store,
		db:         opts.DB,
		deliverer:  opts.Deliverer,
	}
	if r.launcher == nil {
		r.launcher = process.NewExecLauncher(opts.Logger)
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, installCommand, updateCommand, repairCommand, importCommand, moveCommand, uninstallCommand,
		launchCommand, infoCommand, installedCommand, queueCommand, historyCommand, authCommand, settingsCommand,
		telemetryCommand, statusCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the config named by --config and applies --log-level.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if r.configPath == "" {
		r.configPath = shared.DefaultConfigPath()
	}

	if r.config == nil {
		config, err := shared.LoadConfig(r.configPath)
		switch {
		case errors.Is(err, shared.ErrMissingConfig):
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
			config = shared.DefaultConfig()
		case err != nil:
			return ctx, err
		}
		r.config = config
	}

	level := r.config.Logging.Level
	if l := cmd.String("log-level"); l != "" {
		level = l
	}
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(level))
	return ctx, nil
}

// After releases whatever [Runner.open] acquired.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	return r.Close()
}

// open wires the stores, credentials, connectivity monitor, backends, journal and telemetry recorder.
func (r *Runner) open() error {
	if r.opened {
		return nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	if err := r.config.Validate(); err != nil {
		return err
	}

	if r.store == nil {
		path := r.config.Paths.Store
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := kv.Open(path)
		if err != nil {
			return err
		}
		r.store = store
	}

	if r.db == nil {
		path := r.config.Paths.Database
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		db, err := shared.OpenJournal(path)
		if err != nil {
			return err
		}
		r.db = db
	}
	r.jobs = repositories.NewJobRepository(r.db)

	reg, err := registry.Open(r.store.Namespace(registry.Namespace))
	if err != nil {
		return err
	}
	r.registry = reg
	r.settings = settings.NewStore(r.store.Namespace(settings.Namespace))
	r.tokens = auth.NewTokenStore(r.store.Namespace(auth.Namespace))

	conn := r.config.Connectivity
	r.monitor = connectivity.NewMonitor(connectivity.HTTPProbers(conn.Endpoints), connectivity.Options{
		BaseDelay:    conn.BaseDelay(),
		Increment:    conn.Increment(),
		ProbeTimeout: conn.ProbeTimeout(),
		Logger:       r.logger,
	})

	deps := backends.Deps{
		Launcher:     r.launcher,
		Registry:     r.registry,
		Credentials:  r.tokens,
		Settings:     r.settings,
		Store:        r.store,
		InfoLifespan: r.config.Cache.GameInfoLifespan(),
		Logger:       r.logger,
	}
	if gate := r.gate(); gate != nil {
		deps.Gate = gate
	}

	var enabled []backends.Backend
	for _, tag := range models.AllBackends() {
		bc, ok := r.config.Backend(string(tag))
		if !ok || !bc.Enabled {
			continue
		}
		b, err := backends.New(tag, bc.Binary, deps)
		if err != nil {
			return err
		}
		enabled = append(enabled, b)
	}
	r.backends = backends.NewSet(enabled...)

	// Telemetry stays off until an endpoint is configured.
	if r.deliverer == nil && r.config.Telemetry.Endpoint != "" {
		r.deliverer = offline.NewHTTPDeliverer(r.config.Telemetry.Endpoint, r.config.Telemetry.RetryMax, r.logger)
	}
	if r.deliverer != nil {
		r.recorder = offline.NewRecorder(r.store.Namespace(offline.Namespace), r.deliverer, r.offlineGate(), r.logger)
	}

	r.opened = true
	return nil
}

// gate returns the monitor, or nil when no probe endpoints are configured and the host is assumed online.
func (r *Runner) gate() *connectivity.Monitor {
	if len(r.config.Connectivity.Endpoints) == 0 {
		return nil
	}
	return r.monitor
}

func (r *Runner) offlineGate() offline.Gate {
	if g := r.gate(); g != nil {
		return g
	}
	return nil
}

// checkConnectivity runs one probe round when a gate is configured.
func (r *Runner) checkConnectivity(ctx context.Context) bool {
	g := r.gate()
	if g == nil {
		return true
	}
	return g.Check(ctx)
}

// Close stops the monitor and closes the stores.
func (r *Runner) Close() error {
	var errs []error
	if r.monitor != nil {
		r.monitor.Stop()
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
		r.store = nil
	}
	r.opened = false
	return errors.Join(errs...)
}

// newQueue builds a queue journaled to the jobs table and re-enqueues work left behind by an earlier run.
func (r *Runner) newQueue(ctx context.Context, sink tasks.Sink) (*tasks.Queue, error) {
	q := tasks.NewQueue(r.backends, tasks.Options{Sink: sink, Journal: r.jobs, Logger: r.logger})
	result, err := tasks.Recover(ctx, r.jobs, q, r.logger)
	if err != nil {
		return nil, err
	}
	if result.Requeued > 0 {
		r.writePlain("Resuming %d operation(s) from a previous run\n", result.Requeued)
	}
	return q, nil
}

// identityArg parses the "backend:app" argument named name.
func (r *Runner) identityArg(cmd *cli.Command, name string) (models.GameIdentity, error) {
	raw := cmd.StringArg(name)
	if raw == "" {
		return models.GameIdentity{}, fmt.Errorf("%w: %s (backend:app)", shared.ErrMissingArgument, name)
	}
	id, err := models.ParseGameIdentity(raw)
	if err != nil {
		return models.GameIdentity{}, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return id, nil
}

// backendArg parses the backend argument named name.
func (r *Runner) backendArg(cmd *cli.Command, name string) (models.Backend, error) {
	raw := cmd.StringArg(name)
	if raw == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	tag, err := models.ParseBackend(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return tag, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
