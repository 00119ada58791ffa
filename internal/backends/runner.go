package backends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"github.com/desertthunder/gamekeep/internal/cache"
	"github.com/desertthunder/gamekeep/internal/kv"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/process"
	"github.com/desertthunder/gamekeep/internal/progress"
	"github.com/desertthunder/gamekeep/internal/registry"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// command is a best-effort side invocation such as an uninstaller script.
type command struct {
	name string
	args []string
	dir  string
}

// dialect is the store-specific part of a backend: downloader arguments,
// output patterns, metadata layout and platform hooks.
type dialect interface {
	tag() models.Backend
	patterns() progress.PatternSet
	defaultPlatform() string

	installArgs(req models.OperationRequest, platform string) []string
	updateArgs(req models.OperationRequest, installed models.InstalledInfo, dlcs []string) []string
	repairArgs(installed models.InstalledInfo) []string
	importArgs(req models.OperationRequest, platform string) []string
	// moveArgs returns false when the downloader cannot move installs itself.
	moveArgs(installed models.InstalledInfo, targetBase string) ([]string, bool)
	infoArgs(appName, platform string) []string
	removeDLCArgs(installed models.InstalledInfo, dlc string) []string
	launchArgs(installed models.InstalledInfo, extra []string) []string

	parseInfo(appName string, doc gjson.Result) metadata
	uninstaller(binary string, installed models.InstalledInfo) (command, bool)
	postInstall(installed models.InstalledInfo) (command, bool)
}

// metadata is what an info call yields: remote game info plus install layout hints.
type metadata struct {
	Info       models.GameInfo `json:"info"`
	Folder     string          `json:"folder"`
	Executable string          `json:"executable"`
}

func (m metadata) folderOr(fallback string) string {
	if m.Folder != "" {
		return m.Folder
	}
	return fallback
}

// runner implements [Backend] on top of a dialect.
type runner struct {
	d      dialect
	binary string
	deps   Deps
	logger *log.Logger
	info   *cache.Cache[metadata]

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func newRunner(d dialect, binary string, deps Deps) *runner {
	if deps.Launcher == nil {
		deps.Launcher = process.NewExecLauncher(deps.Logger)
	}
	if deps.Registry == nil {
		deps.Registry = registry.New(kv.Memory().Namespace(registry.Namespace))
	}

	r := &runner{
		d:       d,
		binary:  binary,
		deps:    deps,
		logger:  shared.WithLogger(deps.Logger, "backend", d.tag()),
		running: make(map[string]context.CancelFunc),
	}
	if deps.Store != nil {
		ns := "gameinfo." + string(d.tag())
		r.info = cache.New[metadata](ns, deps.Store.Namespace(ns), deps.InfoLifespan)
	}
	return r
}

func (r *runner) Name() models.Backend { return r.d.tag() }

func (r *runner) identity(appName string) models.GameIdentity {
	return models.NewGameIdentity(appName, r.d.tag())
}

// preflight checks credentials and, when network is set, connectivity.
func (r *runner) preflight(network bool) error {
	tag := r.d.tag()
	if r.deps.Credentials != nil && !r.deps.Credentials.IsLoggedIn(tag) {
		return fmt.Errorf("%w: log in to %s first", shared.ErrNotAuthenticated, tag)
	}
	if network && r.deps.Gate != nil && !r.deps.Gate.IsOnline() {
		return fmt.Errorf("%w: %s needs a connection", shared.ErrUnreachable, tag)
	}
	return nil
}

func (r *runner) checkRequest(req models.OperationRequest) error {
	if req.Identity.Backend != r.d.tag() {
		return fmt.Errorf("%w: %s is not a %s game", shared.ErrInvalidInput, req.Identity, r.d.tag())
	}
	return req.Validate()
}

func (r *runner) env() []string {
	if r.deps.Credentials == nil {
		return nil
	}
	if tok, ok := r.deps.Credentials.Token(r.d.tag()); ok {
		return []string{"GAMEKEEP_ACCESS_TOKEN=" + tok}
	}
	return nil
}

func (r *runner) platformFor(p string) string {
	if p == "" {
		return r.d.defaultPlatform()
	}
	return p
}

// run executes the downloader, streaming its output through a fresh parser.
// The partial accumulator is dropped when the process ends.
func (r *runner) run(ctx context.Context, args []string, onProgress models.ProgressFunc) error {
	parser := progress.NewParser(r.d.patterns(), onProgress)
	_, err := r.deps.Launcher.Run(ctx, r.binary, args, process.Options{
		Env:      r.env(),
		OnOutput: func(_ process.Stream, line string) { parser.Feed(line) },
	})
	parser.Reset()
	return err
}

// classify maps a finished invocation onto a terminal outcome. ok is false when the operation should proceed.
func classify(ctx context.Context, err error) (models.OperationOutcome, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return models.Aborted(shared.ErrCancelled.Error()), true
	}
	if err != nil {
		return models.Failed(err), true
	}
	return models.OperationOutcome{}, false
}

// cancelled reports an abort outcome once ctx is done. Post-processing checks it
// before touching the registry so a cancelled operation never records a result.
func cancelled(ctx context.Context) (models.OperationOutcome, bool) {
	if ctx.Err() != nil {
		return models.Aborted(shared.ErrCancelled.Error()), true
	}
	return models.OperationOutcome{}, false
}

// bestEffort runs cmd and logs failures without propagating them.
func (r *runner) bestEffort(ctx context.Context, logger *log.Logger, step string, cmd command) {
	if _, err := r.deps.Launcher.Run(ctx, cmd.name, cmd.args, process.Options{Dir: cmd.dir, Env: r.env()}); err != nil {
		logger.Warn("best-effort step failed", "step", step, "err", err)
	}
}

// fetchInfo runs the downloader's info command and refreshes the cache.
func (r *runner) fetchInfo(ctx context.Context, appName, platform string) (metadata, error) {
	res, err := r.deps.Launcher.Run(ctx, r.binary, r.d.infoArgs(appName, r.platformFor(platform)), process.Options{Env: r.env()})
	if err != nil {
		return metadata{}, err
	}

	doc, err := jsonPayload(res.Stdout)
	if err != nil {
		return metadata{}, fmt.Errorf("%s info for %s: %w", r.d.tag(), appName, err)
	}

	meta := r.d.parseInfo(appName, doc)
	meta.Info.AppName = appName
	if r.info != nil {
		if err := r.info.Set(appName, meta); err != nil {
			r.logger.Warn("failed to cache game info", "app", appName, "err", err)
		}
	}
	return meta, nil
}

// metadata fetches post-operation metadata, degrading to an empty record on failure.
func (r *runner) metadata(ctx context.Context, logger *log.Logger, appName, platform string) metadata {
	meta, err := r.fetchInfo(ctx, appName, platform)
	if err != nil {
		logger.Warn("failed to fetch metadata", "err", err)
		return metadata{Info: models.GameInfo{AppName: appName}}
	}
	return meta
}

func (r *runner) GetGameInfo(ctx context.Context, appName string) (models.GameInfo, error) {
	if r.info != nil {
		if meta, ok, err := r.info.Get(appName); err == nil && ok {
			return meta.Info, nil
		}
	}
	if err := r.preflight(true); err != nil {
		return models.GameInfo{}, err
	}

	platform := ""
	if installed, ok := r.deps.Registry.Get(r.identity(appName)); ok {
		platform = installed.Platform
	}
	meta, err := r.fetchInfo(ctx, appName, platform)
	if err != nil {
		return models.GameInfo{}, err
	}
	return meta.Info, nil
}

func (r *runner) GetSettings(appName string) (models.GameSettings, error) {
	if r.deps.Settings == nil {
		return models.DefaultGameSettings(), nil
	}
	return r.deps.Settings.Get(r.identity(appName))
}

func (r *runner) Install(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome {
	if err := r.checkRequest(req); err != nil {
		return models.Failed(err)
	}
	app := req.Identity.AppName
	logger := r.logger.With("app", app, "op", req.Kind)

	if err := r.preflight(true); err != nil {
		return models.Failed(err)
	}

	platform := r.platformFor(req.Platform)
	if out, stop := classify(ctx, r.run(ctx, r.d.installArgs(req, platform), onProgress)); stop {
		logger.Info("install finished early", "status", out.Status, "message", out.Message)
		return out
	}

	meta := r.metadata(ctx, logger, app, platform)
	if out, stop := cancelled(ctx); stop {
		logger.Info("install cancelled after download")
		return out
	}
	installPath := filepath.Join(req.TargetPath, meta.folderOr(app))
	info := models.InstalledInfo{
		Platform:      platform,
		Executable:    meta.Executable,
		InstallPath:   installPath,
		InstallSize:   sizeOf(installPath, meta.Info.InstallSize),
		Version:       meta.Info.LatestVersion,
		BuildID:       firstNonEmpty(req.Build, meta.Info.LatestBuildID),
		Branch:        req.Branch,
		Language:      req.Language,
		InstalledDLCs: append([]string(nil), req.DLCs...),
		PinnedVersion: req.Build != "",
	}
	if err := r.deps.Registry.Put(req.Identity, info); err != nil {
		return models.Failed(err)
	}

	if cmd, ok := r.d.postInstall(info); ok {
		r.bestEffort(ctx, logger, "post-install", cmd)
	}

	logger.Info("installed", "path", installPath)
	return models.Done()
}

// requestedDLCs treats a nil selection as "keep what is installed".
func requestedDLCs(req models.OperationRequest, installed models.InstalledInfo) []string {
	if req.DLCs == nil {
		return append([]string(nil), installed.InstalledDLCs...)
	}
	return append([]string(nil), req.DLCs...)
}

func (r *runner) Update(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome {
	if err := r.checkRequest(req); err != nil {
		return models.Failed(err)
	}
	logger := r.logger.With("app", req.Identity.AppName, "op", req.Kind)

	installed, ok := r.deps.Registry.Get(req.Identity)
	if !ok {
		return models.Failed(fmt.Errorf("%w: %s", shared.ErrNotInstalled, req.Identity))
	}
	if err := r.preflight(true); err != nil {
		return models.Failed(err)
	}

	dlcs := requestedDLCs(req, installed)
	for _, dlc := range installed.RemovedDLCs(dlcs) {
		if ctx.Err() != nil {
			return models.Aborted(shared.ErrCancelled.Error())
		}
		r.bestEffort(ctx, logger, "remove dlc "+dlc, command{name: r.binary, args: r.d.removeDLCArgs(installed, dlc)})
	}

	if out, stop := classify(ctx, r.run(ctx, r.d.updateArgs(req, installed, dlcs), onProgress)); stop {
		return out
	}

	meta := r.metadata(ctx, logger, installed.AppName, installed.Platform)
	if out, stop := cancelled(ctx); stop {
		return out
	}
	updated := installed
	updated.Version = firstNonEmpty(meta.Info.LatestVersion, installed.Version)
	updated.BuildID = firstNonEmpty(req.Build, meta.Info.LatestBuildID, installed.BuildID)
	updated.Branch = firstNonEmpty(req.Branch, installed.Branch)
	updated.Language = firstNonEmpty(req.Language, installed.Language)
	updated.InstalledDLCs = dlcs
	updated.PinnedVersion = req.Build != ""
	updated.InstallSize = sizeOf(installed.InstallPath, firstPositive(meta.Info.InstallSize, installed.InstallSize))

	if err := r.deps.Registry.Put(req.Identity, updated); err != nil {
		return models.Failed(err)
	}
	logger.Info("updated", "version", updated.Version, "build", updated.BuildID)
	return models.Done()
}

func (r *runner) Repair(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome {
	if err := r.checkRequest(req); err != nil {
		return models.Failed(err)
	}
	logger := r.logger.With("app", req.Identity.AppName, "op", req.Kind)

	installed, ok := r.deps.Registry.Get(req.Identity)
	if !ok {
		return models.Failed(fmt.Errorf("%w: %s", shared.ErrNotInstalled, req.Identity))
	}
	if err := r.preflight(true); err != nil {
		return models.Failed(err)
	}

	if out, stop := classify(ctx, r.run(ctx, r.d.repairArgs(installed), onProgress)); stop {
		return out
	}

	if out, stop := cancelled(ctx); stop {
		return out
	}
	repaired := installed
	repaired.InstallSize = sizeOf(installed.InstallPath, installed.InstallSize)
	if err := r.deps.Registry.Put(req.Identity, repaired); err != nil {
		return models.Failed(err)
	}
	logger.Info("repaired")
	return models.Done()
}

func (r *runner) ImportGame(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome {
	if err := r.checkRequest(req); err != nil {
		return models.Failed(err)
	}
	app := req.Identity.AppName
	logger := r.logger.With("app", app, "op", req.Kind)

	if err := r.preflight(true); err != nil {
		return models.Failed(err)
	}

	platform := r.platformFor(req.Platform)
	if out, stop := classify(ctx, r.run(ctx, r.d.importArgs(req, platform), onProgress)); stop {
		return out
	}

	meta := r.metadata(ctx, logger, app, platform)
	if out, stop := cancelled(ctx); stop {
		return out
	}
	info := models.InstalledInfo{
		Platform:      platform,
		Executable:    meta.Executable,
		InstallPath:   req.TargetPath,
		InstallSize:   sizeOf(req.TargetPath, meta.Info.InstallSize),
		Version:       meta.Info.LatestVersion,
		BuildID:       meta.Info.LatestBuildID,
		Branch:        req.Branch,
		Language:      req.Language,
		InstalledDLCs: append([]string(nil), req.DLCs...),
	}
	if err := r.deps.Registry.Put(req.Identity, info); err != nil {
		return models.Failed(err)
	}
	logger.Info("imported", "path", req.TargetPath)
	return models.Done()
}

func (r *runner) MoveInstall(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome {
	if err := r.checkRequest(req); err != nil {
		return models.Failed(err)
	}
	logger := r.logger.With("app", req.Identity.AppName, "op", req.Kind)

	installed, ok := r.deps.Registry.Get(req.Identity)
	if !ok {
		return models.Failed(fmt.Errorf("%w: %s", shared.ErrNotInstalled, req.Identity))
	}

	dest := filepath.Join(req.TargetPath, filepath.Base(installed.InstallPath))
	if filepath.Clean(dest) == filepath.Clean(installed.InstallPath) {
		return models.Done()
	}

	if args, ok := r.d.moveArgs(installed, req.TargetPath); ok {
		if err := r.preflight(false); err != nil {
			return models.Failed(err)
		}
		if out, stop := classify(ctx, r.run(ctx, args, onProgress)); stop {
			return out
		}
	} else {
		if ctx.Err() != nil {
			return models.Aborted(shared.ErrCancelled.Error())
		}
		if err := moveDir(installed.InstallPath, dest); err != nil {
			return models.Failed(err)
		}
	}

	moved := installed
	moved.InstallPath = dest
	if err := r.deps.Registry.Put(req.Identity, moved); err != nil {
		return models.Failed(err)
	}
	logger.Info("moved", "from", installed.InstallPath, "to", dest)
	return models.Done()
}

func (r *runner) Uninstall(ctx context.Context, appName string) models.OperationOutcome {
	id := r.identity(appName)
	logger := r.logger.With("app", appName, "op", "uninstall")

	installed, ok := r.deps.Registry.Get(id)
	if !ok {
		return models.Failed(fmt.Errorf("%w: %s", shared.ErrNotInstalled, id))
	}

	removed, err := r.deps.Registry.Remove(id)
	if err != nil {
		return models.Failed(err)
	}
	if !removed {
		return models.Failed(fmt.Errorf("%w: %s", shared.ErrNotInstalled, id))
	}

	if cmd, ok := r.d.uninstaller(r.binary, installed); ok {
		r.bestEffort(ctx, logger, "uninstaller", cmd)
	}

	if path := filepath.Clean(installed.InstallPath); installed.InstallPath != "" && path != "/" && path != "." {
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to delete install directory", "path", path, "err", err)
		}
	}

	logger.Info("uninstalled")
	return models.Done()
}

func (r *runner) Launch(ctx context.Context, appName string, args []string) error {
	installed, ok := r.deps.Registry.Get(r.identity(appName))
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrNotInstalled, r.identity(appName))
	}
	if !r.IsGameAvailable(appName) {
		return fmt.Errorf("%w: %s files are missing", shared.ErrGameNotAvailable, appName)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if _, running := r.running[appName]; running {
		r.mu.Unlock()
		return fmt.Errorf("%s is already running", appName)
	}
	r.running[appName] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.running, appName)
		r.mu.Unlock()
	}()

	extra := args
	if gs, err := r.GetSettings(appName); err == nil && gs.LaunchArgs != "" {
		extra = append(strings.Fields(gs.LaunchArgs), args...)
	}

	_, err := r.deps.Launcher.Run(ctx, r.binary, r.d.launchArgs(installed, extra), process.Options{Dir: installed.InstallPath, Env: r.env()})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *runner) Stop(appName string) error {
	r.mu.Lock()
	cancel, ok := r.running[appName]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s is not running", appName)
	}
	cancel()
	return nil
}

func (r *runner) IsNative(appName string) bool {
	installed, ok := r.deps.Registry.Get(r.identity(appName))
	return ok && isNativePlatform(installed.Platform)
}

func (r *runner) IsGameAvailable(appName string) bool {
	installed, ok := r.deps.Registry.Get(r.identity(appName))
	if !ok || installed.InstallPath == "" {
		return false
	}
	_, err := os.Stat(installed.InstallPath)
	return err == nil
}

// jsonPayload extracts the first JSON document from downloader output that may carry log lines around it.
func jsonPayload(out string) (gjson.Result, error) {
	for i := 0; i < len(out); i++ {
		if out[i] != '{' && out[i] != '[' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(out[i:])).Decode(&raw); err == nil {
			return gjson.ParseBytes(raw), nil
		}
	}
	return gjson.Result{}, fmt.Errorf("no JSON document in output")
}

func hostPlatform() string {
	if runtime.GOOS == "darwin" {
		return "osx"
	}
	return runtime.GOOS
}

func isNativePlatform(p string) bool {
	switch strings.ToLower(p) {
	case "linux":
		return hostPlatform() == "linux"
	case "windows":
		return hostPlatform() == "windows"
	case "osx", "mac", "macos":
		return hostPlatform() == "osx"
	}
	return false
}

// sizeOf measures path on disk, falling back when nothing can be measured.
func sizeOf(path string, fallback int64) int64 {
	var total int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	if total > 0 {
		return total
	}
	return fallback
}

func moveDir(src, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%w: %s already exists", shared.ErrInvalidInput, dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("failed to move install: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
