package backends

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/gamekeep/internal/kv"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/process"
	"github.com/desertthunder/gamekeep/internal/registry"
	"github.com/desertthunder/gamekeep/internal/settings"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// Backend is the capability surface every store implements.
type Backend interface {
	// Name returns the backend tag.
	Name() models.Backend

	// GetGameInfo returns remote metadata, served from cache while fresh.
	GetGameInfo(ctx context.Context, appName string) (models.GameInfo, error)

	// GetSettings returns the per-game settings, defaulting to auto-update.
	GetSettings(appName string) (models.GameSettings, error)

	Install(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome
	Update(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome

	// Repair verifies the installed files using the parameters recorded at install time. Request overrides are ignored.
	Repair(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome

	// ImportGame registers an existing installation found at req.TargetPath.
	ImportGame(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome

	// MoveInstall relocates an installation under req.TargetPath.
	MoveInstall(ctx context.Context, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome

	// Uninstall removes the registry entry first, then files best-effort.
	Uninstall(ctx context.Context, appName string) models.OperationOutcome

	// Launch runs the game and blocks until it exits or [Backend.Stop] is called.
	Launch(ctx context.Context, appName string, args []string) error
	Stop(appName string) error

	// IsNative reports whether the installed build targets the host OS.
	IsNative(appName string) bool

	// IsGameAvailable reports whether the game is installed and its files are present.
	IsGameAvailable(appName string) bool
}

// Credentials is the consumed credentials provider.
type Credentials interface {
	Token(backend models.Backend) (string, bool)
	IsLoggedIn(backend models.Backend) bool
}

// Gate reports connectivity. A nil Gate means always online.
type Gate interface {
	IsOnline() bool
}

// Deps are the collaborators shared by all variants.
type Deps struct {
	Launcher    process.Launcher
	Registry    *registry.Registry
	Credentials Credentials
	Settings    *settings.Store
	Gate        Gate
	// Store holds the game info cache namespaces. Nil disables caching.
	Store *kv.Store
	// InfoLifespan is the game info cache lifespan; zero never expires.
	InfoLifespan time.Duration
	Logger       *log.Logger
}

// Execute dispatches req to the operation matching its kind.
func Execute(ctx context.Context, b Backend, req models.OperationRequest, onProgress models.ProgressFunc) models.OperationOutcome {
	switch req.Kind {
	case models.OpInstall:
		return b.Install(ctx, req, onProgress)
	case models.OpUpdate:
		return b.Update(ctx, req, onProgress)
	case models.OpRepair:
		return b.Repair(ctx, req, onProgress)
	case models.OpImport:
		return b.ImportGame(ctx, req, onProgress)
	case models.OpMoveInstall:
		return b.MoveInstall(ctx, req, onProgress)
	default:
		return models.Failed(fmt.Errorf("%w: unknown operation kind %q", shared.ErrInvalidInput, req.Kind))
	}
}

// Set maps backend tags to their implementation.
type Set struct {
	backends map[models.Backend]Backend
}

func NewSet(bs ...Backend) *Set {
	s := &Set{backends: make(map[models.Backend]Backend, len(bs))}
	for _, b := range bs {
		s.backends[b.Name()] = b
	}
	return s
}

// Get returns the backend for tag, wrapping [shared.ErrUnknownBackend] when none is registered.
func (s *Set) Get(tag models.Backend) (Backend, error) {
	b, ok := s.backends[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownBackend, tag)
	}
	return b, nil
}

// Resolve returns the backend owning id.
func (s *Set) Resolve(id models.GameIdentity) (Backend, error) {
	return s.Get(id.Backend)
}

// All returns the registered backends ordered by tag.
func (s *Set) All() []Backend {
	all := make([]Backend, 0, len(s.backends))
	for _, b := range s.backends {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })
	return all
}

// New builds the variant for tag.
func New(tag models.Backend, binary string, deps Deps) (Backend, error) {
	switch tag {
	case models.GOG:
		return NewGOG(binary, deps), nil
	case models.Legendary:
		return NewLegendary(binary, deps), nil
	case models.Nile:
		return NewNile(binary, deps), nil
	default:
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownBackend, tag)
	}
}
