package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/gamekeep/internal/backends"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/registry"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// Skip reasons reported by [Sweeper.Run].
const (
	SkipPinned      = "pinned version"
	SkipOptedOut    = "auto-update disabled"
	SkipUnavailable = "unavailable"
	SkipQueued      = "already queued"
)

// Skipped is a game the sweep left alone, with the reason.
type Skipped struct {
	Identity models.GameIdentity
	Reason   string
}

// SweepResult lists what an auto-update sweep enqueued and what it skipped.
type SweepResult struct {
	Enqueued []models.GameIdentity
	Skipped  []Skipped
}

// Sweeper finds installed games with a newer remote build and enqueues updates.
type Sweeper struct {
	backends *backends.Set
	registry *registry.Registry
	queue    *Queue
	limiter  *rate.Limiter
	logger   *log.Logger
}

// NewSweeper paces metadata lookups at perSecond. Zero or less means unpaced.
func NewSweeper(set *backends.Set, reg *registry.Registry, queue *Queue, perSecond float64, logger *log.Logger) *Sweeper {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Sweeper{
		backends: set,
		registry: reg,
		queue:    queue,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   shared.WithLogger(logger, "component", "sweep"),
	}
}

// Run checks every installed game of every backend. Update requests are
// enqueued one at a time as each game is found outdated.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	for _, b := range s.backends.All() {
		for _, installed := range s.registry.List(b.Name()) {
			id := models.NewGameIdentity(installed.AppName, b.Name())
			skip := func(reason string) {
				s.logger.Debug("skipped", "game", id, "reason", reason)
				result.Skipped = append(result.Skipped, Skipped{Identity: id, Reason: reason})
			}

			if installed.PinnedVersion {
				skip(SkipPinned)
				continue
			}
			if gs, err := b.GetSettings(id.AppName); err == nil && !gs.AutoUpdate {
				skip(SkipOptedOut)
				continue
			}
			if !b.IsGameAvailable(id.AppName) {
				skip(SkipUnavailable)
				continue
			}
			if s.queue.Has(id) {
				skip(SkipQueued)
				continue
			}

			if err := s.limiter.Wait(ctx); err != nil {
				return result, err
			}

			info, err := b.GetGameInfo(ctx, id.AppName)
			if err != nil {
				s.logger.Warn("failed to check for updates", "game", id, "err", err)
				skip(fmt.Sprintf("%s: %v", SkipUnavailable, err))
				continue
			}
			if !info.UpdateAvailable(installed) {
				continue
			}

			ok, err := s.queue.Enqueue(models.NewOperationRequest(id, models.OpUpdate, "", models.WithPlatform(installed.Platform)))
			if err != nil {
				return result, err
			}
			if !ok {
				skip(SkipQueued)
				continue
			}
			result.Enqueued = append(result.Enqueued, id)
		}
	}

	s.logger.Info("sweep finished", "enqueued", len(result.Enqueued), "skipped", len(result.Skipped))
	return result, nil
}
