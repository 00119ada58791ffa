// Package settings stores per-game preferences such as the auto-update opt-out.
package settings

import (
	"fmt"

	"github.com/desertthunder/gamekeep/internal/kv"
	"github.com/desertthunder/gamekeep/internal/models"
)

const Namespace = "settings"

// Store reads and writes [models.GameSettings] keyed by identity.
type Store struct {
	bucket kv.Bucket
}

func NewStore(bucket kv.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Get returns the stored settings, or the defaults when none were saved.
func (s *Store) Get(id models.GameIdentity) (models.GameSettings, error) {
	gs := models.DefaultGameSettings()
	if _, err := s.bucket.Get(id.String(), &gs); err != nil {
		return models.DefaultGameSettings(), fmt.Errorf("failed to read settings for %s: %w", id, err)
	}
	return gs, nil
}

func (s *Store) Set(id models.GameIdentity, gs models.GameSettings) error {
	if err := s.bucket.Set(id.String(), gs); err != nil {
		return fmt.Errorf("failed to write settings for %s: %w", id, err)
	}
	return nil
}

// Reset drops stored settings so the defaults apply again.
func (s *Store) Reset(id models.GameIdentity) error {
	return s.bucket.Delete(id.String())
}
