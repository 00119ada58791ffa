// Package auth persists store credentials and answers the backends' credential queries.
//
// Token acquisition and refresh belong to each store's own login flow; this
// package only records the resulting [oauth2.Token] per backend.
package auth

import (
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/desertthunder/gamekeep/internal/kv"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/shared"
)

const Namespace = "credentials"

// TokenStore keeps one [oauth2.Token] per backend.
type TokenStore struct {
	bucket kv.Bucket
	mu     sync.RWMutex
}

func NewTokenStore(bucket kv.Bucket) *TokenStore {
	return &TokenStore{bucket: bucket}
}

// Save records tok for backend, replacing any previous token.
func (s *TokenStore) Save(backend models.Backend, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.bucket.Set(string(backend), tok); err != nil {
		return fmt.Errorf("failed to save token for %s: %w", backend, err)
	}
	return nil
}

// Load returns the stored token, or nil when none was saved.
func (s *TokenStore) Load(backend models.Backend) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tok oauth2.Token
	found, err := s.bucket.Get(string(backend), &tok)
	if err != nil {
		return nil, fmt.Errorf("failed to read token for %s: %w", backend, err)
	}
	if !found {
		return nil, nil
	}
	return &tok, nil
}

// Token returns a non-expired access token for backend.
func (s *TokenStore) Token(backend models.Backend) (string, bool) {
	tok, err := s.Load(backend)
	if err != nil || tok == nil || !tok.Valid() {
		return "", false
	}
	return tok.AccessToken, true
}

// IsLoggedIn reports whether backend has a usable token, or an expired one that can be refreshed.
func (s *TokenStore) IsLoggedIn(backend models.Backend) bool {
	tok, err := s.Load(backend)
	if err != nil || tok == nil {
		return false
	}
	return tok.Valid() || tok.RefreshToken != ""
}

// Logout forgets the token for backend.
func (s *TokenStore) Logout(backend models.Backend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bucket.Delete(string(backend))
}
