package auth

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/gamekeep/internal/kv"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/shared"
)

func TestTokenStore(t *testing.T) {
	tests := []struct {
		name         string
		token        *oauth2.Token
		wantToken    bool
		wantLoggedIn bool
	}{
		{name: "no token"},
		{
			name:         "valid without expiry",
			token:        &oauth2.Token{AccessToken: "abc"},
			wantToken:    true,
			wantLoggedIn: true,
		},
		{
			name:         "valid with future expiry",
			token:        &oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(time.Hour)},
			wantToken:    true,
			wantLoggedIn: true,
		},
		{
			name:         "expired but refreshable",
			token:        &oauth2.Token{AccessToken: "abc", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)},
			wantLoggedIn: true,
		},
		{
			name:  "expired without refresh",
			token: &oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(-time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewTokenStore(kv.Memory().Namespace(Namespace))
			if tt.token != nil {
				if err := store.Save(models.GOG, tt.token); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
			}

			tok, ok := store.Token(models.GOG)
			if ok != tt.wantToken {
				t.Errorf("Token() ok = %v, want %v", ok, tt.wantToken)
			}
			if ok && tok != "abc" {
				t.Errorf("Token() = %q", tok)
			}
			if got := store.IsLoggedIn(models.GOG); got != tt.wantLoggedIn {
				t.Errorf("IsLoggedIn() = %v, want %v", got, tt.wantLoggedIn)
			}
			if store.IsLoggedIn(models.Nile) {
				t.Error("credentials are per backend")
			}
		})
	}
}

func TestTokenStoreLogout(t *testing.T) {
	store := NewTokenStore(kv.Memory().Namespace(Namespace))

	if err := store.Save(models.Legendary, nil); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil token, got %v", err)
	}

	store.Save(models.Legendary, &oauth2.Token{AccessToken: "epic"})
	if err := store.Logout(models.Legendary); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if store.IsLoggedIn(models.Legendary) {
		t.Error("expected logged out")
	}
	if tok, _ := store.Load(models.Legendary); tok != nil {
		t.Errorf("expected no stored token, got %+v", tok)
	}
}
