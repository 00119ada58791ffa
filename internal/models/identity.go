package models

import (
	"fmt"
	"strings"
)

// Backend tags which store implementation owns a game.
type Backend string

const (
	GOG       Backend = "gog"
	Legendary Backend = "legendary"
	Nile      Backend = "nile"
)

// AllBackends lists every known backend in a stable order.
func AllBackends() []Backend {
	return []Backend{GOG, Legendary, Nile}
}

// Valid reports whether b is a known backend tag.
func (b Backend) Valid() bool {
	switch b {
	case GOG, Legendary, Nile:
		return true
	}
	return false
}

func (b Backend) String() string { return string(b) }

// ParseBackend maps a user-supplied tag onto a [Backend]. "epic" and "amazon" are accepted as aliases.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gog":
		return GOG, nil
	case "legendary", "epic":
		return Legendary, nil
	case "nile", "amazon":
		return Nile, nil
	default:
		return "", fmt.Errorf("unknown backend %q", s)
	}
}

// GameIdentity names one installable title. Uniqueness is per backend.
type GameIdentity struct {
	AppName string  `json:"app_name"`
	Backend Backend `json:"backend"`
}

// NewGameIdentity builds an identity; it does not validate.
func NewGameIdentity(appName string, backend Backend) GameIdentity {
	return GameIdentity{AppName: appName, Backend: backend}
}

// String renders "backend:appName", the form accepted by [ParseGameIdentity].
func (g GameIdentity) String() string {
	return string(g.Backend) + ":" + g.AppName
}

// Validate checks that the identity has an app name and a known backend.
func (g GameIdentity) Validate() error {
	if g.AppName == "" {
		return fmt.Errorf("app name is required")
	}
	if !g.Backend.Valid() {
		return fmt.Errorf("unknown backend %q", g.Backend)
	}
	return nil
}

// ParseGameIdentity parses "backend:appName".
func ParseGameIdentity(s string) (GameIdentity, error) {
	tag, app, ok := strings.Cut(s, ":")
	if !ok || app == "" {
		return GameIdentity{}, fmt.Errorf("expected backend:app, got %q", s)
	}
	backend, err := ParseBackend(tag)
	if err != nil {
		return GameIdentity{}, err
	}
	return NewGameIdentity(app, backend), nil
}
