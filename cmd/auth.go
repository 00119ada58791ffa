package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/shared"
)

// AuthLogin opens the store's login page and stores the code the user pastes back.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	tag, err := r.backendArg(cmd, "backend")
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	code := cmd.String("code")
	if code == "" {
		bc, _ := r.config.Backend(string(tag))
		if bc.LoginURL == "" {
			return fmt.Errorf("%w: no login_url for %s", shared.ErrInvalidConfig, tag)
		}

		r.writePlain("Opening %s login page...\n", tag)
		if err := shared.OpenBrowser(bc.LoginURL); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
			r.writePlain("Visit this URL to log in:\n%s\n", bc.LoginURL)
		}

		r.writePlain("Paste the authorization code: ")
		line, err := bufio.NewReader(r.input).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}
		code = strings.TrimSpace(line)
	}
	if code == "" {
		return fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	return r.saveToken(tag, code, cmd.Duration("expires-in"))
}

// AuthToken stores an access token obtained elsewhere.
func (r *Runner) AuthToken(ctx context.Context, cmd *cli.Command) error {
	tag, err := r.backendArg(cmd, "backend")
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}
	return r.saveToken(tag, cmd.String("token"), cmd.Duration("expires-in"))
}

// AuthLogout forgets the stored token.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	tag, err := r.backendArg(cmd, "backend")
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}
	if err := r.tokens.Logout(tag); err != nil {
		return err
	}
	r.logger.Info("logged out", "backend", tag)
	return r.writePlain("✓ Logged out of %s\n", tag)
}

func (r *Runner) saveToken(tag models.Backend, access string, expiresIn time.Duration) error {
	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if expiresIn > 0 {
		tok.Expiry = time.Now().Add(expiresIn)
	}
	if err := r.tokens.Save(tag, tok); err != nil {
		return err
	}

	r.logger.Info("token saved", "backend", tag)
	return r.writePlain("✓ Logged in to %s\n", tag)
}
