package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gamekeep/internal/shared"
)

// Setup writes a config file when none exists, then creates the data directory, the key-value store and the
// operation journal.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath, err := shared.ExpandPath(r.configPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("using existing config", "path", configPath)
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			config, err := shared.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load created config: %w", err)
			}
			r.config = config
		}
	}

	if err := r.open(); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	applied, err := shared.AppliedVersions(r.db)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	r.logger.Infof("setup complete for journal: %v", r.config.Paths.Database)

	r.writePlain("✓ gamekeep is ready\n")
	r.writePlain("Config:   %s\n", configPath)
	r.writePlain("Store:    %s\n", r.config.Paths.Store)
	r.writePlain("Journal:  %s (%d migration(s))\n", r.config.Paths.Database, len(applied))
	r.writePlainln("Next steps:")
	r.writePlain("1. Log in to a store: 'gamekeep auth login gog'\n")
	r.writePlain("2. Install a game: 'gamekeep install gog:<app>'\n")
	return nil
}
