// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func gameArgs() []cli.Argument {
	return []cli.Argument{&cli.StringArg{Name: "game", UsageText: "backend:app"}}
}

func backendArgs() []cli.Argument {
	return []cli.Argument{&cli.StringArg{Name: "backend", UsageText: "gog, legendary or nile"}}
}

// versionFlags select what gets downloaded.
func versionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "platform",
			Usage: "Target platform (windows, linux, mac)",
		},
		&cli.StringFlag{
			Name:  "branch",
			Usage: "Release branch",
		},
		&cli.StringFlag{
			Name:  "build",
			Usage: "Pin a specific build ID",
		},
		&cli.StringFlag{
			Name:  "lang",
			Usage: "Game language",
		},
		&cli.StringSliceFlag{
			Name:  "dlc",
			Usage: "DLC to install; repeat for several",
		},
	}
}

func expiresFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "expires-in",
		Usage: "Token lifetime, e.g. 8h (default: no expiry)",
	}
}

func formatFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: text, csv or json",
			Value:   "text",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}

// setupCommand initializes config, store and journal.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file, data directory and operation journal",
		Action: r.Setup,
	}
}

func installCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "install",
		Usage:     "Download and install a game",
		Arguments: gameArgs(),
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "Base directory for the install (default: <data_dir>/games)",
			},
		}, versionFlags()...),
		Action: r.Install,
	}
}

func updateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Update an installed game",
		Arguments: gameArgs(),
		Flags:     versionFlags(),
		Action:    r.Update,
	}
}

func repairCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "repair",
		Aliases:   []string{"verify"},
		Usage:     "Verify and repair installed files",
		Arguments: gameArgs(),
		Action:    r.Repair,
	}
}

func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Register an existing installation",
		Arguments: gameArgs(),
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "path",
				Aliases:  []string{"p"},
				Usage:    "Directory holding the game files",
				Required: true,
			},
		}, versionFlags()...),
		Action: r.Import,
	}
}

func moveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "move",
		Usage:     "Move an installation to another directory",
		Arguments: gameArgs(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "to",
				Usage:    "New base directory",
				Required: true,
			},
		},
		Action: r.Move,
	}
}

func uninstallCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "uninstall",
		Aliases:   []string{"rm"},
		Usage:     "Remove a game and its files",
		Arguments: gameArgs(),
		Action:    r.Uninstall,
	}
}

func launchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "launch",
		Aliases:   []string{"play"},
		Usage:     "Run an installed game and report the play session",
		Arguments: gameArgs(),
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "arg",
				Usage: "Extra argument passed to the game; repeat for several",
			},
		},
		Action: r.Launch,
	}
}

func infoCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show remote metadata and update status for a game",
		Arguments: gameArgs(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Info,
	}
}

func installedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "installed",
		Aliases: []string{"ls"},
		Usage:   "List installed games",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Only list one backend",
			},
		}, formatFlags()...),
		Action: r.Installed,
	}
}

// queueCommand handles bulk work: update sweeps and resuming interrupted runs.
func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Run queued operations",
		Commands: []*cli.Command{
			{
				Name:  "sweep",
				Usage: "Queue updates for every outdated game and run them",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "check",
						Usage: "Only report what would be updated",
					},
				},
				Action: r.QueueSweep,
			},
			{
				Name:  "resume",
				Usage: "Run operations left queued by an interrupted run",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "list",
						Usage: "Show the recovered queue without running it",
					},
				},
				Action: r.QueueResume,
			},
		},
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show the operation journal",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Filter by backend",
			},
			&cli.StringFlag{
				Name:  "app",
				Usage: "Filter by app name",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status (queued, running, done, error, aborted)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of rows",
				Value:   20,
			},
		}, formatFlags()...),
		Action: r.History,
	}
}

// authCommand manages store credentials.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage store logins",
		Commands: []*cli.Command{
			{
				Name:      "login",
				Usage:     "Open the store login page and save the returned code",
				Arguments: backendArgs(),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "code",
						Usage: "Authorization code, skipping the browser",
					},
					expiresFlag(),
				},
				Action: r.AuthLogin,
			},
			{
				Name:      "token",
				Usage:     "Save an access token directly",
				Arguments: backendArgs(),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Access token",
						Required: true,
					},
					expiresFlag(),
				},
				Action: r.AuthToken,
			},
			{
				Name:      "logout",
				Usage:     "Forget the stored token",
				Arguments: backendArgs(),
				Action:    r.AuthLogout,
			},
		},
	}
}

func settingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Per-game settings",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Print the settings for a game",
				Arguments: gameArgs(),
				Action:    r.SettingsShow,
			},
			{
				Name:      "set",
				Usage:     "Change settings for a game",
				Arguments: gameArgs(),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "auto-update",
						Usage: "Include the game in update sweeps",
					},
					&cli.StringFlag{
						Name:  "lang",
						Usage: "Preferred language",
					},
					&cli.StringFlag{
						Name:  "launch-args",
						Usage: "Arguments added to every launch",
					},
					&cli.BoolFlag{
						Name:  "pin",
						Usage: "Keep the installed version; sweeps skip it",
					},
					&cli.BoolFlag{
						Name:  "unpin",
						Usage: "Allow updates again",
					},
				},
				Action: r.SettingsSet,
			},
		},
	}
}

func telemetryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "telemetry",
		Usage: "Play-session reporting",
		Commands: []*cli.Command{
			{
				Name:   "flush",
				Usage:  "Send play sessions recorded while offline",
				Action: r.TelemetryFlush,
			},
		},
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show connectivity, logins and pending work",
		Action: r.Status,
	}
}

// cacheCommand manages the game metadata cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Game metadata cache",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Drop cached game metadata",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "backend",
						Aliases: []string{"b"},
						Usage:   "Only clear one backend",
					},
				},
				Action: r.CacheClear,
			},
		},
	}
}
