package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")

	// Connectivity and process errors
	ErrUnreachable   = fmt.Errorf("network unreachable")
	ErrProcessFailed = fmt.Errorf("downloader process failed")
	ErrCancelled     = fmt.Errorf("operation cancelled")

	// Library state errors
	ErrNotInstalled     = fmt.Errorf("game not installed")
	ErrAlreadyQueued    = fmt.Errorf("game already queued")
	ErrUnknownBackend   = fmt.Errorf("unknown backend")
	ErrGameNotAvailable = fmt.Errorf("game not available")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
