// Package models defines the domain entities shared by the installation core.
//
// The package contains two categories of types:
//
// 1. Value objects passed between components
//   - [GameIdentity] : (appName, backend) pair naming one installable title
//   - [InstalledInfo] : what the registry knows about an installed game
//   - [OperationRequest] : one immutable queued job description
//   - [OperationOutcome] : terminal result of an operation (done, error, abort)
//   - [ProgressSnapshot] : structured progress parsed from downloader output
//   - [GameInfo], [GameSettings], [PlaySession]
//
// 2. Persistent entities: database-backed models with lifecycle management
//   - [OperationJob] : journal row tracking one request from queued to terminal
//
// Persistent entities implement the Model interface. The Repository[T] interface defines standard CRUD operations for database access.
package models
