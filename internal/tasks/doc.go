// Package tasks runs install, update, repair, import and move operations
// one at a time across every backend.
//
// # Queue
//
// [Queue] holds at most one item per game. Items move from queued to running
// to a terminal status and are then dropped. A single execution slot is shared
// by all backends; [Queue.Run] drains it in FIFO order.
//
//   - [Queue.Enqueue] rejects a game that is already queued or running
//   - [Queue.Remove] drops a queued item or cancels a running one and waits for it to settle
//   - [Queue.List] and [Queue.Peek] return read-only snapshots with elapsed times
//
// # Progress Reporting
//
// Snapshots and outcomes go to a [Sink] keyed by game. [ChannelSink] forwards
// snapshots without blocking (dropped when the buffer is full) and outcomes
// blocking. No snapshot is delivered after the outcome for the same run.
//
// # Journal
//
// An optional [Journal] records every item (repositories.JobRepository).
// [Recover] closes rows a crashed process left behind and requeues the ones
// that never started.
//
// # Auto-update
//
// [Sweeper] compares installed builds with remote metadata, paced by a rate
// limiter, and enqueues updates for games that opt in.
package tasks
