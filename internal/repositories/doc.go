// Package repositories implements SQLite persistence for the operation journal.
//
// [JobRepository] records one row per queued request and tracks it through
// queued, running and its terminal status. Rows left running or queued by a
// crashed process are found with [JobRepository.ByStatus] at startup.
//
// Sequence numbers give a stable enqueue order independent of UUIDs and clock
// skew. [NextSequence] atomically increments per-table counters kept in
// dedicated sequence tables. Deletes are soft: deleted_at is set and the row
// is excluded from every query.
package repositories
