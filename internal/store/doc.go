// Package store provides SQLite-backed durable storage for onboarding state.
//
// Three tables:
//   - onboarding_events: immutable record of every detected hire (audit)
//   - action_runs: one row per (hire_id, action_id), the idempotency key
//   - audit_log: append-only trail of every status change
//
// # Concurrency model
//
// The compare-and-swap Transition is the single coordination primitive for
// the whole system. A transition commits only if the row's current status
// matches the caller's expected status; under concurrent duplicate triggers
// exactly one claim to InProgress wins and every loser gets a ConflictError
// it can recover from locally. No external locks exist.
//
// # Durability
//
// All reads return the latest committed state; there is no caching layer.
// State survives process restart, which is what makes crash-safe retry and
// the compliance audit trail possible.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
