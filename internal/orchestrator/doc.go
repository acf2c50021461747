// Package orchestrator decides, exactly once per hire, which onboarding
// actions have already run and which remain, and drives the ones that
// remain through pluggable executors.
//
// Workers consume triggers from a shared FIFO queue. The only shared
// mutable state is the store, and the only coordination is its
// compare-and-swap Transition: a worker that loses the claim to InProgress
// simply skips the action. Processing the same event any number of times is
// therefore safe, which is the property the whole design leans on - the
// event source is at-least-once and duplicate triggers are normal.
//
// The orchestrator performs no I/O of its own beyond store transitions and
// executor calls. Retries are scheduled re-enqueues with capped exponential
// backoff, never blocking sleeps, so one hire's backoff cannot stall
// another hire's processing.
package orchestrator
