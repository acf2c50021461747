// Package hire defines the core data model for onboarding processing:
// events detected from the system of record, per-action run records, and
// the status state machine that governs them.
//
// The (HireID, ActionID) pair is the idempotency key for the whole system.
// Exactly one logical execution of an action per hire is permitted, and
// every status change flows through the transition rules in this package.
//
// Attribute fingerprints use canonical JSON (NFC-normalized strings, keys
// sorted by UTF-16 code units) hashed with domain-separated SHA-256, so the
// same row content always yields the same fingerprint regardless of source
// encoding quirks.
package hire
