// Package faults defines the error taxonomy shared by the transfer engine,
// extraction pipeline, install orchestrator, and process coordinator.
//
// Each category carries a distinct meaning for on-disk state:
// ValidationError purges corrupted partial state and is never retried,
// NetworkError preserves resumable state, CancelledError marks a
// user-initiated abort (never conflated with a network failure),
// ExtractionError never corrupts the source cache artifact, and
// TimeoutError on readiness polling is distinct from both cancellation
// and hard network failure because the target may still come up later.
package faults
