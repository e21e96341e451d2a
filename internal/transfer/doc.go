// Package transfer implements a resumable, cancellable HTTP transfer engine.
//
// Each in-progress transfer is marked by a sidecar file next to the
// destination. The sidecar's presence is the sole signal that a transfer is
// incomplete: a destination file without its sidecar is complete, never
// inferred any other way. On failure or cancellation the partial file and
// sidecar are preserved so a later call resumes with a byte-range request;
// only a resume mismatch (URL change, unstattable partial) purges state.
package transfer
