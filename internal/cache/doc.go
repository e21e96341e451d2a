// Package cache manages a bounded set of named folders under a base
// directory, evicted by recency.
//
// Recency is tracked through directory modification times: Touch bumps an
// entry's mtime and Evict deletes the oldest-touched folders beyond the
// configured bound. The base directory may be shared by independent
// processes, so mutating sweeps (Evict, CleanStalePartials) take an OS
// advisory file lock; Resolve and Touch stay lock-free.
package cache
