// Package fileutil provides file operation utilities for directory and file management.
//
// EnsureDir creates directories recursively, and WriteFileAtomic writes small
// state files via temp-file-then-rename so concurrent readers never observe a
// partially written file. These are used throughout the launcher for preparing
// cache and data directories and for persisting transfer sidecars and port
// lock records.
package fileutil
