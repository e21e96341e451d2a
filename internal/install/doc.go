// Package install orchestrates the download-then-extract sequence that
// turns a remote bundle into an installed directory tree.
//
// Downloads land in a content cache folder and extraction reads from it,
// so a failed or cancelled install resumes from whatever the cache already
// holds. Multi-file bundles are processed strictly in order with a single
// aggregate progress stream across the batch.
package install
