// Package extract unpacks archives into a target directory by delegating to
// an external decompression backend process.
//
// The backend's streamed percent indicator is parsed into progress updates,
// and its diagnostic output is classified: lines reporting only an
// unsupported compression method or filter are non-fatal (some filters are
// optional per platform), anything else is fatal. Split multi-part archives
// are handled by invoking the backend on the first part only; it follows
// subsequent parts by naming convention.
package extract
