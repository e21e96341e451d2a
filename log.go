package launcher

import (
	"log/slog"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/core"
)

// SetLogger replaces the package-level logger used by launcher.
// This allows applications to integrate launcher logging with their own
// logging infrastructure. The provided logger should already have any
// desired attributes; launcher will not add additional attributes.
//
// If l is nil, the logger resets to the default: slog.Default() with
// "component" attribute, re-derived on the next use and then cached.
// Call SetLogger(nil) after slog.SetDefault() to pick up changes.
//
// SetLogger is safe to call concurrently with other launcher operations.
// It affects Services subsequently constructed without WithLogger; a
// Service built with an explicit logger keeps it.
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
