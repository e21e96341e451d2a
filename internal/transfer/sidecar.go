package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/fileutil"
)

// MetaSuffix is appended to a destination path to form its sidecar path.
// The cache's stale-partial sweep matches on the same suffix.
const MetaSuffix = ".dlmeta"

// Sidecar records enough state beside a partial download to safely resume
// or invalidate it. It is written before the first body byte streams and
// deleted only once the transfer is verified complete.
type Sidecar struct {
	URL          string    `json:"url"`
	ExpectedSize int64     `json:"expected_size"` // server-declared total; -1 when unknown
	Validator    string    `json:"validator,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

// SidecarPath returns the sidecar path for a destination file.
func SidecarPath(destPath string) string {
	return destPath + MetaSuffix
}

// readSidecar loads the sidecar for destPath. Returns os.ErrNotExist when
// no sidecar is present.
func readSidecar(destPath string) (*Sidecar, error) {
	data, err := os.ReadFile(SidecarPath(destPath)) //nolint:gosec // G304: path is caller-controlled by contract
	if err != nil {
		return nil, err
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode sidecar %s: %w", SidecarPath(destPath), err)
	}
	return &sc, nil
}

// writeSidecar persists the sidecar atomically so a crash mid-write cannot
// leave a truncated marker that would be mistaken for valid resume state.
func writeSidecar(destPath string, sc *Sidecar) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := fileutil.WriteFileAtomic(SidecarPath(destPath), data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

// removeSidecar deletes the sidecar. A missing sidecar is not an error.
func removeSidecar(destPath string) error {
	if err := os.Remove(SidecarPath(destPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove sidecar: %w", err)
	}
	return nil
}

// purgeState removes both the partial data file and its sidecar,
// best-effort. Used when resume state is untrustworthy or a completed file
// fails size verification.
func purgeState(destPath string) {
	_ = os.Remove(destPath)
	_ = os.Remove(SidecarPath(destPath))
}
