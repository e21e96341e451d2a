// Package launcher manages large external application bundles end to end:
// resumable download into a bounded content cache, archive extraction, and
// launching the installed application on a coordinated local port.
//
// # Basic Usage
//
//	import launcher "github.com/Comfy-Org/ComfyUI-Launcher"
//
//	ctx := context.Background()
//
//	svc, err := launcher.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = svc.InstallSingle(ctx, bundleURL, installDir, "comfyui-v1", bundleSize,
//	    func(phase launcher.Phase, percent float64, status string) {
//	        fmt.Printf("%s %5.1f%% %s\n", phase, percent, status)
//	    })
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := svc.Launch(ctx, launcher.LaunchSpec{
//	    Name:    "comfyui",
//	    Command: filepath.Join(installDir, "run.sh"),
//	    WorkDir: installDir,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Stop(10 * time.Second) // Returns nil on success; safe to ignore in defer
//
// # Coordination
//
// Independent launcher processes coordinate through the filesystem: an OS
// advisory lock serializes cache mutation, and per-port JSON lock files
// record which instance owns a listening port. Launched processes are
// detached and deliberately survive the launcher itself; a later launcher
// recognizes them through the port locks.
//
// # Failure Semantics
//
// Errors carry their recovery contract in their type: ValidationError means
// corrupted state was purged and a plain retry cannot succeed,
// NetworkError and CancelledError mean resumable state was preserved,
// ExtractionError means the cached archive is intact and only extraction
// needs repeating. See the error types re-exported by this package.
package launcher
