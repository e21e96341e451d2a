//go:build !unix

package process

import "os/exec"

// configureSysProcAttr is a no-op on non-unix platforms. Windows children
// are not tied to the parent's lifetime, so no detaching is needed.
func configureSysProcAttr(_ *exec.Cmd) {}
