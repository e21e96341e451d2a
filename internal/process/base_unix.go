//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr detaches the child into its own session. The launched
// application must keep running when the launcher exits or crashes, and the
// new session makes the child's pid double as a process group id so a whole
// tree can be killed in one signal.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
