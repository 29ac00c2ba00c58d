//go:build !windows

package hook

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts the hook in its own process group and makes
// cancellation kill the group, so children holding stdout die too.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
