//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// detach starts the process in its own process group so it outlives
// signals aimed at ours
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate asks the process group to exit
func terminate(cmd *exec.Cmd, detached bool) error {
	if detached {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}

// kill force-stops the process group
func kill(cmd *exec.Cmd, detached bool) error {
	if detached {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return cmd.Process.Kill()
}
