//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Windows has no SIGTERM, so terminate is a kill
func terminate(cmd *exec.Cmd, detached bool) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd, detached bool) error {
	return cmd.Process.Kill()
}
