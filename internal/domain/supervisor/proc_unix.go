//go:build unix

package supervisor

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcAttr starts the child in its own process group so the whole tree
// can be signalled at once
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalTree(h *ProcessHandle, force bool) error {
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	err := syscall.Kill(-h.PID, sig)
	if errors.Is(err, syscall.ESRCH) {
		// group already gone, try the leader directly
		err = h.cmd.Process.Signal(sig)
	}
	return err
}
