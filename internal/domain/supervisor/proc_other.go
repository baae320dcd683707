//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {}

func signalTree(h *ProcessHandle, force bool) error {
	if !force {
		if err := h.cmd.Process.Signal(os.Interrupt); err == nil {
			return nil
		}
	}
	return h.cmd.Process.Kill()
}
