//go:build linux

package decoder

import (
	"os/exec"
	"syscall"
)

// setProcAttrs applies Linux-specific process attributes:
//   - Setpgid: isolates the decoder into its own process group so a single
//     kill reaps it together with anything it forked
//   - Pdeathsig: ensures the decoder receives SIGKILL if the server dies
func setProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// killGroup delivers SIGKILL to the decoder's process group.
func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
