//go:build unix

package hook

import (
	"os/exec"
	"syscall"
)

// setDetached puts the spawned supervisor in its own session so it
// survives the dispatcher process exiting.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
