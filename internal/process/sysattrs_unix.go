//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the game in its own process group so a Ctrl-C
// aimed at the supervisor's terminal is not delivered to the game directly;
// the supervisor decides how the game is stopped.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
