//go:build unix

package mcp

import (
	"os/exec"
	"syscall"
)

// detachFromTerminal puts the child in its own process group so signals
// the terminal sends to the agent's foreground group, such as the SIGINT
// from Ctrl-C, do not reach it.
func detachFromTerminal(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
