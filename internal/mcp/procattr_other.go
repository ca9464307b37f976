//go:build !unix

package mcp

import "os/exec"

func detachFromTerminal(*exec.Cmd) {}
