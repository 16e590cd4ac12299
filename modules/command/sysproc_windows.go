//go:build windows

package command

import (
	"os/exec"
)

func setSysProcAttribute(c *exec.Cmd, _ bool) {
}

func cleanExit(c *exec.Cmd, _ bool) {
	if c.Process == nil {
		return
	}
	_ = c.Process.Kill()
}
