package command

import (
	"os/exec"
	"strings"
)

func FromError(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*exec.ExitError); ok {
		if len(e.Stderr) > 0 {
			var b strings.Builder
			b.WriteString(e.Error())
			b.WriteString(". stderr: ")
			b.Write(e.Stderr)
			return b.String()
		}
		return e.Error()
	}
	return err.Error()
}

func FromErrorCode(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := err.(*exec.ExitError); ok {
		return e.ExitCode()
	}
	return -1
}
