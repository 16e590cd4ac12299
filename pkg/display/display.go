package display

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"golang.org/x/term"
)

// Console writes the user-facing one-liners ("Pushed x (conflict)",
// "Now at patch ..."). Informational lines go to stdout, errors and
// hints to stderr; the error and hint prefixes are colored when color
// is enabled.
type Console struct {
	stdout io.Writer
	stderr io.Writer
	color  bool
}

func New(stdout, stderr io.Writer) *Console {
	return &Console{stdout: stdout, stderr: stderr}
}

// Default is the process console; error coloring follows stderr.
func Default() *Console {
	return &Console{
		stdout: os.Stdout,
		stderr: os.Stderr,
		color:  isatty.IsTerminal(os.Stderr.Fd()),
	}
}

func (c *Console) WithColor(color bool) *Console {
	d := *c
	d.color = color
	return &d
}

func (c *Console) Info(format string, args ...any) {
	fmt.Fprintf(c.stdout, format+"\n", args...)
}

func (c *Console) Error(format string, args ...any) {
	prefix := "error: "
	if c.color {
		prefix = ansi.Color(prefix, "red")
	}
	fmt.Fprintf(c.stderr, prefix+format+"\n", args...)
}

func (c *Console) Note(format string, args ...any) {
	prefix := "hint: "
	if c.color {
		prefix = ansi.Color(prefix, "yellow")
	}
	fmt.Fprintf(c.stderr, prefix+format+"\n", args...)
}

// Width reports the terminal width of stdout, or fallback when stdout
// is not a terminal.
func Width(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}
