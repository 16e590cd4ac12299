package git

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stackform/stackform/modules/command"
)

// diffTreeSentinel delimits one query's output on the `diff-tree
// --stdin` stream: diff-tree echoes lines it cannot parse as object
// IDs, so writing the sentinel after each query makes it reappear at
// end-of-record. It must stay NUL-free — the echo is a C string and a
// NUL would truncate it — so the reader instead requires it to start a
// line, right after the terminator (\n or \0) of the previous record.
const diffTreeSentinel = "EOF\n"

type diffTreeProcess struct {
	cmd    *command.Command
	stdin  io.WriteCloser
	stdout io.Reader
}

// diffTreeProcesses pools one `diff-tree --stdin` child per distinct
// argument vector, torn down at process exit.
type diffTreeProcesses struct {
	repo  *Repository
	procs map[string]*diffTreeProcess
}

func newDiffTreeProcesses(repo *Repository) *diffTreeProcesses {
	return &diffTreeProcesses{repo: repo, procs: make(map[string]*diffTreeProcess)}
}

func (d *diffTreeProcesses) process(args []string) (*diffTreeProcess, error) {
	key := strings.Join(args, "\x00")
	if p, ok := d.procs[key]; ok {
		return p, nil
	}
	cmdArgs := append([]string{"diff-tree", "--stdin"}, args...)
	cmd := command.NewFromOptions(d.repo.ctx, &command.RunOpts{
		ExtraEnv: d.repo.ExtraEnv(),
		Stderr:   command.NewStderr(),
	}, "git", cmdArgs...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, err
	}
	p := &diffTreeProcess{cmd: cmd, stdin: stdin, stdout: stdout}
	d.procs[key] = p
	command.AtExit(func() {
		_ = p.stdin.Close()
		_ = p.cmd.Exit()
	})
	logrus.Debugf("diff-tree process started: %s", strings.Join(args, " "))
	return p, nil
}

// diffTrees queries one tree pair and returns the raw diff output
// between the echoed query line and the sentinel.
func (d *diffTreeProcesses) diffTrees(args []string, oidA, oidB string) ([]byte, error) {
	p, err := d.process(args)
	if err != nil {
		return nil, err
	}
	query := oidA + " " + oidB + "\n"
	if _, err := io.WriteString(p.stdin, query+diffTreeSentinel); err != nil {
		return nil, fmt.Errorf("writing diff-tree query: %w", err)
	}
	var data []byte
	buf := make([]byte, 4096)
	for !bytes.HasSuffix(data, []byte("\n"+diffTreeSentinel)) &&
		!bytes.HasSuffix(data, []byte("\x00"+diffTreeSentinel)) {
		n, err := p.stdout.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err != nil {
			return nil, fmt.Errorf("reading diff-tree output: %w", err)
		}
	}
	if !bytes.HasPrefix(data, []byte(query)) {
		return nil, fmt.Errorf("diff-tree output does not echo query %q", query)
	}
	return data[len(query) : len(data)-len(diffTreeSentinel)], nil
}
