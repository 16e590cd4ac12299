package git

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stackform/stackform/modules/command"
)

// catFileProcess is the long-lived `cat-file --batch` child shared by
// all object reads of one repository. It is started on first use and
// torn down (stdin close, SIGTERM, wait) at process exit.
type catFileProcess struct {
	repo   *Repository
	cmd    *command.Command
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

func newCatFileProcess(repo *Repository) *catFileProcess {
	return &catFileProcess{repo: repo}
}

func (p *catFileProcess) start() error {
	if p.cmd != nil {
		return nil
	}
	cmd := command.NewFromOptions(p.repo.ctx, &command.RunOpts{
		ExtraEnv: p.repo.ExtraEnv(),
		Stderr:   command.NewStderr(),
	}, "git", "cat-file", "--batch")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return err
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return err
	}
	p.cmd = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReader(stdout)
	command.AtExit(p.shutdown)
	logrus.Debugf("cat-file batch process started for %s", p.repo.Directory())
	return nil
}

func (p *catFileProcess) shutdown() {
	if p.cmd == nil {
		return
	}
	_ = p.stdin.Close()
	_ = p.cmd.Exit()
	p.cmd = nil
}

const missingSuffix = " missing"

// catFile requests one object and returns its type and payload. The
// batch protocol frames each record as "<oid> SP <type> SP <size> LF",
// exactly size payload bytes, and one trailing LF.
func (p *catFileProcess) catFile(oid string) (ObjectType, []byte, error) {
	if strings.IndexByte(oid, '\n') != -1 {
		return InvalidObject, nil, NewObjectNotFound(oid)
	}
	if err := p.start(); err != nil {
		return InvalidObject, nil, err
	}
	if _, err := io.WriteString(p.stdin, oid+"\n"); err != nil {
		return InvalidObject, nil, fmt.Errorf("writing object request: %w", err)
	}
	line, err := p.stdout.ReadString('\n')
	if err != nil {
		return InvalidObject, nil, fmt.Errorf("reading batch header: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	if strings.HasSuffix(line, missingSuffix) {
		return InvalidObject, nil, NewObjectNotFound(line[:len(line)-len(missingSuffix)])
	}
	fields := strings.Split(line, " ")
	if len(fields) != 3 {
		return InvalidObject, nil, fmt.Errorf("malformed batch header: %q", line)
	}
	typ, err := ParseObjectType(fields[1])
	if err != nil {
		return InvalidObject, nil, err
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return InvalidObject, nil, fmt.Errorf("malformed batch header: %q", line)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(p.stdout, payload); err != nil {
		return InvalidObject, nil, fmt.Errorf("reading object payload: %w", err)
	}
	// One framing newline closes the record.
	b, err := p.stdout.ReadByte()
	if err != nil {
		return InvalidObject, nil, fmt.Errorf("reading record terminator: %w", err)
	}
	if b != '\n' {
		return InvalidObject, nil, fmt.Errorf("batch record for %s not newline-terminated", oid)
	}
	return typ, payload, nil
}
