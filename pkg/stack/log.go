package stack

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stackform/stackform/modules/git"
)

// The stack log is an audit trail: every write pass appends one
// snapshot commit to refs/stacks/<branch> recording the branch head and
// the three ordered lists with their patch commits. The transaction
// core needs only two operations from it: detect external branch
// modifications before a write, and append an entry after one.

func logRef(branch string) string {
	return "refs/stacks/" + branch
}

// snapshotMeta renders the state blob of one snapshot.
func snapshotMeta(head *git.Commit, applied, unapplied, hidden []string, commits map[string]*git.Commit) string {
	var b strings.Builder
	b.WriteString("version: 1\n")
	b.WriteString("head: " + head.OID() + "\n")
	for _, section := range []struct {
		title string
		names []string
	}{
		{"applied", applied},
		{"unapplied", unapplied},
		{"hidden", hidden},
	} {
		b.WriteString(section.title + ":\n")
		for _, pn := range section.names {
			b.WriteString("  " + pn + " " + commits[pn].OID() + "\n")
		}
	}
	return b.String()
}

// snapshotHead extracts the recorded branch head from a state blob.
func snapshotHead(meta []byte) string {
	for _, line := range strings.Split(string(meta), "\n") {
		if oid, ok := strings.CutPrefix(line, "head: "); ok {
			return oid
		}
	}
	return ""
}

// LogEntry appends one snapshot of the stack under the given message.
func LogEntry(ctx context.Context, s *Stack, msg string) error {
	head, err := s.Head(ctx)
	if err != nil {
		return err
	}
	commits := make(map[string]*git.Commit)
	for _, pn := range s.AllPatches() {
		c, err := s.Patches().Get(pn).Commit(ctx)
		if err != nil {
			return fmt.Errorf("logging stack state: %w", err)
		}
		commits[pn] = c
	}
	repo := s.Repository()
	meta, err := repo.WriteBlob(ctx, []byte(snapshotMeta(head, s.applied, s.unapplied, s.hidden, commits)))
	if err != nil {
		return err
	}
	td := git.NewTreeData()
	td.Set("meta", git.TreeEntry{Mode: git.ModeRegular, Object: meta})
	tree, err := td.Commit(ctx, repo)
	if err != nil {
		return err
	}
	cd := &git.CommitData{Tree: tree, Message: msg + "\n"}
	ref := logRef(s.Name())
	if prev, err := repo.Refs().Get(ctx, ref); err == nil {
		cd = cd.WithParent(prev)
	} else if !git.IsErrNotExist(err) {
		return err
	}
	entry, err := repo.Commit(ctx, cd)
	if err != nil {
		return err
	}
	logrus.Debugf("stack log %s: %s", ref, msg)
	return repo.Refs().Set(ctx, ref, entry, msg)
}

// LogExternalMods compares the last snapshot's recorded head with the
// live branch head; a mismatch means some other tool moved the branch,
// and gets its own marker entry so the trail stays honest.
func LogExternalMods(ctx context.Context, s *Stack) error {
	repo := s.Repository()
	last, err := repo.Refs().Get(ctx, logRef(s.Name()))
	if err != nil {
		if git.IsErrNotExist(err) {
			return nil
		}
		return err
	}
	head, err := s.Head(ctx)
	if err != nil {
		return err
	}
	recorded, err := recordedHead(ctx, repo, last)
	if err != nil {
		return err
	}
	if recorded == "" || recorded == head.OID() {
		return nil
	}
	return LogEntry(ctx, s, "external modifications")
}

func recordedHead(ctx context.Context, repo *git.Repository, entry *git.Commit) (string, error) {
	cd, err := entry.Data()
	if err != nil {
		return "", err
	}
	td, err := cd.Tree.Data(ctx)
	if err != nil {
		return "", err
	}
	e, ok := td.Get("meta")
	if !ok {
		return "", nil
	}
	blob, ok := e.Object.(*git.Blob)
	if !ok {
		return "", nil
	}
	meta, err := blob.Data()
	if err != nil {
		return "", err
	}
	return snapshotHead(meta), nil
}
