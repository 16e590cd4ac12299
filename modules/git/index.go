package git

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/stackform/stackform/modules/command"
)

// Index wraps one git staging file. It may be the repository's default
// index or a uniquely named temporary one inside the git-dir; every
// operation pins GIT_INDEX_FILE to the wrapped path.
type Index struct {
	repo     *Repository
	filename string
}

// DefaultIndex is the repository's working index.
func (r *Repository) DefaultIndex() *Index {
	if r.defaultIndex == nil {
		filename := os.Getenv("GIT_INDEX_FILE")
		if len(filename) == 0 {
			filename = filepath.Join(r.gitDir, "index")
		}
		r.defaultIndex = &Index{repo: r, filename: filename}
	}
	return r.defaultIndex
}

// TempIndex creates a fresh temporary index in the git-dir. Callers own
// the file and delete it when done (or register deletion at exit).
func (r *Repository) TempIndex() *Index {
	r.tempIndexSeq++
	index := &Index{
		repo:     r,
		filename: filepath.Join(r.gitDir, fmt.Sprintf("index.temp-%d-%x", os.Getpid(), r.tempIndexSeq)),
	}
	_ = index.Delete()
	return index
}

func (i *Index) Filename() string {
	return i.filename
}

func (i *Index) extraEnv() []string {
	return append(i.repo.ExtraEnv(), "GIT_INDEX_FILE="+i.filename)
}

func (i *Index) run(ctx context.Context, opt *command.RunOpts, arg ...string) *command.Command {
	opt.ExtraEnv = append(i.extraEnv(), opt.ExtraEnv...)
	return command.NewFromOptions(ctx, opt, "git", arg...)
}

// ReadTree loads the tree into the index.
func (i *Index) ReadTree(ctx context.Context, tree *Tree) error {
	stderr := command.NewStderr()
	if err := i.run(ctx, &command.RunOpts{Stderr: stderr}, "read-tree", tree.OID()).Run(); err != nil {
		return newRunError("read-tree", err, stderr.String())
	}
	return nil
}

// WriteTree writes the index contents as a tree object. Unresolved
// entries make write-tree refuse, which surfaces as a merge error.
func (i *Index) WriteTree(ctx context.Context) (*Tree, error) {
	oid, err := i.run(ctx, &command.RunOpts{Stderr: command.NewStderr()}, "write-tree").OneLine()
	if err != nil {
		return nil, NewMergeError("conflicting merge")
	}
	if !ValidateHex(oid) {
		return nil, newRunError("write-tree", errUnexpectedReply, oid)
	}
	return i.repo.GetTree(oid), nil
}

// IsClean checks the index against the given tree.
func (i *Index) IsClean(ctx context.Context, tree *Tree) bool {
	return i.run(ctx, &command.RunOpts{Stderr: command.NewStderr()},
		"diff-index", "--quiet", "--cached", tree.OID()).Run() == nil
}

// Apply does in-index patch application, no worktree involved.
func (i *Index) Apply(ctx context.Context, patch []byte, quiet bool) error {
	opt := &command.RunOpts{Stdin: bytes.NewReader(patch)}
	if quiet {
		opt.Stderr = io.Discard
	} else {
		opt.Stderr = os.Stderr
	}
	if err := i.run(ctx, opt, "apply", "--cached").Run(); err != nil {
		return NewMergeError("patch does not apply cleanly")
	}
	return nil
}

// ApplyTreeDiff applies the diff from t1 to t2 to the index. Passing
// --full-index is necessary to support binary files, and sufficient:
// the repository already contains all involved objects.
func (i *Index) ApplyTreeDiff(ctx context.Context, t1, t2 *Tree, quiet bool) error {
	diff, err := i.repo.DiffTree(ctx, t1, t2, &DiffOpts{Opts: []string{"--full-index"}})
	if err != nil {
		return err
	}
	return i.Apply(ctx, diff, quiet)
}

// Merge uses the index (and only the index) for a three-way merge of
// base, ours and theirs. On success the first result is the merged
// tree; a clean failure returns nil. current, when non-nil, names the
// tree currently loaded into the index and saves a read-tree; the
// second result is the tree left in the index afterwards (nil when
// unknown).
func (i *Index) Merge(ctx context.Context, base, ours, theirs, current *Tree) (*Tree, *Tree, error) {
	// Interning makes handle comparison object equality.
	if base == ours {
		return theirs, current, nil
	}
	if base == theirs {
		return ours, current, nil
	}
	if ours == theirs {
		return ours, current, nil
	}

	if current == theirs {
		// Merging is symmetric, and the swap saves a read-tree.
		ours, theirs = theirs, ours
	}
	if current != ours {
		if err := i.ReadTree(ctx, ours); err != nil {
			return nil, nil, err
		}
	}
	if err := i.ApplyTreeDiff(ctx, base, theirs, true); err != nil {
		if IsMergeError(err) {
			return nil, ours, nil
		}
		return nil, nil, err
	}
	result, err := i.WriteTree(ctx)
	if err != nil {
		if IsMergeError(err) {
			return nil, ours, nil
		}
		return nil, nil, err
	}
	return result, result, nil
}

// Conflicts returns the set of paths with unmerged stages.
func (i *Index) Conflicts(ctx context.Context) (map[string]bool, error) {
	stderr := command.NewStderr()
	out, err := i.run(ctx, &command.RunOpts{Stderr: stderr}, "ls-files", "-z", "--unmerged").Output()
	if err != nil {
		return nil, newRunError("ls-files --unmerged", err, stderr.String())
	}
	paths := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\x00") {
		if _, path, ok := strings.Cut(line, "\t"); ok {
			paths[path] = true
		}
	}
	return paths, nil
}

// Delete removes the backing file if present.
func (i *Index) Delete() error {
	err := os.Remove(i.filename)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
