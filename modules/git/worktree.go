package git

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/stackform/stackform/modules/command"
)

// Worktree is a checked-out file tree.
type Worktree struct {
	directory string
}

func NewWorktree(directory string) *Worktree {
	return &Worktree{directory: directory}
}

func (w *Worktree) Directory() string {
	return w.directory
}

// DefaultWorktree resolves the work tree for this repository from the
// environment or from rev-parse.
func (r *Repository) DefaultWorktree(ctx context.Context) (*Worktree, error) {
	if r.defaultWorktree != nil {
		return r.defaultWorktree, nil
	}
	path := os.Getenv("GIT_WORK_TREE")
	if len(path) == 0 {
		cdup, err := command.NewFromOptions(ctx, &command.RunOpts{Stderr: command.NewStderr()},
			"git", "rev-parse", "--show-cdup").OneLine()
		if err != nil {
			return nil, newRunError("rev-parse --show-cdup", err, "")
		}
		if len(cdup) == 0 {
			cdup = "."
		}
		path = cdup
	}
	r.defaultWorktree = NewWorktree(path)
	return r.defaultWorktree, nil
}

// DefaultIW pairs the default index with the default worktree.
func (r *Repository) DefaultIW(ctx context.Context) (*IndexAndWorktree, error) {
	if r.defaultIW != nil {
		return r.defaultIW, nil
	}
	worktree, err := r.DefaultWorktree(ctx)
	if err != nil {
		return nil, err
	}
	r.defaultIW = &IndexAndWorktree{index: r.DefaultIndex(), worktree: worktree}
	return r.defaultIW, nil
}

// IndexAndWorktree is an index paired with a worktree. Anything either
// can do alone lives on Index or Worktree; this type owns the
// operations needing both.
type IndexAndWorktree struct {
	index    *Index
	worktree *Worktree
}

func NewIndexAndWorktree(index *Index, worktree *Worktree) *IndexAndWorktree {
	return &IndexAndWorktree{index: index, worktree: worktree}
}

func (iw *IndexAndWorktree) Index() *Index {
	return iw.index
}

func (iw *IndexAndWorktree) Worktree() *Worktree {
	return iw.worktree
}

// run executes git inside the worktree with the index environment.
func (iw *IndexAndWorktree) run(ctx context.Context, opt *command.RunOpts, arg ...string) *command.Command {
	opt.Dir = iw.worktree.directory
	opt.ExtraEnv = append(append(iw.index.extraEnv(), "GIT_WORK_TREE=."), opt.ExtraEnv...)
	return command.NewFromOptions(ctx, opt, "git", arg...)
}

// runInCwd executes git in the caller's directory, pointing
// GIT_WORK_TREE back at the worktree, so relative path limits resolve
// the way the user typed them.
func (iw *IndexAndWorktree) runInCwd(ctx context.Context, opt *command.RunOpts, arg ...string) *command.Command {
	opt.ExtraEnv = append(append(iw.index.extraEnv(), "GIT_WORK_TREE="+iw.worktree.directory), opt.ExtraEnv...)
	return command.NewFromOptions(ctx, opt, "git", arg...)
}

// CheckoutHard resets index and worktree to the tree unconditionally.
func (iw *IndexAndWorktree) CheckoutHard(ctx context.Context, tree *Tree) error {
	stderr := command.NewStderr()
	if err := iw.run(ctx, &command.RunOpts{Stderr: stderr},
		"read-tree", "--reset", "-u", tree.OID()).Run(); err != nil {
		return newRunError("read-tree --reset", err, stderr.String())
	}
	return nil
}

// Checkout moves index and worktree from oldTree to newTree with a
// two-tree read-tree; local modifications survive unless they collide,
// in which case the checkout refuses.
func (iw *IndexAndWorktree) Checkout(ctx context.Context, oldTree, newTree *Tree) error {
	if err := iw.run(ctx, &command.RunOpts{Stderr: command.NewStderr()},
		"read-tree", "-u", "-m",
		"--exclude-per-directory=.gitignore",
		oldTree.OID(), newTree.OID()).Run(); err != nil {
		return NewCheckoutError("index/worktree dirty")
	}
	return nil
}

// Merge runs git's recursive merge driver in the worktree. Exit 0 is a
// clean merge; exit 1 collects the CONFLICT lines; anything else means
// the driver refused to run at all.
func (iw *IndexAndWorktree) Merge(ctx context.Context, base, ours, theirs *Tree) error {
	var stdout bytes.Buffer
	err := iw.run(ctx, &command.RunOpts{
		Stdout: &stdout,
		Stderr: command.NewStderr(),
		ExtraEnv: []string{
			"GITHEAD_" + base.OID() + "=ancestor",
			"GITHEAD_" + ours.OID() + "=current",
			"GITHEAD_" + theirs.OID() + "=patched",
		},
	}, "merge-recursive", base.OID(), "--", ours.OID(), theirs.OID()).Run()
	if err == nil {
		return nil
	}
	if command.FromErrorCode(err) != 1 {
		return NewMergeError("index/worktree dirty")
	}
	var conflicts []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		if strings.HasPrefix(line, "CONFLICT") {
			conflicts = append(conflicts, line)
		}
	}
	return &MergeConflictError{Conflicts: conflicts}
}

// Mergetool lets the user resolve outstanding conflicts interactively,
// then reports whatever is still unmerged.
func (iw *IndexAndWorktree) Mergetool(ctx context.Context, files ...string) error {
	args := append([]string{"mergetool"}, files...)
	err := iw.run(ctx, &command.RunOpts{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Stdin:  os.Stdin,
	}, args...).Run()
	if err != nil && command.FromErrorCode(err) != 1 {
		return err
	}
	unmerged, err := iw.index.Conflicts(ctx)
	if err != nil {
		return err
	}
	if len(unmerged) != 0 {
		conflicts := make([]string, 0, len(unmerged))
		for path := range unmerged {
			conflicts = append(conflicts, "CONFLICT "+path)
		}
		return &MergeConflictError{Conflicts: conflicts}
	}
	return nil
}

// LsFiles maps path limits (relative to the current directory) to the
// repository-root-relative files git knows about. Unknown paths are an
// error.
func (iw *IndexAndWorktree) LsFiles(ctx context.Context, tree *Tree, pathlimits []string) (map[string]bool, error) {
	if len(pathlimits) == 0 {
		return map[string]bool{}, nil
	}
	args := []string{
		"ls-files", "-z",
		"--with-tree=" + tree.OID(),
		"--error-unmatch", "--full-name", "--",
	}
	args = append(args, pathlimits...)
	stderr := command.NewStderr()
	out, err := iw.runInCwd(ctx, &command.RunOpts{Stderr: stderr}, args...).Output()
	if err != nil {
		return nil, newRunError("ls-files", err, stderr.String())
	}
	return nulTermSet(out), nil
}

// Diff shows the worktree changes against the tree as patch or stat
// text.
func (iw *IndexAndWorktree) Diff(ctx context.Context, tree *Tree, opts *DiffOpts) ([]byte, error) {
	if opts == nil {
		opts = &DiffOpts{}
	}
	_ = iw.run(ctx, &command.RunOpts{Stderr: command.NewStderr()},
		"update-index", "-q", "--unmerged", "--refresh").Run()
	args := []string{"diff-index"}
	if opts.Stat {
		args = append(args, "--stat", "--summary")
		for _, o := range opts.Opts {
			if o != "--binary" {
				args = append(args, o)
			}
		}
	} else {
		args = append(args, "--patch")
		if !opts.NoBinary && !contains(opts.Opts, "--binary") {
			args = append(args, "--binary")
		}
		args = append(args, opts.Opts...)
	}
	args = append(args, tree.OID(), "--")
	args = append(args, opts.PathLimits...)
	stderr := command.NewStderr()
	out, err := iw.run(ctx, &command.RunOpts{Stderr: stderr}, args...).Output()
	if err != nil {
		return nil, newRunError("diff-index", err, stderr.String())
	}
	return out, nil
}

// ChangedFiles returns the worktree files that differ from the tree,
// optionally limited; names come back repository-root relative.
func (iw *IndexAndWorktree) ChangedFiles(ctx context.Context, tree *Tree, pathlimits []string) (map[string]bool, error) {
	args := []string{"diff-index", tree.OID(), "--name-only", "-z", "--"}
	args = append(args, pathlimits...)
	stderr := command.NewStderr()
	out, err := iw.runInCwd(ctx, &command.RunOpts{Stderr: stderr}, args...).Output()
	if err != nil {
		return nil, newRunError("diff-index --name-only", err, stderr.String())
	}
	return nulTermSet(out), nil
}

// UpdateIndex stages the given repository-root-relative paths from the
// worktree, removing entries for files that vanished.
func (iw *IndexAndWorktree) UpdateIndex(ctx context.Context, paths []string) error {
	var input strings.Builder
	for _, p := range paths {
		input.WriteString(p)
		input.WriteByte(0)
	}
	stderr := command.NewStderr()
	if err := iw.run(ctx, &command.RunOpts{
		Stdin:  strings.NewReader(input.String()),
		Stderr: stderr,
	}, "update-index", "--remove", "-z", "--stdin").Run(); err != nil {
		return newRunError("update-index", err, stderr.String())
	}
	return nil
}

// WorktreeClean checks whether the worktree is clean relative to the
// index.
func (iw *IndexAndWorktree) WorktreeClean(ctx context.Context) bool {
	return iw.run(ctx, &command.RunOpts{Stderr: command.NewStderr()},
		"update-index", "--ignore-submodules", "--refresh").Run() == nil
}

func nulTermSet(out []byte) map[string]bool {
	set := make(map[string]bool)
	for _, name := range strings.Split(string(out), "\x00") {
		if len(name) != 0 {
			set[name] = true
		}
	}
	return set
}
