package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/stackform/stackform/modules/command"
)

const (
	// payloadCacheSize bounds the cat-file payload cache.
	payloadCacheSize = 32 << 20
	// maxCachedPayload keeps huge blobs from churning the cache.
	maxCachedPayload = 1 << 20
)

// Repository is the façade over one git repository: object lookup
// through the intern caches, revision resolution, diff streaming, and
// the factories for indexes and worktrees. The cat-file and diff-tree
// helper children hang off it and are shared by everything it hands
// out.
type Repository struct {
	ctx       context.Context
	gitDir    string
	commonDir string
	refs      *Refs

	blobs    map[string]*Blob
	trees    map[string]*Tree
	commits  map[string]*Commit
	payloads *ristretto.Cache[string, []byte]

	catFile  *catFileProcess
	diffTree *diffTreeProcesses

	defaultIndex    *Index
	defaultWorktree *Worktree
	defaultIW       *IndexAndWorktree
	tempIndexSeq    int
}

// New opens the repository whose git directory is gitDir. ctx bounds
// the lifetime of the helper subprocesses.
func New(ctx context.Context, gitDir string) (*Repository, error) {
	payloads, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1 << 14,
		MaxCost:     payloadCacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	r := &Repository{
		ctx:       ctx,
		gitDir:    gitDir,
		commonDir: commonDir(gitDir),
		blobs:     make(map[string]*Blob),
		trees:     make(map[string]*Tree),
		commits:   make(map[string]*Commit),
		payloads:  payloads,
	}
	r.refs = newRefs(r)
	r.catFile = newCatFileProcess(r)
	r.diffTree = newDiffTreeProcesses(r)
	return r, nil
}

// Open discovers the enclosing repository from the working directory.
func Open(ctx context.Context) (*Repository, error) {
	gitDir, err := command.NewFromOptions(ctx, &command.RunOpts{Stderr: command.NewStderr()},
		"git", "rev-parse", "--git-dir").OneLine()
	if err != nil {
		return nil, &ErrNotExist{message: "cannot find git repository"}
	}
	return New(ctx, gitDir)
}

// commonDir resolves the directory holding shared state. A linked
// worktree's git-dir carries a commondir file pointing back at it.
func commonDir(gitDir string) string {
	b, err := os.ReadFile(filepath.Join(gitDir, "commondir"))
	if err != nil {
		return gitDir
	}
	p := strings.TrimSpace(string(b))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(gitDir, p)
}

func (r *Repository) Directory() string {
	return r.gitDir
}

func (r *Repository) CommonDirectory() string {
	return r.commonDir
}

// ExtraEnv is the environment every git invocation for this repository
// carries.
func (r *Repository) ExtraEnv() []string {
	return []string{"GIT_DIR=" + r.gitDir}
}

func (r *Repository) Refs() *Refs {
	return r.refs
}

func (r *Repository) GetBlob(oid string) *Blob {
	if b, ok := r.blobs[oid]; ok {
		return b
	}
	b := &Blob{repo: r, oid: oid}
	r.blobs[oid] = b
	return b
}

func (r *Repository) GetTree(oid string) *Tree {
	if t, ok := r.trees[oid]; ok {
		return t
	}
	t := &Tree{repo: r, oid: oid}
	r.trees[oid] = t
	return t
}

func (r *Repository) GetCommit(oid string) *Commit {
	if c, ok := r.commits[oid]; ok {
		return c
	}
	c := &Commit{repo: r, oid: oid}
	r.commits[oid] = c
	return c
}

func (r *Repository) GetObject(typ ObjectType, oid string) (Object, error) {
	switch typ {
	case BlobObject:
		return r.GetBlob(oid), nil
	case TreeObject:
		return r.GetTree(oid), nil
	case CommitObject:
		return r.GetCommit(oid), nil
	}
	return nil, &ErrUnexpectedType{message: fmt.Sprintf("no handle for object type %s", typ)}
}

// CatObject returns the raw payload of an object through the batch
// stream, with small payloads served from the bounded cache.
func (r *Repository) CatObject(oid string) ([]byte, error) {
	if payload, ok := r.payloads.Get(oid); ok {
		return payload, nil
	}
	_, payload, err := r.catFile.catFile(oid)
	if err != nil {
		return nil, err
	}
	if len(payload) <= maxCachedPayload {
		r.payloads.Set(oid, payload, int64(len(payload)))
	}
	return payload, nil
}

// RevParse resolves a revision to an object of the wanted type.
func (r *Repository) RevParse(ctx context.Context, rev string, typ ObjectType) (Object, error) {
	switch typ {
	case CommitObject, TreeObject, BlobObject:
	default:
		return nil, &ErrUnexpectedType{message: fmt.Sprintf("cannot rev-parse to %s", typ)}
	}
	oid, err := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.ExtraEnv(),
		Stderr:   command.NewStderr(),
	}, "git", "rev-parse", fmt.Sprintf("%s^{%s}", rev, typ)).OneLine()
	if err != nil {
		return nil, NewRevisionNotFound(rev, typ)
	}
	return r.GetObject(typ, oid)
}

// RevParseCommit is RevParse narrowed to the common case.
func (r *Repository) RevParseCommit(ctx context.Context, rev string) (*Commit, error) {
	o, err := r.RevParse(ctx, rev, CommitObject)
	if err != nil {
		return nil, err
	}
	return o.(*Commit), nil
}

// Commit writes the commit data and returns the interned handle.
func (r *Repository) Commit(ctx context.Context, cd *CommitData) (*Commit, error) {
	return cd.Commit(ctx, r)
}

// HeadRef returns the full ref name HEAD points at, or ErrDetachedHead.
func (r *Repository) HeadRef(ctx context.Context) (string, error) {
	ref, err := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.ExtraEnv(),
		Stderr:   command.NewStderr(),
	}, "git", "symbolic-ref", "-q", "HEAD").OneLine()
	if err != nil {
		return "", ErrDetachedHead
	}
	return ref, nil
}

func (r *Repository) SetHeadRef(ctx context.Context, ref, msg string) error {
	stderr := command.NewStderr()
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.ExtraEnv(),
		Stderr:   stderr,
	}, "git", "symbolic-ref", "-m", msg, "HEAD", ref)
	if err := cmd.Run(); err != nil {
		return newRunError("symbolic-ref", err, stderr.String())
	}
	return nil
}

// CurrentBranchName returns the short name of the checked-out branch.
func (r *Repository) CurrentBranchName(ctx context.Context) (string, error) {
	ref, err := r.HeadRef(ctx)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(ref, BranchPrefix) {
		return "", ErrDetachedHead
	}
	return strings.TrimPrefix(ref, BranchPrefix), nil
}

// MergeBases returns the merge bases of two commits.
func (r *Repository) MergeBases(ctx context.Context, a, b *Commit) ([]*Commit, error) {
	stderr := command.NewStderr()
	out, err := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.ExtraEnv(),
		Stderr:   stderr,
	}, "git", "merge-base", "--all", a.OID(), b.OID()).Output()
	if err != nil {
		return nil, newRunError("merge-base", err, stderr.String())
	}
	var bases []*Commit
	for _, line := range strings.Fields(string(out)) {
		bases = append(bases, r.GetCommit(line))
	}
	return bases, nil
}

// Describe runs describe --all on the commit; output may be empty when
// nothing describes it.
func (r *Repository) Describe(ctx context.Context, c *Commit) string {
	out, err := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.ExtraEnv(),
		Stderr:   command.NewStderr(),
	}, "git", "describe", "--all", c.OID()).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// SimpleMerge does an index-only three-way merge in a throwaway temp
// index. A nil result means the merge failed cleanly.
func (r *Repository) SimpleMerge(ctx context.Context, base, ours, theirs *Tree) (*Tree, error) {
	index := r.TempIndex()
	defer func() { _ = index.Delete() }()
	result, _, err := index.Merge(ctx, base, ours, theirs, nil)
	return result, err
}

// Apply returns the tree that results from applying the patch to tree,
// or nil if the patch does not apply.
func (r *Repository) Apply(ctx context.Context, tree *Tree, patch []byte, quiet bool) (*Tree, error) {
	if len(patch) == 0 {
		return tree, nil
	}
	index := r.TempIndex()
	defer func() { _ = index.Delete() }()
	if err := index.ReadTree(ctx, tree); err != nil {
		return nil, err
	}
	if err := index.Apply(ctx, patch, quiet); err != nil {
		if IsMergeError(err) {
			return nil, nil
		}
		return nil, err
	}
	return index.WriteTree(ctx)
}

var submoduleLineRE = regexp.MustCompile(`^160000 commit [0-9a-f]{40}\t(.*)$`)

// Submodules returns the set of submodule paths recorded in the tree.
func (r *Repository) Submodules(ctx context.Context, tree *Tree) (map[string]bool, error) {
	stderr := command.NewStderr()
	out, err := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.ExtraEnv(),
		Stderr:   stderr,
	}, "git", "ls-tree", "-d", "-r", "-z", tree.OID()).Output()
	if err != nil {
		return nil, newRunError("ls-tree", err, stderr.String())
	}
	paths := make(map[string]bool)
	for _, line := range bytes.Split(out, []byte{0}) {
		if m := submoduleLineRE.FindSubmatch(line); m != nil {
			paths[string(m[1])] = true
		}
	}
	return paths, nil
}

// DiffOpts selects the output form of a tree diff. The zero value
// yields binary-capable patch text.
type DiffOpts struct {
	Opts       []string
	PathLimits []string
	NoBinary   bool
	Stat       bool
}

func (o *DiffOpts) args() []string {
	var args []string
	if o.Stat {
		args = append(args, "--stat", "--summary")
		for _, opt := range o.Opts {
			if opt != "--binary" {
				args = append(args, opt)
			}
		}
	} else {
		args = append(args, "--patch")
		if !o.NoBinary && !contains(o.Opts, "--binary") {
			args = append(args, "--binary")
		}
		args = append(args, o.Opts...)
	}
	if len(o.PathLimits) != 0 {
		args = append(args, "--")
		args = append(args, o.PathLimits...)
	}
	return args
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DiffTree returns the patch (or stat) text taking t1 to t2.
func (r *Repository) DiffTree(ctx context.Context, t1, t2 *Tree, opts *DiffOpts) ([]byte, error) {
	if opts == nil {
		opts = &DiffOpts{}
	}
	return r.diffTree.diffTrees(opts.args(), t1.OID(), t2.OID())
}

// FileDiff is one machine-readable diff-tree record.
type FileDiff struct {
	OldMode FileMode
	NewMode FileMode
	OldBlob *Blob
	NewBlob *Blob
	Status  string
	OldName string
	NewName string
}

// DiffTreeFiles lists the files for which t1 and t2 differ. Except for
// copies and renames, old and new names are identical.
func (r *Repository) DiffTreeFiles(ctx context.Context, t1, t2 *Tree) ([]*FileDiff, error) {
	data, err := r.diffTree.diffTrees([]string{"-r", "-z"}, t1.OID(), t2.OID())
	if err != nil {
		return nil, err
	}
	return parseFileDiffs(r, data)
}

// parseFileDiffs parses `diff-tree -r -z` records:
// ":<omode> <nmode> <osha1> <nsha1> <status>\0<path1>[\0<path2>]".
// path2 appears iff the status is a copy or rename.
func parseFileDiffs(r *Repository, data []byte) ([]*FileDiff, error) {
	fields := strings.Split(string(data), "\x00")
	var diffs []*FileDiff
	for i := 0; i < len(fields); i++ {
		record := fields[i]
		if len(record) == 0 {
			continue
		}
		if record[0] != ':' {
			return nil, fmt.Errorf("malformed diff-tree record: %q", record)
		}
		parts := strings.Split(record[1:], " ")
		if len(parts) != 5 {
			return nil, fmt.Errorf("malformed diff-tree record: %q", record)
		}
		if i+1 >= len(fields) || len(fields[i+1]) == 0 {
			return nil, fmt.Errorf("diff-tree record %q without path", record)
		}
		i++
		fd := &FileDiff{
			OldMode: FileMode(parts[0]),
			NewMode: FileMode(parts[1]),
			OldBlob: r.GetBlob(parts[2]),
			NewBlob: r.GetBlob(parts[3]),
			Status:  parts[4],
			OldName: fields[i],
		}
		fd.NewName = fd.OldName
		if len(fd.Status) != 0 && (fd.Status[0] == 'C' || fd.Status[0] == 'R') {
			if i+1 >= len(fields) || len(fields[i+1]) == 0 {
				return nil, fmt.Errorf("diff-tree record %q without target path", record)
			}
			i++
			fd.NewName = fields[i]
		}
		diffs = append(diffs, fd)
	}
	return diffs, nil
}

// Diffstat renders a diffstat for the given patch text.
func Diffstat(ctx context.Context, diff []byte) (string, error) {
	stderr := command.NewStderr()
	out, err := command.NewFromOptions(ctx, &command.RunOpts{
		Stdin:  bytes.NewReader(diff),
		Stderr: stderr,
	}, "git", "apply", "--stat", "--summary").Output()
	if err != nil {
		return "", newRunError("apply --stat", err, stderr.String())
	}
	return string(out), nil
}
