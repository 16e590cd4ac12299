package git

import (
	"context"

	"github.com/stackform/stackform/modules/command"
)

// Branch is a git branch: a name and the head commit behind
// refs/heads/<name>.
type Branch struct {
	repo *Repository
	name string
}

// LookupBranch returns the branch, or ErrNotExist if the ref is absent.
func LookupBranch(ctx context.Context, repo *Repository, name string) (*Branch, error) {
	b := &Branch{repo: repo, name: name}
	if _, err := b.Head(ctx); err != nil {
		if IsErrNotExist(err) {
			return nil, NewBranchNotFound(name)
		}
		return nil, err
	}
	return b, nil
}

func (b *Branch) Name() string {
	return b.name
}

func (b *Branch) Repository() *Repository {
	return b.repo
}

func (b *Branch) Ref() string {
	return BranchPrefix + b.name
}

func (b *Branch) Head(ctx context.Context) (*Commit, error) {
	return b.repo.Refs().Get(ctx, b.Ref())
}

func (b *Branch) SetHead(ctx context.Context, commit *Commit, msg string) error {
	return b.repo.Refs().Set(ctx, b.Ref(), commit, msg)
}

// SetParentRemote records where the branch pulls from.
func (b *Branch) SetParentRemote(ctx context.Context, name string) error {
	return b.setConfig(ctx, "branch."+b.name+".remote", name)
}

// SetParentBranch records the upstream branch, but only when a remote
// is configured; setting merge without remote sends git looking into
// 'origin'.
func (b *Branch) SetParentBranch(ctx context.Context, name string) error {
	remote, err := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: b.repo.ExtraEnv(),
		Stderr:   command.NewStderr(),
	}, "git", "config", "--get", "branch."+b.name+".remote").OneLine()
	if err != nil || len(remote) == 0 {
		return nil
	}
	return b.setConfig(ctx, "branch."+b.name+".merge", name)
}

func (b *Branch) setConfig(ctx context.Context, key, value string) error {
	stderr := command.NewStderr()
	if err := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: b.repo.ExtraEnv(),
		Stderr:   stderr,
	}, "git", "config", key, value).Run(); err != nil {
		return newRunError("config "+key, err, stderr.String())
	}
	return nil
}

// CreateBranch makes a new branch, optionally at the given commit, and
// returns it. Creating an existing branch is an error.
func CreateBranch(ctx context.Context, repo *Repository, name string, createAt *Commit) (*Branch, error) {
	if _, err := LookupBranch(ctx, repo, name); err == nil {
		return nil, &BranchExistsError{Name: name}
	}
	args := []string{"branch", name}
	if createAt != nil {
		args = append(args, createAt.OID())
	}
	stderr := command.NewStderr()
	if err := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: repo.ExtraEnv(),
		Stderr:   stderr,
	}, "git", args...).Run(); err != nil {
		return nil, newRunError("branch "+name, err, stderr.String())
	}
	// The refs cache predates the new ref; rebuild lazily.
	repo.refs.refs = nil
	return LookupBranch(ctx, repo, name)
}
