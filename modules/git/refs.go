package git

import (
	"bufio"
	"bytes"
	"context"
	"regexp"

	"github.com/stackform/stackform/modules/command"
)

const (
	RefsPrefix   = "refs/"
	BranchPrefix = "refs/heads/"
)

// Refs is a cached view of every ref in the repository. The full list
// loads once from show-ref; updates go through update-ref as a
// compare-and-swap against the cached value, so a concurrent external
// mutation is rejected by git rather than silently clobbered.
type Refs struct {
	repo *Repository
	refs map[string]string
}

func newRefs(repo *Repository) *Refs {
	return &Refs{repo: repo}
}

var showRefLineRE = regexp.MustCompile(`^([0-9a-f]{40})\s+(\S+)$`)

// parseShowRef parses show-ref output into a ref → object ID map.
func parseShowRef(out []byte) map[string]string {
	refs := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if m := showRefLineRE.FindStringSubmatch(scanner.Text()); m != nil {
			refs[m[2]] = m[1]
		}
	}
	return refs
}

func (r *Refs) load(ctx context.Context) error {
	if r.refs != nil {
		return nil
	}
	stderr := command.NewStderr()
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.repo.ExtraEnv(),
		Stderr:   stderr,
	}, "git", "show-ref")
	out, err := cmd.Output()
	if err != nil && len(out) != 0 {
		return newRunError("show-ref", err, stderr.String())
	}
	// show-ref exits non-zero in an empty repository; that is not an
	// error for the initial listing.
	r.refs = parseShowRef(out)
	return nil
}

// Get returns the commit the ref points to.
func (r *Refs) Get(ctx context.Context, ref string) (*Commit, error) {
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	oid, ok := r.refs[ref]
	if !ok {
		return nil, NewRefNotFound(ref)
	}
	return r.repo.GetCommit(oid), nil
}

// Exists checks whether the ref is present.
func (r *Refs) Exists(ctx context.Context, ref string) (bool, error) {
	if err := r.load(ctx); err != nil {
		return false, err
	}
	_, ok := r.refs[ref]
	return ok, nil
}

// Set points ref at commit with a reflog message. The update is a CAS
// against the cached old value (the zero OID when absent); on success
// the cache follows.
func (r *Refs) Set(ctx context.Context, ref string, commit *Commit, msg string) error {
	if err := r.load(ctx); err != nil {
		return err
	}
	oldOID, ok := r.refs[ref]
	if !ok {
		oldOID = ZeroOID
	}
	newOID := commit.OID()
	if oldOID == newOID {
		return nil
	}
	stderr := command.NewStderr()
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.repo.ExtraEnv(),
		Stderr:   stderr,
	}, "git", "update-ref", "-m", msg, ref, newOID, oldOID)
	if err := cmd.Run(); err != nil {
		return newRunError("update-ref "+ref, err, stderr.String())
	}
	r.refs[ref] = newOID
	return nil
}

// Delete removes the ref, again CAS-ing against the cached value.
func (r *Refs) Delete(ctx context.Context, ref string) error {
	if err := r.load(ctx); err != nil {
		return err
	}
	oldOID, ok := r.refs[ref]
	if !ok {
		return NewRefNotFound(ref)
	}
	stderr := command.NewStderr()
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.repo.ExtraEnv(),
		Stderr:   stderr,
	}, "git", "update-ref", "-d", ref, oldOID)
	if err := cmd.Run(); err != nil {
		return newRunError("update-ref -d "+ref, err, stderr.String())
	}
	delete(r.refs, ref)
	return nil
}
