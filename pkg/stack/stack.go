package stack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stackform/stackform/modules/git"
)

// Stack is the patch stack layered on one branch: three pairwise
// disjoint ordered name lists plus the name → commit map persisted as
// refs. It is a passive store; every structural change goes through a
// Transaction.
type Stack struct {
	repo      *git.Repository
	branch    *git.Branch
	name      string
	applied   []string
	unapplied []string
	hidden    []string
	patches   *Patches
}

// NotInitializedError: the branch carries no stack state yet.
type NotInitializedError struct {
	Branch string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("branch '%s' is not initialized", e.Branch)
}

func stateDir(repo *git.Repository, branch string) string {
	return filepath.Join(repo.CommonDirectory(), "stackform", branch)
}

// Open loads the stack state for the named branch.
func Open(ctx context.Context, repo *git.Repository, branchName string) (*Stack, error) {
	branch, err := git.LookupBranch(ctx, repo, branchName)
	if err != nil {
		return nil, err
	}
	dir := stateDir(repo, branchName)
	if _, err := os.Stat(dir); err != nil {
		return nil, &NotInitializedError{Branch: branchName}
	}
	s := &Stack{repo: repo, branch: branch, name: branchName}
	s.patches = &Patches{stack: s}
	for _, f := range []struct {
		file string
		dst  *[]string
	}{
		{"applied", &s.applied},
		{"unapplied", &s.unapplied},
		{"hidden", &s.hidden},
	} {
		b, err := os.ReadFile(filepath.Join(dir, f.file))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		*f.dst = parseOrder(b)
	}
	return s, nil
}

// Initialize creates empty stack state for the branch and writes the
// first log snapshot.
func Initialize(ctx context.Context, repo *git.Repository, branchName string) (*Stack, error) {
	branch, err := git.LookupBranch(ctx, repo, branchName)
	if err != nil {
		return nil, err
	}
	dir := stateDir(repo, branchName)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("branch '%s' already initialized", branchName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Stack{repo: repo, branch: branch, name: branchName}
	s.patches = &Patches{stack: s}
	if err := s.SetOrder(s.applied, s.unapplied, s.hidden); err != nil {
		return nil, err
	}
	if err := LogEntry(ctx, s, "initialize"); err != nil {
		return nil, err
	}
	return s, nil
}

func parseOrder(b []byte) []string {
	var names []string
	for _, line := range strings.Split(string(b), "\n") {
		if line = strings.TrimSpace(line); len(line) != 0 {
			names = append(names, line)
		}
	}
	return names
}

func formatOrder(names []string) []byte {
	if len(names) == 0 {
		return nil
	}
	return []byte(strings.Join(names, "\n") + "\n")
}

func (s *Stack) Name() string {
	return s.name
}

func (s *Stack) Repository() *git.Repository {
	return s.repo
}

func (s *Stack) Branch() *git.Branch {
	return s.branch
}

func (s *Stack) Patches() *Patches {
	return s.patches
}

func (s *Stack) Applied() []string {
	return append([]string(nil), s.applied...)
}

func (s *Stack) Unapplied() []string {
	return append([]string(nil), s.unapplied...)
}

func (s *Stack) Hidden() []string {
	return append([]string(nil), s.hidden...)
}

// AllPatches is applied + unapplied + hidden, in that order.
func (s *Stack) AllPatches() []string {
	all := make([]string, 0, len(s.applied)+len(s.unapplied)+len(s.hidden))
	all = append(all, s.applied...)
	all = append(all, s.unapplied...)
	return append(all, s.hidden...)
}

// SetOrder persists the three ordered lists. Disjointness is the
// caller's invariant; it is re-checked here because a corrupted order
// is unrecoverable for the user.
func (s *Stack) SetOrder(applied, unapplied, hidden []string) error {
	seen := make(map[string]bool)
	for _, pn := range append(append(append([]string(nil), applied...), unapplied...), hidden...) {
		if seen[pn] {
			return fmt.Errorf("patch '%s' appears twice in the stack order", pn)
		}
		seen[pn] = true
	}
	dir := stateDir(s.repo, s.name)
	for _, f := range []struct {
		file  string
		names []string
	}{
		{"applied", applied},
		{"unapplied", unapplied},
		{"hidden", hidden},
	} {
		if err := os.WriteFile(filepath.Join(dir, f.file), formatOrder(f.names), 0o644); err != nil {
			return err
		}
	}
	s.applied = append([]string(nil), applied...)
	s.unapplied = append([]string(nil), unapplied...)
	s.hidden = append([]string(nil), hidden...)
	return nil
}

// Head is the branch head commit.
func (s *Stack) Head(ctx context.Context) (*git.Commit, error) {
	return s.branch.Head(ctx)
}

// SetHead advances the branch head.
func (s *Stack) SetHead(ctx context.Context, commit *git.Commit, msg string) error {
	return s.branch.SetHead(ctx, commit, msg)
}

// Top is the topmost applied patch's commit, or the base when nothing
// is applied.
func (s *Stack) Top(ctx context.Context) (*git.Commit, error) {
	if len(s.applied) != 0 {
		return s.patches.Get(s.applied[len(s.applied)-1]).Commit(ctx)
	}
	return s.Base(ctx)
}

// Base is the commit below the bottommost applied patch; with an empty
// stack it coincides with the branch head.
func (s *Stack) Base(ctx context.Context) (*git.Commit, error) {
	if len(s.applied) == 0 {
		return s.Head(ctx)
	}
	bottom, err := s.patches.Get(s.applied[0]).Commit(ctx)
	if err != nil {
		return nil, err
	}
	cd, err := bottom.Data()
	if err != nil {
		return nil, err
	}
	parent := cd.Parent()
	if parent == nil {
		return nil, fmt.Errorf("patch '%s' does not have exactly one parent", s.applied[0])
	}
	return parent, nil
}

// HeadTopEqual is the invariant the transaction engine insists on
// before touching anything: the branch head is the topmost applied
// patch's commit.
func (s *Stack) HeadTopEqual(ctx context.Context) (bool, error) {
	head, err := s.Head(ctx)
	if err != nil {
		return false, err
	}
	top, err := s.Top(ctx)
	if err != nil {
		return false, err
	}
	return head == top, nil
}

// Patch is a named mutable pointer to a commit, stored as a ref.
type Patch struct {
	stack *Stack
	name  string
}

func (p *Patch) Name() string {
	return p.name
}

func (p *Patch) ref() string {
	return patchRef(p.stack.name, p.name)
}

func patchRef(branch, name string) string {
	return "refs/patches/" + branch + "/" + name
}

func (p *Patch) Commit(ctx context.Context) (*git.Commit, error) {
	return p.stack.repo.Refs().Get(ctx, p.ref())
}

func (p *Patch) SetCommit(ctx context.Context, commit *git.Commit, msg string) error {
	return p.stack.repo.Refs().Set(ctx, p.ref(), commit, msg)
}

func (p *Patch) Delete(ctx context.Context) error {
	return p.stack.repo.Refs().Delete(ctx, p.ref())
}

// Patches is the name → patch map backed by refs/patches/<branch>/.
type Patches struct {
	stack *Stack
}

func (ps *Patches) Get(name string) *Patch {
	return &Patch{stack: ps.stack, name: name}
}

func (ps *Patches) Exists(ctx context.Context, name string) (bool, error) {
	return ps.stack.repo.Refs().Exists(ctx, patchRef(ps.stack.name, name))
}

// New records a fresh patch pointing at commit.
func (ps *Patches) New(ctx context.Context, name string, commit *git.Commit, msg string) (*Patch, error) {
	p := ps.Get(name)
	if err := p.SetCommit(ctx, commit, msg); err != nil {
		return nil, err
	}
	return p, nil
}
