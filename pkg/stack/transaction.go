package stack

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/stackform/stackform/modules/command"
	"github.com/stackform/stackform/modules/git"
	"github.com/stackform/stackform/pkg/display"
)

// Status is the outcome of a completed transaction run.
type Status int

const (
	StatusOK Status = iota
	// StatusConflict: a mutator halted part-way and the transaction
	// committed what was staged before the halt; after a conflicting
	// push, that patch is recorded with its conflicts spilled into the
	// worktree.
	StatusConflict
)

// TransactionError: consistency violation, external divergence, or an
// explicit abort after rollback.
type TransactionError struct {
	message string
}

func (e *TransactionError) Error() string {
	return e.message
}

func IsTransactionError(err error) bool {
	var e *TransactionError
	return errors.As(err, &e)
}

func errAborted() error {
	return &TransactionError{message: "command aborted (all changes rolled back)"}
}

// HaltError is the control signal raised when transaction setup stops
// part-way through. Callers catch it and still call Run, which records
// whatever was staged before the halt.
type HaltError struct {
	message string
}

func (e *HaltError) Error() string {
	return e.message
}

func IsHalt(err error) bool {
	var e *HaltError
	return errors.As(err, &e)
}

// pendingPush is the deferred tail of a conflicting push: the
// patch-list update that must run after the first writeback pass so the
// conflicted state lands under its own log message.
type pendingPush struct {
	name   string
	commit *git.Commit // nil when the commit was unchanged
}

// Transaction stages a complex stack update and commits it in one
// all-or-nothing terminal phase.
//
// Usage: create one, call mutators (PopPatches, PushPatch, ...) until
// done or until one returns a HaltError, then call Run. Mutators may
// create new git objects, but never write a ref, so abandoning a
// transaction before Run needs no cleanup beyond the worktree Abort
// restores.
type Transaction struct {
	stack *Stack
	msg   string
	out   *display.Console

	// patches is the override map: staged commit per name, with a nil
	// entry as the deletion tombstone. Reads fall through to the live
	// stack.
	patches   map[string]*git.Commit
	applied   []string
	unapplied []string
	hidden    []string

	currentTree     *git.Tree
	base            *git.Commit
	badHead         *git.Commit
	errMsg          string
	conflictingPush *pendingPush
	discardChanges  bool
	allowConflicts  func(*Transaction) bool

	tempIndex     *git.Index
	tempIndexTree *git.Tree
}

// Options configures transaction construction.
type Options struct {
	// DiscardChanges: throw away index+worktree changes at checkout.
	DiscardChanges bool
	// AllowConflicts: let the terminal checkout proceed with unresolved
	// conflicts in the index.
	AllowConflicts bool
	// AllowBadHead skips the HEAD/top divergence check (repair mode).
	AllowBadHead bool
	// Output overrides the default console.
	Output *display.Console
}

// NewTransaction snapshots the stack and prepares a staging area.
func NewTransaction(ctx context.Context, s *Stack, msg string, opts *Options) (*Transaction, error) {
	if opts == nil {
		opts = &Options{}
	}
	out := opts.Output
	if out == nil {
		out = display.Default()
	}
	head, err := s.Head(ctx)
	if err != nil {
		return nil, err
	}
	headData, err := head.Data()
	if err != nil {
		return nil, err
	}
	base, err := s.Base(ctx)
	if err != nil {
		return nil, err
	}
	allowConflicts := func(*Transaction) bool { return opts.AllowConflicts }
	t := &Transaction{
		stack:          s,
		msg:            msg,
		out:            out,
		patches:        make(map[string]*git.Commit),
		applied:        s.Applied(),
		unapplied:      s.Unapplied(),
		hidden:         s.Hidden(),
		currentTree:    headData.Tree,
		base:           base,
		discardChanges: opts.DiscardChanges,
		allowConflicts: allowConflicts,
	}
	if !opts.AllowBadHead {
		if err := t.assertHeadTopEqual(ctx); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Transaction) Stack() *Stack {
	return t.stack
}

func (t *Transaction) Applied() []string {
	return append([]string(nil), t.applied...)
}

func (t *Transaction) Unapplied() []string {
	return append([]string(nil), t.unapplied...)
}

func (t *Transaction) Hidden() []string {
	return append([]string(nil), t.hidden...)
}

// AllPatches is the staged applied + unapplied + hidden.
func (t *Transaction) AllPatches() []string {
	all := make([]string, 0, len(t.applied)+len(t.unapplied)+len(t.hidden))
	all = append(all, t.applied...)
	all = append(all, t.unapplied...)
	return append(all, t.hidden...)
}

// Patch reads through the override map, falling back to the live stack.
func (t *Transaction) Patch(ctx context.Context, pn string) (*git.Commit, error) {
	if c, ok := t.patches[pn]; ok {
		if c == nil {
			return nil, fmt.Errorf("patch '%s' is deleted in this transaction", pn)
		}
		return c, nil
	}
	return t.stack.Patches().Get(pn).Commit(ctx)
}

// Base is the staged base commit.
func (t *Transaction) Base() *git.Commit {
	return t.base
}

// SetBase reassigns the base; with applied patches present the bottom
// patch must already sit on the new base.
func (t *Transaction) SetBase(ctx context.Context, base *git.Commit) error {
	if len(t.applied) != 0 {
		bottom, err := t.Patch(ctx, t.applied[0])
		if err != nil {
			return err
		}
		cd, err := bottom.Data()
		if err != nil {
			return err
		}
		if cd.Parent() != base {
			return &TransactionError{message: "new base does not match the bottommost applied patch"}
		}
	}
	t.base = base
	return nil
}

// Top is the staged topmost commit: the last applied patch, or the
// base.
func (t *Transaction) Top(ctx context.Context) (*git.Commit, error) {
	if len(t.applied) != 0 {
		return t.Patch(ctx, t.applied[len(t.applied)-1])
	}
	return t.base, nil
}

// Head is what the branch will point at after Run: the known-divergent
// head in repair mode, the staged top otherwise.
func (t *Transaction) Head(ctx context.Context) (*git.Commit, error) {
	if t.badHead != nil {
		return t.badHead, nil
	}
	return t.Top(ctx)
}

// SetHead marks the transaction as committing a known-divergent head.
func (t *Transaction) SetHead(commit *git.Commit) {
	t.badHead = commit
}

// TempIndex is the ephemeral index reused across this transaction's
// merges; the backing file is removed at process exit.
func (t *Transaction) TempIndex() *git.Index {
	if t.tempIndex == nil {
		index := t.stack.Repository().TempIndex()
		command.AtExit(func() { _ = index.Delete() })
		t.tempIndex = index
	}
	return t.tempIndex
}

func (t *Transaction) assertHeadTopEqual(ctx context.Context) error {
	equal, err := t.stack.HeadTopEqual(ctx)
	if err != nil {
		return err
	}
	if equal {
		return nil
	}
	t.out.Error("HEAD and top are not the same.")
	t.out.Note("This can happen if you modify a branch with git.")
	t.out.Note("\"stackform repair --help\" explains more about what to do next.")
	return errAborted()
}

func (t *Transaction) halt(msg string) error {
	t.errMsg = msg
	return &HaltError{message: msg}
}

// checkout moves the collaborating worktree to tree, honoring the
// transaction's conflict and discard policies.
func (t *Transaction) checkout(ctx context.Context, tree *git.Tree, iw *git.IndexAndWorktree, allowBadHead bool) error {
	if !allowBadHead {
		if err := t.assertHeadTopEqual(ctx); err != nil {
			return err
		}
	}
	if t.currentTree == tree && !t.discardChanges {
		// No tree change, but unresolved conflicts must not ride along
		// to another patch; they belong to the topmost one.
		if t.allowConflicts(t) || iw == nil {
			return nil
		}
		conflicts, err := iw.Index().Conflicts(ctx)
		if err != nil {
			return err
		}
		if len(conflicts) == 0 {
			return nil
		}
		t.out.Error("Need to resolve conflicts first")
		return errAborted()
	}
	if iw == nil {
		return &TransactionError{message: "checkout requires an index and worktree"}
	}
	if t.discardChanges {
		if err := iw.CheckoutHard(ctx, tree); err != nil {
			return err
		}
	} else {
		if err := iw.Checkout(ctx, t.currentTree, tree); err != nil {
			return err
		}
	}
	t.currentTree = tree
	return nil
}

// Abort restores the worktree to the stack's head tree. Nothing else
// needs undoing: no ref or patch record has been written yet.
func (t *Transaction) Abort(ctx context.Context, iw *git.IndexAndWorktree) error {
	if iw == nil {
		return nil
	}
	head, err := t.stack.Head(ctx)
	if err != nil {
		return err
	}
	cd, err := head.Data()
	if err != nil {
		return err
	}
	return t.checkout(ctx, cd.Tree, iw, true)
}

func (t *Transaction) printPopped(popped []string) {
	switch len(popped) {
	case 0:
	case 1:
		t.out.Info("Popped %s", popped[0])
	default:
		t.out.Info("Popped %s -- %s", popped[len(popped)-1], popped[0])
	}
}

// PopPatches pops every applied patch for which pred is true, plus
// whatever sat above the lowest of them. The incidental pops (those
// pred did not select) come back first on unapplied and are returned.
// Never fails.
func (t *Transaction) PopPatches(pred func(string) bool) []string {
	var popped []string
	for i := range t.applied {
		if pred(t.applied[i]) {
			popped = t.applied[i:]
			t.applied = t.applied[:i]
			break
		}
	}
	var incidental, selected []string
	for _, pn := range popped {
		if pred(pn) {
			selected = append(selected, pn)
		} else {
			incidental = append(incidental, pn)
		}
	}
	t.unapplied = append(append(append([]string(nil), incidental...), selected...), t.unapplied...)
	t.printPopped(popped)
	return incidental
}

// DeletePatches tombstones every patch for which pred is true, from all
// three lists, popping as needed. Returns the incidental pops.
func (t *Transaction) DeletePatches(ctx context.Context, pred func(string) bool, quiet bool) ([]string, error) {
	all := t.AllPatches()
	var popped []string
	for i := range t.applied {
		if pred(t.applied[i]) {
			popped = t.applied[i:]
			t.applied = t.applied[:i]
			break
		}
	}
	var incidental []string
	for _, pn := range popped {
		if !pred(pn) {
			incidental = append(incidental, pn)
		}
	}
	keep := func(names []string) []string {
		var kept []string
		for _, pn := range names {
			if !pred(pn) {
				kept = append(kept, pn)
			}
		}
		return kept
	}
	t.unapplied = append(append([]string(nil), incidental...), keep(t.unapplied)...)
	t.hidden = keep(t.hidden)
	t.printPopped(incidental)
	for _, pn := range all {
		if !pred(pn) {
			continue
		}
		suffix := ""
		if !quiet {
			c, err := t.Patch(ctx, pn)
			if err != nil {
				return nil, err
			}
			cd, err := c.Data()
			if err != nil {
				return nil, err
			}
			if empty, err := cd.IsNoChange(); err != nil {
				return nil, err
			} else if empty {
				suffix = " (empty)"
			}
		}
		t.patches[pn] = nil
		if !quiet {
			t.out.Info("Deleted %s%s", pn, suffix)
		}
	}
	return incidental, nil
}

// PushPatch rebases the named patch onto the staged top via a three-way
// merge in the temp index. A merge failure without a worktree halts; a
// worktree merge that conflicts spills the conflicts there, records the
// patch tree as ours, and defers the list update to Run's conflict
// pass.
func (t *Transaction) PushPatch(ctx context.Context, pn string, iw *git.IndexAndWorktree) error {
	origCommit, err := t.Patch(ctx, pn)
	if err != nil {
		return err
	}
	origData, err := origCommit.Data()
	if err != nil {
		return err
	}
	// The committer is cleared: git re-stamps it on rewrite.
	cd := origData.WithCommitter(nil)
	oldParent := cd.Parent()
	if oldParent == nil {
		return &TransactionError{message: fmt.Sprintf("patch '%s' does not have exactly one parent", pn)}
	}
	top, err := t.Top(ctx)
	if err != nil {
		return err
	}
	cd = cd.WithParent(top)

	oldParentData, err := oldParent.Data()
	if err != nil {
		return err
	}
	topData, err := top.Data()
	if err != nil {
		return err
	}
	base, ours, theirs := oldParentData.Tree, topData.Tree, cd.Tree

	tree, tempTree, err := t.TempIndex().Merge(ctx, base, ours, theirs, t.tempIndexTree)
	if err != nil {
		return err
	}
	t.tempIndexTree = tempTree

	suffix := ""
	mergeConflict := false
	if tree == nil {
		if iw == nil {
			return t.halt(fmt.Sprintf("%s does not apply cleanly", pn))
		}
		if err := t.checkout(ctx, ours, iw, false); err != nil {
			if git.IsCheckoutError(err) {
				return t.halt("Index/worktree dirty")
			}
			return err
		}
		switch err := iw.Merge(ctx, base, ours, theirs); {
		case err == nil:
			if tree, err = iw.Index().WriteTree(ctx); err != nil {
				return t.halt(err.Error())
			}
			t.currentTree = tree
			suffix = " (modified)"
		case git.IsMergeConflict(err):
			// Conflicts live in the worktree, not the committed tree.
			tree = ours
			mergeConflict = true
			suffix = " (conflict)"
		case git.IsMergeError(err):
			return t.halt(err.Error())
		default:
			return err
		}
	}
	cd = cd.WithTree(tree)

	var comm *git.Commit
	if cd.Parent() != origData.Parent() || cd.Tree != origData.Tree ||
		!cd.Author.Eq(origData.Author) || cd.Message != origData.Message {
		if comm, err = t.stack.Repository().Commit(ctx, cd); err != nil {
			return err
		}
	} else {
		suffix = " (unmodified)"
	}
	if !mergeConflict {
		if empty, err := cd.IsNoChange(); err != nil {
			return err
		} else if empty {
			suffix = " (empty)"
		}
	}
	t.out.Info("Pushed %s%s", pn, suffix)

	update := &pendingPush{name: pn, commit: comm}
	if mergeConflict {
		// We just caused conflicts, so the final checkout must allow
		// them; the list update waits for the conflict pass.
		t.allowConflicts = func(*Transaction) bool { return true }
		t.conflictingPush = update
		return t.halt("Merge conflict")
	}
	t.applyPush(update)
	return nil
}

func (t *Transaction) applyPush(p *pendingPush) {
	if p.commit != nil {
		t.patches[p.name] = p.commit
	}
	t.hidden, t.unapplied = removeFromOne(t.hidden, t.unapplied, p.name)
	t.applied = append(t.applied, p.name)
}

// removeFromOne drops name from first if present there, else from
// second.
func removeFromOne(first, second []string, name string) ([]string, []string) {
	for i, pn := range first {
		if pn == name {
			return append(first[:i:i], first[i+1:]...), second
		}
	}
	for i, pn := range second {
		if pn == name {
			return first, append(second[:i:i], second[i+1:]...)
		}
	}
	return first, second
}

// NewPatch stages a brand-new patch as the topmost applied entry. The
// commit data's parent should be the staged top; usually its tree is
// the top tree so the patch starts out empty.
func (t *Transaction) NewPatch(ctx context.Context, pn string, cd *git.CommitData) error {
	for _, existing := range t.AllPatches() {
		if existing == pn {
			return &TransactionError{message: fmt.Sprintf("patch '%s' already exists", pn)}
		}
	}
	if exists, err := t.stack.Patches().Exists(ctx, pn); err != nil {
		return err
	} else if exists {
		return &TransactionError{message: fmt.Sprintf("patch '%s' already exists", pn)}
	}
	comm, err := t.stack.Repository().Commit(ctx, cd)
	if err != nil {
		return err
	}
	t.patches[pn] = comm
	t.applied = append(t.applied, pn)
	return nil
}

// HidePatch pops the patch if needed and moves it to the hidden list.
func (t *Transaction) HidePatch(pn string) error {
	for _, h := range t.hidden {
		if h == pn {
			return nil
		}
	}
	applied := make(map[string]bool)
	for _, a := range t.applied {
		applied[a] = true
	}
	if applied[pn] {
		t.PopPatches(func(name string) bool { return name == pn })
	}
	before := len(t.unapplied)
	t.unapplied, _ = removeFromOne(t.unapplied, nil, pn)
	if len(t.unapplied) == before {
		return &TransactionError{message: fmt.Sprintf("patch '%s' is not in the stack", pn)}
	}
	t.hidden = append(t.hidden, pn)
	return nil
}

// UnhidePatch moves the patch from hidden back to unapplied.
func (t *Transaction) UnhidePatch(pn string) error {
	before := len(t.hidden)
	t.hidden, _ = removeFromOne(t.hidden, nil, pn)
	if len(t.hidden) == before {
		return &TransactionError{message: fmt.Sprintf("patch '%s' is not hidden", pn)}
	}
	t.unapplied = append(t.unapplied, pn)
	return nil
}

// ReorderPatches pushes and pops to reach the requested ordering,
// reusing the common applied prefix untouched.
func (t *Transaction) ReorderPatches(ctx context.Context, applied, unapplied, hidden []string, iw *git.IndexAndWorktree) error {
	common := 0
	for common < len(t.applied) && common < len(applied) && t.applied[common] == applied[common] {
		common++
	}
	toPop := make(map[string]bool)
	for _, pn := range t.applied[common:] {
		toPop[pn] = true
	}
	t.PopPatches(func(pn string) bool { return toPop[pn] })
	for _, pn := range applied[common:] {
		if err := t.PushPatch(ctx, pn, iw); err != nil {
			return err
		}
	}
	if !equalStrings(t.applied, applied) {
		return &TransactionError{message: "reorder did not reach the requested applied order"}
	}
	if !equalStringSets(append(t.Unapplied(), t.hidden...), append(append([]string(nil), unapplied...), hidden...)) {
		return &TransactionError{message: "reorder changed the set of unapplied patches"}
	}
	t.unapplied = append([]string(nil), unapplied...)
	t.hidden = append([]string(nil), hidden...)
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, s := range a {
		set[s]++
	}
	for _, s := range b {
		set[s]--
		if set[s] < 0 {
			return false
		}
	}
	return true
}

// checkConsistency: every override entry either mutates or tombstones
// an existing patch, or introduces a fresh name that is in the staged
// lists.
func (t *Transaction) checkConsistency(ctx context.Context) error {
	staged := make(map[string]bool)
	for _, pn := range t.AllPatches() {
		staged[pn] = true
	}
	for pn, commit := range t.patches {
		exists, err := t.stack.Patches().Exists(ctx, pn)
		if err != nil {
			return err
		}
		if commit == nil {
			if !exists {
				return &TransactionError{message: fmt.Sprintf("cannot delete unknown patch '%s'", pn)}
			}
		} else if !staged[pn] {
			return &TransactionError{message: fmt.Sprintf("patch '%s' is not in the stack order", pn)}
		}
	}
	return nil
}

// RunOptions tunes the terminal phase.
type RunOptions struct {
	// NoSetHead leaves the branch ref alone.
	NoSetHead bool
	// AllowBadHead skips the divergence re-check at checkout.
	AllowBadHead bool
	// Quiet suppresses the current-patch report.
	Quiet bool
}

// Run executes the transaction: either every staged change lands —
// checkout, ref advance, patch metadata, log entry, in that fixed
// order — or it returns an error with the repository unchanged.
func (t *Transaction) Run(ctx context.Context, iw *git.IndexAndWorktree, opts *RunOptions) (Status, error) {
	if opts == nil {
		opts = &RunOptions{}
	}
	if err := t.checkConsistency(ctx); err != nil {
		return StatusOK, err
	}
	if err := LogExternalMods(ctx, t.stack); err != nil {
		return StatusOK, err
	}
	newHead, err := t.Head(ctx)
	if err != nil {
		return StatusOK, err
	}

	if !opts.NoSetHead {
		if iw != nil {
			headData, err := newHead.Data()
			if err != nil {
				return StatusOK, err
			}
			if err := t.checkout(ctx, headData.Tree, iw, opts.AllowBadHead); err != nil {
				if git.IsCheckoutError(err) {
					if err := t.Abort(ctx, iw); err != nil {
						logrus.Debugf("abort checkout failed: %v", err)
					}
					return StatusOK, errAborted()
				}
				return StatusOK, err
			}
		}
		if err := t.stack.SetHead(ctx, newHead, t.msg); err != nil {
			return StatusOK, err
		}
	}

	if len(t.errMsg) != 0 {
		t.out.Error("%s", t.errMsg)
	}

	write := func(msg string) error {
		names := make([]string, 0, len(t.patches))
		for pn := range t.patches {
			names = append(names, pn)
		}
		sort.Strings(names)
		for _, pn := range names {
			commit := t.patches[pn]
			exists, err := t.stack.Patches().Exists(ctx, pn)
			if err != nil {
				return err
			}
			switch {
			case exists && commit == nil:
				if err := t.stack.Patches().Get(pn).Delete(ctx); err != nil {
					return err
				}
			case exists:
				if err := t.stack.Patches().Get(pn).SetCommit(ctx, commit, msg); err != nil {
					return err
				}
			case commit != nil:
				if _, err := t.stack.Patches().New(ctx, pn, commit, msg); err != nil {
					return err
				}
			}
		}
		if err := t.stack.SetOrder(t.applied, t.unapplied, t.hidden); err != nil {
			return err
		}
		return LogEntry(ctx, t.stack, msg)
	}

	oldApplied := t.stack.Applied()
	if err := write(t.msg); err != nil {
		return StatusOK, err
	}
	if t.conflictingPush != nil {
		t.patches = make(map[string]*git.Commit)
		t.applyPush(t.conflictingPush)
		if err := write(t.msg + " (CONFLICT)"); err != nil {
			return StatusOK, err
		}
	}
	if !opts.Quiet {
		t.printCurrentPatch(oldApplied, t.applied)
	}

	if len(t.errMsg) != 0 {
		return StatusConflict, nil
	}
	return StatusOK, nil
}

func (t *Transaction) printCurrentPatch(oldApplied, newApplied []string) {
	switch {
	case len(oldApplied) == 0 && len(newApplied) == 0:
	case len(newApplied) == 0:
		t.out.Info("No patch applied")
	case len(oldApplied) == 0 || oldApplied[len(oldApplied)-1] != newApplied[len(newApplied)-1]:
		t.out.Info("Now at patch \"%s\"", newApplied[len(newApplied)-1])
	}
}
