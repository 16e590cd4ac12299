package git

import (
	"errors"
	"fmt"
)

// ErrNotExist is the not-found family: objects, refs, branches,
// revisions.
type ErrNotExist struct {
	message string
}

func (err *ErrNotExist) Error() string {
	return err.message
}

// IsErrNotExist if some error is ErrNotExist
func IsErrNotExist(err error) bool {
	var e *ErrNotExist
	return errors.As(err, &e)
}

func NewObjectNotFound(oid string) error {
	return &ErrNotExist{message: fmt.Sprintf("object '%s' does not exist", oid)}
}

func NewRefNotFound(ref string) error {
	return &ErrNotExist{message: fmt.Sprintf("ref '%s' does not exist", ref)}
}

func NewBranchNotFound(branch string) error {
	return &ErrNotExist{message: fmt.Sprintf("branch '%s' does not exist", branch)}
}

func NewRevisionNotFound(rev string, typ ObjectType) error {
	return &ErrNotExist{message: fmt.Sprintf("%s: no such %s", rev, typ)}
}

type ErrUnexpectedType struct {
	message string
}

func (e *ErrUnexpectedType) Error() string {
	return e.message
}

func IsErrUnexpectedType(err error) bool {
	var e *ErrUnexpectedType
	return errors.As(err, &e)
}

// ErrDetachedHead: HEAD names no branch but one was required.
var ErrDetachedHead = errors.New("not on any branch")

// BranchExistsError is returned when creating a branch that is already
// there.
type BranchExistsError struct {
	Name string
}

func (e *BranchExistsError) Error() string {
	return fmt.Sprintf("branch '%s' already exists", e.Name)
}

// DateError is returned when a string could not be parsed as a date or
// time zone.
type DateError struct {
	Value string
	Kind  string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("%q is not a valid %s", e.Value, e.Kind)
}

// RunError: a git subprocess exited non-zero where success was expected.
type RunError struct {
	Action string
	Stderr string
	err    error
}

func (e *RunError) Error() string {
	if len(e.Stderr) != 0 {
		return fmt.Sprintf("%s: %v stderr: %s", e.Action, e.err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Action, e.err)
}

func (e *RunError) Unwrap() error {
	return e.err
}

func newRunError(action string, err error, stderr string) error {
	return &RunError{Action: action, Stderr: stderr, err: err}
}

func IsRunError(err error) bool {
	var e *RunError
	return errors.As(err, &e)
}

// errUnexpectedReply: a plumbing command contractually replying with a
// single object ID said something else.
var errUnexpectedReply = errors.New("unexpected reply")

// MergeError: a merge failed for a non-conflict reason, or a patch did
// not apply.
type MergeError struct {
	message string
}

func (e *MergeError) Error() string {
	return e.message
}

func NewMergeError(message string) error {
	return &MergeError{message: message}
}

// MergeConflictError: a merge failed with conflicts. Conflicts carries
// the CONFLICT lines (or conflicting paths) for user messaging.
type MergeConflictError struct {
	Conflicts []string
}

func (e *MergeConflictError) Error() string {
	return "merge resulted in conflicts"
}

func IsMergeConflict(err error) bool {
	var e *MergeConflictError
	return errors.As(err, &e)
}

// IsMergeError covers both plain merge failures and conflicts.
func IsMergeError(err error) bool {
	var e *MergeError
	return errors.As(err, &e) || IsMergeConflict(err)
}

// CheckoutError: read-tree refused to touch a dirty index or worktree.
type CheckoutError struct {
	message string
}

func (e *CheckoutError) Error() string {
	return e.message
}

func NewCheckoutError(message string) error {
	return &CheckoutError{message: message}
}

func IsCheckoutError(err error) bool {
	var e *CheckoutError
	return errors.As(err, &e)
}
