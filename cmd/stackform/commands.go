package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/stackform/stackform/modules/git"
	"github.com/stackform/stackform/pkg/display"
	"github.com/stackform/stackform/pkg/stack"
)

// execute runs the staged mutation and then the terminal phase. A halt
// is not an error here: Run still records whatever landed before the
// halt (including a conflicting push).
func execute(ctx context.Context, t *stack.Transaction, iw *git.IndexAndWorktree, opts *stack.RunOptions, mutate func() error) (stack.Status, error) {
	if err := mutate(); err != nil && !stack.IsHalt(err) {
		return stack.StatusOK, err
	}
	return t.Run(ctx, iw, opts)
}

func defaultIW(ctx context.Context, s *stack.Stack) (*git.IndexAndWorktree, error) {
	return s.Repository().DefaultIW(ctx)
}

func series(ctx context.Context, s *stack.Stack, out *display.Console) error {
	width := display.Width(80)
	subject := func(pn string) string {
		c, err := s.Patches().Get(pn).Commit(ctx)
		if err != nil {
			return ""
		}
		cd, err := c.Data()
		if err != nil {
			return ""
		}
		subj := cd.Message
		if i := strings.IndexAny(subj, "\r\n"); i >= 0 {
			subj = subj[:i]
		}
		return subj
	}
	print := func(marker byte, pn string) {
		line := fmt.Sprintf("%c %s # %s", marker, pn, subject(pn))
		if len(line) > width {
			line = line[:width]
		}
		out.Info("%s", line)
	}
	applied := s.Applied()
	for i, pn := range applied {
		marker := byte('+')
		if i == len(applied)-1 {
			marker = '>'
		}
		print(marker, pn)
	}
	for _, pn := range s.Unapplied() {
		print('-', pn)
	}
	return nil
}

func newPatch(ctx context.Context, s *stack.Stack, out *display.Console, name, message string) (stack.Status, error) {
	t, err := stack.NewTransaction(ctx, s, "new", &stack.Options{Output: out})
	if err != nil {
		return stack.StatusOK, err
	}
	top, err := s.Top(ctx)
	if err != nil {
		return stack.StatusOK, err
	}
	topData, err := top.Data()
	if err != nil {
		return stack.StatusOK, err
	}
	author, err := git.Author(ctx)
	if err != nil {
		return stack.StatusOK, err
	}
	cd := &git.CommitData{
		Tree:    topData.Tree,
		Parents: []*git.Commit{top},
		Author:  author,
		Message: message,
	}
	return execute(ctx, t, nil, nil, func() error {
		return t.NewPatch(ctx, name, cd)
	})
}

func push(ctx context.Context, s *stack.Stack, out *display.Console, names []string, count int, all bool) (stack.Status, error) {
	unapplied := s.Unapplied()
	switch {
	case len(names) != 0:
	case all:
		names = unapplied
	default:
		if count <= 0 {
			count = 1
		}
		if count > len(unapplied) {
			count = len(unapplied)
		}
		names = unapplied[:count]
	}
	if len(names) == 0 {
		out.Info("No patches to push")
		return stack.StatusOK, nil
	}
	iw, err := defaultIW(ctx, s)
	if err != nil {
		return stack.StatusOK, err
	}
	t, err := stack.NewTransaction(ctx, s, "push", &stack.Options{Output: out})
	if err != nil {
		return stack.StatusOK, err
	}
	return execute(ctx, t, iw, nil, func() error {
		for _, pn := range names {
			if err := t.PushPatch(ctx, pn, iw); err != nil {
				return err
			}
		}
		return nil
	})
}

func pop(ctx context.Context, s *stack.Stack, out *display.Console, names []string, count int, all bool) (stack.Status, error) {
	applied := s.Applied()
	if len(applied) == 0 {
		out.Info("No patches applied")
		return stack.StatusOK, nil
	}
	selected := make(map[string]bool)
	switch {
	case len(names) != 0:
		appliedSet := make(map[string]bool)
		for _, pn := range applied {
			appliedSet[pn] = true
		}
		for _, pn := range names {
			if !appliedSet[pn] {
				return stack.StatusOK, fmt.Errorf("patch '%s' is not applied", pn)
			}
			selected[pn] = true
		}
	case all:
		for _, pn := range applied {
			selected[pn] = true
		}
	default:
		if count <= 0 {
			count = 1
		}
		if count > len(applied) {
			count = len(applied)
		}
		for _, pn := range applied[len(applied)-count:] {
			selected[pn] = true
		}
	}
	iw, err := defaultIW(ctx, s)
	if err != nil {
		return stack.StatusOK, err
	}
	t, err := stack.NewTransaction(ctx, s, "pop", &stack.Options{Output: out})
	if err != nil {
		return stack.StatusOK, err
	}
	return execute(ctx, t, iw, nil, func() error {
		t.PopPatches(func(pn string) bool { return selected[pn] })
		return nil
	})
}

func goTo(ctx context.Context, s *stack.Stack, out *display.Console, name string) (stack.Status, error) {
	iw, err := defaultIW(ctx, s)
	if err != nil {
		return stack.StatusOK, err
	}
	t, err := stack.NewTransaction(ctx, s, "goto", &stack.Options{Output: out})
	if err != nil {
		return stack.StatusOK, err
	}
	applied, unapplied := s.Applied(), s.Unapplied()
	for i, pn := range applied {
		if pn != name {
			continue
		}
		above := make(map[string]bool)
		for _, a := range applied[i+1:] {
			above[a] = true
		}
		return execute(ctx, t, iw, nil, func() error {
			t.PopPatches(func(pn string) bool { return above[pn] })
			return nil
		})
	}
	for i, pn := range unapplied {
		if pn != name {
			continue
		}
		toPush := unapplied[:i+1]
		return execute(ctx, t, iw, nil, func() error {
			for _, pn := range toPush {
				if err := t.PushPatch(ctx, pn, iw); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return stack.StatusOK, fmt.Errorf("patch '%s' is not in the series", name)
}

func float(ctx context.Context, s *stack.Stack, out *display.Console, names []string) (stack.Status, error) {
	moving := make(map[string]bool)
	for _, pn := range names {
		moving[pn] = true
	}
	var applied []string
	for _, pn := range s.Applied() {
		if !moving[pn] {
			applied = append(applied, pn)
		}
	}
	var unapplied []string
	for _, pn := range s.Unapplied() {
		if !moving[pn] {
			unapplied = append(unapplied, pn)
		}
	}
	known := make(map[string]bool)
	for _, pn := range s.AllPatches() {
		known[pn] = true
	}
	for _, pn := range names {
		if !known[pn] {
			return stack.StatusOK, fmt.Errorf("patch '%s' is not in the series", pn)
		}
	}
	applied = append(applied, names...)
	iw, err := defaultIW(ctx, s)
	if err != nil {
		return stack.StatusOK, err
	}
	t, err := stack.NewTransaction(ctx, s, "float", &stack.Options{Output: out})
	if err != nil {
		return stack.StatusOK, err
	}
	hidden := s.Hidden()
	return execute(ctx, t, iw, nil, func() error {
		return t.ReorderPatches(ctx, applied, unapplied, hidden, iw)
	})
}

func deletePatches(ctx context.Context, s *stack.Stack, out *display.Console, names []string) (stack.Status, error) {
	known := make(map[string]bool)
	for _, pn := range s.AllPatches() {
		known[pn] = true
	}
	selected := make(map[string]bool)
	for _, pn := range names {
		if !known[pn] {
			return stack.StatusOK, fmt.Errorf("patch '%s' is not in the series", pn)
		}
		selected[pn] = true
	}
	iw, err := defaultIW(ctx, s)
	if err != nil {
		return stack.StatusOK, err
	}
	t, err := stack.NewTransaction(ctx, s, "delete", &stack.Options{Output: out})
	if err != nil {
		return stack.StatusOK, err
	}
	return execute(ctx, t, iw, nil, func() error {
		_, err := t.DeletePatches(ctx, func(pn string) bool { return selected[pn] }, false)
		return err
	})
}

func hide(ctx context.Context, s *stack.Stack, out *display.Console, name string) (stack.Status, error) {
	iw, err := defaultIW(ctx, s)
	if err != nil {
		return stack.StatusOK, err
	}
	t, err := stack.NewTransaction(ctx, s, "hide", &stack.Options{Output: out})
	if err != nil {
		return stack.StatusOK, err
	}
	return execute(ctx, t, iw, nil, func() error {
		return t.HidePatch(name)
	})
}

func unhide(ctx context.Context, s *stack.Stack, out *display.Console, name string) (stack.Status, error) {
	t, err := stack.NewTransaction(ctx, s, "unhide", &stack.Options{Output: out})
	if err != nil {
		return stack.StatusOK, err
	}
	return execute(ctx, t, nil, nil, func() error {
		return t.UnhidePatch(name)
	})
}

// repair reconciles the recorded stack with a branch head some other
// tool moved: applied patches no longer in the head's first-parent
// chain become unapplied, and the divergent head is committed as-is.
func repair(ctx context.Context, s *stack.Stack, out *display.Console) (stack.Status, error) {
	equal, err := s.HeadTopEqual(ctx)
	if err != nil {
		return stack.StatusOK, err
	}
	if equal {
		out.Info("No repairs needed")
		return stack.StatusOK, nil
	}
	head, err := s.Head(ctx)
	if err != nil {
		return stack.StatusOK, err
	}
	ancestors := make(map[string]bool)
	for c := head; c != nil; {
		ancestors[c.OID()] = true
		cd, err := c.Data()
		if err != nil {
			return stack.StatusOK, err
		}
		if len(cd.Parents) == 0 {
			break
		}
		c = cd.Parents[0]
	}
	diverged := make(map[string]bool)
	for _, pn := range s.Applied() {
		c, err := s.Patches().Get(pn).Commit(ctx)
		if err != nil {
			return stack.StatusOK, err
		}
		if !ancestors[c.OID()] {
			diverged[pn] = true
		}
	}
	t, err := stack.NewTransaction(ctx, s, "repair", &stack.Options{AllowBadHead: true, Output: out})
	if err != nil {
		return stack.StatusOK, err
	}
	t.SetHead(head)
	return execute(ctx, t, nil, &stack.RunOptions{AllowBadHead: true}, func() error {
		t.PopPatches(func(pn string) bool { return diverged[pn] })
		return nil
	})
}
