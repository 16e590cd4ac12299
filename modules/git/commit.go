package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/stackform/stackform/modules/command"
)

// CommitData is the decoded content of a commit object. It is a value:
// the With* methods return modified copies, mirroring the fact that git
// commits are rebuilt, never mutated.
type CommitData struct {
	Tree      *Tree
	Parents   []*Commit
	Author    *Person
	Committer *Person
	Message   string
}

// Parent returns the sole parent, or nil when the commit does not have
// exactly one.
func (d *CommitData) Parent() *Commit {
	if len(d.Parents) != 1 {
		return nil
	}
	return d.Parents[0]
}

func (d *CommitData) WithTree(tree *Tree) *CommitData {
	c := *d
	c.Tree = tree
	return &c
}

func (d *CommitData) WithParents(parents []*Commit) *CommitData {
	c := *d
	c.Parents = parents
	return &c
}

func (d *CommitData) WithParent(parent *Commit) *CommitData {
	return d.WithParents([]*Commit{parent})
}

func (d *CommitData) AddParent(parent *Commit) *CommitData {
	c := *d
	c.Parents = append(append([]*Commit(nil), d.Parents...), parent)
	return &c
}

func (d *CommitData) WithAuthor(author *Person) *CommitData {
	c := *d
	c.Author = author
	return &c
}

func (d *CommitData) WithCommitter(committer *Person) *CommitData {
	c := *d
	c.Committer = committer
	return &c
}

func (d *CommitData) WithMessage(message string) *CommitData {
	c := *d
	c.Message = message
	return &c
}

// IsNoChange reports whether the commit records the same tree as its
// sole parent.
func (d *CommitData) IsNoChange() (bool, error) {
	if len(d.Parents) != 1 {
		return false, nil
	}
	pd, err := d.Parents[0].Data()
	if err != nil {
		return false, err
	}
	return d.Tree == pd.Tree, nil
}

// Env renders the author/committer fields as GIT_* variables for
// commit-tree. Unset fields are omitted so git supplies its defaults.
func (d *CommitData) Env() []string {
	var env []string
	for _, f := range []struct {
		p    *Person
		role string
	}{
		{d.Author, "AUTHOR"},
		{d.Committer, "COMMITTER"},
	} {
		if f.p == nil {
			continue
		}
		if len(f.p.Name) != 0 {
			env = append(env, fmt.Sprintf("GIT_%s_NAME=%s", f.role, f.p.Name))
		}
		if len(f.p.Email) != 0 {
			env = append(env, fmt.Sprintf("GIT_%s_EMAIL=%s", f.role, f.p.Email))
		}
		if !f.p.When.IsZero() {
			env = append(env, fmt.Sprintf("GIT_%s_DATE=%s", f.role, f.p.When))
		}
	}
	return env
}

// Commit writes the commit object through commit-tree and returns the
// interned handle.
func (d *CommitData) Commit(ctx context.Context, r *Repository) (*Commit, error) {
	args := []string{"commit-tree", d.Tree.OID()}
	for _, p := range d.Parents {
		args = append(args, "-p", p.OID())
	}
	stderr := command.NewStderr()
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: append(r.ExtraEnv(), d.Env()...),
		Stdin:    strings.NewReader(d.Message),
		Stderr:   stderr,
	}, "git", args...)
	oid, err := cmd.OneLine()
	if err != nil {
		return nil, newRunError("commit-tree", err, stderr.String())
	}
	if !ValidateHex(oid) {
		return nil, newRunError("commit-tree", errUnexpectedReply, oid)
	}
	return r.GetCommit(oid), nil
}

// ParseCommitData parses a raw commit object. Header continuation lines
// (leading SP) fold into the previous header; the first empty line ends
// the header block and the remainder is the message verbatim.
func ParseCommitData(r *Repository, raw []byte) (*CommitData, error) {
	cd := &CommitData{}
	rawLines := strings.Split(string(raw), "\n")
	var lines []string
	for i, line := range rawLines {
		if len(line) == 0 {
			cd.Message = strings.Join(rawLines[i+1:], "\n")
			break
		}
		if strings.HasPrefix(line, " ") && len(lines) != 0 {
			lines[len(lines)-1] += "\n" + line[1:]
			continue
		}
		lines = append(lines, line)
	}
	for _, line := range lines {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		switch key {
		case "tree":
			cd.Tree = r.GetTree(value)
		case "parent":
			cd.Parents = append(cd.Parents, r.GetCommit(value))
		case "author":
			author, err := ParsePerson(value)
			if err != nil {
				return nil, err
			}
			cd.Author = author
		case "committer":
			committer, err := ParsePerson(value)
			if err != nil {
				return nil, err
			}
			cd.Committer = committer
		}
	}
	if cd.Tree == nil {
		return nil, fmt.Errorf("commit object without tree header")
	}
	return cd, nil
}

// Commit is an interned handle to a git commit object. The payload
// decodes lazily from the cat-file stream.
type Commit struct {
	repo *Repository
	oid  string
	data *CommitData
}

func (c *Commit) OID() string {
	return c.oid
}

func (c *Commit) Type() ObjectType {
	return CommitObject
}

func (c *Commit) String() string {
	return "commit " + c.oid
}

func (c *Commit) Data() (*CommitData, error) {
	if c.data != nil {
		return c.data, nil
	}
	raw, err := c.repo.CatObject(c.oid)
	if err != nil {
		return nil, err
	}
	data, err := ParseCommitData(c.repo, raw)
	if err != nil {
		return nil, err
	}
	c.data = data
	return c.data, nil
}
