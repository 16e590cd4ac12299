package git

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/stackform/stackform/modules/command"
)

// TreeEntry is a single name in a tree: its mode and the object it
// points at.
type TreeEntry struct {
	Mode   FileMode
	Object Object
}

// TreeData is the decoded content of a tree object: a mapping from entry
// name to TreeEntry. Names are unique; iteration follows insertion
// order, which is never structurally meaningful.
type TreeData struct {
	entries *linkedhashmap.Map
}

func NewTreeData() *TreeData {
	return &TreeData{entries: linkedhashmap.New()}
}

// Set adds or replaces the entry for name.
func (d *TreeData) Set(name string, e TreeEntry) {
	d.entries.Put(name, e)
}

func (d *TreeData) Get(name string) (TreeEntry, bool) {
	v, ok := d.entries.Get(name)
	if !ok {
		return TreeEntry{}, false
	}
	return v.(TreeEntry), true
}

func (d *TreeData) Remove(name string) {
	d.entries.Remove(name)
}

func (d *TreeData) Len() int {
	return d.entries.Size()
}

func (d *TreeData) Each(fn func(name string, e TreeEntry)) {
	d.entries.Each(func(key any, value any) {
		fn(key.(string), value.(TreeEntry))
	})
}

var lsTreeLineRE = regexp.MustCompile(`^([0-7]{6}) ([a-z]+) ([0-9a-f]{40})\t(.*)$`)

// ParseTreeData parses zero-terminated `ls-tree -z` records:
// "<mode> SP <type> SP <oid> TAB <path>".
func ParseTreeData(r *Repository, listing []byte) (*TreeData, error) {
	d := NewTreeData()
	for _, line := range bytes.Split(listing, []byte{0}) {
		if len(line) == 0 {
			continue
		}
		m := lsTreeLineRE.FindSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("malformed tree listing line: %q", line)
		}
		mode, typeName, oid, name := FileMode(m[1]), string(m[2]), string(m[3]), string(m[4])
		typ, err := ParseObjectType(typeName)
		if err != nil {
			return nil, err
		}
		obj, err := r.GetObject(typ, oid)
		if err != nil {
			return nil, err
		}
		d.Set(name, TreeEntry{Mode: mode, Object: obj})
	}
	return d, nil
}

// Commit writes the tree through mktree and returns the interned handle.
func (d *TreeData) Commit(ctx context.Context, r *Repository) (*Tree, error) {
	var listing strings.Builder
	d.Each(func(name string, e TreeEntry) {
		fmt.Fprintf(&listing, "%s %s %s\t%s\x00", e.Mode, e.Mode.ObjectType(), e.Object.OID(), name)
	})
	stderr := command.NewStderr()
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.ExtraEnv(),
		Stdin:    strings.NewReader(listing.String()),
		Stderr:   stderr,
	}, "git", "mktree", "-z")
	oid, err := cmd.OneLine()
	if err != nil {
		return nil, newRunError("mktree", err, stderr.String())
	}
	if !ValidateHex(oid) {
		return nil, newRunError("mktree", errUnexpectedReply, oid)
	}
	return r.GetTree(oid), nil
}

// Tree is an interned handle to a git tree object; content decodes
// lazily from an ls-tree listing.
type Tree struct {
	repo *Repository
	oid  string
	data *TreeData
}

func (t *Tree) OID() string {
	return t.oid
}

func (t *Tree) Type() ObjectType {
	return TreeObject
}

func (t *Tree) String() string {
	return "tree " + t.oid
}

func (t *Tree) Data(ctx context.Context) (*TreeData, error) {
	if t.data != nil {
		return t.data, nil
	}
	stderr := command.NewStderr()
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: t.repo.ExtraEnv(),
		Stderr:   stderr,
	}, "git", "ls-tree", "-z", t.oid)
	listing, err := cmd.Output()
	if err != nil {
		return nil, newRunError("ls-tree", err, stderr.String())
	}
	data, err := ParseTreeData(t.repo, listing)
	if err != nil {
		return nil, err
	}
	t.data = data
	return t.data, nil
}
