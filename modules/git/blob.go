package git

import (
	"bytes"
	"context"

	"github.com/stackform/stackform/modules/command"
)

// Blob is an interned handle to a git blob object. The contents load
// lazily through the cat-file stream.
type Blob struct {
	repo *Repository
	oid  string
}

func (b *Blob) OID() string {
	return b.oid
}

func (b *Blob) Type() ObjectType {
	return BlobObject
}

func (b *Blob) Data() ([]byte, error) {
	return b.repo.CatObject(b.oid)
}

func (b *Blob) String() string {
	return "blob " + b.oid
}

// WriteBlob writes raw bytes as a blob and returns the interned handle.
func (r *Repository) WriteBlob(ctx context.Context, data []byte) (*Blob, error) {
	stderr := command.NewStderr()
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: r.ExtraEnv(),
		Stdin:    bytes.NewReader(data),
		Stderr:   stderr,
	}, "git", "hash-object", "-w", "--stdin")
	oid, err := cmd.OneLine()
	if err != nil {
		return nil, newRunError("hash-object", err, stderr.String())
	}
	if !ValidateHex(oid) {
		return nil, newRunError("hash-object", errUnexpectedReply, oid)
	}
	return r.GetBlob(oid), nil
}
