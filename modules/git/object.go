package git

// ObjectType is the type of a git object.
type ObjectType int8

const (
	InvalidObject ObjectType = 0
	CommitObject  ObjectType = 1
	TreeObject    ObjectType = 2
	BlobObject    ObjectType = 3
	TagObject     ObjectType = 4

	AnyObject ObjectType = -127
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	case AnyObject:
		return "any"
	default:
		return "unknown"
	}
}

// ParseObjectType parses a string representation of ObjectType. It returns
// an error on parse failure.
func ParseObjectType(value string) (typ ObjectType, err error) {
	switch value {
	case "commit":
		typ = CommitObject
	case "tree":
		typ = TreeObject
	case "blob":
		typ = BlobObject
	case "tag":
		typ = TagObject
	default:
		err = &ErrUnexpectedType{message: "invalid object type: " + value}
	}
	return
}

// Object is an interned handle to a git object. Per repository and per
// object ID there is at most one live handle, so handle identity doubles
// as object equality.
type Object interface {
	OID() string
	Type() ObjectType
}

// FileMode is a tree entry mode in git's octal string form.
type FileMode string

const (
	ModeRegular    FileMode = "100644"
	ModeExecutable FileMode = "100755"
	ModeSymlink    FileMode = "120000"
	ModeDirectory  FileMode = "040000"
	ModeSubmodule  FileMode = "160000"
)

// ObjectType maps a tree entry mode to the type of the object it names.
func (m FileMode) ObjectType() ObjectType {
	switch m {
	case ModeDirectory:
		return TreeObject
	case ModeSubmodule:
		return CommitObject
	default:
		return BlobObject
	}
}
