package git

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/stackform/stackform/modules/command"
)

// Person represents an author or committer in a git commit object:
// name, email and timestamp. A nil *Person means "unset, let git supply
// its default"; within a Person, empty fields are likewise unset.
type Person struct {
	Name  string
	Email string
	When  Date
}

func (p *Person) NameEmail() string {
	return fmt.Sprintf("%s <%s>", p.Name, p.Email)
}

// String renders the commit header form: "Name <email> 1494258422 -0600".
func (p *Person) String() string {
	return fmt.Sprintf("%s <%s> %s", p.Name, p.Email, p.When)
}

func (p *Person) WithName(name string) *Person {
	q := *p
	q.Name = name
	return &q
}

func (p *Person) WithEmail(email string) *Person {
	q := *p
	q.Email = email
	return &q
}

func (p *Person) WithDate(when Date) *Person {
	q := *p
	q.When = when
	return &q
}

// Eq compares two possibly-nil persons field by field.
func (p *Person) Eq(o *Person) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Name == o.Name && p.Email == o.Email && p.When.Equal(o.When)
}

var personRE = regexp.MustCompile(`^([^<]*)<([^>]*)>\s+(\d+\s+[+-]\d{4})$`)

// ParsePerson parses the "Name <email> <unix-seconds> <+-HHMM>" form
// found in commit headers.
func ParsePerson(s string) (*Person, error) {
	m := personRE.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("malformed person line: %q", s)
	}
	when, err := ParseDate(context.Background(), m[3])
	if err != nil {
		return nil, err
	}
	return &Person{
		Name:  strings.TrimSpace(m[1]),
		Email: m[2],
		When:  when,
	}, nil
}

var (
	userOnce  sync.Once
	userIdent *Person
)

// User returns the configured identity (user.name / user.email),
// resolved once per process.
func User(ctx context.Context) *Person {
	userOnce.Do(func() {
		userIdent = &Person{}
		if v, err := command.NewFromOptions(ctx, &command.RunOpts{Stderr: command.NewStderr()},
			"git", "config", "--get", "user.name").OneLine(); err == nil {
			userIdent.Name = v
		}
		if v, err := command.NewFromOptions(ctx, &command.RunOpts{Stderr: command.NewStderr()},
			"git", "config", "--get", "user.email").OneLine(); err == nil {
			userIdent.Email = v
		}
	})
	return userIdent
}

// Author returns the default author: GIT_AUTHOR_* overlaid on the
// configured user.
func Author(ctx context.Context) (*Person, error) {
	return environPerson(ctx, "GIT_AUTHOR")
}

// Committer returns the default committer: GIT_COMMITTER_* overlaid on
// the configured user.
func Committer(ctx context.Context) (*Person, error) {
	return environPerson(ctx, "GIT_COMMITTER")
}

func environPerson(ctx context.Context, prefix string) (*Person, error) {
	p := *User(ctx)
	if v, ok := os.LookupEnv(prefix + "_NAME"); ok {
		p.Name = v
	}
	if v, ok := os.LookupEnv(prefix + "_EMAIL"); ok {
		p.Email = v
	}
	if v, ok := os.LookupEnv(prefix + "_DATE"); ok {
		when, err := ParseDate(ctx, v)
		if err != nil {
			return nil, err
		}
		p.When = when
	}
	return &p, nil
}
