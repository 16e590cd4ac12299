package git

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stackform/stackform/modules/command"
)

// Date is a timestamp with the fixed UTC offset git records. The zero
// Date means "unset": the field is omitted from the environment and git
// supplies its own default.
type Date struct {
	t time.Time
}

func NewDate(t time.Time) Date {
	return Date{t: t}
}

func (d Date) IsZero() bool {
	return d.t.IsZero()
}

func (d Date) Time() time.Time {
	return d.t
}

// String renders the git raw format: "<unix-seconds> <+-HHMM>".
func (d Date) String() string {
	return fmt.Sprintf("%d %s", d.t.Unix(), d.t.Format("-0700"))
}

// ISO is the human-friendly rendering used in patch descriptions.
func (d Date) ISO() string {
	return d.t.Format("2006-01-02 15:04:05 -0700")
}

func (d Date) Equal(o Date) bool {
	if d.IsZero() || o.IsZero() {
		return d.IsZero() == o.IsZero()
	}
	return d.t.Equal(o.t) && d.t.Format("-0700") == o.t.Format("-0700")
}

var tzOffsetRE = regexp.MustCompile(`^([+-])(\d{2}):?(\d{2})$`)

// ParseTimeZone parses a "[+-]HH[:]MM" offset into a fixed zone.
func ParseTimeZone(s string) (*time.Location, error) {
	m := tzOffsetRE.FindStringSubmatch(s)
	if m == nil {
		return nil, &DateError{Value: s, Kind: "time zone"}
	}
	hours, _ := strconv.Atoi(m[2])
	mins, _ := strconv.Atoi(m[3])
	offset := (hours*60 + mins) * 60
	if m[1] == "-" {
		offset = -offset
	}
	return time.FixedZone(strings.Replace(s, ":", "", 1), offset), nil
}

var (
	rawDateRE    = regexp.MustCompile(`^(\d+)\s+([+-]\d\d:?\d\d)$`)
	isoDateRE    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})\s+(\d{2}):(\d{2}):(\d{2})\s+([+-]\d\d:?\d\d)$`)
	systemDateRE = regexp.MustCompile(`^(.+)([+-]\d\d:?\d\d)$`)
)

// ParseDate parses datestring through the legacy fallback chain: git raw
// format, ISO, the literal "now", whatever `git var GIT_AUTHOR_IDENT`
// accepts, and finally whatever the system date command accepts.
func ParseDate(ctx context.Context, datestring string) (Date, error) {
	if m := rawDateRE.FindStringSubmatch(datestring); m != nil {
		secs, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Date{}, &DateError{Value: datestring, Kind: "date"}
		}
		loc, err := ParseTimeZone(m[2])
		if err != nil {
			return Date{}, err
		}
		return Date{t: time.Unix(secs, 0).In(loc)}, nil
	}

	if m := isoDateRE.FindStringSubmatch(datestring); m != nil {
		loc, err := ParseTimeZone(m[7])
		if err != nil {
			return Date{}, err
		}
		var n [6]int
		for i := range n {
			n[i], _ = strconv.Atoi(m[i+1])
		}
		t := time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], 0, loc)
		// time.Date normalizes out-of-range components; the original
		// rejects them.
		if t.Year() != n[0] || t.Month() != time.Month(n[1]) || t.Day() != n[2] {
			return Date{}, &DateError{Value: datestring, Kind: "date"}
		}
		return Date{t: t}, nil
	}

	if datestring == "now" {
		if d, ok := gitVarDate(ctx, ""); ok {
			return d, nil
		}
		return Date{}, &DateError{Value: datestring, Kind: "date"}
	}

	if d, ok := gitVarDate(ctx, datestring); ok {
		return d, nil
	}
	if d, ok, err := systemDate(ctx, datestring); err != nil {
		return Date{}, err
	} else if ok {
		return d, nil
	}
	return Date{}, &DateError{Value: datestring, Kind: "date"}
}

// gitVarDate asks git itself to interpret datestring by reading it back
// out of GIT_AUTHOR_IDENT.
func gitVarDate(ctx context.Context, datestring string) (Date, bool) {
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		ExtraEnv: []string{
			"GIT_AUTHOR_NAME=XXX",
			"GIT_AUTHOR_EMAIL=XXX",
			"GIT_AUTHOR_DATE=" + datestring,
		},
		Stderr: command.NewStderr(),
	}, "git", "var", "GIT_AUTHOR_IDENT")
	ident, err := cmd.OneLine()
	if err != nil {
		return Date{}, false
	}
	fields := strings.Fields(ident)
	if len(fields) < 2 {
		return Date{}, false
	}
	timestamp, offset := fields[len(fields)-2], fields[len(fields)-1]
	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return Date{}, false
	}
	loc, err := ParseTimeZone(offset)
	if err != nil {
		return Date{}, false
	}
	return Date{t: time.Unix(secs, 0).In(loc)}, true
}

// systemDate shells out to date(1). When the input carries its own
// offset we keep it; date would fold it into the local zone.
func systemDate(ctx context.Context, datestring string) (Date, bool, error) {
	var stamp, zone string
	if m := systemDateRE.FindStringSubmatch(datestring); m != nil {
		out, err := command.NewFromOptions(ctx, &command.RunOpts{Stderr: command.NewStderr()},
			"date", "+%Y-%m-%d-%H-%M-%S", "-d", m[1]).OneLine()
		if err != nil {
			return Date{}, false, nil
		}
		stamp, zone = out, m[2]
	} else {
		out, err := command.NewFromOptions(ctx, &command.RunOpts{Stderr: command.NewStderr()},
			"date", "+%Y-%m-%d-%H-%M-%S_%z", "-d", datestring).OneLine()
		if err != nil {
			return Date{}, false, nil
		}
		var ok bool
		stamp, zone, ok = strings.Cut(out, "_")
		if !ok {
			return Date{}, false, nil
		}
	}
	loc, err := ParseTimeZone(zone)
	if err != nil {
		return Date{}, false, err
	}
	parts := strings.Split(stamp, "-")
	if len(parts) != 6 {
		return Date{}, false, &DateError{Value: datestring, Kind: "date"}
	}
	var n [6]int
	for i, p := range parts {
		if n[i], err = strconv.Atoi(p); err != nil {
			return Date{}, false, &DateError{Value: datestring, Kind: "date"}
		}
	}
	t := time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], 0, loc)
	return Date{t: t}, true, nil
}
