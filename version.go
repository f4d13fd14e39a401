// Package vcgo implements the versioned dependency resolver, ABI hasher, and
// binary cache engine at the core of a source-based, triplet-aware native
// package manager.
package vcgo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// Scheme is the interpretation rule applied to a Version's text.
type Scheme string

// The four version schemes a port's manifest may declare.
const (
	SchemeString  Scheme = "string"
	SchemeRelaxed Scheme = "relaxed"
	SchemeSemver  Scheme = "semver"
	SchemeDate    Scheme = "date"
)

// Version is a port version: opaque text interpreted under a Scheme, plus
// the port revision used to break ties between otherwise-equal texts.
type Version struct {
	Text         string
	PortRevision int
	Scheme       Scheme
}

func (v Version) String() string {
	if v.PortRevision == 0 {
		return v.Text
	}
	return fmt.Sprintf("%s#%d", v.Text, v.PortRevision)
}

var relaxedRE = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
var dateRE = regexp.MustCompile(`^([0-9]{4}-[0-9]{2}-[0-9]{2})(\.(.+))?$`)

// semverRE is the SemVer 2.0.0 grammar: MAJOR.MINOR.PATCH without leading
// zeros, with optional pre-release and build metadata.
var semverRE = regexp.MustCompile(`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)(-(0|[1-9][0-9]*|[0-9]*[a-zA-Z-][0-9a-zA-Z-]*)(\.(0|[1-9][0-9]*|[0-9]*[a-zA-Z-][0-9a-zA-Z-]*))*)?(\+[0-9a-zA-Z-]+(\.[0-9a-zA-Z-]+)*)?$`)

// ParseVersion validates text against scheme's grammar and returns the
// resulting Version. Every scheme has a total parser except string, which
// accepts any non-empty text.
func ParseVersion(text string, portRevision int, scheme Scheme) (Version, error) {
	if text == "" {
		return Version{}, errors.New("version text must not be empty")
	}
	switch scheme {
	case SchemeString:
		// opaque; any non-empty text is valid
	case SchemeRelaxed:
		if !relaxedRE.MatchString(text) {
			return Version{}, errors.Errorf("%q is not a valid relaxed version (expected dot-separated decimal integers)", text)
		}
	case SchemeSemver:
		if !semverRE.MatchString(text) {
			return Version{}, errors.Errorf("%q is not a valid semver version (expected MAJOR.MINOR.PATCH)", text)
		}
		if _, err := semver.NewVersion(text); err != nil {
			return Version{}, errors.Wrapf(err, "%q is not a valid semver version", text)
		}
	case SchemeDate:
		m := dateRE.FindStringSubmatch(text)
		if m == nil {
			return Version{}, errors.Errorf("%q is not a valid date version (expected YYYY-MM-DD with optional relaxed suffix)", text)
		}
		if m[3] != "" && !relaxedRE.MatchString(m[3]) {
			return Version{}, errors.Errorf("%q has an invalid relaxed suffix %q", text, m[3])
		}
	default:
		return Version{}, errors.Errorf("unknown version scheme %q", scheme)
	}
	return Version{Text: text, PortRevision: portRevision, Scheme: scheme}, nil
}

// Ordering is the three-valued result of comparing two Versions.
type Ordering int

// The four possible outcomes of Compare. Unknown is a genuine sentinel, not
// an error: callers must check for it explicitly rather than treating it as
// false or as Eq.
const (
	Lt Ordering = iota - 1
	Eq
	Gt
	Unknown
)

func (o Ordering) String() string {
	switch o {
	case Lt:
		return "Lt"
	case Eq:
		return "Eq"
	case Gt:
		return "Gt"
	default:
		return "Unknown"
	}
}

// Compare orders a and b. If a.Scheme != b.Scheme, the result is always
// Unknown: comparing across schemes is undefined except via an explicit
// override, which bypasses Compare entirely. Otherwise the comparison is a
// total order under the shared scheme, with ties in the scheme-specific
// comparison broken by PortRevision ascending.
func Compare(a, b Version) Ordering {
	if a.Scheme != b.Scheme {
		return Unknown
	}

	var primary Ordering
	switch a.Scheme {
	case SchemeString:
		primary = compareString(a.Text, b.Text)
	case SchemeRelaxed:
		primary = compareRelaxed(a.Text, b.Text)
	case SchemeSemver:
		primary = compareSemver(a.Text, b.Text)
	case SchemeDate:
		primary = compareDate(a.Text, b.Text)
	default:
		return Unknown
	}

	if primary != Eq {
		return primary
	}
	switch {
	case a.PortRevision < b.PortRevision:
		return Lt
	case a.PortRevision > b.PortRevision:
		return Gt
	default:
		return Eq
	}
}

func compareString(a, b string) Ordering {
	switch {
	case a == b:
		return Eq
	case a < b:
		return Lt
	default:
		return Gt
	}
}

// compareRelaxed compares dot-separated decimal-integer components
// lexicographically by component, each component compared numerically.
// A shorter sequence is treated as though padded with trailing zero
// components, so "1.2" == "1.2.0".
func compareRelaxed(a, b string) Ordering {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int64
		if i < len(as) {
			av, _ = strconv.ParseInt(as[i], 10, 64)
		}
		if i < len(bs) {
			bv, _ = strconv.ParseInt(bs[i], 10, 64)
		}
		if av < bv {
			return Lt
		}
		if av > bv {
			return Gt
		}
	}
	return Eq
}

func compareSemver(a, b string) Ordering {
	av, aerr := semver.NewVersion(a)
	bv, berr := semver.NewVersion(b)
	if aerr != nil || berr != nil {
		// Parsing is validated at ParseVersion time; if it still fails here
		// fall back to plain string comparison rather than panicking.
		return compareString(a, b)
	}
	switch av.Compare(bv) {
	case -1:
		return Lt
	case 1:
		return Gt
	default:
		return Eq
	}
}

// compareDate compares the YYYY-MM-DD prefix lexicographically (which is
// also chronological for this format), then falls back to a relaxed
// comparison of the optional suffix.
func compareDate(a, b string) Ordering {
	am := dateRE.FindStringSubmatch(a)
	bm := dateRE.FindStringSubmatch(b)
	if am == nil || bm == nil {
		return compareString(a, b)
	}
	if am[1] != bm[1] {
		return compareString(am[1], bm[1])
	}
	return compareRelaxed(orZero(am[3]), orZero(bm[3]))
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
