package vcgo

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// ConfigError reports malformed configuration, with a JSON-pointer-style
// path into the offending document.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error at %s: %s", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RegistryError reports a registry that is unreachable, or that is missing
// a requested (port, version).
type RegistryError struct {
	Port    string
	Version string // empty if the failure is about the port itself, not a version
	Err     error
}

func (e *RegistryError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("registry error for port %q: %s", e.Port, e.Err)
	}
	return fmt.Sprintf("registry error for %s@%s: %s", e.Port, e.Version, e.Err)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// VersionMismatchKind distinguishes the two ways a ">=" constraint can fail
// to be reconciled.
type VersionMismatchKind int

const (
	// Incomparable means the two versions being compared use different
	// schemes (Compare returned Unknown).
	Incomparable VersionMismatchKind = iota
	// Unsatisfiable means the versions are comparable but the required
	// version was simply not available/selected.
	Unsatisfiable
)

// VersionMismatch reports a ">=" constraint that could not be reconciled.
type VersionMismatch struct {
	Kind     VersionMismatchKind
	Spec     PackageSpec
	Have     Version
	Required Version
	Origin   string
}

func (e *VersionMismatch) Error() string {
	switch e.Kind {
	case Incomparable:
		return fmt.Sprintf(
			"version of %s is incomparable: selected %s (scheme %s) vs. required %s (scheme %s), constrained by %s",
			e.Spec, e.Have, e.Have.Scheme, e.Required, e.Required.Scheme, e.Origin,
		)
	default:
		return fmt.Sprintf(
			"version of %s does not satisfy constraint: have %s, need >= %s, constrained by %s",
			e.Spec, e.Have, e.Required, e.Origin,
		)
	}
}

// FeatureMissing reports a feature name not present in the selected
// manifest.
type FeatureMissing struct {
	Spec    PackageSpec
	Version Version
	Feature string
}

func (e *FeatureMissing) Error() string {
	return fmt.Sprintf("%s@%s has no feature %q", e.Spec, e.Version, e.Feature)
}

// CycleDetected reports a back-edge found during the postfix walk.
type CycleDetected struct {
	Stack []PackageSpec
}

func (e *CycleDetected) Error() string {
	var buf bytes.Buffer
	buf.WriteString("dependency cycle detected: ")
	for i, s := range e.Stack {
		if i > 0 {
			buf.WriteString(" -> ")
		}
		buf.WriteString(s.String())
	}
	return buf.String()
}

// HashError reports that an ABI input could not be hashed. Per spec.md
// §4.D, this always aborts the whole plan; no partial ABIs are published.
type HashError struct {
	Spec PackageSpec
	Tag  string
	Err  error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("could not hash ABI input %q for %s: %s", e.Tag, e.Spec, e.Err)
}

func (e *HashError) Unwrap() error { return e.Err }

// CacheWriteWarning reports a failed store operation. It is always
// non-fatal: callers should log it and continue.
type CacheWriteWarning struct {
	Provider string
	Key      string
	Err      error
}

func (e *CacheWriteWarning) Error() string {
	return fmt.Sprintf("cache provider %q: store of %s failed (non-fatal): %s", e.Provider, e.Key, e.Err)
}

// BuildFailed reports that the external builder returned non-zero.
type BuildFailed struct {
	Spec     PackageSpec
	ExitCode int
	Err      error
}

func (e *BuildFailed) Error() string {
	return fmt.Sprintf("build of %s failed (exit %d): %s", e.Spec, e.ExitCode, e.Err)
}

func (e *BuildFailed) Unwrap() error { return e.Err }

// UnsupportedFeatureError aggregates every UnsupportedFeatureDiag produced
// under ResolvePolicy PolicyError into a single error, per spec.md §4.C's
// "Policy Error converts a non-empty unsupported_features into a single
// aggregate error."
type UnsupportedFeatureError struct {
	Diags []UnsupportedFeatureDiag
}

func (e *UnsupportedFeatureError) Error() string {
	var buf bytes.Buffer
	buf.WriteString("unsupported features:")
	for _, d := range e.Diags {
		fmt.Fprintf(&buf, "\n  %s requires %s, not supported on this triplet (%s)", d.Spec, featureLabel(d.Feature), d.Expr)
	}
	return buf.String()
}

func featureLabel(f string) string {
	if f == "" || f == FeatureCore {
		return "core"
	}
	return "feature " + f
}

// ErrorBundle accumulates resolver errors into a sorted, deduplicated list
// and is returned in place of a plan; spec.md §7 promises no partial plan
// is ever returned alongside resolver errors.
type ErrorBundle struct {
	errs []error
}

// Add appends err to the bundle if it is non-nil.
func (b *ErrorBundle) Add(err error) {
	if err != nil {
		b.errs = append(b.errs, err)
	}
}

// Empty reports whether the bundle has accumulated no errors.
func (b *ErrorBundle) Empty() bool { return len(b.errs) == 0 }

// Build returns the bundle's sorted, deduplicated errors as a single error,
// or nil if the bundle is empty.
func (b *ErrorBundle) Build() error {
	if len(b.errs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(b.errs))
	var uniq []error
	for _, e := range b.errs {
		s := e.Error()
		if seen[s] {
			continue
		}
		seen[s] = true
		uniq = append(uniq, e)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].Error() < uniq[j].Error() })

	var buf bytes.Buffer
	buf.WriteString("resolution failed:")
	for _, e := range uniq {
		fmt.Fprintf(&buf, "\n  %s", e.Error())
	}
	return errors.New(buf.String())
}
