package vcgo

import "sort"

// Triplet is an opaque identifier naming a target build configuration
// (e.g. "x64-linux", "arm64-windows-static").
type Triplet string

// PackageSpec is the unique identity of a buildable artifact in a plan.
type PackageSpec struct {
	Name    string
	Triplet Triplet
}

func (s PackageSpec) String() string { return string(s.Name) + ":" + string(s.Triplet) }

// FeatureCore and FeatureDefault are the two well-known feature names every
// manifest implicitly understands: the bare package, and the manifest's
// declared default-feature set expanded at resolution time.
const (
	FeatureCore    = "core"
	FeatureDefault = "default"
	FeatureAll     = "*"
)

// FeatureSpec names one feature of one package.
type FeatureSpec struct {
	Spec    PackageSpec
	Feature string
}

func (f FeatureSpec) String() string {
	if f.Feature == "" || f.Feature == FeatureCore {
		return f.Spec.String()
	}
	return f.Spec.String() + "[" + f.Feature + "]"
}

// Dependency is a declared edge from a port (or one of its features) to
// another port.
type Dependency struct {
	Name             string
	Host             bool
	Features         []string
	PlatformExpr     string
	MinimumVersion   *Version
}

// Override pins resolution of Name to exactly Version, bypassing baseline
// and ">=" constraints.
type Override struct {
	Name    string
	Version Version
}

// FeatureParagraph is one optional feature declared by a manifest.
type FeatureParagraph struct {
	Name             string
	Dependencies     []Dependency
	SupportsExpr     string
}

// CoreParagraph is the unconditional part of a port's manifest.
type CoreParagraph struct {
	Name            string
	Version         Version
	Dependencies    []Dependency
	DefaultFeatures []string
	SupportsExpr    string
}

// PolicyTag names a boolean build policy a port may opt into (e.g.
// "public_abi_override" from spec.md §4.D).
type PolicyTag string

// SourceControlFile is a port/version's fully parsed manifest. Values are
// immutable once loaded from a registry, and are cached by (name, version)
// for the duration of a resolution (spec.md §3 "Lifecycle").
type SourceControlFile struct {
	Core     CoreParagraph
	Features []FeatureParagraph
	Policies map[PolicyTag]bool

	// SourceDir is the filesystem location of the port's source tree, used
	// by the ABI hasher to walk and hash port files. Populated by the
	// registry provider that produced this manifest.
	SourceDir string
}

// FeatureByName returns the named feature paragraph, or !ok if Name isn't
// declared by this manifest. FeatureCore always reports ok with a paragraph
// wrapping the core dependency list.
func (scf *SourceControlFile) FeatureByName(name string) (FeatureParagraph, bool) {
	if name == FeatureCore {
		return FeatureParagraph{Name: FeatureCore, Dependencies: scf.Core.Dependencies, SupportsExpr: scf.Core.SupportsExpr}, true
	}
	for _, f := range scf.Features {
		if f.Name == name {
			return f, true
		}
	}
	return FeatureParagraph{}, false
}

// HasFeature reports whether name is declared (core, or an explicit
// feature) by this manifest.
func (scf *SourceControlFile) HasFeature(name string) bool {
	_, ok := scf.FeatureByName(name)
	return ok
}

// SortedFeatureNames returns every declared feature name (not including
// "core"), sorted, for deterministic iteration.
func (scf *SourceControlFile) SortedFeatureNames() []string {
	names := make([]string, 0, len(scf.Features))
	for _, f := range scf.Features {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// RequestType distinguishes ports the caller explicitly asked for from
// ports pulled in transitively as a dependency.
type RequestType int

const (
	// RequestAuto marks an action installed only because something else
	// depends on it.
	RequestAuto RequestType = iota
	// RequestUser marks an action the caller named directly.
	RequestUser
)

// CacheStatus records the outcome of the bulk precheck pass the engine
// runs over a whole plan before any fetch or build begins (spec.md §4.F
// "Precheck batching", §4.G step 1), so the planner knows which actions
// are worth a Restore attempt without re-querying every provider inline.
type CacheStatus int

const (
	// CacheStatusUnknown means no precheck pass has annotated this action
	// yet (e.g. no binary cache is configured at all).
	CacheStatusUnknown CacheStatus = iota
	// CacheStatusAvailable means at least one configured provider
	// reported the action's key present during the bulk precheck.
	CacheStatusAvailable
	// CacheStatusNotAvailable means no configured provider had the key.
	CacheStatusNotAvailable
)

func (s CacheStatus) String() string {
	switch s {
	case CacheStatusAvailable:
		return "available"
	case CacheStatusNotAvailable:
		return "not-available"
	default:
		return "unknown"
	}
}

// AbiEntry is one (tag, value) pair contributing to a package ABI.
type AbiEntry struct {
	Tag   string
	Value string // a hex digest (port_tree, dep:<name>) or a raw string value (features, triplet, version, tool versions)
}

// AbiInfo is the full, ordered account of a package's ABI computation: the
// sorted entries that fed it, plus the final digest.
type AbiInfo struct {
	Entries    []AbiEntry
	PackageAbi string // hex-encoded final digest
}

// InstallPlanAction is one node of a resolved, ordered install plan.
type InstallPlanAction struct {
	Spec        PackageSpec
	Version     Version
	RequestType RequestType

	// FeatureDependencies maps each selected feature name (including
	// "core") to the FeatureSpec edges it resolved to, per spec.md §3
	// invariant (3).
	FeatureDependencies map[string][]FeatureSpec

	Abi *AbiInfo

	// CacheStatus is set by the engine's bulk precheck pass before the
	// planner's fetch-or-build loop runs; it starts CacheStatusUnknown.
	CacheStatus CacheStatus

	// Manifest is the resolved SourceControlFile this action installs.
	Manifest *SourceControlFile
}

// SelectedFeatures returns the sorted set of feature names this action
// installs, derived from FeatureDependencies' keys.
func (a *InstallPlanAction) SelectedFeatures() []string {
	names := make([]string, 0, len(a.FeatureDependencies))
	for f := range a.FeatureDependencies {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// ActionPlan is the full result of a resolution: an ordered install plan
// plus any accumulated UnsupportedFeature diagnostics.
type ActionPlan struct {
	// InstallActions is a topological order: for every action A with a
	// dependency edge to B, B precedes A in this slice.
	InstallActions []*InstallPlanAction

	// UnsupportedFeatures records features whose supports-expression
	// evaluated false under the resolved triplet. Under policy Warn these
	// are retained alongside a valid plan; under policy Error a non-empty
	// set means no plan is returned at all (see ResolvePolicy).
	UnsupportedFeatures []UnsupportedFeatureDiag
}

// UnsupportedFeatureDiag names one feature (or the bare package, via
// FeatureCore) whose supports-expression was false.
type UnsupportedFeatureDiag struct {
	Spec    PackageSpec
	Feature string
	Expr    string
}

// ResolvePolicy governs how a non-empty UnsupportedFeatures set is handled.
type ResolvePolicy int

const (
	// PolicyWarn retains the plan and returns diagnostics alongside it.
	PolicyWarn ResolvePolicy = iota
	// PolicyError converts a non-empty UnsupportedFeatures into a single
	// aggregate error and returns no plan at all.
	PolicyError
)

// IndexOf returns the position of spec in plan.InstallActions, or -1.
func (p *ActionPlan) IndexOf(spec PackageSpec) int {
	for i, a := range p.InstallActions {
		if a.Spec == spec {
			return i
		}
	}
	return -1
}
