// Package resolve implements Component C: the two-phase versioned
// dependency resolver described in spec.md §4.C, grounded on vcpkg's
// VersionedPackageGraph algorithm (original_source/src/vcpkg/
// versionedsolver.cpp) and on the teacher's solver.go/selection.go shape.
package resolve

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
	"github.com/vcgo-project/vcgo/registry"
)

// minConstraint records one ">="-style constraint recorded against a node,
// for re-validation during Phase 2.
type minConstraint struct {
	version vcgo.Version
	origin  string
}

// node is the per-PackageSpec resolution state accumulated during Phase 1,
// mirroring vcpkg's PackageNodeData.
type node struct {
	spec vcgo.PackageSpec

	// considered holds every SourceControlFile version this node has ever
	// looked at, keyed by version string, for feature-dependency lookups.
	considered map[string]*vcgo.SourceControlFile

	baseline          vcgo.Version
	overlayOrOverride bool

	best        *vcgo.SourceControlFile
	bestVersion vcgo.Version

	// origins names every dependency edge origin that contributed a
	// constraint to this node, for diagnostics (SPEC_FULL.md "Supplemented
	// features" #1).
	origins map[string]bool

	requestedFeatures map[string]bool
	defaultFeatures   bool

	failed    bool
	failedErr error

	minConstraints []minConstraint

	isTopLevel bool
}

func newNode(spec vcgo.PackageSpec, isTopLevel bool) *node {
	return &node{
		spec:              spec,
		considered:        make(map[string]*vcgo.SourceControlFile),
		origins:           make(map[string]bool),
		requestedFeatures: make(map[string]bool),
		// Per spec.md §4.C: a package's defaults are engaged UNLESS it
		// appears in the top-level user-requested set.
		defaultFeatures: !isTopLevel,
		isTopLevel:      isTopLevel,
	}
}

// frame is a unit of work on the Phase 1 stack: a spec and the dependency
// edges that still need to be processed for it.
type frame struct {
	spec   vcgo.PackageSpec
	edges  []vcgo.Dependency
	origin string
}

// Resolver implements the two-phase algorithm of spec.md §4.C.
type Resolver struct {
	Baseline    registry.Registry
	Versioned   registry.Registry
	Overlay     registry.Registry // may be nil
	Overrides   []vcgo.Override
	VarProvider VarProvider
	HostTriplet vcgo.Triplet

	nodes   map[vcgo.PackageSpec]*node
	stack   []frame
	errs    vcgo.ErrorBundle
	vars    *varCache
	topSet  map[vcgo.PackageSpec]bool
}

// Resolve runs the full two-phase algorithm for topSpec's direct
// dependencies deps, under the configured providers, and returns a plan.
func (r *Resolver) Resolve(ctx context.Context, topSpec vcgo.PackageSpec, deps []vcgo.Dependency, policy vcgo.ResolvePolicy) (*vcgo.ActionPlan, error) {
	r.nodes = make(map[vcgo.PackageSpec]*node)
	r.errs = vcgo.ErrorBundle{}
	r.vars = newVarCache(r.VarProvider)
	r.topSet = make(map[vcgo.PackageSpec]bool)

	for _, e := range deps {
		triplet := topSpec.Triplet
		if e.Host {
			triplet = r.HostTriplet
		}
		r.topSet[vcgo.PackageSpec{Name: e.Name, Triplet: triplet}] = true
	}

	r.stack = []frame{{spec: topSpec, edges: deps, origin: "(root)"}}
	if err := r.phase1(ctx); err != nil {
		return nil, err
	}

	plan, err := r.phase2(ctx, topSpec, deps, policy)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// phase1 runs constraint collection to a fixed point (spec.md §4.C "Phase
// 1"). Order-independence means a simple LIFO stack is sufficient; nothing
// downstream depends on visitation order within a frame.
func (r *Resolver) phase1(ctx context.Context) error {
	for len(r.stack) > 0 {
		f := r.stack[len(r.stack)-1]
		r.stack = r.stack[:len(r.stack)-1]

		// Batch-load vars for f.spec plus everything still queued, on miss.
		pending := make([]vcgo.PackageSpec, 0, len(r.stack)+1)
		pending = append(pending, f.spec)
		for _, fr := range r.stack {
			pending = append(pending, fr.spec)
		}
		if err := r.vars.ensure(ctx, pending); err != nil {
			return errors.Wrap(err, "loading platform variables")
		}
		vars := r.vars.get(f.spec)

		for _, e := range f.edges {
			r.processEdge(ctx, f, e, vars)
		}
	}
	if !r.errs.Empty() {
		return r.errs.Build()
	}
	return nil
}

func (r *Resolver) processEdge(ctx context.Context, f frame, e vcgo.Dependency, vars map[string]string) {
	// Step 1: platform expression gate.
	if e.PlatformExpr != "" {
		ok, err := vcgo.Evaluate(e.PlatformExpr, vars)
		if err != nil {
			r.errs.Add(errors.Wrapf(err, "evaluating platform expression for dependency %q of %s", e.Name, f.spec))
			return
		}
		if !ok {
			return
		}
	}

	// Step 2: compute dep_spec.
	triplet := f.spec.Triplet
	if e.Host {
		triplet = r.HostTriplet
	}
	depSpec := vcgo.PackageSpec{Name: e.Name, Triplet: triplet}

	// Step 3: require_package.
	nd := r.requirePackage(ctx, depSpec, f.spec.Name)
	if nd.failed {
		return // not retried
	}

	// Step 4: minimum-version promotion.
	if !nd.overlayOrOverride && e.MinimumVersion != nil {
		r.applyMinimumVersion(ctx, nd, *e.MinimumVersion, f.spec.String())
	}

	// Steps 5-6: feature expansion.
	r.applyFeatures(nd, e.Features)
}

// requirePackage implements spec.md §4.C's require_package: looks up
// overlay, then override, then baseline, records the result, and returns
// the (possibly newly created) node.
func (r *Resolver) requirePackage(ctx context.Context, spec vcgo.PackageSpec, origin string) *node {
	if nd, ok := r.nodes[spec]; ok {
		nd.origins[origin] = true
		return nd
	}

	nd := newNode(spec, r.topSet[spec])
	r.nodes[spec] = nd
	nd.origins[origin] = true

	// overlay first
	if r.Overlay != nil {
		if scf, err := r.Overlay.SourceControlFile(ctx, spec.Name, vcgo.Version{}); err == nil {
			nd.overlayOrOverride = true
			nd.bestVersion = scf.Core.Version
			nd.best = scf
			r.considerNew(nd, scf)
			return nd
		}
	}

	// then override
	for _, o := range r.Overrides {
		if o.Name == spec.Name {
			scf, err := r.Versioned.SourceControlFile(ctx, spec.Name, o.Version)
			if err != nil {
				nd.failed = true
				nd.failedErr = err
				r.errs.Add(&vcgo.RegistryError{Port: spec.Name, Version: o.Version.Text, Err: err})
				return nd
			}
			nd.overlayOrOverride = true
			nd.bestVersion = o.Version
			nd.best = scf
			r.considerNew(nd, scf)
			return nd
		}
	}

	// finally baseline
	baseVersion, err := r.Baseline.BaselineVersion(ctx, spec.Name)
	if err != nil {
		nd.failed = true
		nd.failedErr = err
		r.errs.Add(&vcgo.RegistryError{Port: spec.Name, Err: err})
		return nd
	}
	scf, err := r.Versioned.SourceControlFile(ctx, spec.Name, baseVersion)
	if err != nil {
		nd.failed = true
		nd.failedErr = err
		r.errs.Add(&vcgo.RegistryError{Port: spec.Name, Version: baseVersion.Text, Err: err})
		return nd
	}
	nd.baseline = baseVersion
	nd.bestVersion = baseVersion
	nd.best = scf
	r.considerNew(nd, scf)
	return nd
}

// considerNew records scf as considered for nd and pushes its core
// dependencies, the dependencies of its default features when nd's
// defaults are engaged, and the dependencies of every currently-requested
// feature onto the stack, per spec.md §4.C's closing paragraph of Phase 1.
func (r *Resolver) considerNew(nd *node, scf *vcgo.SourceControlFile) {
	key := scf.Core.Version.String()
	if _, ok := nd.considered[key]; ok {
		return
	}
	nd.considered[key] = scf

	r.stack = append(r.stack, frame{spec: nd.spec, edges: scf.Core.Dependencies, origin: nd.spec.Name})
	if nd.defaultFeatures {
		for _, defFeat := range scf.Core.DefaultFeatures {
			if fp, ok := scf.FeatureByName(defFeat); ok {
				r.stack = append(r.stack, frame{spec: nd.spec, edges: fp.Dependencies, origin: nd.spec.Name + "[default]"})
			}
		}
	}
	for feat := range nd.requestedFeatures {
		if fp, ok := scf.FeatureByName(feat); ok {
			r.stack = append(r.stack, frame{spec: nd.spec, edges: fp.Dependencies, origin: nd.spec.Name + "[" + feat + "]"})
		}
	}
}

// applyMinimumVersion implements spec.md §4.C step 4.
func (r *Resolver) applyMinimumVersion(ctx context.Context, nd *node, minVersion vcgo.Version, origin string) {
	target, err := vcgo.ParseVersion(minVersion.Text, minVersion.PortRevision, nd.bestVersion.Scheme)
	if err != nil {
		// Can't even parse it under the target's scheme; defer to Phase 2's
		// revalidation, which will surface an Incomparable/invalid mismatch.
		target = minVersion
	}
	nd.minConstraints = append(nd.minConstraints, minConstraint{version: target, origin: origin})

	scflC, err := r.Versioned.SourceControlFile(ctx, nd.spec.Name, target)
	if err != nil {
		r.errs.Add(errors.Wrapf(err, "loading minimum-version constraint %s for %s", target, nd.spec))
		return
	}

	// An if/else-if chain, not a switch: an Unknown comparison against
	// the currently-selected version must still fall through to check
	// the baseline, exactly as if the first comparison had come back
	// false rather than aborting the promotion outright.
	if vcgo.Compare(nd.bestVersion, target) == vcgo.Lt {
		nd.bestVersion = target
		nd.best = scflC
		r.considerNew(nd, scflC)
	} else if vcgo.Compare(nd.baseline, target) == vcgo.Lt {
		r.considerNew(nd, scflC)
	}
}

// applyFeatures implements spec.md §4.C steps 5-6, per the
// OPEN QUESTION DECISIONS in SPEC_FULL.md: the "core absent" check and the
// "default present" check run independently, in that order.
func (r *Resolver) applyFeatures(nd *node, features []string) {
	hasCore := false
	for _, f := range features {
		if f == vcgo.FeatureCore {
			hasCore = true
			break
		}
	}
	if !hasCore {
		r.engageDefaults(nd)
	}

	for _, f := range features {
		switch f {
		case vcgo.FeatureDefault:
			r.engageDefaults(nd)
		case vcgo.FeatureCore:
			// no-op: handled by considerNew's core-dependency push
		default:
			if !nd.requestedFeatures[f] {
				nd.requestedFeatures[f] = true
				for _, scf := range nd.considered {
					if fp, ok := scf.FeatureByName(f); ok {
						r.stack = append(r.stack, frame{spec: nd.spec, edges: fp.Dependencies, origin: nd.spec.Name + "[" + f + "]"})
					}
				}
			}
		}
	}
}

func (r *Resolver) engageDefaults(nd *node) {
	if nd.defaultFeatures {
		return
	}
	nd.defaultFeatures = true
	for _, scf := range nd.considered {
		for _, defFeat := range scf.Core.DefaultFeatures {
			if fp, ok := scf.FeatureByName(defFeat); ok {
				r.stack = append(r.stack, frame{spec: nd.spec, edges: fp.Dependencies, origin: nd.spec.Name + "[default]"})
			}
		}
	}
}

// sortedOrigins returns nd.origins' keys sorted, for deterministic
// diagnostics.
func sortedOrigins(nd *node) []string {
	out := make([]string, 0, len(nd.origins))
	for o := range nd.origins {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}
