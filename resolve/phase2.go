package resolve

import (
	"context"
	"sort"

	"github.com/vcgo-project/vcgo"
)

// color is the tri-state mark used by the Phase 2 postfix walk to detect
// cycles: white (unseen), gray (on the current walk path), black (fully
// ordered into the plan).
type color int

const (
	white color = iota
	gray
	black
)

// walker carries the mutable state of a single Phase 2 postfix traversal.
type walker struct {
	r       *Resolver
	colors  map[vcgo.PackageSpec]color
	actions map[vcgo.PackageSpec]*vcgo.InstallPlanAction
	order   []*vcgo.InstallPlanAction
	path    []vcgo.PackageSpec
	diags   []vcgo.UnsupportedFeatureDiag
}

// phase2 walks every node reachable from topSpec's direct edges in postfix
// order, validating constraints and assembling the final ActionPlan, per
// spec.md §4.C "Phase 2".
func (r *Resolver) phase2(_ context.Context, topSpec vcgo.PackageSpec, deps []vcgo.Dependency, policy vcgo.ResolvePolicy) (*vcgo.ActionPlan, error) {
	w := &walker{
		r:       r,
		colors:  make(map[vcgo.PackageSpec]color),
		actions: make(map[vcgo.PackageSpec]*vcgo.InstallPlanAction),
	}

	var errs vcgo.ErrorBundle
	for _, e := range deps {
		triplet := topSpec.Triplet
		if e.Host {
			triplet = r.HostTriplet
		}
		spec := vcgo.PackageSpec{Name: e.Name, Triplet: triplet}
		if err := w.visit(spec); err != nil {
			errs.Add(err)
		}
	}
	if !errs.Empty() {
		return nil, errs.Build()
	}

	if policy == vcgo.PolicyError && len(w.diags) > 0 {
		return nil, &vcgo.UnsupportedFeatureError{Diags: w.diags}
	}

	sort.SliceStable(w.diags, func(i, j int) bool {
		if w.diags[i].Spec != w.diags[j].Spec {
			return w.diags[i].Spec.String() < w.diags[j].Spec.String()
		}
		return w.diags[i].Feature < w.diags[j].Feature
	})

	return &vcgo.ActionPlan{InstallActions: w.order, UnsupportedFeatures: w.diags}, nil
}

// visit implements the postfix walk for one node: dependencies are fully
// ordered (and any cycle detected) before spec itself is appended to
// w.order.
func (w *walker) visit(spec vcgo.PackageSpec) error {
	switch w.colors[spec] {
	case black:
		return nil
	case gray:
		path := append(append([]vcgo.PackageSpec{}, w.path...), spec)
		return &vcgo.CycleDetected{Stack: path}
	}

	nd, ok := w.r.nodes[spec]
	if !ok || nd.failed {
		// Phase 1 already recorded the underlying registry error; nothing
		// further to validate here.
		return nil
	}

	w.colors[spec] = gray
	w.path = append(w.path, spec)
	defer func() {
		w.path = w.path[:len(w.path)-1]
		w.colors[spec] = black
	}()

	if err := w.revalidateMinimums(nd); err != nil {
		return err
	}

	vars := w.r.vars.get(spec)
	selected, err := w.selectFeatures(nd, vars)
	if err != nil {
		return err
	}

	featureDeps := make(map[string][]vcgo.FeatureSpec, len(selected))
	for _, featName := range selected {
		fp, _ := nd.best.FeatureByName(featName)
		var edges []vcgo.FeatureSpec
		for _, dep := range fp.Dependencies {
			triplet := spec.Triplet
			if dep.Host {
				triplet = w.r.HostTriplet
			}
			depSpec := vcgo.PackageSpec{Name: dep.Name, Triplet: triplet}
			if err := w.visit(depSpec); err != nil {
				return err
			}
			depFeatures := dep.Features
			if len(depFeatures) == 0 {
				depFeatures = []string{vcgo.FeatureCore}
			}
			for _, df := range depFeatures {
				if df == vcgo.FeatureDefault {
					continue // the default set's own features are tracked on depSpec's node, not spelled out here
				}
				edges = append(edges, vcgo.FeatureSpec{Spec: depSpec, Feature: df})
			}
		}
		featureDeps[featName] = edges
	}

	req := vcgo.RequestAuto
	if w.r.topSet[spec] {
		req = vcgo.RequestUser
	}

	action := &vcgo.InstallPlanAction{
		Spec:                spec,
		Version:             nd.bestVersion,
		RequestType:         req,
		FeatureDependencies: featureDeps,
		Manifest:            nd.best,
	}
	w.actions[spec] = action
	w.order = append(w.order, action)
	return nil
}

// selectFeatures determines the final feature set for nd (core, plus
// engaged defaults, plus every explicitly requested feature), evaluating
// each candidate's supports-expression and recording an
// UnsupportedFeatureDiag (rather than an error) for any that fails, per
// spec.md §4.C's unsupported-feature handling.
func (w *walker) selectFeatures(nd *node, vars map[string]string) ([]string, error) {
	candidate := map[string]bool{vcgo.FeatureCore: true}
	if nd.defaultFeatures {
		for _, f := range nd.best.Core.DefaultFeatures {
			candidate[f] = true
		}
	}
	for f := range nd.requestedFeatures {
		candidate[f] = true
	}

	names := make([]string, 0, len(candidate))
	for f := range candidate {
		names = append(names, f)
	}
	sort.Strings(names)

	var selected []string
	for _, f := range names {
		fp, ok := nd.best.FeatureByName(f)
		if !ok {
			return nil, &vcgo.FeatureMissing{Spec: nd.spec, Version: nd.bestVersion, Feature: f}
		}
		if fp.SupportsExpr != "" {
			ok, err := vcgo.Evaluate(fp.SupportsExpr, vars)
			if err != nil {
				return nil, err
			}
			if !ok {
				w.diags = append(w.diags, vcgo.UnsupportedFeatureDiag{Spec: nd.spec, Feature: f, Expr: fp.SupportsExpr})
				continue
			}
		}
		selected = append(selected, f)
	}
	return selected, nil
}

// revalidateMinimums re-checks every ">="-style constraint recorded against
// nd during Phase 1 now that nd.bestVersion is final, per spec.md §4.C's
// closing re-validation step.
func (w *walker) revalidateMinimums(nd *node) error {
	for _, mc := range nd.minConstraints {
		switch vcgo.Compare(nd.bestVersion, mc.version) {
		case vcgo.Unknown:
			return &vcgo.VersionMismatch{
				Kind: vcgo.Incomparable, Spec: nd.spec,
				Have: nd.bestVersion, Required: mc.version, Origin: mc.origin,
			}
		case vcgo.Lt:
			return &vcgo.VersionMismatch{
				Kind: vcgo.Unsatisfiable, Spec: nd.spec,
				Have: nd.bestVersion, Required: mc.version, Origin: mc.origin,
			}
		}
	}
	return nil
}
