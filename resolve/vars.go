package resolve

import (
	"context"

	"github.com/vcgo-project/vcgo"
)

// VarProvider answers platform-expression variable lookups for a set of
// specs. Implementations must expose only the bulk entry point: per
// DESIGN NOTES §9, the resolver always batches rather than calling this
// iteratively, one spec at a time.
type VarProvider interface {
	LoadDepInfoVars(ctx context.Context, specs []vcgo.PackageSpec) (map[vcgo.PackageSpec]map[string]string, error)
}

// StaticVarProvider answers every spec with the same fixed variable map,
// useful for tests and for triplet-uniform configurations where the
// variable set doesn't depend on the package being queried.
type StaticVarProvider struct {
	Vars map[string]string
}

// LoadDepInfoVars implements VarProvider.
func (s StaticVarProvider) LoadDepInfoVars(_ context.Context, specs []vcgo.PackageSpec) (map[vcgo.PackageSpec]map[string]string, error) {
	out := make(map[vcgo.PackageSpec]map[string]string, len(specs))
	for _, spec := range specs {
		out[spec] = s.Vars
	}
	return out, nil
}

// varCache batches LoadDepInfoVars calls: a miss for any requested spec
// triggers one bulk load covering every spec passed in, not just the one
// that missed (spec.md §4.C "Batching").
type varCache struct {
	provider VarProvider
	cache    map[vcgo.PackageSpec]map[string]string
}

func newVarCache(p VarProvider) *varCache {
	return &varCache{provider: p, cache: make(map[vcgo.PackageSpec]map[string]string)}
}

// ensure loads vars for every spec in all not yet present in the cache, in
// one batched call.
func (vc *varCache) ensure(ctx context.Context, specs []vcgo.PackageSpec) error {
	var missing []vcgo.PackageSpec
	for _, s := range specs {
		if _, ok := vc.cache[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	loaded, err := vc.provider.LoadDepInfoVars(ctx, missing)
	if err != nil {
		return err
	}
	for k, v := range loaded {
		vc.cache[k] = v
	}
	// Specs the provider didn't mention still get an entry so repeated
	// misses don't re-trigger a load; unknown identifiers evaluate false
	// regardless (vcgo.PlatformExpr.Evaluate's documented behavior).
	for _, s := range missing {
		if _, ok := vc.cache[s]; !ok {
			vc.cache[s] = map[string]string{}
		}
	}
	return nil
}

func (vc *varCache) get(spec vcgo.PackageSpec) map[string]string {
	return vc.cache[spec]
}
