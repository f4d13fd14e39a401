package registry

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
)

// OverrideRegistry wraps an in-configuration list of (name, version) pairs
// that pin resolution to exactly those versions, regardless of what any
// other registry would say (spec.md §4.B, §3 Override).
//
// An OverrideRegistry only answers for the ports it was given; any other
// port falls through to the next provider in the ProviderSet. Once a
// version is pinned, the actual manifest is still fetched from Delegate
// (typically the default/named registry) at that pinned version, mirroring
// how vcpkg's overrides only change *which* version is selected, not where
// its manifest comes from.
type OverrideRegistry struct {
	Overrides []vcgo.Override
	Delegate  Registry
}

var _ Registry = (*OverrideRegistry)(nil)

func (or *OverrideRegistry) find(port string) (vcgo.Version, bool) {
	for _, o := range or.Overrides {
		if o.Name == port {
			return o.Version, true
		}
	}
	return vcgo.Version{}, false
}

// BaselineVersion implements Registry: it returns the pinned version if one
// is configured for port, else an error (so ProviderSet.Resolve falls
// through to the next provider).
func (or *OverrideRegistry) BaselineVersion(_ context.Context, port string) (vcgo.Version, error) {
	v, ok := or.find(port)
	if !ok {
		return vcgo.Version{}, errors.Errorf("no override configured for port %q", port)
	}
	return v, nil
}

// SourceControlFile implements Registry by fetching the manifest for the
// pinned version from Delegate.
func (or *OverrideRegistry) SourceControlFile(ctx context.Context, port string, version vcgo.Version) (*vcgo.SourceControlFile, error) {
	if or.Delegate == nil {
		return nil, errors.Errorf("override registry has no delegate to fetch manifests from, for port %q", port)
	}
	return or.Delegate.SourceControlFile(ctx, port, version)
}
