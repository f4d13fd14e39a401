package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcgo-project/vcgo"
)

// memRegistry is an in-memory Registry for resolver tests: a fixed baseline
// map plus a set of available (port, version) manifests.
type memRegistry struct {
	baseline  map[string]vcgo.Version
	manifests map[string]map[string]*vcgo.SourceControlFile // port -> version text -> scf
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		baseline:  make(map[string]vcgo.Version),
		manifests: make(map[string]map[string]*vcgo.SourceControlFile),
	}
}

func (m *memRegistry) add(scf *vcgo.SourceControlFile, isBaseline bool) {
	if m.manifests[scf.Core.Name] == nil {
		m.manifests[scf.Core.Name] = make(map[string]*vcgo.SourceControlFile)
	}
	m.manifests[scf.Core.Name][scf.Core.Version.Text] = scf
	if isBaseline {
		m.baseline[scf.Core.Name] = scf.Core.Version
	}
}

func (m *memRegistry) BaselineVersion(_ context.Context, port string) (vcgo.Version, error) {
	v, ok := m.baseline[port]
	if !ok {
		return vcgo.Version{}, assertNotFound(port)
	}
	return v, nil
}

func (m *memRegistry) SourceControlFile(_ context.Context, port string, version vcgo.Version) (*vcgo.SourceControlFile, error) {
	byVersion, ok := m.manifests[port]
	if !ok {
		return nil, assertNotFound(port)
	}
	scf, ok := byVersion[version.Text]
	if !ok {
		return nil, assertNotFound(port + "@" + version.Text)
	}
	return scf, nil
}

type notFoundError string

func (e notFoundError) Error() string { return "not found: " + string(e) }
func assertNotFound(s string) error   { return notFoundError(s) }

func relaxed(text string) vcgo.Version {
	return vcgo.Version{Text: text, Scheme: vcgo.SchemeRelaxed}
}

const testTriplet = vcgo.Triplet("x64-linux")

func newResolver(reg *memRegistry) *Resolver {
	return &Resolver{
		Baseline:    reg,
		Versioned:   reg,
		VarProvider: StaticVarProvider{Vars: map[string]string{"VCGO_TARGET_IS_LINUX": "1"}},
		HostTriplet: testTriplet,
	}
}

func topSpec() vcgo.PackageSpec {
	return vcgo.PackageSpec{Name: "(manifest)", Triplet: testTriplet}
}

// S1: simple chain a -> b -> c resolves in dependency-first order.
func TestResolveSimpleChain(t *testing.T) {
	reg := newMemRegistry()
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Name: "c", Version: relaxed("1.0")}}, true)
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{
		Name: "b", Version: relaxed("1.0"),
		Dependencies: []vcgo.Dependency{{Name: "c"}},
	}}, true)
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{
		Name: "a", Version: relaxed("1.0"),
		Dependencies: []vcgo.Dependency{{Name: "b"}},
	}}, true)

	r := newResolver(reg)
	plan, err := r.Resolve(context.Background(), topSpec(), []vcgo.Dependency{{Name: "a"}}, vcgo.PolicyWarn)
	require.NoError(t, err)
	require.Len(t, plan.InstallActions, 3)

	idxA := plan.IndexOf(vcgo.PackageSpec{Name: "a", Triplet: testTriplet})
	idxB := plan.IndexOf(vcgo.PackageSpec{Name: "b", Triplet: testTriplet})
	idxC := plan.IndexOf(vcgo.PackageSpec{Name: "c", Triplet: testTriplet})
	assert.True(t, idxC < idxB, "c must precede b")
	assert.True(t, idxB < idxA, "b must precede a")

	assert.Equal(t, vcgo.RequestUser, plan.InstallActions[idxA].RequestType)
	assert.Equal(t, vcgo.RequestAuto, plan.InstallActions[idxB].RequestType)
}

// S2: requesting a feature pulls in that feature's dependency, but a
// sibling feature's dependency stays out of the plan.
func TestResolveFeatureExpansion(t *testing.T) {
	reg := newMemRegistry()
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Name: "ssl-backend", Version: relaxed("1.0")}}, true)
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Name: "curses-backend", Version: relaxed("1.0")}}, true)
	reg.add(&vcgo.SourceControlFile{
		Core: vcgo.CoreParagraph{Name: "curl", Version: relaxed("1.0")},
		Features: []vcgo.FeatureParagraph{
			{Name: "ssl", Dependencies: []vcgo.Dependency{{Name: "ssl-backend"}}},
			{Name: "curses", Dependencies: []vcgo.Dependency{{Name: "curses-backend"}}},
		},
	}, true)

	r := newResolver(reg)
	plan, err := r.Resolve(context.Background(), topSpec(), []vcgo.Dependency{
		{Name: "curl", Features: []string{"ssl"}},
	}, vcgo.PolicyWarn)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, plan.IndexOf(vcgo.PackageSpec{Name: "ssl-backend", Triplet: testTriplet}), 0)
	assert.Equal(t, -1, plan.IndexOf(vcgo.PackageSpec{Name: "curses-backend", Triplet: testTriplet}))
}

// S3: a ">=" minimum-version constraint promotes the selected version above
// the baseline.
func TestResolveVersionPromotion(t *testing.T) {
	reg := newMemRegistry()
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Name: "zlib", Version: relaxed("1.0")}}, true)
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Name: "zlib", Version: relaxed("1.2")}}, false)
	minV := relaxed("1.2")
	reg.add(&vcgo.SourceControlFile{
		Core: vcgo.CoreParagraph{
			Name: "app", Version: relaxed("1.0"),
			Dependencies: []vcgo.Dependency{{Name: "zlib", MinimumVersion: &minV}},
		},
	}, true)

	r := newResolver(reg)
	plan, err := r.Resolve(context.Background(), topSpec(), []vcgo.Dependency{{Name: "app"}}, vcgo.PolicyWarn)
	require.NoError(t, err)

	idx := plan.IndexOf(vcgo.PackageSpec{Name: "zlib", Triplet: testTriplet})
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "1.2", plan.InstallActions[idx].Version.Text)
}

// A later, smaller ">=" constraint must still promote the port's
// considered set against the baseline even though it can no longer beat
// the version an earlier constraint already promoted to: spec.md §4.C
// step 4 is an if/else-if chain, so failing the "beats current best"
// check still requires checking "beats baseline" before giving up.
func TestResolveSecondMinimumVersionStillConsidersAgainstBaseline(t *testing.T) {
	reg := newMemRegistry()
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Name: "zlib", Version: relaxed("1.0")}}, true)
	reg.add(&vcgo.SourceControlFile{
		Core: vcgo.CoreParagraph{
			Name: "zlib", Version: relaxed("1.2"),
			Dependencies: []vcgo.Dependency{{Name: "zlib-legacy-extra"}},
		},
	}, false)
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Name: "zlib", Version: relaxed("1.5")}}, false)
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Name: "zlib-legacy-extra", Version: relaxed("1.0")}}, true)

	minHigh := relaxed("1.5")
	minLow := relaxed("1.2")
	reg.add(&vcgo.SourceControlFile{
		Core: vcgo.CoreParagraph{
			Name: "app", Version: relaxed("1.0"),
			Dependencies: []vcgo.Dependency{
				{Name: "zlib", MinimumVersion: &minHigh},
				{Name: "zlib", MinimumVersion: &minLow},
			},
		},
	}, true)

	r := newResolver(reg)
	plan, err := r.Resolve(context.Background(), topSpec(), []vcgo.Dependency{{Name: "app"}}, vcgo.PolicyWarn)
	require.NoError(t, err)

	idx := plan.IndexOf(vcgo.PackageSpec{Name: "zlib", Triplet: testTriplet})
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "1.5", plan.InstallActions[idx].Version.Text, "the higher constraint still wins the actual selection")

	_, pulledIn := r.nodes[vcgo.PackageSpec{Name: "zlib-legacy-extra", Triplet: testTriplet}]
	assert.True(t, pulledIn,
		"the lower constraint's version must still be considered against the baseline, pulling in its dependencies")
}

// S4: a ">=" constraint whose scheme (semver) differs from the baseline
// version's scheme (relaxed) is an error rather than silently ignored.
func TestResolveIncomparableSchemes(t *testing.T) {
	reg := newMemRegistry()
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Name: "lib", Version: relaxed("1.0")}}, true)
	semverV := vcgo.Version{Text: "2.0.0-beta.1", Scheme: vcgo.SchemeSemver}
	reg.add(&vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Name: "lib", Version: semverV}}, false)

	reg.add(&vcgo.SourceControlFile{
		Core: vcgo.CoreParagraph{
			Name: "app", Version: relaxed("1.0"),
			Dependencies: []vcgo.Dependency{{Name: "lib", MinimumVersion: &semverV}},
		},
	}, true)

	r := newResolver(reg)
	_, err := r.Resolve(context.Background(), topSpec(), []vcgo.Dependency{{Name: "app"}}, vcgo.PolicyWarn)
	require.Error(t, err)
}

// An empty top-level dependency list resolves to an empty, valid plan.
func TestResolveEmptyTopLevel(t *testing.T) {
	reg := newMemRegistry()
	r := newResolver(reg)
	plan, err := r.Resolve(context.Background(), topSpec(), nil, vcgo.PolicyWarn)
	require.NoError(t, err)
	assert.Empty(t, plan.InstallActions)
}

// A self-dependency is reported as a cycle, not an infinite loop.
func TestResolveSelfCycle(t *testing.T) {
	reg := newMemRegistry()
	reg.add(&vcgo.SourceControlFile{
		Core: vcgo.CoreParagraph{
			Name: "loopy", Version: relaxed("1.0"),
			Dependencies: []vcgo.Dependency{{Name: "loopy"}},
		},
	}, true)

	r := newResolver(reg)
	_, err := r.Resolve(context.Background(), topSpec(), []vcgo.Dependency{{Name: "loopy"}}, vcgo.PolicyWarn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}
