package plan

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcgo-project/vcgo"
	"github.com/vcgo-project/vcgo/cache"
)

type fakeBuilder struct {
	fail map[vcgo.PackageSpec]bool
}

func (f *fakeBuilder) Build(_ context.Context, action *vcgo.InstallPlanAction, destPath string) error {
	if f.fail[action.Spec] {
		return assertErr("simulated build failure")
	}
	return os.WriteFile(destPath, []byte("built:"+action.Spec.Name), 0o644)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func newAction(name string, deps ...vcgo.PackageSpec) *vcgo.InstallPlanAction {
	var edges []vcgo.FeatureSpec
	for _, d := range deps {
		edges = append(edges, vcgo.FeatureSpec{Spec: d, Feature: "core"})
	}
	return &vcgo.InstallPlanAction{
		Spec:                vcgo.PackageSpec{Name: name, Triplet: "x64-linux"},
		Version:             vcgo.Version{Text: "1.0", Scheme: vcgo.SchemeRelaxed},
		FeatureDependencies: map[string][]vcgo.FeatureSpec{"core": edges},
	}
}

func keyOf(a *vcgo.InstallPlanAction) cache.Key { return cache.Key(a.Spec.Name) }

func TestPlannerBuildsEveryActionOnCacheMiss(t *testing.T) {
	root := filepath.Join(t.TempDir(), "installed")
	require.NoError(t, os.MkdirAll(root, 0o755))

	c := newAction("c")
	b := newAction("b", c.Spec)
	a := newAction("a", b.Spec)
	actionPlan := &vcgo.ActionPlan{InstallActions: []*vcgo.InstallPlanAction{c, b, a}}

	p := &Planner{Builder: &fakeBuilder{}, AbiKeyOf: keyOf}
	summary, err := p.Execute(context.Background(), actionPlan, func(s vcgo.PackageSpec) string {
		return filepath.Join(root, s.Name)
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)
	for _, r := range summary.Results {
		assert.Equal(t, StatusBuilt, r.Status)
	}
}

func TestPlannerCascadesFailureWithKeepGoing(t *testing.T) {
	root := t.TempDir()
	c := newAction("c")
	b := newAction("b", c.Spec)
	unrelated := newAction("unrelated")
	actionPlan := &vcgo.ActionPlan{InstallActions: []*vcgo.InstallPlanAction{c, b, unrelated}}

	p := &Planner{
		Builder:   &fakeBuilder{fail: map[vcgo.PackageSpec]bool{c.Spec: true}},
		AbiKeyOf:  keyOf,
		KeepGoing: true,
	}
	summary, err := p.Execute(context.Background(), actionPlan, func(s vcgo.PackageSpec) string {
		return filepath.Join(root, s.Name)
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, StatusFailed, summary.Results[0].Status)
	assert.Equal(t, StatusCascaded, summary.Results[1].Status)
	assert.Equal(t, StatusBuilt, summary.Results[2].Status)
	assert.True(t, summary.Failed())
}

func TestPlannerStopsWithoutKeepGoing(t *testing.T) {
	root := t.TempDir()
	c := newAction("c")
	actionPlan := &vcgo.ActionPlan{InstallActions: []*vcgo.InstallPlanAction{c}}

	p := &Planner{
		Builder:  &fakeBuilder{fail: map[vcgo.PackageSpec]bool{c.Spec: true}},
		AbiKeyOf: keyOf,
	}
	_, err := p.Execute(context.Background(), actionPlan, func(s vcgo.PackageSpec) string {
		return filepath.Join(root, s.Name)
	})
	require.Error(t, err)
}

// countingMissProvider always misses, but counts Fetch calls so the test
// can assert the bulk precheck pass spares executeOne a redundant Restore
// attempt once an action has been marked CacheStatusNotAvailable.
type countingMissProvider struct {
	fetchCalls int
}

func (p *countingMissProvider) Name() string { return "counting-miss" }
func (p *countingMissProvider) Precheck(context.Context, cache.Key) (bool, error) {
	return false, nil
}
func (p *countingMissProvider) Fetch(_ context.Context, _ cache.Key, _ io.Writer) error {
	p.fetchCalls++
	return cache.ErrMiss("never present")
}
func (p *countingMissProvider) Store(context.Context, cache.Key, io.Reader) error {
	return nil
}

func TestPlannerBulkPrechecksBeforeFetchOrBuild(t *testing.T) {
	root := t.TempDir()
	cp := &countingMissProvider{}
	engine := &cache.Engine{Providers: []cache.ProviderEntry{{Provider: cp}}, StagingDir: t.TempDir()}

	zlib := newAction("zlib")
	actionPlan := &vcgo.ActionPlan{InstallActions: []*vcgo.InstallPlanAction{zlib}}

	p := &Planner{Cache: engine, Builder: &fakeBuilder{}, AbiKeyOf: keyOf}
	summary, err := p.Execute(context.Background(), actionPlan, func(s vcgo.PackageSpec) string {
		return filepath.Join(root, s.Name)
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, StatusBuilt, summary.Results[0].Status)
	assert.Equal(t, vcgo.CacheStatusNotAvailable, zlib.CacheStatus)
	assert.Zero(t, cp.fetchCalls, "a precheck miss should never be followed by a Fetch attempt")
}

func TestPlannerReportsCacheHit(t *testing.T) {
	cacheRoot := t.TempDir()
	fp := &cache.FilesProvider{Root: cacheRoot}
	require.NoError(t, fp.Store(context.Background(), "zlib", strings.NewReader("prebuilt")))

	root := t.TempDir()
	engine := &cache.Engine{Providers: []cache.ProviderEntry{{Provider: fp}}, StagingDir: t.TempDir()}

	zlib := newAction("zlib")
	actionPlan := &vcgo.ActionPlan{InstallActions: []*vcgo.InstallPlanAction{zlib}}

	p := &Planner{Cache: engine, Builder: &fakeBuilder{}, AbiKeyOf: keyOf}
	summary, err := p.Execute(context.Background(), actionPlan, func(s vcgo.PackageSpec) string {
		return filepath.Join(root, s.Name)
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, StatusCacheHit, summary.Results[0].Status)
	assert.Equal(t, "files", summary.Results[0].Provider)
}
