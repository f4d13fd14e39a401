package abi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcgo-project/vcgo"
)

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "portfile.cmake"), []byte("vcgo_from_github(...)"), 0o644))
	sub := filepath.Join(dir, "patches")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "fix.patch"), []byte("--- a\n+++ b\n"), 0o644))
	return dir
}

func TestHashPortTreeDeterministic(t *testing.T) {
	dir := writeTree(t)
	d1, err := HashPortTree(AlgoSHA256, dir)
	require.NoError(t, err)
	d2, err := HashPortTree(AlgoSHA256, dir)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64) // hex-encoded sha256
}

func TestHashPortTreeChangesWithContent(t *testing.T) {
	dir := writeTree(t)
	before, err := HashPortTree(AlgoSHA256, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "portfile.cmake"), []byte("vcgo_from_github(changed)"), 0o644))
	after, err := HashPortTree(AlgoSHA256, dir)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestHasherOrderIndependence(t *testing.T) {
	h1 := &Hasher{Algo: AlgoSHA256}
	h1.AddString("b", "2")
	h1.AddString("a", "1")

	h2 := &Hasher{Algo: AlgoSHA256}
	h2.AddString("a", "1")
	h2.AddString("b", "2")

	info1, err := h1.Build()
	require.NoError(t, err)
	info2, err := h2.Build()
	require.NoError(t, err)

	assert.Equal(t, info1.PackageAbi, info2.PackageAbi)
}

func TestComputeAbiIncludesDependencyAbis(t *testing.T) {
	dir := writeTree(t)
	action := &vcgo.InstallPlanAction{
		Spec:                vcgo.PackageSpec{Name: "curl", Triplet: "x64-linux"},
		Version:             vcgo.Version{Text: "1.0", Scheme: vcgo.SchemeRelaxed},
		FeatureDependencies: map[string][]vcgo.FeatureSpec{"core": nil},
	}

	without, err := ComputeAbi(AlgoSHA256, action, dir, map[string]*vcgo.AbiInfo{}, "x64-linux", CompilerInfo{}, nil)
	require.NoError(t, err)

	with, err := ComputeAbi(AlgoSHA256, action, dir, map[string]*vcgo.AbiInfo{
		"zlib": {PackageAbi: "deadbeef"},
	}, "x64-linux", CompilerInfo{}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, without.PackageAbi, with.PackageAbi)

	var found bool
	for _, e := range with.Entries {
		if e.Tag == "dep:zlib" {
			found = true
			assert.Equal(t, "deadbeef", e.Value)
		}
	}
	assert.True(t, found, "expected a dep:zlib entry")
}
