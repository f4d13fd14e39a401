package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcgo-project/vcgo"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFilesystemRegistryRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "baseline.toml"), `
[default]
zlib = "1.2.11"
`)
	writeFile(t, filepath.Join(root, "versions", "zlib", "1.2.11.toml"), `
[core]
name = "zlib"
version = "1.2.11"
version-scheme = "relaxed"
`)

	fr := &FilesystemRegistry{Root: root}
	v, err := fr.BaselineVersion(context.Background(), "zlib")
	require.NoError(t, err)
	assert.Equal(t, "1.2.11", v.Text)

	scf, err := fr.SourceControlFile(context.Background(), "zlib", vcgo.Version{Text: "1.2.11"})
	require.NoError(t, err)
	assert.Equal(t, "zlib", scf.Core.Name)
	assert.Equal(t, vcgo.SchemeRelaxed, scf.Core.Version.Scheme)
}

func TestFilesystemRegistryMissingPort(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "baseline.toml"), "[default]\n")

	fr := &FilesystemRegistry{Root: root}
	_, err := fr.BaselineVersion(context.Background(), "nope")
	assert.Error(t, err)
}

type stubRegistry struct {
	version vcgo.Version
	ok      bool
}

func (s stubRegistry) BaselineVersion(context.Context, string) (vcgo.Version, error) {
	if !s.ok {
		return vcgo.Version{}, assertErr
	}
	return s.version, nil
}

func (s stubRegistry) SourceControlFile(context.Context, string, vcgo.Version) (*vcgo.SourceControlFile, error) {
	return &vcgo.SourceControlFile{Core: vcgo.CoreParagraph{Version: s.version}}, nil
}

var assertErr = &stubError{"not found"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }

func TestProviderSetPriorityOrder(t *testing.T) {
	override := stubRegistry{version: vcgo.Version{Text: "override"}, ok: true}
	overlay := stubRegistry{version: vcgo.Version{Text: "overlay"}, ok: true}
	def := stubRegistry{version: vcgo.Version{Text: "default"}, ok: true}

	ps := &ProviderSet{
		Override:        override,
		Overlays:        []Registry{overlay},
		DefaultRegistry: def,
	}
	v, err := ps.BaselineVersion(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "override", v.Text)

	// Remove the override; overlay should win next.
	ps.Override = stubRegistry{ok: false}
	v, err = ps.BaselineVersion(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "overlay", v.Text)

	// Remove overlay too; default wins.
	ps.Overlays = nil
	v, err = ps.BaselineVersion(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "default", v.Text)
}

func TestNamedRegistryGlobMatch(t *testing.T) {
	nr := NamedRegistry{Packages: []string{"boost-*", "zlib"}}
	assert.True(t, nr.Matches("boost-asio"))
	assert.True(t, nr.Matches("zlib"))
	assert.False(t, nr.Matches("openssl"))

	all := NamedRegistry{}
	assert.True(t, all.Matches("anything"))
}
