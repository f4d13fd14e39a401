package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesProviderRoundTrip(t *testing.T) {
	root := t.TempDir()
	p := &FilesProvider{Root: root}

	ok, err := p.Precheck(context.Background(), "abc123")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Store(context.Background(), "abc123", strings.NewReader("payload bytes")))

	ok, err = p.Precheck(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, ok)

	var buf strings.Builder
	require.NoError(t, p.Fetch(context.Background(), "abc123", &buf))
	assert.Equal(t, "payload bytes", buf.String())
}

func TestFilesProviderMissIsErrMiss(t *testing.T) {
	p := &FilesProvider{Root: t.TempDir()}
	var buf strings.Builder
	err := p.Fetch(context.Background(), "nope", &buf)
	require.Error(t, err)
	assert.True(t, IsMiss(err))
}

func TestEnginePrecheckStopsAtFirstHit(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	pa := &FilesProvider{Root: rootA}
	pb := &FilesProvider{Root: rootB}
	require.NoError(t, pb.Store(context.Background(), "k", strings.NewReader("x")))

	e := &Engine{Providers: []ProviderEntry{{Provider: pa}, {Provider: pb}}}
	ok, provider, err := e.Precheck(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "files", provider)
}

func TestEngineRestoreFallsThroughOnMiss(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	pa := &FilesProvider{Root: rootA}
	pb := &FilesProvider{Root: rootB}
	require.NoError(t, pb.Store(context.Background(), "k", strings.NewReader("from-b")))

	e := &Engine{Providers: []ProviderEntry{{Provider: pa}, {Provider: pb}}, StagingDir: t.TempDir()}
	dest := filepath.Join(t.TempDir(), "installed-payload")
	res, err := e.Restore(context.Background(), "k", dest)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)
	assert.Equal(t, "files", res.Provider)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "from-b", string(data))
}

func TestEngineRestoreMissReportsStatusMiss(t *testing.T) {
	e := &Engine{Providers: []ProviderEntry{{Provider: &FilesProvider{Root: t.TempDir()}}}, StagingDir: t.TempDir()}
	res, err := e.Restore(context.Background(), "absent", filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, res.Status)
}

func TestEngineStoreSkipsReadOnlyProvider(t *testing.T) {
	readOnly := &FilesProvider{Root: t.TempDir()}
	readWrite := &FilesProvider{Root: t.TempDir()}

	src := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(src, []byte("hi"), 0o644))

	e := &Engine{Providers: []ProviderEntry{
		{Provider: readOnly, Access: AccessRead},
		{Provider: readWrite},
	}}
	warnings := e.Store(context.Background(), "k", src)
	assert.Empty(t, warnings)

	ok, err := readOnly.Precheck(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok, "a read-only provider must never receive a Store")

	ok, err = readWrite.Precheck(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngineRestoreSkipsWriteOnlyProvider(t *testing.T) {
	writeOnly := &FilesProvider{Root: t.TempDir()}
	require.NoError(t, writeOnly.Store(context.Background(), "k", strings.NewReader("from-write-only")))

	e := &Engine{Providers: []ProviderEntry{{Provider: writeOnly, Access: AccessWrite}}, StagingDir: t.TempDir()}
	res, err := e.Restore(context.Background(), "k", filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, res.Status, "a write-only provider must never be consulted by Restore")
}

func TestEngineStoreCollectsWarningsWithoutAborting(t *testing.T) {
	good := &FilesProvider{Root: t.TempDir()}
	bad := &FilesProvider{Root: "/nonexistent/\x00bad"}

	src := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(src, []byte("hi"), 0o644))

	e := &Engine{Providers: []ProviderEntry{{Provider: good}, {Provider: bad}}}
	warnings := e.Store(context.Background(), "k", src)
	assert.NotEmpty(t, warnings)

	ok, err := good.Precheck(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}
