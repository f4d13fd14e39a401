package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcgo-project/vcgo"
)

const sample = `
[default-registry]
kind = "builtin"
location = "https://example.com/ports.git"
baseline = "deadbeef"

[[registries]]
kind = "git"
location = "https://example.com/extra.git"
baseline = "cafef00d"
packages = ["boost-*"]

overlay-ports = ["./my-ports"]
overlay-triplets = ["./my-triplets"]

[[overrides]]
name = "zlib"
version = "1.2.11"

[[binary-caches]]
kind = "files"
source = "/var/cache/vcgo"
access = "readwrite"

"x-internal-note" = "do not touch"
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "builtin", cfg.DefaultRegistry.Kind)
	assert.Equal(t, "deadbeef", cfg.DefaultRegistry.Baseline)
	require.Len(t, cfg.Registries, 1)
	assert.Equal(t, []string{"boost-*"}, cfg.Registries[0].Packages)
	assert.Equal(t, []string{"./my-ports"}, cfg.OverlayPorts)
	require.Len(t, cfg.Overrides, 1)
	assert.Equal(t, "zlib", cfg.Overrides[0].Name)
	require.Len(t, cfg.BinaryCaches, 1)
	assert.Equal(t, "files", cfg.BinaryCaches[0].Kind)
	assert.Equal(t, "readwrite", cfg.BinaryCaches[0].Access)
	assert.Equal(t, "do not touch", cfg.Extensions["x-internal-note"])
}

func TestParseRejectsUnknownCacheAccess(t *testing.T) {
	_, err := Parse(strings.NewReader(`
[[binary-caches]]
kind = "files"
source = "/var/cache/vcgo"
access = "appendonly"
`))
	require.Error(t, err)
	var cfgErr *vcgo.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestParseRejectsUnknownRegistryKind(t *testing.T) {
	_, err := Parse(strings.NewReader(`
[[registries]]
kind = "ftp"
location = "ftp://example.com"
`))
	require.Error(t, err)
	var cfgErr *vcgo.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestParseOverrides(t *testing.T) {
	decls := []OverrideDecl{{Name: "zlib", Version: "1.2.11"}}
	overrides, err := ParseOverrides(decls, func(string) vcgo.Scheme { return vcgo.SchemeRelaxed })
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "1.2.11", overrides[0].Version.Text)
}
