// Package config implements Component H: reading the top-level TOML
// configuration (default registry, named registries, overlay ports/
// triplets, overrides, and cache provider declarations), grounded on the
// teacher's registry_config.go raw-struct TOML round-trip.
package config

import (
	"bytes"
	"io"
	"strconv"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
)

// RegistryDecl is one entry of the top-level "registries" array.
type RegistryDecl struct {
	Kind     string   `toml:"kind"`
	Location string   `toml:"location"` // git remote, filesystem path, etc.
	Baseline string   `toml:"baseline"` // git ref / commit the registry is pinned to
	Packages []string `toml:"packages"`
}

// OverrideDecl is one entry of the top-level "overrides" array.
type OverrideDecl struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// CacheProviderDecl is one entry of the top-level "binary-caches" array.
type CacheProviderDecl struct {
	Kind   string `toml:"kind"` // files | http | azblob | gcs | nuget | script
	Source string `toml:"source"`

	// Access declares whether this provider is consulted for restores,
	// uploaded to on a build, or both, per spec.md §4.E. One of "read",
	// "write", "readwrite"; empty defaults to "readwrite".
	Access string `toml:"access"`

	// Used by kind=script only.
	PrecheckCmd []string `toml:"precheck-cmd"`
	FetchCmd    []string `toml:"fetch-cmd"`
	StoreCmd    []string `toml:"store-cmd"`
}

// rawConfig is the literal on-disk shape.
type rawConfig struct {
	DefaultRegistry RegistryDecl        `toml:"default-registry"`
	Registries      []RegistryDecl      `toml:"registries"`
	OverlayPorts    []string            `toml:"overlay-ports"`
	OverlayTriplets []string            `toml:"overlay-triplets"`
	Overrides       []OverrideDecl      `toml:"overrides"`
	BinaryCaches    []CacheProviderDecl `toml:"binary-caches"`
}

// Config is the parsed, validated form of the top-level configuration.
type Config struct {
	DefaultRegistry RegistryDecl
	Registries      []RegistryDecl
	OverlayPorts    []string
	OverlayTriplets []string
	Overrides       []OverrideDecl
	BinaryCaches    []CacheProviderDecl
	Extensions      map[string]interface{}
}

// Parse reads a TOML configuration document from r.
func Parse(r io.Reader) (*Config, error) {
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Wrap(err, "reading configuration")
	}

	var raw rawConfig
	if err := toml.Unmarshal(buf.Bytes(), &raw); err != nil {
		return nil, &vcgo.ConfigError{Path: "$", Err: err}
	}

	// A second, untyped pass recovers any "x-"-prefixed top-level keys
	// verbatim into Extensions: tool-specific extensions are kept even
	// though this package never interprets them. Other unknown top-level
	// keys are dropped.
	var generic map[string]interface{}
	if err := toml.Unmarshal(buf.Bytes(), &generic); err != nil {
		return nil, &vcgo.ConfigError{Path: "$", Err: err}
	}
	ext := make(map[string]interface{})
	for k, v := range generic {
		if len(k) > 2 && k[0] == 'x' && k[1] == '-' {
			ext[k] = v
		}
	}

	cfg := &Config{
		DefaultRegistry: raw.DefaultRegistry,
		Registries:      raw.Registries,
		OverlayPorts:    raw.OverlayPorts,
		OverlayTriplets: raw.OverlayTriplets,
		Overrides:       raw.Overrides,
		BinaryCaches:    raw.BinaryCaches,
		Extensions:      ext,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for i, r := range c.Registries {
		switch r.Kind {
		case "git", "filesystem", "builtin":
		default:
			return &vcgo.ConfigError{Path: "registries[" + strconv.Itoa(i) + "].kind", Err: errors.Errorf("unknown registry kind %q", r.Kind)}
		}
	}
	for i, bc := range c.BinaryCaches {
		switch bc.Kind {
		case "files", "http", "azblob", "gcs", "nuget", "script":
		default:
			return &vcgo.ConfigError{Path: "binary-caches[" + strconv.Itoa(i) + "].kind", Err: errors.Errorf("unknown cache provider kind %q", bc.Kind)}
		}
		switch bc.Access {
		case "", "read", "write", "readwrite":
		default:
			return &vcgo.ConfigError{Path: "binary-caches[" + strconv.Itoa(i) + "].access", Err: errors.Errorf("unknown cache provider access %q", bc.Access)}
		}
	}
	return nil
}

// ParseOverrides converts the config's raw OverrideDecl entries into
// resolver-ready vcgo.Override values under scheme.
func ParseOverrides(decls []OverrideDecl, schemeOf func(name string) vcgo.Scheme) ([]vcgo.Override, error) {
	out := make([]vcgo.Override, 0, len(decls))
	for _, d := range decls {
		v, err := vcgo.ParseVersion(d.Version, 0, schemeOf(d.Name))
		if err != nil {
			return nil, &vcgo.ConfigError{Path: "overrides[" + d.Name + "]", Err: err}
		}
		out = append(out, vcgo.Override{Name: d.Name, Version: v})
	}
	return out, nil
}
