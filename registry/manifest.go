package registry

import (
	"io"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
)

// rawManifest mirrors a port's on-disk vcpkg.toml-shaped manifest. Field
// names follow the teacher's own registry_config.go convention of a
// lowercase "raw" struct decoded via go-toml, kept separate from the
// in-memory vcgo.SourceControlFile shape.
type rawManifest struct {
	Core     rawCore        `toml:"core"`
	Features []rawFeature   `toml:"features"`
	Policies map[string]bool `toml:"policies"`
}

type rawCore struct {
	Name            string   `toml:"name"`
	Version         string   `toml:"version"`
	VersionScheme   string   `toml:"version-scheme"`
	PortVersion     int      `toml:"port-version"`
	DefaultFeatures []string `toml:"default-features"`
	Supports        string   `toml:"supports"`
	Dependencies    []rawDep `toml:"dependencies"`
}

type rawFeature struct {
	Name         string   `toml:"name"`
	Supports     string   `toml:"supports"`
	Dependencies []rawDep `toml:"dependencies"`
}

type rawDep struct {
	Name           string   `toml:"name"`
	Host           bool     `toml:"host"`
	Features       []string `toml:"features"`
	Platform       string   `toml:"platform"`
	MinimumVersion string   `toml:"minimum-version"`
}

// ParseManifest decodes a port manifest document from r.
func ParseManifest(r io.Reader) (*vcgo.SourceControlFile, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}
	var raw rawManifest
	if err := toml.Unmarshal(buf, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing manifest as TOML")
	}
	return rawToSCF(raw)
}

func rawToSCF(raw rawManifest) (*vcgo.SourceControlFile, error) {
	scheme := vcgo.Scheme(raw.Core.VersionScheme)
	if scheme == "" {
		scheme = vcgo.SchemeString
	}
	v, err := vcgo.ParseVersion(raw.Core.Version, raw.Core.PortVersion, scheme)
	if err != nil {
		return nil, errors.Wrapf(err, "port %s", raw.Core.Name)
	}

	scf := &vcgo.SourceControlFile{
		Core: vcgo.CoreParagraph{
			Name:            raw.Core.Name,
			Version:         v,
			Dependencies:    convertDeps(raw.Core.Dependencies),
			DefaultFeatures: raw.Core.DefaultFeatures,
			SupportsExpr:    raw.Core.Supports,
		},
		Policies: make(map[vcgo.PolicyTag]bool, len(raw.Policies)),
	}
	for k, on := range raw.Policies {
		scf.Policies[vcgo.PolicyTag(k)] = on
	}
	for _, f := range raw.Features {
		scf.Features = append(scf.Features, vcgo.FeatureParagraph{
			Name:         f.Name,
			Dependencies: convertDeps(f.Dependencies),
			SupportsExpr: f.Supports,
		})
	}
	return scf, nil
}

func convertDeps(raw []rawDep) []vcgo.Dependency {
	deps := make([]vcgo.Dependency, 0, len(raw))
	for _, d := range raw {
		dep := vcgo.Dependency{
			Name:         d.Name,
			Host:         d.Host,
			Features:     d.Features,
			PlatformExpr: d.Platform,
		}
		if d.MinimumVersion != "" {
			// The manifest doesn't carry an explicit scheme for minimum-version;
			// it's interpreted under the same scheme as the dependency's own
			// resolved version at constraint-check time (see resolve package),
			// so here we just stash the raw text under SchemeString and let the
			// resolver re-parse it once it knows the target's scheme.
			mv, _ := vcgo.ParseVersion(d.MinimumVersion, 0, vcgo.SchemeString)
			dep.MinimumVersion = &mv
		}
		deps = append(deps, dep)
	}
	return deps
}
