package registry

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
)

// FilesystemRegistry is a directory tree whose baseline file maps each port
// to a version, and whose versions/ subtree stores per-version manifests,
// per spec.md §4.B.
type FilesystemRegistry struct {
	Root string // directory containing baseline.toml and versions/

	baseline map[string]string // port -> version text, lazily loaded
}

var _ Registry = (*FilesystemRegistry)(nil)

type rawBaseline struct {
	Default map[string]string `toml:"default"`
}

func (fr *FilesystemRegistry) load() error {
	if fr.baseline != nil {
		return nil
	}
	buf, err := os.ReadFile(filepath.Join(fr.Root, "baseline.toml"))
	if err != nil {
		return errors.Wrapf(err, "reading baseline file for filesystem registry %s", fr.Root)
	}
	var raw rawBaseline
	if err := toml.Unmarshal(buf, &raw); err != nil {
		return errors.Wrapf(err, "parsing baseline file for filesystem registry %s", fr.Root)
	}
	fr.baseline = raw.Default
	return nil
}

// BaselineVersion implements Registry.
func (fr *FilesystemRegistry) BaselineVersion(_ context.Context, port string) (vcgo.Version, error) {
	if err := fr.load(); err != nil {
		return vcgo.Version{}, err
	}
	text, ok := fr.baseline[port]
	if !ok {
		return vcgo.Version{}, errors.Errorf("port %q has no baseline entry in %s", port, fr.Root)
	}
	// The filesystem registry doesn't record a scheme in the baseline
	// document itself; the authoritative scheme lives on the per-version
	// manifest, so callers needing Compare() should re-resolve through
	// SourceControlFile once they have a candidate version.
	return vcgo.ParseVersion(text, 0, vcgo.SchemeString)
}

// SourceControlFile implements Registry.
func (fr *FilesystemRegistry) SourceControlFile(_ context.Context, port string, version vcgo.Version) (*vcgo.SourceControlFile, error) {
	path := filepath.Join(fr.Root, "versions", port, version.Text+".toml")
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading manifest for %s@%s from filesystem registry", port, version)
	}
	defer f.Close()

	scf, err := ParseManifest(f)
	if err != nil {
		return nil, err
	}
	scf.SourceDir = filepath.Join(fr.Root, "versions", port, version.Text)
	return scf, nil
}
