package registry

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
)

// OverlayRegistry is a flat directory list that shadows all other
// registries for matching port names. Overlays have no version axis:
// whatever is on disk is "the" version (spec.md §4.B).
type OverlayRegistry struct {
	Dirs []string // priority-ordered; first match wins
}

var _ Registry = (*OverlayRegistry)(nil)
var _ VersionAxis = (*OverlayRegistry)(nil)

// HasVersionAxis implements VersionAxis: overlays never do.
func (or *OverlayRegistry) HasVersionAxis() bool { return false }

func (or *OverlayRegistry) portDir(port string) (string, bool) {
	for _, d := range or.Dirs {
		p := filepath.Join(d, port)
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			return p, true
		}
	}
	return "", false
}

// BaselineVersion loads whatever manifest is present on disk and reports
// its declared version, since overlays have no separate baseline document.
func (or *OverlayRegistry) BaselineVersion(ctx context.Context, port string) (vcgo.Version, error) {
	scf, err := or.SourceControlFile(ctx, port, vcgo.Version{})
	if err != nil {
		return vcgo.Version{}, err
	}
	return scf.Core.Version, nil
}

// SourceControlFile implements Registry. version is ignored: an overlay
// only ever has one, whatever is currently on disk.
func (or *OverlayRegistry) SourceControlFile(_ context.Context, port string, _ vcgo.Version) (*vcgo.SourceControlFile, error) {
	dir, ok := or.portDir(port)
	if !ok {
		return nil, errors.Errorf("no overlay provides port %q", port)
	}
	f, err := os.Open(filepath.Join(dir, "vcgo.toml"))
	if err != nil {
		return nil, errors.Wrapf(err, "loading overlay manifest for %q", port)
	}
	defer f.Close()

	scf, err := ParseManifest(f)
	if err != nil {
		return nil, err
	}
	scf.SourceDir = dir
	return scf, nil
}
