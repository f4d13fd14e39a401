package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	vcsrepo "github.com/Masterminds/vcs"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
)

// GitRegistry is a remote Git URL plus a baseline commit/ref (spec.md
// §4.B). The remote is cloned once into a directory under CacheDir named
// after the remote URL, and each requested version is checked out in that
// single clone on demand; versions are not cached separately by content
// hash.
type GitRegistry struct {
	Remote       string
	BaselineRef  string // commit-ish naming the baseline tree
	CacheDir     string // local clone cache root

	mu   sync.Mutex
	repo *vcsrepo.GitRepo

	baselineOnce sync.Once
	baseline     map[string]string
	baselineErr  error
}

var _ Registry = (*GitRegistry)(nil)

func cacheKeyForRemote(remote string) string {
	r := strings.NewReplacer("://", "-", "/", "-", ":", "-", "@", "-").Replace(remote)
	return r
}

func (gr *GitRegistry) ensureClone() (*vcsrepo.GitRepo, error) {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	if gr.repo != nil {
		return gr.repo, nil
	}
	local := filepath.Join(gr.CacheDir, cacheKeyForRemote(gr.Remote))
	repo, err := vcsrepo.NewGitRepo(gr.Remote, local)
	if err != nil {
		return nil, errors.Wrapf(err, "opening git registry %s", gr.Remote)
	}
	if repo.CheckLocal() {
		if err := repo.Update(); err != nil {
			return nil, errors.Wrapf(err, "updating git registry clone of %s", gr.Remote)
		}
	} else {
		if err := repo.Get(); err != nil {
			return nil, errors.Wrapf(err, "cloning git registry %s", gr.Remote)
		}
	}
	gr.repo = repo
	return repo, nil
}

func (gr *GitRegistry) loadBaseline() (map[string]string, error) {
	gr.baselineOnce.Do(func() {
		repo, err := gr.ensureClone()
		if err != nil {
			gr.baselineErr = err
			return
		}
		ref := gr.BaselineRef
		if ref == "" {
			ref = "HEAD"
		}
		if err := repo.UpdateVersion(ref); err != nil {
			gr.baselineErr = errors.Wrapf(err, "checking out baseline ref %s of %s", ref, gr.Remote)
			return
		}
		buf, err := os.ReadFile(filepath.Join(repo.LocalPath(), "baseline.toml"))
		if err != nil {
			gr.baselineErr = errors.Wrapf(err, "reading baseline.toml from %s at %s", gr.Remote, ref)
			return
		}
		var raw rawBaseline
		if err := toml.Unmarshal(buf, &raw); err != nil {
			gr.baselineErr = errors.Wrapf(err, "parsing baseline.toml from %s", gr.Remote)
			return
		}
		gr.baseline = raw.Default
	})
	return gr.baseline, gr.baselineErr
}

// BaselineVersion implements Registry.
func (gr *GitRegistry) BaselineVersion(_ context.Context, port string) (vcgo.Version, error) {
	baseline, err := gr.loadBaseline()
	if err != nil {
		return vcgo.Version{}, err
	}
	text, ok := baseline[port]
	if !ok {
		return vcgo.Version{}, errors.Errorf("port %q has no baseline entry in git registry %s", port, gr.Remote)
	}
	return vcgo.ParseVersion(text, 0, vcgo.SchemeString)
}

// SourceControlFile implements Registry by checking out the ref named by
// version.Text (a commit-ish stored alongside each version entry in a real
// vcpkg-style versions/ database) and parsing its manifest.
func (gr *GitRegistry) SourceControlFile(_ context.Context, port string, version vcgo.Version) (*vcgo.SourceControlFile, error) {
	repo, err := gr.ensureClone()
	if err != nil {
		return nil, err
	}
	gr.mu.Lock()
	defer gr.mu.Unlock()

	if err := repo.UpdateVersion(version.Text); err != nil {
		return nil, errors.Wrapf(err, "checking out %s@%s from %s", port, version, gr.Remote)
	}
	portDir := filepath.Join(repo.LocalPath(), "ports", port)
	f, err := os.Open(filepath.Join(portDir, "vcgo.toml"))
	if err != nil {
		return nil, errors.Wrapf(err, "loading manifest for %s@%s from %s", port, version, gr.Remote)
	}
	defer f.Close()

	scf, err := ParseManifest(f)
	if err != nil {
		return nil, err
	}
	scf.SourceDir = portDir
	return scf, nil
}
