package cache

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FilesProvider is the local-directory binary cache backend: each key maps
// to a flat file "<key>.zip" directly under Root.
type FilesProvider struct {
	Root string
}

func (p *FilesProvider) Name() string { return "files" }

func (p *FilesProvider) path(key Key) string {
	return filepath.Join(p.Root, string(key)+".zip")
}

// Precheck implements Provider.
func (p *FilesProvider) Precheck(_ context.Context, key Key) (bool, error) {
	_, err := os.Stat(p.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", p.path(key))
	}
	return true, nil
}

// Fetch implements Provider.
func (p *FilesProvider) Fetch(_ context.Context, key Key, w io.Writer) error {
	f, err := os.Open(p.path(key))
	if os.IsNotExist(err) {
		return ErrMiss("no local cache entry for " + string(key))
	}
	if err != nil {
		return errors.Wrapf(err, "opening cached file for %s", key)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Store implements Provider. It writes to a temporary sibling file and
// renames into place, so a concurrent Fetch never observes a partial
// write.
func (p *FilesProvider) Store(_ context.Context, key Key, r io.Reader) error {
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		return errors.Wrapf(err, "creating cache root %s", p.Root)
	}
	tmp, err := os.CreateTemp(p.Root, ".staging-*")
	if err != nil {
		return errors.Wrap(err, "creating staging file")
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "writing staging file for %s", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p.path(key)); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "renaming staged file into place for %s", key)
	}
	return nil
}

var _ Provider = (*FilesProvider)(nil)
