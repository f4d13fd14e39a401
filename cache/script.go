package cache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo/internal/subprocrun"
)

// ScriptProvider shells out to a user-supplied command line for each
// operation, with "{key}" and "{path}" tokens substituted, for cache
// backends with no built-in support (a site-local artifact store, a
// wrapper around an internal tool). This mirrors the teacher's external
// builder invocation shape: the caller owns the semantics entirely, this
// provider only owns argv construction and activity-timeout monitoring.
type ScriptProvider struct {
	PrecheckCmd []string // exit 0 == present, non-zero == absent
	FetchCmd    []string // writes payload to {path}
	StoreCmd    []string // reads payload from {path}
	WorkDir     string
}

func (p *ScriptProvider) Name() string { return "script" }

func substitute(args []string, key Key, path string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, "{key}", string(key))
		a = strings.ReplaceAll(a, "{path}", path)
		out[i] = a
	}
	return out
}

func (p *ScriptProvider) run(ctx context.Context, argv []string) (subprocrun.Result, error) {
	if len(argv) == 0 {
		return subprocrun.Result{}, errors.New("script provider: command is not configured")
	}
	return subprocrun.Run(ctx, argv[0], argv[1:], subprocrun.Options{Dir: p.WorkDir})
}

// Precheck implements Provider.
func (p *ScriptProvider) Precheck(ctx context.Context, key Key) (bool, error) {
	if len(p.PrecheckCmd) == 0 {
		return false, nil
	}
	res, err := p.run(ctx, substitute(p.PrecheckCmd, key, ""))
	if err != nil {
		if res.ExitCode != 0 {
			return false, nil
		}
		return false, errors.Wrapf(err, "script precheck for %s", key)
	}
	return true, nil
}

// Fetch implements Provider.
func (p *ScriptProvider) Fetch(ctx context.Context, key Key, w io.Writer) error {
	if len(p.FetchCmd) == 0 {
		return ErrMiss("script provider has no fetch command configured")
	}
	dest, err := os.MkdirTemp(p.WorkDir, "script-fetch-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dest)
	path := filepath.Join(dest, "payload")

	res, err := p.run(ctx, substitute(p.FetchCmd, key, path))
	if err != nil {
		return errors.Wrapf(err, "script fetch for %s: %s", key, res.Stderr)
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return ErrMiss("script fetch for " + string(key) + " produced no payload")
	}
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Store implements Provider.
func (p *ScriptProvider) Store(ctx context.Context, key Key, r io.Reader) error {
	if len(p.StoreCmd) == 0 {
		return nil // silently a no-op store target, matching "write-only disabled" configuration
	}
	dest, err := os.MkdirTemp(p.WorkDir, "script-store-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dest)
	path := filepath.Join(dest, "payload")

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	f.Close()

	res, err := p.run(ctx, substitute(p.StoreCmd, key, path))
	if err != nil {
		return errors.Wrapf(err, "script store for %s: %s", key, res.Stderr)
	}
	return nil
}

var _ Provider = (*ScriptProvider)(nil)
