package cache

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo/internal/subprocrun"
)

// NuGetProvider is the NuGet-feed binary cache backend: packages are
// pushed/restored through an external "nuget" (or "dotnet nuget")
// executable rather than a hand-rolled client for NuGet's OData-ish
// protocol, matching the teacher's habit of shelling out to a
// well-established external tool (its vcs.Repo Git operations) rather
// than reimplementing a third-party wire protocol in-process.
type NuGetProvider struct {
	Exe        string // "nuget" or "dotnet"
	Source     string // feed URL or local feed path
	ApiKey     string
	WorkDir    string
	PackageIDPrefix string
}

func (p *NuGetProvider) Name() string { return "nuget" }

func (p *NuGetProvider) packageID(key Key) string {
	return p.PackageIDPrefix + strings.ToLower(string(key))
}

func (p *NuGetProvider) args(sub string, rest ...string) []string {
	if p.Exe == "dotnet" {
		return append([]string{"nuget", sub}, rest...)
	}
	return append([]string{sub}, rest...)
}

// Precheck implements Provider by listing the feed for the package id and
// treating any match as present.
func (p *NuGetProvider) Precheck(ctx context.Context, key Key) (bool, error) {
	res, err := subprocrun.Run(ctx, p.Exe, p.args("list", p.packageID(key), "-Source", p.Source, "-AllVersions"), subprocrun.Options{Dir: p.WorkDir})
	if err != nil {
		return false, errors.Wrapf(err, "listing nuget feed for %s: %s", key, res.Stderr)
	}
	return bytes.Contains(bytes.ToLower(res.Stdout), []byte(strings.ToLower(p.packageID(key)))), nil
}

// Fetch implements Provider by installing the package into a scratch
// directory and streaming its .nupkg payload back to w.
func (p *NuGetProvider) Fetch(ctx context.Context, key Key, w io.Writer) error {
	dest, err := os.MkdirTemp(p.WorkDir, "nuget-fetch-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dest)

	res, err := subprocrun.Run(ctx, p.Exe, p.args("install", p.packageID(key), "-Source", p.Source, "-OutputDirectory", dest, "-NonInteractive"), subprocrun.Options{Dir: p.WorkDir})
	if err != nil {
		if bytes.Contains(res.Stderr, []byte("not found")) || bytes.Contains(res.Stdout, []byte("not found")) {
			return ErrMiss("no nuget package for " + string(key))
		}
		return errors.Wrapf(err, "nuget install %s: %s", key, res.Stderr)
	}

	var nupkg string
	filepath.Walk(dest, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && strings.HasSuffix(path, ".nupkg") {
			nupkg = path
		}
		return nil
	})
	if nupkg == "" {
		return ErrMiss("nuget install for " + string(key) + " produced no package")
	}
	f, err := os.Open(nupkg)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Store implements Provider by packing r's bytes into a scratch .nupkg and
// pushing it to the feed.
func (p *NuGetProvider) Store(ctx context.Context, key Key, r io.Reader) error {
	dest, err := os.MkdirTemp(p.WorkDir, "nuget-push-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dest)

	nupkg := filepath.Join(dest, p.packageID(key)+".nupkg")
	f, err := os.Create(nupkg)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	f.Close()

	args := p.args("push", nupkg, "-Source", p.Source, "-NonInteractive")
	if p.ApiKey != "" {
		args = append(args, "-ApiKey", p.ApiKey)
	}
	res, err := subprocrun.Run(ctx, p.Exe, args, subprocrun.Options{Dir: p.WorkDir})
	if err != nil {
		return errors.Wrapf(err, "nuget push %s: %s", key, res.Stderr)
	}
	return nil
}

var _ Provider = (*NuGetProvider)(nil)
