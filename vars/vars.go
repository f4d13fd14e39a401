// Package vars implements Component I: the concrete Platform Variable
// Provider, which answers platform-expression identifier lookups by
// invoking the external builder in a probing mode once per distinct
// triplet and caching the result, batching across every PackageSpec that
// shares a triplet in a single resolver round per spec.md §4.C's batching
// requirement.
package vars

import (
	"bufio"
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
	"github.com/vcgo-project/vcgo/internal/subprocrun"
)

// Builder abstracts the external builder invocation used to probe a
// triplet's variables, so tests can substitute a fake without shelling
// out.
type Builder interface {
	ProbeTriplet(ctx context.Context, triplet vcgo.Triplet) (map[string]string, error)
}

// ExternalBuilder shells out to Exe in a "--print-triplet-vars" style
// probing mode and parses its "KEY=VALUE" stdout lines, grounded on the
// teacher's cmd.go runFromCwd shape.
type ExternalBuilder struct {
	Exe  string
	Args []string // extra args prepended before the triplet name
}

// ProbeTriplet implements Builder.
func (b *ExternalBuilder) ProbeTriplet(ctx context.Context, triplet vcgo.Triplet) (map[string]string, error) {
	args := append(append([]string{}, b.Args...), string(triplet))
	res, err := subprocrun.Run(ctx, b.Exe, args, subprocrun.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "probing triplet %s: %s", triplet, res.Stderr)
	}
	return parseKeyValueLines(res.Stdout), nil
}

func parseKeyValueLines(out []byte) map[string]string {
	vars := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return vars
}

// Provider implements resolve.VarProvider by probing each distinct
// triplet among the requested specs at most once, caching the result for
// the lifetime of the Provider.
type Provider struct {
	Builder Builder

	mu    sync.Mutex
	cache map[vcgo.Triplet]map[string]string
}

// LoadDepInfoVars implements resolve.VarProvider, probing every triplet
// present in specs that isn't already cached, in one batch rather than
// once per spec.
func (p *Provider) LoadDepInfoVars(ctx context.Context, specs []vcgo.PackageSpec) (map[vcgo.PackageSpec]map[string]string, error) {
	p.mu.Lock()
	if p.cache == nil {
		p.cache = make(map[vcgo.Triplet]map[string]string)
	}
	needed := make(map[vcgo.Triplet]bool)
	for _, s := range specs {
		if _, ok := p.cache[s.Triplet]; !ok {
			needed[s.Triplet] = true
		}
	}
	p.mu.Unlock()

	for t := range needed {
		vs, err := p.Builder.ProbeTriplet(ctx, t)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache[t] = vs
		p.mu.Unlock()
	}

	out := make(map[vcgo.PackageSpec]map[string]string, len(specs))
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range specs {
		out[s] = p.cache[s.Triplet]
	}
	return out, nil
}
