package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	shutil "github.com/termie/go-shutil"
	flock "github.com/theckman/go-flock"

	"github.com/vcgo-project/vcgo"
)

// Status reports what an Engine did for one key.
type Status int

const (
	// StatusMiss means no configured provider had key.
	StatusMiss Status = iota
	// StatusHit means a provider satisfied Restore, naming the provider
	// that answered.
	StatusHit
	// StatusStored means Put succeeded against at least one provider.
	StatusStored
)

// RestoreResult is the outcome of restoring one key.
type RestoreResult struct {
	Status       Status
	Provider     string
	StoreWarnings []error // Restore never backfills other providers, so it leaves this nil
}

// ProviderEntry pairs one configured Provider with the access mode that
// gates which of Precheck/Restore/Store it participates in, per spec.md
// §4.E. The zero value is AccessReadWrite, so existing literals that omit
// Access keep their prior full-participation behavior.
type ProviderEntry struct {
	Provider Provider
	Access   AccessMode
}

// Engine drives Precheck/Fetch/Store across Providers in declaration
// order, and coalesces concurrent Restore calls for the same key so a
// payload is fetched across the network at most once even if two
// independent install actions need it at the same moment, grounded on the
// teacher's SourceMgr futures/unifiedFuture pattern in source_manager.go.
type Engine struct {
	Providers []ProviderEntry

	// StagingDir holds fetched-but-not-yet-placed payloads: Restore
	// fetches each provider's payload into a fresh subdirectory of it and
	// then copies the file to dest. The payload is not extracted or
	// verified, and the copy into dest is not atomic.
	StagingDir string

	// LockPath, if set, is an advisory file lock that Store tries to take
	// for its duration, so two Engine instances across processes don't
	// race writing the same backing file-based provider. If the lock
	// cannot be taken, Store proceeds without it.
	LockPath string

	mu     sync.Mutex
	inFlight map[Key]*call
}

type call struct {
	done   chan struct{}
	result RestoreResult
	err    error
}

// Precheck asks every readable provider, in declaration order, whether
// key is present, stopping at the first hit. It never downloads a
// payload. A provider declared AccessWrite is skipped entirely: it is
// never asked whether it already holds a key it's only meant to receive.
func (e *Engine) Precheck(ctx context.Context, key Key) (bool, string, error) {
	for _, pe := range e.Providers {
		if !pe.Access.readable() {
			continue
		}
		ok, err := pe.Provider.Precheck(ctx, key)
		if err != nil {
			continue // a precheck failure on one provider must not block the others
		}
		if ok {
			return true, pe.Provider.Name(), nil
		}
	}
	return false, "", nil
}

// PrecheckAll runs Precheck for every action in actions, in declaration
// order, annotating each with the resulting vcgo.CacheStatus before the
// planner's fetch-or-build loop begins (spec.md §4.F "Precheck batching",
// §4.G step 1). keyOf derives the cache key from an action and is called
// for every action; each one ends up either vcgo.CacheStatusAvailable or
// vcgo.CacheStatusNotAvailable.
func (e *Engine) PrecheckAll(ctx context.Context, actions []*vcgo.InstallPlanAction, keyOf func(*vcgo.InstallPlanAction) Key) {
	for _, a := range actions {
		ok, _, err := e.Precheck(ctx, keyOf(a))
		if err != nil || !ok {
			a.CacheStatus = vcgo.CacheStatusNotAvailable
			continue
		}
		a.CacheStatus = vcgo.CacheStatusAvailable
	}
}

// Restore fetches key from the first provider that has it and places its
// payload at destDir, coalescing concurrent callers for the same key.
func (e *Engine) Restore(ctx context.Context, key Key, destDir string) (RestoreResult, error) {
	e.mu.Lock()
	if e.inFlight == nil {
		e.inFlight = make(map[Key]*call)
	}
	if c, ok := e.inFlight[key]; ok {
		e.mu.Unlock()
		<-c.done
		return c.result, c.err
	}
	c := &call{done: make(chan struct{})}
	e.inFlight[key] = c
	e.mu.Unlock()

	c.result, c.err = e.restoreOnce(ctx, key, destDir)
	close(c.done)

	e.mu.Lock()
	delete(e.inFlight, key)
	e.mu.Unlock()

	return c.result, c.err
}

func (e *Engine) restoreOnce(ctx context.Context, key Key, destDir string) (RestoreResult, error) {
	if err := os.MkdirAll(e.StagingDir, 0o755); err != nil {
		return RestoreResult{}, err
	}

	for _, pe := range e.Providers {
		if !pe.Access.readable() {
			continue
		}
		staged, err := os.MkdirTemp(e.StagingDir, "payload-*")
		if err != nil {
			return RestoreResult{}, err
		}
		payloadPath := filepath.Join(staged, "payload")

		f, err := os.Create(payloadPath)
		if err != nil {
			os.RemoveAll(staged)
			return RestoreResult{}, err
		}
		fetchErr := pe.Provider.Fetch(ctx, key, f)
		f.Close()
		if fetchErr != nil {
			os.RemoveAll(staged)
			if IsMiss(fetchErr) {
				continue
			}
			continue // a transport failure on one provider still falls through to the next
		}

		if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
			os.RemoveAll(staged)
			return RestoreResult{}, err
		}
		if err := shutil.CopyFile(payloadPath, destDir, false); err != nil {
			os.RemoveAll(staged)
			return RestoreResult{}, err
		}
		os.RemoveAll(staged)
		return RestoreResult{Status: StatusHit, Provider: pe.Provider.Name()}, nil
	}

	return RestoreResult{Status: StatusMiss}, nil
}

// Store uploads srcPath to every writable provider, in declaration order,
// under key. A provider declared AccessRead is skipped entirely, per
// spec.md §4.E: a read-only mirror never receives an upload. Per spec.md
// §4.F, a Store failure on any one provider is a vcgo.CacheWriteWarning,
// never a fatal error for the overall plan; Store returns the full set of
// such warnings rather than stopping at the first.
func (e *Engine) Store(ctx context.Context, key Key, srcPath string) []error {
	var lk *flock.Flock
	if e.LockPath != "" {
		lk = flock.NewFlock(e.LockPath)
		if err := lk.Lock(); err == nil {
			defer lk.Unlock()
		}
	}

	var warnings []error
	for _, pe := range e.Providers {
		if !pe.Access.writable() {
			continue
		}
		f, err := os.Open(srcPath)
		if err != nil {
			warnings = append(warnings, &vcgo.CacheWriteWarning{Provider: pe.Provider.Name(), Key: string(key), Err: err})
			continue
		}
		err = pe.Provider.Store(ctx, key, f)
		f.Close()
		if err != nil {
			warnings = append(warnings, &vcgo.CacheWriteWarning{Provider: pe.Provider.Name(), Key: string(key), Err: err})
		}
	}
	return warnings
}
