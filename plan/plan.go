// Package plan implements Component G: driving a resolved vcgo.ActionPlan
// through precheck, fetch-or-build, and store, keeping a per-action result
// summary, grounded on the teacher's SafeWriter's transactional,
// all-actions-reported-together style (txn_writer.go) even though the
// underlying operation here is cache/build rather than manifest/lock
// writes.
package plan

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
	"github.com/vcgo-project/vcgo/cache"
)

// ActionStatus is the outcome recorded for one InstallPlanAction.
type ActionStatus int

const (
	// StatusCacheHit means the engine restored the action's payload from
	// a binary cache provider without building anything.
	StatusCacheHit ActionStatus = iota
	// StatusBuilt means the external builder ran and produced the
	// package, which was then stored to the configured cache providers.
	StatusBuilt
	// StatusFailed means the build itself failed.
	StatusFailed
	// StatusCascaded means a dependency failed, so this action was never
	// attempted.
	StatusCascaded
	// StatusExcluded means the caller asked to skip this action (e.g. a
	// "--exclude" flag), distinct from a build failure.
	StatusExcluded
)

func (s ActionStatus) String() string {
	switch s {
	case StatusCacheHit:
		return "cache-hit"
	case StatusBuilt:
		return "built"
	case StatusFailed:
		return "failed"
	case StatusCascaded:
		return "cascaded"
	case StatusExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Result records what happened for one install action.
type Result struct {
	Spec     vcgo.PackageSpec
	Status   ActionStatus
	Provider string // cache provider name, populated only for StatusCacheHit
	Err      error

	// StoreWarnings holds non-fatal vcgo.CacheWriteWarning entries from
	// storing a freshly built payload; a non-empty slice never changes
	// Status away from StatusBuilt.
	StoreWarnings []error
}

// Builder runs the actual build-from-source step for one action, writing
// its resulting payload to destPath so the planner can store it in the
// configured cache providers.
type Builder interface {
	Build(ctx context.Context, action *vcgo.InstallPlanAction, destPath string) error
}

// Summary is the full outcome of executing a plan.
type Summary struct {
	Results []Result
}

// Failed reports whether any action in the summary ended in StatusFailed.
func (s *Summary) Failed() bool {
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Planner drives an ActionPlan through the cache engine and an external
// Builder.
type Planner struct {
	Cache   *cache.Engine
	Builder Builder

	// KeepGoing mirrors spec.md §4.G: when true, a failed action doesn't
	// abort the run, it cascades StatusCascaded to every action that
	// (transitively) depends on it while unrelated actions still proceed.
	KeepGoing bool

	// StagingDir is not read by Execute: the Builder writes its payload
	// straight to the action's install path, and Store reads it from there.
	StagingDir string

	// AbiKeyOf resolves an action to its cache key (its ABI digest).
	AbiKeyOf func(*vcgo.InstallPlanAction) cache.Key
}

// Execute runs every action in actionPlan.InstallActions, in their given
// (dependency-first) order, per spec.md §4.G: precheck_all up front, then
// per-action fetch-or-build-then-store.
func (p *Planner) Execute(ctx context.Context, actionPlan *vcgo.ActionPlan, installDir func(vcgo.PackageSpec) string) (*Summary, error) {
	failed := make(map[vcgo.PackageSpec]bool)
	summary := &Summary{}

	if p.Cache != nil {
		p.Cache.PrecheckAll(ctx, actionPlan.InstallActions, p.AbiKeyOf)
	}

	for _, action := range actionPlan.InstallActions {
		if p.cascadeFailed(action, actionPlan, failed) {
			failed[action.Spec] = true
			summary.Results = append(summary.Results, Result{Spec: action.Spec, Status: StatusCascaded})
			continue
		}

		res := p.executeOne(ctx, action, installDir(action.Spec))
		summary.Results = append(summary.Results, res)
		if res.Status == StatusFailed {
			failed[action.Spec] = true
			if !p.KeepGoing {
				return summary, errors.Wrapf(res.Err, "build of %s failed", action.Spec)
			}
		}
	}
	return summary, nil
}

// cascadeFailed reports whether action has any dependency (per its
// FeatureDependencies edges) that already failed or cascaded.
func (p *Planner) cascadeFailed(action *vcgo.InstallPlanAction, _ *vcgo.ActionPlan, failed map[vcgo.PackageSpec]bool) bool {
	for _, edges := range action.FeatureDependencies {
		for _, e := range edges {
			if failed[e.Spec] {
				return true
			}
		}
	}
	return false
}

func (p *Planner) executeOne(ctx context.Context, action *vcgo.InstallPlanAction, destPath string) Result {
	key := p.AbiKeyOf(action)

	// The bulk precheck pass already tells us whether any provider holds
	// this key; an action it marked definitively absent skips straight
	// to build instead of repeating the lookup inline.
	if p.Cache != nil && action.CacheStatus != vcgo.CacheStatusNotAvailable {
		restoreRes, err := p.Cache.Restore(ctx, key, destPath)
		if err == nil && restoreRes.Status == cache.StatusHit {
			return Result{Spec: action.Spec, Status: StatusCacheHit, Provider: restoreRes.Provider}
		}
	}

	if err := p.Builder.Build(ctx, action, destPath); err != nil {
		return Result{Spec: action.Spec, Status: StatusFailed, Err: &vcgo.BuildFailed{Spec: action.Spec, Err: err}}
	}

	var storeWarnings []error
	if p.Cache != nil {
		storeWarnings = p.Cache.Store(ctx, key, destPath)
	}

	return Result{Spec: action.Spec, Status: StatusBuilt, StoreWarnings: storeWarnings}
}
