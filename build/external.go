// Package build implements the external-builder collaborator named in
// spec.md §6 ("the user-configured builder command"): the plan.Builder
// that actually produces an installed tree for one action, invoked
// exclusively through internal/subprocrun per SPEC_FULL.md §4.L so its
// cancellation and output capture are uniform with every other external
// collaborator.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
	"github.com/vcgo-project/vcgo/internal/subprocrun"
)

// External runs Exe with Args plus a fixed trailing argv of
// (port dir, install dir, triplet) for every action, deriving the
// environment from the action and triplet per spec.md §4.G step 2.
// PortDir resolves a spec to the source tree the registry materialized
// for it.
type External struct {
	Exe  string
	Args []string

	PortDir func(spec vcgo.PackageSpec, version vcgo.Version) (string, error)
}

var _ interface {
	Build(ctx context.Context, action *vcgo.InstallPlanAction, destPath string) error
} = (*External)(nil)

// Build implements plan.Builder.
func (e *External) Build(ctx context.Context, action *vcgo.InstallPlanAction, destPath string) error {
	portDir, err := e.PortDir(action.Spec, action.Version)
	if err != nil {
		return errors.Wrapf(err, "locating port tree for %s", action.Spec)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errors.Wrapf(err, "preparing install directory for %s", action.Spec)
	}

	args := append(append([]string{}, e.Args...), portDir, destPath, string(action.Spec.Triplet))
	env := buildEnv(action)

	res, err := subprocrun.Run(ctx, e.Exe, args, subprocrun.Options{Env: env})
	if err != nil {
		return &vcgo.BuildFailed{Spec: action.Spec, ExitCode: res.ExitCode, Err: errors.Errorf("%s: %s", err, res.Stderr)}
	}
	if res.ExitCode != 0 {
		return &vcgo.BuildFailed{Spec: action.Spec, ExitCode: res.ExitCode, Err: errors.New(string(res.Stderr))}
	}
	return nil
}

func buildEnv(action *vcgo.InstallPlanAction) []string {
	env := os.Environ()
	env = append(env,
		fmt.Sprintf("VCGO_PACKAGE_NAME=%s", action.Spec.Name),
		fmt.Sprintf("VCGO_PACKAGE_VERSION=%s", action.Version.String()),
		fmt.Sprintf("VCGO_TARGET_TRIPLET=%s", action.Spec.Triplet),
		fmt.Sprintf("VCGO_FEATURES=%s", joinFeatures(action.SelectedFeatures())),
	)
	return env
}

func joinFeatures(features []string) string {
	out := ""
	for i, f := range features {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}
