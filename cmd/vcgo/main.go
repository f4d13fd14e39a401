// Command vcgo is the thin CLI entrypoint wiring the configuration
// loader, registry providers, resolver, ABI hasher, binary cache engine,
// and execution planner together, following the teacher's cmd/dep/main.go
// shape of a Config struct plus a Run method returning an exit code.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/vcgo-project/vcgo"
	"github.com/vcgo-project/vcgo/abi"
	"github.com/vcgo-project/vcgo/build"
	"github.com/vcgo-project/vcgo/cache"
	vcgoconfig "github.com/vcgo-project/vcgo/config"
	"github.com/vcgo-project/vcgo/internal/redact"
	"github.com/vcgo-project/vcgo/internal/subprocrun"
	vcgolog "github.com/vcgo-project/vcgo/log"
	"github.com/vcgo-project/vcgo/plan"
	"github.com/vcgo-project/vcgo/registry"
	"github.com/vcgo-project/vcgo/resolve"
	"github.com/vcgo-project/vcgo/sbom"
	"github.com/vcgo-project/vcgo/vars"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	manifestDir string
	cacheRoot   string
	triplet     string
	hostTriplet string
	builderExe  string
	keepGoing   bool
	writeSBOM   bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "vcgo",
		Short: "a triplet-aware, source-based native package manager",
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "vcgo-configuration.toml", "path to the top-level configuration document")
	root.PersistentFlags().StringVar(&opts.manifestDir, "manifest-dir", ".", "directory containing the project's vcgo.toml")
	root.PersistentFlags().StringVar(&opts.cacheRoot, "cache-root", filepath.Join(os.TempDir(), "vcgo-cache"), "local binary cache directory")
	root.PersistentFlags().StringVar(&opts.triplet, "triplet", "x64-linux", "target triplet")
	root.PersistentFlags().StringVar(&opts.hostTriplet, "host-triplet", "x64-linux", "host triplet for host-only dependencies")
	root.PersistentFlags().StringVar(&opts.builderExe, "builder", "vcgo-build", "external builder command invoked for each cache-miss action")
	root.PersistentFlags().BoolVar(&opts.keepGoing, "keep-going", false, "continue building unrelated actions after a failure")
	root.PersistentFlags().BoolVar(&opts.writeSBOM, "x-write-sbom", true, "emit an SPDX SBOM document alongside a successful install")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug-level logging")

	root.AddCommand(newInstallCmd(opts))
	return root
}

func (o *options) logger() *vcgolog.Logger {
	level := zapcore.InfoLevel
	if o.verbose {
		level = zapcore.DebugLevel
	}
	return vcgolog.New(os.Stderr, level, "cli")
}

func (o *options) loadConfig() (*vcgoconfig.Config, error) {
	f, err := os.Open(o.configPath)
	if os.IsNotExist(err) {
		return &vcgoconfig.Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return vcgoconfig.Parse(f)
}

func buildProviderSet(cfg *vcgoconfig.Config) (*registry.ProviderSet, error) {
	ps := &registry.ProviderSet{}

	toRegistry := func(d vcgoconfig.RegistryDecl, cacheDir string) (registry.Registry, error) {
		switch registry.Kind(d.Kind) {
		case registry.KindGit:
			return &registry.GitRegistry{Remote: d.Location, BaselineRef: d.Baseline, CacheDir: cacheDir}, nil
		case registry.KindFilesystem:
			return &registry.FilesystemRegistry{Root: d.Location}, nil
		case registry.KindBuiltin:
			return registry.NewBuiltinRegistry(d.Location, d.Baseline, cacheDir), nil
		default:
			return nil, &vcgo.ConfigError{Path: "registries[].kind", Err: fmt.Errorf("unsupported registry kind %q", d.Kind)}
		}
	}

	cloneCache := filepath.Join(os.TempDir(), "vcgo-registry-clones")

	if cfg.DefaultRegistry.Kind != "" {
		r, err := toRegistry(cfg.DefaultRegistry, cloneCache)
		if err != nil {
			return nil, err
		}
		ps.DefaultRegistry = r
	}
	for _, d := range cfg.Registries {
		r, err := toRegistry(d, cloneCache)
		if err != nil {
			return nil, err
		}
		ps.Named = append(ps.Named, registry.NamedRegistry{Kind: registry.Kind(d.Kind), Location: d.Location, Registry: r, Packages: d.Packages})
	}
	if len(cfg.OverlayPorts) > 0 {
		ps.Overlays = append(ps.Overlays, &registry.OverlayRegistry{Dirs: cfg.OverlayPorts})
	}
	if len(cfg.Overrides) > 0 {
		overrides, err := vcgoconfig.ParseOverrides(cfg.Overrides, func(string) vcgo.Scheme { return vcgo.SchemeRelaxed })
		if err != nil {
			return nil, err
		}
		ps.Override = &registry.OverrideRegistry{Overrides: overrides, Delegate: ps.DefaultRegistry}
	}
	return ps, nil
}

// accessModeOf translates a CacheProviderDecl's "access" string into the
// cache.AccessMode gating which of Precheck/Restore/Store a provider
// participates in. An empty string (the field's zero value) defaults to
// read-write, matching config.Config.validate's accepted values.
func accessModeOf(s string) cache.AccessMode {
	switch s {
	case "read":
		return cache.AccessRead
	case "write":
		return cache.AccessWrite
	default:
		return cache.AccessReadWrite
	}
}

func buildCacheEngine(cfg *vcgoconfig.Config, cacheRoot string, secrets *redact.Registry) *cache.Engine {
	var providers []cache.ProviderEntry
	for _, bc := range cfg.BinaryCaches {
		access := accessModeOf(bc.Access)
		switch bc.Kind {
		case "files":
			providers = append(providers, cache.ProviderEntry{Provider: &cache.FilesProvider{Root: bc.Source}, Access: access})
		case "http":
			providers = append(providers, cache.ProviderEntry{Provider: cache.NewHTTPProvider(bc.Source, secrets), Access: access})
		case "azblob":
			providers = append(providers, cache.ProviderEntry{Provider: cache.NewAzBlobProvider(bc.Source, secrets), Access: access})
		case "gcs":
			providers = append(providers, cache.ProviderEntry{Provider: cache.NewGCSProvider(bc.Source, secrets), Access: access})
		case "nuget":
			providers = append(providers, cache.ProviderEntry{Provider: &cache.NuGetProvider{Exe: "nuget", Source: bc.Source}, Access: access})
		case "script":
			providers = append(providers, cache.ProviderEntry{Provider: &cache.ScriptProvider{PrecheckCmd: bc.PrecheckCmd, FetchCmd: bc.FetchCmd, StoreCmd: bc.StoreCmd}, Access: access})
		}
	}
	// The local files cache is always present as the innermost layer,
	// per spec.md §4.E's "at least a local directory cache" baseline.
	providers = append([]cache.ProviderEntry{{Provider: &cache.FilesProvider{Root: cacheRoot}}}, providers...)

	return &cache.Engine{
		Providers:  providers,
		StagingDir: filepath.Join(cacheRoot, "tmp", fmt.Sprintf("%d-%s", os.Getpid(), uuid.NewString())),
		LockPath:   filepath.Join(cacheRoot, ".lock"),
	}
}

// isWindowsLikeTriplet reports whether triplet targets a platform whose ABI
// depends on powershell/grdk.h inputs (Windows, UWP, or a GDK console
// target), matching spec.md §4.D's platform-conditional ABI inputs.
func isWindowsLikeTriplet(triplet vcgo.Triplet) bool {
	s := string(triplet)
	return strings.Contains(s, "windows") || strings.Contains(s, "uwp") || strings.Contains(s, "xbox")
}

// probeCompilerInfo gathers the compiler-identity and build-tool-version
// inputs spec.md §3/§4.D require as ABI contributors: the external builder
// is asked for its compiler identity block (path, version, target triple),
// which is hashed into triplet_abi, and cmake's own version is read
// directly. powershell is probed only for a Windows-like triplet.
// GDKHeader is never set here, so no ABI computed by the CLI carries a
// grdk.h entry.
func probeCompilerInfo(ctx context.Context, opts *options, triplet vcgo.Triplet) (abi.CompilerInfo, error) {
	var info abi.CompilerInfo

	identity, err := subprocrun.Run(ctx, opts.builderExe, []string{"--print-compiler-identity", string(triplet)}, subprocrun.Options{})
	if err != nil {
		return info, fmt.Errorf("probing compiler identity for %s: %w", triplet, err)
	}
	h := sha256.New()
	h.Write(identity.Stdout)
	info.TripletAbi = hex.EncodeToString(h.Sum(nil))

	cmakeVer, err := subprocrun.Run(ctx, "cmake", []string{"--version"}, subprocrun.Options{})
	if err != nil {
		return info, fmt.Errorf("probing cmake version: %w", err)
	}
	info.CMakeVersion = strings.TrimSpace(strings.SplitN(string(cmakeVer.Stdout), "\n", 2)[0])

	if isWindowsLikeTriplet(triplet) {
		psVer, err := subprocrun.Run(ctx, "powershell", []string{"-NoProfile", "-Command", "$PSVersionTable.PSVersion.ToString()"}, subprocrun.Options{})
		if err != nil {
			return info, fmt.Errorf("probing powershell version for %s: %w", triplet, err)
		}
		info.PowerShell = strings.TrimSpace(string(psVer.Stdout))
	}

	return info, nil
}

func newInstallCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "install [ports...]",
		Short: "resolve and build the project's dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), opts, args)
		},
	}
}

func runInstall(ctx context.Context, opts *options, extraPorts []string) error {
	log := opts.logger()
	defer log.Sync()

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	manifestPath := filepath.Join(opts.manifestDir, "vcgo.toml")
	mf, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("opening project manifest %s: %w", manifestPath, err)
	}
	scf, err := registry.ParseManifest(mf)
	mf.Close()
	if err != nil {
		return err
	}

	secrets := &redact.Registry{}
	providerSet, err := buildProviderSet(cfg)
	if err != nil {
		return err
	}

	triplet := vcgo.Triplet(opts.triplet)
	topSpec := vcgo.PackageSpec{Name: scf.Core.Name, Triplet: triplet}
	deps := append([]vcgo.Dependency(nil), scf.Core.Dependencies...)
	for _, p := range extraPorts {
		deps = append(deps, vcgo.Dependency{Name: p})
	}

	varsProvider := &vars.Provider{Builder: &vars.ExternalBuilder{Exe: opts.builderExe, Args: []string{"--print-triplet-vars"}}}

	resolver := &resolve.Resolver{
		Baseline:    providerSet,
		Versioned:   providerSet,
		Overlay:     nil,
		VarProvider: varsProvider,
		HostTriplet: vcgo.Triplet(opts.hostTriplet),
	}

	log.Infof("resolving dependencies for %s", topSpec)
	actionPlan, err := resolver.Resolve(ctx, topSpec, deps, vcgo.PolicyWarn)
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}
	for _, d := range actionPlan.UnsupportedFeatures {
		log.Warnf("unsupported feature %s on %s: %s", d.Feature, d.Spec, d.Expr)
	}

	fixedInputs := map[string]string{
		"ports_cmake":        "fixed-ports-cmake-digest",
		"post_build_checks":  "fixed-post-build-checks-digest",
	}
	abiBySpec := make(map[vcgo.PackageSpec]*vcgo.AbiInfo)
	compilerInfos := make(map[vcgo.Triplet]abi.CompilerInfo)
	for _, action := range actionPlan.InstallActions {
		portDir := action.Spec.Name
		if action.Manifest != nil {
			portDir = action.Manifest.SourceDir
		}
		ci, ok := compilerInfos[action.Spec.Triplet]
		if !ok {
			var err error
			ci, err = probeCompilerInfo(ctx, opts, action.Spec.Triplet)
			if err != nil {
				return err
			}
			compilerInfos[action.Spec.Triplet] = ci
		}
		depAbis := make(map[string]*vcgo.AbiInfo)
		for _, edges := range action.FeatureDependencies {
			for _, e := range edges {
				if d, ok := abiBySpec[e.Spec]; ok {
					depAbis[e.Spec.Name] = d
				}
			}
		}
		info, err := abi.ComputeAbi(abi.AlgoSHA256, action, portDir, depAbis, action.Spec.Triplet, ci, fixedInputs)
		if err != nil {
			return err
		}
		action.Abi = info
		abiBySpec[action.Spec] = info
	}

	engine := buildCacheEngine(cfg, opts.cacheRoot, secrets)
	builder := &build.External{
		Exe: opts.builderExe,
		PortDir: func(spec vcgo.PackageSpec, version vcgo.Version) (string, error) {
			for _, a := range actionPlan.InstallActions {
				if a.Spec == spec && a.Manifest != nil {
					return a.Manifest.SourceDir, nil
				}
			}
			return "", fmt.Errorf("no resolved manifest for %s", spec)
		},
	}

	planner := &plan.Planner{
		Cache:     engine,
		Builder:   builder,
		KeepGoing: opts.keepGoing,
		AbiKeyOf:  func(a *vcgo.InstallPlanAction) cache.Key { return cache.Key(a.Abi.PackageAbi) },
	}

	installRoot := filepath.Join(opts.manifestDir, "vcgo_installed", opts.triplet)
	summary, err := planner.Execute(ctx, actionPlan, func(spec vcgo.PackageSpec) string {
		return filepath.Join(installRoot, spec.Name)
	})
	if err != nil {
		return err
	}

	for _, r := range summary.Results {
		log.Infof("%s: %s", r.Spec, r.Status)
		for _, w := range r.StoreWarnings {
			log.Warnf("%s", w)
		}
	}

	if opts.writeSBOM {
		doc := sbom.BuildDocument(actionPlan, scf.Core.Name, "urn:vcgo:"+scf.Core.Name, "1970-01-01T00:00:00Z", "dev")
		sbomPath := filepath.Join(installRoot, "vcgo.spdx.json")
		if err := os.MkdirAll(filepath.Dir(sbomPath), 0o755); err != nil {
			log.Warnf("could not create directory for SBOM: %s", err)
		} else if f, err := os.Create(sbomPath); err != nil {
			log.Warnf("could not write SBOM: %s", err)
		} else {
			defer f.Close()
			if err := sbom.Write(f, doc); err != nil {
				log.Warnf("could not encode SBOM: %s", err)
			}
		}
	}

	if summary.Failed() {
		return fmt.Errorf("one or more actions failed")
	}
	return nil
}
