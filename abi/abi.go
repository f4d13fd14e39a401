// Package abi implements Component D: computing a package's ABI digest
// from every input capable of changing its binary output, grounded on the
// teacher's gps/hash.go section-header buffer technique.
package abi

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/vcgo-project/vcgo"
)

// Digest algorithm tags recognized by NewHasher.
const (
	AlgoSHA256 = "sha256"
	AlgoSHA512 = "sha512"
)

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case "", AlgoSHA256:
		return sha256.New(), nil
	case AlgoSHA512:
		return sha512.New(), nil
	default:
		return nil, errors.Errorf("unknown ABI hash algorithm %q", algo)
	}
}

// Input is one named contributor to a package's ABI, already reduced to a
// hex digest by its producer (HashPortTree, a caller-supplied compiler
// fingerprint, a dependency's PackageAbi, and so on).
type Input struct {
	Tag   string
	Value string
}

// HashPortTree walks dir (a port's source tree) and returns a single hex
// digest summarizing every regular file's path and content, suitable as
// one AbiEntry. The port's build-script files (port.cmake / portfile
// equivalents) are always included; this walk makes no attempt to distinguish "build logic" files
// from "patched source" files, since both change the resulting binary.
func HashPortTree(algo, dir string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	var paths []string
	err = godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			paths = append(paths, rel)
			return nil
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "walking port tree %s", dir)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		fh, err := newHash(algo)
		if err != nil {
			return "", err
		}
		f, err := os.Open(filepath.Join(dir, rel))
		if err != nil {
			return "", errors.Wrapf(err, "hashing port tree file %s", rel)
		}
		_, err = io.Copy(fh, f)
		f.Close()
		if err != nil {
			return "", errors.Wrapf(err, "hashing port tree file %s", rel)
		}
		fmt.Fprintf(h, "%s %s\n", rel, hex.EncodeToString(fh.Sum(nil)))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Hasher accumulates AbiEntry inputs and produces the final AbiInfo,
// mirroring the teacher's writeHashingInputs: every input is written under
// a constant section header, in a fixed and fully deterministic order, so
// the only thing that can change the final digest is the input data
// itself.
type Hasher struct {
	Algo string

	entries []vcgo.AbiEntry
}

// Add records one (tag, hex digest) contribution. Tags must be unique;
// Build sorts by tag so callers may add them in any order.
func (h *Hasher) Add(tag, hexDigest string) {
	h.entries = append(h.entries, vcgo.AbiEntry{Tag: tag, Value: hexDigest})
}

// AddPortTree hashes dir and records it under tag "port_tree".
func (h *Hasher) AddPortTree(dir string) error {
	d, err := HashPortTree(h.Algo, dir)
	if err != nil {
		return err
	}
	h.Add("port_tree", d)
	return nil
}

// AddDependencies records one entry per resolved dependency, each tagged
// "dep:<name>" and valued with that dependency's own PackageAbi, so any
// change to a dependency's binary output invalidates every package that
// links against it.
func (h *Hasher) AddDependencies(deps map[string]*vcgo.AbiInfo) {
	names := make([]string, 0, len(deps))
	for n := range deps {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		h.Add("dep:"+n, deps[n].PackageAbi)
	}
}

// AddFeatures records the selected feature set (sorted) as a single entry,
// since enabling or disabling a feature can change the binary produced.
func (h *Hasher) AddFeatures(features []string) {
	sorted := append([]string(nil), features...)
	sort.Strings(sorted)
	h.Add("features", strings.Join(sorted, ","))
}

// AddString records an arbitrary string input (triplet name, compiler
// fingerprint, cmake toolchain file digest, and so on) directly as the
// section's value rather than a hex digest, matching the teacher's
// "write the value, not a hash of the value" treatment of small inputs
// like analyzer name/version.
func (h *Hasher) AddString(tag, value string) {
	h.Add(tag, value)
}

// Build computes the final digest over every recorded entry, sorted by
// tag for determinism, and returns the full AbiInfo. Per spec.md §4.D, a
// HashError aborts the whole plan rather than publishing a partial ABI;
// Build itself cannot fail once every Add* call has succeeded, but callers
// that fail an Add* step should propagate a HashError instead of calling
// Build.
func (h *Hasher) Build() (*vcgo.AbiInfo, error) {
	hh, err := newHash(h.Algo)
	if err != nil {
		return nil, err
	}

	sorted := append([]vcgo.AbiEntry(nil), h.entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tag < sorted[j].Tag })

	for _, e := range sorted {
		fmt.Fprintf(hh, "%s %s\n", e.Tag, e.Value)
	}

	return &vcgo.AbiInfo{
		Entries:    sorted,
		PackageAbi: hex.EncodeToString(hh.Sum(nil)),
	}, nil
}

// CompilerInfo carries the compiler-identity and build-tool-version
// inputs spec.md §3/§4.D name as first-class ABI contributors: without
// them, two builds against different compilers or cmake releases would
// compute the same cache key and silently share a binary that isn't
// actually interchangeable.
type CompilerInfo struct {
	// TripletAbi is a hash of the triplet's own configuration plus the
	// host compiler identity block (path, version, target), matching
	// spec.md §3's "triplet_abi" entry.
	TripletAbi string

	// CMakeVersion is the exact version string of the build-driver tool.
	CMakeVersion string

	// PowerShell is the exact version string of the script-runner tool.
	// Left empty on non-Windows triplets: per SPEC_FULL.md's Open
	// Question decision, platform-conditional inputs are omitted rather
	// than hashed as a sentinel, so cross-platform ABIs genuinely diverge
	// only where the platform itself introduces a real input.
	PowerShell string

	// GDKHeader is a hash of the target's grdk.h console SDK header,
	// populated only on triplets that target that console platform.
	GDKHeader string
}

// ComputeAbi is the convenience entry point combining the common inputs of
// spec.md §4.D: a port's source tree, its selected feature set, its
// already-computed dependency ABIs, the target triplet, compiler/toolchain
// identity, and the fixed build-policy inputs (post_build_checks /
// ports.cmake equivalents) that apply to every package regardless of its
// own manifest.
func ComputeAbi(algo string, action *vcgo.InstallPlanAction, portDir string, depAbis map[string]*vcgo.AbiInfo, triplet vcgo.Triplet, compiler CompilerInfo, fixedInputs map[string]string) (*vcgo.AbiInfo, error) {
	h := &Hasher{Algo: algo}

	if err := h.AddPortTree(portDir); err != nil {
		return nil, &vcgo.HashError{Spec: action.Spec, Tag: "port_tree", Err: err}
	}
	h.AddFeatures(action.SelectedFeatures())
	h.AddDependencies(depAbis)
	h.AddString("triplet", string(triplet))
	h.AddString("version", action.Version.String())

	if compiler.TripletAbi != "" {
		h.AddString("triplet_abi", compiler.TripletAbi)
	}
	if compiler.CMakeVersion != "" {
		h.AddString("cmake", compiler.CMakeVersion)
	}
	// powershell and grdk.h are platform-conditional: a triplet that
	// never probes them (e.g. a Linux target) simply never contributes
	// these tags, rather than hashing an "N/A" sentinel in their place.
	if compiler.PowerShell != "" {
		h.AddString("powershell", compiler.PowerShell)
	}
	if compiler.GDKHeader != "" {
		h.AddString("grdk.h", compiler.GDKHeader)
	}

	keys := make([]string, 0, len(fixedInputs))
	for k := range fixedInputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.AddString(k, fixedInputs[k])
	}

	return h.Build()
}
