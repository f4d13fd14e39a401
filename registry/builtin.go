package registry

// BuiltinRegistry is a pinned snapshot of the well-known default port
// collection, identified by a baseline commit and queried through the same
// Git subprocess machinery as GitRegistry (spec.md §4.B). It exists as a
// distinct Kind so configuration can distinguish "the" default registry
// from an arbitrary user-configured Git registry, even though the
// mechanics are identical.
type BuiltinRegistry struct {
	*GitRegistry
}

// NewBuiltinRegistry pins remote at baselineCommit, caching clones under
// cacheDir.
func NewBuiltinRegistry(remote, baselineCommit, cacheDir string) *BuiltinRegistry {
	return &BuiltinRegistry{GitRegistry: &GitRegistry{
		Remote:      remote,
		BaselineRef: baselineCommit,
		CacheDir:    cacheDir,
	}}
}

var _ Registry = (*BuiltinRegistry)(nil)
