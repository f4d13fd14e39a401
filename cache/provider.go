// Package cache implements Components E and F: the binary cache provider
// interface, its concrete backends (local files, HTTP template, Azure
// Blob, Google Cloud Storage, NuGet feed, and external script), and the
// engine that drives precheck/fetch/store across all configured providers
// in declaration order, grounded on the teacher's source_manager.go
// futures-and-coalescing pattern.
package cache

import (
	"context"
	"io"
)

// Key identifies one cache entry: a package's ABI digest is the natural
// choice, but the engine treats it as opaque.
type Key string

// Provider is one binary cache backend. All three operations are
// independent of each other; the Engine is responsible for sequencing
// them in declaration order and for at-most-once-fetch coalescing.
type Provider interface {
	// Name identifies this provider in diagnostics and in CacheStatus
	// reporting.
	Name() string

	// Precheck reports, without transferring any payload, whether key is
	// present in this provider. Implementations that cannot answer
	// cheaply may perform the equivalent of a HEAD request; they must
	// never download the full payload just to answer Precheck.
	Precheck(ctx context.Context, key Key) (bool, error)

	// Fetch streams key's payload into w. A miss is reported as an error
	// satisfying IsMiss.
	Fetch(ctx context.Context, key Key, w io.Writer) error

	// Store uploads r's contents under key. Store failures are always
	// non-fatal to the overall plan (spec.md §4.F): callers should wrap
	// the returned error in a vcgo.CacheWriteWarning and continue.
	Store(ctx context.Context, key Key, r io.Reader) error
}

// AccessMode gates which of Engine.Restore/Engine.Store a configured
// provider participates in, per spec.md §4.E's read/write/read-write
// provider declarations.
type AccessMode int

const (
	// AccessReadWrite is the default: the provider is consulted by both
	// Restore and Store.
	AccessReadWrite AccessMode = iota
	// AccessRead restricts the provider to Restore (and Precheck); Store
	// silently skips it.
	AccessRead
	// AccessWrite restricts the provider to Store; Restore (and
	// Precheck) silently skip it.
	AccessWrite
)

func (m AccessMode) readable() bool { return m != AccessWrite }
func (m AccessMode) writable() bool { return m != AccessRead }

// missError marks a Fetch failure as "not present" rather than a genuine
// transport/backend error. The Engine falls through to the next provider
// on either kind; IsMiss lets a caller tell them apart.
type missError struct{ msg string }

func (e *missError) Error() string { return e.msg }

// ErrMiss constructs a Fetch error indicating key is simply not present in
// the provider, distinguishing a clean miss from a transport failure.
func ErrMiss(msg string) error { return &missError{msg: msg} }

// IsMiss reports whether err (as returned by Provider.Fetch) represents a
// clean cache miss rather than a backend failure.
func IsMiss(err error) bool {
	_, ok := err.(*missError)
	return ok
}
