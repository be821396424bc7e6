// Package ports defines the interfaces (contracts) that adapters must implement.
// These are the boundaries of the hexagonal architecture. The connection
// handler depends only on these interfaces, never on concrete strategies.
package ports

import "context"

// Kind names a search strategy. It is resolved once at startup from
// configuration and never changes for the lifetime of the process.
type Kind string

const (
	KindSnapshot Kind = "snapshot" // exact line, in-memory set loaded once
	KindAnchored Kind = "anchored" // exact line, anchored regexp over fresh file content
	KindContains Kind = "contains" // raw byte containment over a fresh mmap of the file
	KindScan     Kind = "scan"     // substring of some line, fresh line-by-line read
	KindIndexed  Kind = "indexed"  // exact line, on-disk bbolt index built once
)

// Target is the file being queried plus its cache-freshness policy.
// It is built once at startup and shared read-only by every handler.
type Target struct {
	Path string

	// RereadOnQuery selects fresh-per-query reading over a cached snapshot
	// for exact-line matching.
	RereadOnQuery bool
}

// Strategy decides whether a query exists in the target file.
//
// Fail-closed contract: Exists never reports an error. Any failure inside
// the strategy (I/O, pattern compile, index corruption) is logged by the
// implementation and yields false. A missing or empty target file, and an
// empty query after trimming, also yield false. Implementations must not
// mutate the target and must be safe for concurrent use.
type Strategy interface {
	Kind() Kind
	Exists(ctx context.Context, query string) bool
}

// Reloader is implemented by snapshot-backed strategies whose cached view
// of the target can be rebuilt on demand (e.g. after a file change).
type Reloader interface {
	Reload(ctx context.Context) error
}

// Closer is implemented by strategies holding resources (open databases).
type Closer interface {
	Close() error
}
