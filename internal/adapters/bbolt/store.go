// Package bbolt implements the indexed exact-line strategy using bbolt
// (embedded B+ tree). Every distinct trimmed line of the target is stored as
// a key in the "lines" bucket, so a query is a single key lookup and the
// snapshot does not have to live in process memory. The index is built once
// at startup and reused across restarts while the target is unchanged.
package bbolt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/corey/linecheck/internal/logging"
	"github.com/corey/linecheck/internal/ports"
	bolt "go.etcd.io/bbolt"
)

// Bucket keys
var (
	bucketLines = []byte("lines")
	bucketMeta  = []byte("meta")
	keySource   = []byte("source")
	keyStamp    = []byte("stamp")
	present     = []byte{1}
)

// maxLineBytes bounds a single line read from the target.
const maxLineBytes = 1024 * 1024

// Index implements ports.Strategy, ports.Reloader and ports.Closer.
type Index struct {
	target ports.Target
	db     *bolt.DB
	log    *slog.Logger

	mu    sync.Mutex // serializes Reload
	stamp sourceStamp
}

// NewIndex opens (or creates) a bbolt database at dbPath and makes sure it
// reflects the current target content.
func NewIndex(ctx context.Context, target ports.Target, dbPath string, logger *slog.Logger) (*Index, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	idx := &Index{
		target: target,
		db:     db,
		log:    logging.OrDiscard(logger).With("strategy", string(ports.KindIndexed)),
	}
	if err := idx.Reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Kind implements ports.Strategy.
func (x *Index) Kind() ports.Kind { return ports.KindIndexed }

// Exists implements ports.Strategy.
func (x *Index) Exists(_ context.Context, query string) bool {
	q := strings.TrimSpace(query)
	if q == "" || len(q) > bolt.MaxKeySize {
		return false
	}
	found := false
	err := x.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLines)
		if b == nil {
			return nil
		}
		found = b.Get([]byte(q)) != nil
		return nil
	})
	if err != nil {
		x.log.Error("lookup failed", "err", err)
		return false
	}
	return found
}

// LineCount returns the number of distinct lines in the index.
func (x *Index) LineCount() uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.stamp.LineCount
}

// Reload rebuilds the index if the target changed since the last build.
// A missing target empties the index.
func (x *Index) Reload(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	info, err := os.Stat(x.target.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			x.log.Warn("target missing, index is empty", "path", x.target.Path)
			return x.clearLocked()
		}
		return fmt.Errorf("stat target: %w", err)
	}
	want := sourceStamp{Size: info.Size(), ModTime: info.ModTime().UnixNano()}

	stored, ok, err := x.storedStamp()
	if err != nil {
		x.log.Warn("discarding unreadable index stamp", "err", err)
	}
	if ok && stored.sameSource(want) {
		x.stamp = stored
		x.log.Debug("index up to date", "path", x.target.Path, "lines", stored.LineCount)
		return nil
	}
	return x.rebuildLocked(ctx, want)
}

// Close closes the underlying bbolt database.
func (x *Index) Close() error {
	return x.db.Close()
}

// storedStamp returns the stamp of the last build for this target path.
func (x *Index) storedStamp() (sourceStamp, bool, error) {
	var raw []byte
	var source string
	err := x.db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketMeta)
		if mb == nil {
			return nil
		}
		source = string(mb.Get(keySource))
		// Copy bytes out of the transaction (bbolt slices are only valid within tx)
		if v := mb.Get(keyStamp); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil || raw == nil || source != x.target.Path {
		return sourceStamp{}, false, err
	}
	s, err := decodeStamp(raw)
	if err != nil {
		return sourceStamp{}, false, err
	}
	return s, true, nil
}

func (x *Index) rebuildLocked(ctx context.Context, stamp sourceStamp) error {
	start := time.Now()
	f, err := os.Open(x.target.Path)
	if err != nil {
		return fmt.Errorf("open target: %w", err)
	}
	defer f.Close()

	var skipped int
	err = x.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketLines); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		lb, err := tx.CreateBucket(bucketLines)
		if err != nil {
			return err
		}

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		var n int
		var distinct uint64
		for sc.Scan() {
			n++
			if n%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if len(line) > bolt.MaxKeySize {
				skipped++
				continue
			}
			key := []byte(line)
			if lb.Get(key) != nil {
				continue
			}
			if err := lb.Put(key, present); err != nil {
				return err
			}
			distinct++
		}
		if err := sc.Err(); err != nil {
			return err
		}

		stamp.LineCount = distinct
		mb, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if err := mb.Put(keySource, []byte(x.target.Path)); err != nil {
			return err
		}
		return mb.Put(keyStamp, encodeStamp(stamp))
	})
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	x.stamp = stamp
	x.log.Info("index built",
		"path", x.target.Path,
		"lines", stamp.LineCount,
		"skipped", skipped,
		"elapsed", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// clearLocked drops all indexed lines and the stamp.
func (x *Index) clearLocked() error {
	err := x.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketLines, bucketMeta} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	x.stamp = sourceStamp{}
	return nil
}
