package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corey/linecheck/internal/logging"
	"github.com/corey/linecheck/internal/ports"
)

// Snapshot answers exact-line queries from a set of trimmed lines loaded
// once. Later edits to the file are not observed until Reload.
type Snapshot struct {
	target ports.Target
	log    *slog.Logger

	mu       sync.RWMutex
	lines    map[string]struct{}
	loadedAt time.Time
}

// NewSnapshot loads the target into memory. A missing target yields an
// empty snapshot; any other read failure is returned.
func NewSnapshot(ctx context.Context, target ports.Target, logger *slog.Logger) (*Snapshot, error) {
	s := &Snapshot{
		target: target,
		log:    logging.OrDiscard(logger).With("strategy", string(ports.KindSnapshot)),
		lines:  map[string]struct{}{},
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Kind implements ports.Strategy.
func (s *Snapshot) Kind() ports.Kind { return ports.KindSnapshot }

// Exists implements ports.Strategy.
func (s *Snapshot) Exists(_ context.Context, query string) bool {
	q := normalize(query)
	if q == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.lines[q]
	return ok
}

// Reload re-reads the target and swaps the snapshot. On failure the
// previous snapshot stays in place.
func (s *Snapshot) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lines := make(map[string]struct{})
	err := forEachLine(s.target.Path, func(line string) bool {
		if l := normalize(line); l != "" {
			lines[l] = struct{}{}
		}
		return true
	})
	if err != nil && !isMissing(err) {
		return fmt.Errorf("load snapshot %s: %w", s.target.Path, err)
	}
	if isMissing(err) {
		s.log.Warn("target missing, snapshot is empty", "path", s.target.Path)
	}

	s.mu.Lock()
	s.lines = lines
	s.loadedAt = time.Now()
	s.mu.Unlock()

	s.log.Debug("snapshot loaded", "path", s.target.Path, "lines", len(lines))
	return nil
}

// Len returns the number of distinct non-blank lines in the snapshot.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// LoadedAt returns when the snapshot was last (re)loaded.
func (s *Snapshot) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
