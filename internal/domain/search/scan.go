package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/corey/linecheck/internal/logging"
	"github.com/corey/linecheck/internal/ports"
)

// Scan reports whether the query occurs as a substring of any line. The
// file is read line by line on every call and the scan stops at the first
// hit. Note this is containment, not exact-line matching: "apple" is found
// in a file holding "applesauce".
type Scan struct {
	target ports.Target
	log    *slog.Logger
}

// NewScan creates a sequential substring strategy for target.
func NewScan(target ports.Target, logger *slog.Logger) *Scan {
	return &Scan{
		target: target,
		log:    logging.OrDiscard(logger).With("strategy", string(ports.KindScan)),
	}
}

// Kind implements ports.Strategy.
func (s *Scan) Kind() ports.Kind { return ports.KindScan }

// Exists implements ports.Strategy.
func (s *Scan) Exists(ctx context.Context, query string) bool {
	q := normalize(query)
	if q == "" {
		return false
	}
	found := false
	err := forEachLine(s.target.Path, func(line string) bool {
		if strings.Contains(line, q) {
			found = true
			return false
		}
		return ctx.Err() == nil
	})
	if err != nil {
		if !isMissing(err) {
			s.log.Error("search failed", "path", s.target.Path, "err", err)
		}
		return false
	}
	return found
}
