package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corey/linecheck/internal/adapters/bbolt"
	"github.com/corey/linecheck/internal/adapters/mmap"
	"github.com/corey/linecheck/internal/config"
	"github.com/corey/linecheck/internal/domain/search"
	"github.com/corey/linecheck/internal/ports"
)

// Resolution is the strategy chosen for a match mode and reread flag.
type Resolution struct {
	Kind ports.Kind
	// FlagIgnored is set when the mode is always fresh and the reread flag
	// asked for a snapshot.
	FlagIgnored bool
}

// ResolveKind maps the configured match mode and reread flag to a strategy.
//
//	exact     + reread=false → snapshot
//	exact     + reread=true  → anchored
//	substring                → scan (always fresh)
//	contains                 → contains (always fresh)
//	indexed   + reread=false → indexed
//	indexed   + reread=true  → error
func ResolveKind(match string, rereadOnQuery bool) (Resolution, error) {
	switch match {
	case config.MatchExact, "":
		if rereadOnQuery {
			return Resolution{Kind: ports.KindAnchored}, nil
		}
		return Resolution{Kind: ports.KindSnapshot}, nil
	case config.MatchSubstring:
		return Resolution{Kind: ports.KindScan, FlagIgnored: !rereadOnQuery}, nil
	case config.MatchContains:
		return Resolution{Kind: ports.KindContains, FlagIgnored: !rereadOnQuery}, nil
	case config.MatchIndexed:
		if rereadOnQuery {
			return Resolution{}, &config.Error{Field: "reread_on_query", Message: "indexed matching always serves a snapshot"}
		}
		return Resolution{Kind: ports.KindIndexed}, nil
	default:
		return Resolution{}, &config.Error{Field: "match", Message: fmt.Sprintf("unknown mode %q", match)}
	}
}

// newStrategy builds the strategy for kind. Snapshot kinds load the target
// before returning.
func newStrategy(ctx context.Context, kind ports.Kind, target ports.Target, indexPath string, logger *slog.Logger) (ports.Strategy, error) {
	switch kind {
	case ports.KindSnapshot:
		s, err := search.NewSnapshot(ctx, target, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case ports.KindAnchored:
		return search.NewAnchored(target, logger), nil
	case ports.KindScan:
		return search.NewScan(target, logger), nil
	case ports.KindContains:
		return mmap.NewContains(target, logger), nil
	case ports.KindIndexed:
		x, err := bbolt.NewIndex(ctx, target, indexPath, logger)
		if err != nil {
			return nil, err
		}
		return x, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
}
