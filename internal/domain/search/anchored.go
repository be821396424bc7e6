package search

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/corey/linecheck/internal/logging"
	"github.com/corey/linecheck/internal/ports"
)

// lineSpace matches the characters strings.TrimSpace removes, minus '\n',
// so the anchors below behave like trimming each line.
const lineSpace = `[\t\v\f\r\x{85}\p{Z}]*`

// Anchored answers exact-line queries by compiling a whole-line pattern and
// matching it against the file content, read fresh on every call.
type Anchored struct {
	target ports.Target
	log    *slog.Logger
}

// NewAnchored creates an anchored-pattern strategy for target.
func NewAnchored(target ports.Target, logger *slog.Logger) *Anchored {
	return &Anchored{
		target: target,
		log:    logging.OrDiscard(logger).With("strategy", string(ports.KindAnchored)),
	}
}

// Kind implements ports.Strategy.
func (a *Anchored) Kind() ports.Kind { return ports.KindAnchored }

// Exists implements ports.Strategy.
func (a *Anchored) Exists(_ context.Context, query string) bool {
	found, err := a.exists(query)
	if err != nil {
		a.log.Error("search failed", "path", a.target.Path, "err", err)
		return false
	}
	return found
}

func (a *Anchored) exists(query string) (bool, error) {
	q := normalize(query)
	if q == "" || strings.Contains(q, "\n") {
		return false, nil
	}
	re, err := regexp.Compile(linePattern(q))
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(a.target.Path)
	if err != nil {
		if isMissing(err) {
			return false, nil
		}
		return false, err
	}
	return re.Match(data), nil
}

// linePattern anchors the literal query at line boundaries, tolerating
// surrounding whitespace on the line.
func linePattern(q string) string {
	return `(?m)^` + lineSpace + regexp.QuoteMeta(q) + lineSpace + `$`
}
