// Package mmap implements the byte-containment strategy: the target file is
// memory-mapped read-only on every query and searched for the raw bytes of
// the query. Matches are not line-bounded, so a query may span a newline or
// hit the middle of a line.
package mmap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"github.com/corey/linecheck/internal/logging"
	"github.com/corey/linecheck/internal/ports"
)

// Contains implements ports.Strategy over a fresh mapping of the target.
type Contains struct {
	target ports.Target
	log    *slog.Logger
}

// NewContains creates a containment strategy for target.
func NewContains(target ports.Target, logger *slog.Logger) *Contains {
	return &Contains{
		target: target,
		log:    logging.OrDiscard(logger).With("strategy", string(ports.KindContains)),
	}
}

// Kind implements ports.Strategy.
func (c *Contains) Kind() ports.Kind { return ports.KindContains }

// Exists implements ports.Strategy.
func (c *Contains) Exists(_ context.Context, query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return false
	}
	found, err := c.find([]byte(q))
	if err != nil {
		c.log.Error("search failed", "path", c.target.Path, "err", err)
		return false
	}
	return found
}

func (c *Contains) find(needle []byte) (bool, error) {
	f, err := os.Open(c.target.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}

	data, unmap, err := mapFile(f, info.Size())
	if err != nil {
		return false, err
	}
	defer unmap()
	return searchMapped(data, needle)
}

// searchMapped reports whether data contains needle. A memory fault, raised
// when the mapped file shrinks while it is being read, is returned as an error.
func searchMapped(data, needle []byte) (found bool, err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			found, err = false, fmt.Errorf("read mapped target: %v", r)
		}
	}()
	return bytes.Contains(data, needle), nil
}
