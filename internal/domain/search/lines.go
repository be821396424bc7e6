// Package search implements the line-matching strategies that read the
// target file with the standard library: an in-memory snapshot, an anchored
// regexp over fresh content, and a sequential substring scan. All of them
// satisfy ports.Strategy and fail closed.
package search

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"
)

// maxLineBytes bounds a single line. A longer line makes the read fail,
// which the strategies report as "not found".
const maxLineBytes = 1024 * 1024 // 1 MiB

// forEachLine calls fn for every line of path (without the trailing
// newline or carriage return) until fn returns false.
func forEachLine(path string, fn func(line string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if !fn(sc.Text()) {
			return nil
		}
	}
	return sc.Err()
}

// normalize trims a query or a line the same way on both sides of an
// exact-line comparison.
func normalize(s string) string {
	return strings.TrimSpace(s)
}

// isMissing reports whether err means the target does not exist.
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
