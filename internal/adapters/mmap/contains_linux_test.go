//go:build linux

package mmap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchMapped_TargetTruncatedWhileMapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	content := strings.Repeat("banana\napple\norange\n", 1400) + "kiwi\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	data, unmap, err := mapFile(f, int64(len(content)))
	require.NoError(t, err)
	defer unmap()

	found, err := searchMapped(data, []byte("kiwi"))
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, os.Truncate(path, 0))

	found, err = searchMapped(data, []byte("kiwi"))
	assert.Error(t, err, "fault on the vanished pages is reported")
	assert.False(t, found)
}

func TestContains_TruncatedTargetIsNotFound(t *testing.T) {
	target := writeTarget(t, strings.Repeat("banana\n", 4096))
	c := NewContains(target, nil)
	require.True(t, c.Exists(t.Context(), "banana"))

	require.NoError(t, os.Truncate(target.Path, 0))
	assert.False(t, c.Exists(t.Context(), "banana"))
}
