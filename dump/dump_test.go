package dump_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amaank404/bvfs"
	"github.com/amaank404/bvfs/dump"
)

func TestDumpListsBlocksByType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bvfs")
	require.NoError(t, bvfs.CreateFS(path))

	fs, err := bvfs.OpenFS(path, 8)
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, fs.Mkdir("/a"))

	out, err := dump.Dump(fs)
	require.NoError(t, err)
	require.Contains(t, out, "Root")
	require.Contains(t, out, "Directory")
	require.Contains(t, out, "NodeMetadata")
}

func TestDumpDetailedShowsDirectoryEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bvfs")
	require.NoError(t, bvfs.CreateFS(path))

	fs, err := bvfs.OpenFS(path, 8)
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, fs.Mkdir("/docs"))

	out, err := dump.DumpDetailed(fs)
	require.NoError(t, err)
	require.True(t, strings.Contains(out, `name="docs"`))
}
