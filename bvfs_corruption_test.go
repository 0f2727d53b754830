package bvfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenFSRejectsCorruptedMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bvfs")
	require.NoError(t, CreateFS(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[headerSize] = 'X'
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = OpenFS(path, 8)
	require.ErrorIs(t, err, ErrMagic)
}

func TestOpenFSRejectsFutureVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bvfs")
	require.NoError(t, CreateFS(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[headerSize+rootVersionOff] = 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = OpenFS(path, 8)
	require.ErrorIs(t, err, ErrVersion)
}
