package bvfs

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *BVFS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bvfs")
	require.NoError(t, CreateFS(path))
	fs, err := OpenFS(path, 32)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestCreateFSProducesCleanLockedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bvfs")
	require.NoError(t, CreateFS(path))

	fs, err := OpenFS(path, 8)
	require.NoError(t, err)

	names, err := fs.Lsdir("/")
	require.NoError(t, err)
	require.Empty(t, names)

	require.NoError(t, fs.Close())
}

func TestOpenFSRejectsConcurrentSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bvfs")
	require.NoError(t, CreateFS(path))

	fs, err := OpenFS(path, 8)
	require.NoError(t, err)
	defer fs.Close()

	_, err = OpenFS(path, 8)
	require.ErrorIs(t, err, ErrLocked)
}

func TestMkdirAndNestedLsdir(t *testing.T) {
	fs := newTestFS(t)

	require.NoError(t, fs.Mkdir("/a"))
	require.NoError(t, fs.Mkdir("/a/b"))
	require.NoError(t, fs.Mkdir("/a/c"))

	top, err := fs.Lsdir("/a")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b", "c"}, top)

	ok, err := fs.Exists("/a/b")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = fs.Exists("/a/missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMkdirRejectsDuplicate(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/a"))
	err := fs.Mkdir("/a")
	require.ErrorIs(t, err, ErrFileAlreadyExists)
}

func TestDirectoryChainGrowsPastEightEntries(t *testing.T) {
	fs := newTestFS(t)

	const count = 20
	for i := 0; i < count; i++ {
		require.NoError(t, fs.Mkdir("/d"+strconv.Itoa(i)))
	}

	names, err := fs.Lsdir("/")
	require.NoError(t, err)
	require.Len(t, names, count)
}

func TestRmdirCompactsChainAndRemovesEntries(t *testing.T) {
	fs := newTestFS(t)

	const count = 10
	for i := 0; i < count; i++ {
		require.NoError(t, fs.Mkdir("/d"+strconv.Itoa(i)))
	}
	for i := 0; i < count; i++ {
		require.NoError(t, fs.Rmdir("/d"+strconv.Itoa(i)))
	}

	names, err := fs.Lsdir("/")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("/a"))
	require.NoError(t, fs.Mkdir("/a/b"))

	err := fs.Rmdir("/a")
	require.ErrorIs(t, err, ErrDirectoryNotEmpty)
}

func TestFileWriteReadRoundTrip(t *testing.T) {
	fs := newTestFS(t)

	f, err := fs.OpenFile("/greeting.txt", "w")
	require.NoError(t, err)

	var want []byte
	for i := 0; i < 200; i++ {
		want = append(want, []byte("the quick brown fox jumps over the lazy dog\n")...)
	}
	n, err := f.Write(want)
	require.NoError(t, err)
	require.Equal(t, len(want), n)
	require.NoError(t, f.Close())

	rf, err := fs.OpenFile("/greeting.txt", "r")
	require.NoError(t, err)
	got, err := rf.ReadAll()
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.NoError(t, rf.Close())
}

func TestFileSeekAndSparseWrite(t *testing.T) {
	fs := newTestFS(t)

	f, err := fs.OpenFile("/sparse.bin", "w")
	require.NoError(t, err)
	_, err = f.Write([]byte("head"))
	require.NoError(t, err)

	pos, err := f.Seek(2000, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2000, pos)

	_, err = f.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rf, err := fs.OpenFile("/sparse.bin", "r")
	require.NoError(t, err)
	got, err := rf.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 2004)
	require.Equal(t, []byte("head"), got[:4])
	require.Equal(t, []byte("tail"), got[2000:])
	for _, c := range got[4:2000] {
		require.Zero(t, c)
	}
}

func TestFileRemove(t *testing.T) {
	fs := newTestFS(t)

	f, err := fs.OpenFile("/a.txt", "w")
	require.NoError(t, err)
	_, err = f.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.Remove("/a.txt"))

	ok, err := fs.Exists("/a.txt")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = fs.OpenFile("/a.txt", "r")
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestOpenFileExclusiveModeRejectsExisting(t *testing.T) {
	fs := newTestFS(t)

	f, err := fs.OpenFile("/only-once.txt", "x")
	require.NoError(t, err)
	_, err = f.Write([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fs.OpenFile("/only-once.txt", "x")
	require.ErrorIs(t, err, ErrFileAlreadyExists)

	rf, err := fs.OpenFile("/only-once.txt", "r")
	require.NoError(t, err)
	got, err := rf.ReadAll()
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got)
}

func TestStatChmodChown(t *testing.T) {
	fs := newTestFS(t)

	f, err := fs.OpenFile("/x.txt", "w")
	require.NoError(t, err)
	_, err = f.Write([]byte("1234567890"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	st, err := fs.Stat("/x.txt")
	require.NoError(t, err)
	require.EqualValues(t, 10, st.Size)
	require.False(t, st.IsDir)

	require.NoError(t, fs.Chmod("/x.txt", 0o640))
	require.NoError(t, fs.Chown("/x.txt", 42, 43))

	st, err = fs.Stat("/x.txt")
	require.NoError(t, err)
	require.EqualValues(t, 0o640, st.Perms)
	require.EqualValues(t, 42, st.User)
	require.EqualValues(t, 43, st.Group)
}

func TestReopenAfterCloseRoundTripsLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bvfs")
	require.NoError(t, CreateFS(path))

	fs, err := OpenFS(path, 64)
	require.NoError(t, err)

	data := make([]byte, 256*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}

	f, err := fs.OpenFile("/blob.bin", "w")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, fs.Close())

	fs2, err := OpenFS(path, 64)
	require.NoError(t, err)
	defer fs2.Close()

	rf, err := fs2.OpenFile("/blob.bin", "r")
	require.NoError(t, err)
	got, err := rf.ReadAll()
	require.NoError(t, err)
	require.Equal(t, data, got)
}

