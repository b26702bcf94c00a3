package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rvos/internal/filedisk"
)

func newTestFS(t *testing.T) (*FS, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := filedisk.Create(path, 64)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return Mount(d), path
}

func TestFormatProducesEmptyRoot(t *testing.T) {
	f, _ := newTestFS(t)
	names, err := f.List("")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	f, _ := newTestFS(t)
	require.NoError(t, f.Write("hello.txt", []byte("hello, world")))

	got, err := f.Read("hello.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hello, world"), got)
}

func TestWriteOverwritesExistingFile(t *testing.T) {
	f, _ := newTestFS(t)
	require.NoError(t, f.Write("a.txt", []byte("first")))
	require.NoError(t, f.Write("a.txt", []byte("second, longer value")))

	got, err := f.Read("a.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("second, longer value"), got)

	names, err := f.List("")
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, names)
}

func TestMkdirAndNestedFile(t *testing.T) {
	f, _ := newTestFS(t)
	require.NoError(t, f.Mkdir("sub"))
	require.NoError(t, f.Write("sub/inner.txt", []byte("nested")))

	names, err := f.List("sub")
	require.NoError(t, err)
	require.Equal(t, []string{"inner.txt"}, names)

	got, err := f.Read("sub/inner.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("nested"), got)

	rootNames, err := f.List("")
	require.NoError(t, err)
	require.Equal(t, []string{"sub/"}, rootNames)
}

func TestReadMissingFileReturnsNotFound(t *testing.T) {
	f, _ := newTestFS(t)
	_, err := f.Read("missing.txt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadDirectoryAsFileIsRejected(t *testing.T) {
	f, _ := newTestFS(t)
	require.NoError(t, f.Mkdir("adir"))
	_, err := f.Read("adir")
	require.ErrorIs(t, err, ErrIsDirectory)
}

func TestRemoveNonEmptyDirectoryFails(t *testing.T) {
	f, _ := newTestFS(t)
	require.NoError(t, f.Mkdir("adir"))
	require.NoError(t, f.Write("adir/f.txt", []byte("x")))
	require.ErrorIs(t, f.RemoveDirectory("adir"), ErrDirectoryNotEmpty)
}

func TestRemoveFileThenList(t *testing.T) {
	f, _ := newTestFS(t)
	require.NoError(t, f.Write("a.txt", []byte("x")))
	require.NoError(t, f.Write("b.txt", []byte("y")))
	require.NoError(t, f.RemoveFile("a.txt"))

	names, err := f.List("")
	require.NoError(t, err)
	require.Equal(t, []string{"b.txt"}, names)
}

func TestCreateExistingNameFails(t *testing.T) {
	f, _ := newTestFS(t)
	require.NoError(t, f.CreateFile("a.txt"))
	require.ErrorIs(t, f.CreateFile("a.txt"), ErrAlreadyExists)
}

func TestRootDirectoryFull(t *testing.T) {
	f, _ := newTestFS(t)
	for i := 0; i < MaxFiles; i++ {
		name := string(rune('a'+i)) + ".txt"
		require.NoError(t, f.CreateFile(name))
	}
	require.ErrorIs(t, f.CreateFile("overflow.txt"), ErrDirectoryFull)
}

func TestPersistenceAcrossRemount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := filedisk.Create(path, 64)
	require.NoError(t, err)
	f := Mount(d)
	require.NoError(t, f.Mkdir("sub"))
	require.NoError(t, f.Write("sub/data.bin", []byte("persisted bytes")))
	require.NoError(t, d.Sync())
	require.NoError(t, d.Close())

	d2, err := filedisk.Open(path)
	require.NoError(t, err)
	defer d2.Close()
	f2 := Mount(d2)

	got, err := f2.Read("sub/data.bin")
	require.NoError(t, err)
	require.Equal(t, []byte("persisted bytes"), got)
}

func TestEnsureDirectoryOnRootSucceeds(t *testing.T) {
	f, _ := newTestFS(t)
	require.NoError(t, f.EnsureDirectory(""))
}

func TestEnsureDirectoryOnFileFails(t *testing.T) {
	f, _ := newTestFS(t)
	require.NoError(t, f.CreateFile("a.txt"))
	require.ErrorIs(t, f.EnsureDirectory("a.txt"), ErrNotADirectory)
}
