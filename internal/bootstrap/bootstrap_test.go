package bootstrap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rvos/internal/filedisk"
	"rvos/internal/fs"
)

func newTestFs(t *testing.T) *fs.FS {
	t.Helper()
	disk, err := filedisk.Create(filepath.Join(t.TempDir(), "disk.img"), 64)
	require.NoError(t, err)
	return fs.Mount(disk)
}

func TestInstallEmbeddedBinariesWritesAllThree(t *testing.T) {
	fsys := newTestFs(t)
	require.NoError(t, InstallEmbeddedBinaries(fsys))

	names, err := fsys.List("/bin")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"cat", "sh", "wc"}, names)

	got, err := fsys.Read("/bin/sh")
	require.NoError(t, err)
	require.Equal(t, shBin, got)
}

func TestInstallEmbeddedBinariesIsRepeatable(t *testing.T) {
	fsys := newTestFs(t)
	require.NoError(t, InstallEmbeddedBinaries(fsys))
	require.NoError(t, InstallEmbeddedBinaries(fsys))

	got, err := fsys.Read("/bin/cat")
	require.NoError(t, err)
	require.Equal(t, catBin, got)
}
