package browser

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProfileArchiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "Default"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Default", "Cookies"), []byte("consent=1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Local State"), []byte("{}"), 0644))
	require.NoError(t, os.Symlink("host-123", filepath.Join(src, "SingletonLock")))

	archive := ProfileArchive{Path: filepath.Join(t.TempDir(), "profiles", "default.tar.gz")}
	require.False(t, archive.Exists())
	require.NoError(t, archive.Restore(t.TempDir()))

	require.NoError(t, archive.Save(src))
	require.True(t, archive.Exists())

	dst := t.TempDir()
	require.NoError(t, archive.Restore(dst))

	got, err := os.ReadFile(filepath.Join(dst, "Default", "Cookies"))
	require.NoError(t, err)
	require.Equal(t, "consent=1", string(got))
	_, err = os.Lstat(filepath.Join(dst, "SingletonLock"))
	require.True(t, os.IsNotExist(err))
}

func TestProfileArchiveRejectsEscapingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evil.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	body := []byte("x")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape", Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	err = ProfileArchive{Path: path}.Restore(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes")
}
