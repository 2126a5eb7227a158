package build_test

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/formulago/internal/build"
	"github.com/specialistvlad/formulago/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func tarBytes(t *testing.T, entries ...*tar.Header) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, hdr := range entries {
		content := []byte("content of " + hdr.Name)
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(content))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write(content)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestExtract_DetectsCompression(t *testing.T) {
	t.Parallel()

	plain := tarBytes(t,
		&tar.Header{Name: "gsl-2.4/", Typeflag: tar.TypeDir, Mode: 0o755},
		&tar.Header{Name: "gsl-2.4/configure", Typeflag: tar.TypeReg, Mode: 0o755},
	)
	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	require.NoError(t, err)
	_, err = xw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, xw.Close())

	gzPath, _ := testutil.WriteTarGz(t, t.TempDir(), "gsl-2.4.tar.gz", map[string]string{
		"gsl-2.4/configure": "#!/bin/sh\n",
	})

	testCases := []struct {
		name    string
		archive func(t *testing.T) string
	}{
		{
			name:    "gzip",
			archive: func(t *testing.T) string { return gzPath },
		},
		{
			name: "xz",
			archive: func(t *testing.T) string {
				return testutil.WriteFile(t, t.TempDir(), "gsl-2.4.tar.xz", xzBuf.String())
			},
		},
		{
			name: "uncompressed",
			archive: func(t *testing.T) string {
				return testutil.WriteFile(t, t.TempDir(), "gsl-2.4.tar", string(plain))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			dest := t.TempDir()

			// --- Act ---
			root, err := build.Extract(tc.archive(t), dest)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dest, "gsl-2.4"), root)
			info, err := os.Stat(filepath.Join(root, "configure"))
			require.NoError(t, err)
			assert.NotZero(t, info.Mode().Perm()&0o100, "the executable bit should survive extraction")
		})
	}
}

func TestExtract_MultipleTopLevelEntriesUseDest(t *testing.T) {
	t.Parallel()

	archive := testutil.WriteFile(t, t.TempDir(), "flat.tar", string(tarBytes(t,
		&tar.Header{Name: "README", Typeflag: tar.TypeReg, Mode: 0o644},
		&tar.Header{Name: "src/main.c", Typeflag: tar.TypeReg, Mode: 0o644},
	)))
	dest := t.TempDir()

	root, err := build.Extract(archive, dest)

	require.NoError(t, err)
	assert.Equal(t, dest, root)
	assert.FileExists(t, filepath.Join(dest, "src", "main.c"))
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	t.Parallel()

	archive := testutil.WriteFile(t, t.TempDir(), "evil.tar", string(tarBytes(t,
		&tar.Header{Name: "../../etc/passwd", Typeflag: tar.TypeReg, Mode: 0o644},
	)))

	_, err := build.Extract(archive, t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes the extraction directory")
}

func TestExtract_SymlinksStayInsideDest(t *testing.T) {
	t.Parallel()

	outside := t.TempDir()

	testCases := []struct {
		name    string
		entries []*tar.Header
		wantMsg string
	}{
		{
			name: "absolute link target",
			entries: []*tar.Header{
				{Name: "pkg/link", Typeflag: tar.TypeSymlink, Linkname: outside},
				{Name: "pkg/link/evil.txt", Typeflag: tar.TypeReg, Mode: 0o644},
			},
			wantMsg: "must be relative",
		},
		{
			name: "relative link target climbing out",
			entries: []*tar.Header{
				{Name: "pkg/link", Typeflag: tar.TypeSymlink, Linkname: "../../outside"},
			},
			wantMsg: "escapes the extraction directory",
		},
		{
			name: "entry written through a local link",
			entries: []*tar.Header{
				{Name: "pkg/", Typeflag: tar.TypeDir, Mode: 0o755},
				{Name: "pkg/self", Typeflag: tar.TypeSymlink, Linkname: "."},
				{Name: "pkg/self/up", Typeflag: tar.TypeSymlink, Linkname: ".."},
			},
			wantMsg: "goes through symlink",
		},
		{
			name: "file overwriting a link",
			entries: []*tar.Header{
				{Name: "pkg/config", Typeflag: tar.TypeSymlink, Linkname: "config.in"},
				{Name: "pkg/config", Typeflag: tar.TypeReg, Mode: 0o644},
			},
			wantMsg: "goes through symlink",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			archive := testutil.WriteFile(t, t.TempDir(), "evil.tar", string(tarBytes(t, tc.entries...)))

			// --- Act ---
			_, err := build.Extract(archive, t.TempDir())

			// --- Assert ---
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
			entries, err := os.ReadDir(outside)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing may be written outside the extraction directory")
		})
	}
}

func TestExtract_KeepsLocalSymlinks(t *testing.T) {
	t.Parallel()

	archive := testutil.WriteFile(t, t.TempDir(), "links.tar", string(tarBytes(t,
		&tar.Header{Name: "gsl-2.4/lib/libgsl.so.23", Typeflag: tar.TypeReg, Mode: 0o644},
		&tar.Header{Name: "gsl-2.4/lib/libgsl.so", Typeflag: tar.TypeSymlink, Linkname: "./libgsl.so.23"},
		&tar.Header{Name: "gsl-2.4/include/gsl", Typeflag: tar.TypeSymlink, Linkname: "../lib"},
	)))
	dest := t.TempDir()

	root, err := build.Extract(archive, dest)

	require.NoError(t, err)
	link, err := os.Readlink(filepath.Join(root, "lib", "libgsl.so"))
	require.NoError(t, err)
	assert.Equal(t, "libgsl.so.23", link)
	assert.FileExists(t, filepath.Join(root, "include", "gsl", "libgsl.so.23"))
}
