package build_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/specialistvlad/formulago/internal/build"
	"github.com/specialistvlad/formulago/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tarballBody = "not really a tarball, but the fetcher does not care"

func newTarballServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gsl-2.4.tar.gz" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte(tarballBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestCachingFetcher_DownloadsOnceAndReusesCache(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	srv, hits := newTarballServer(t)
	sum := testutil.SHA256([]byte(tarballBody))
	fetcher := build.NewCachingFetcher(t.TempDir())
	fetcher.Client = srv.Client()

	// --- Act ---
	first, err := fetcher.Fetch(ctx, srv.URL+"/gsl-2.4.tar.gz", strings.ToUpper(sum))
	require.NoError(t, err)
	second, err := fetcher.Fetch(ctx, srv.URL+"/gsl-2.4.tar.gz", sum)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load(), "the second fetch should be served from the cache")
	assert.True(t, strings.HasSuffix(first, sum+"--gsl-2.4.tar.gz"))
	got, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, tarballBody, string(got))
}

func TestCachingFetcher_RedownloadsCorruptCacheEntry(t *testing.T) {
	t.Parallel()

	ctx, logs := testutil.Context(t)
	srv, hits := newTarballServer(t)
	sum := testutil.SHA256([]byte(tarballBody))
	cacheDir := t.TempDir()
	testutil.WriteFile(t, cacheDir, sum+"--gsl-2.4.tar.gz", "truncated")
	fetcher := build.NewCachingFetcher(cacheDir)

	path, err := fetcher.Fetch(ctx, srv.URL+"/gsl-2.4.tar.gz", sum)

	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Contains(t, logs.String(), "corrupt")
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tarballBody, string(got))
}

func TestCachingFetcher_Errors(t *testing.T) {
	t.Parallel()

	srv, _ := newTarballServer(t)

	testCases := []struct {
		name     string
		source   string
		checksum string
		wantErr  error
		wantMsg  string
	}{
		{
			name:     "checksum mismatch",
			source:   srv.URL + "/gsl-2.4.tar.gz",
			checksum: testutil.FakeChecksum,
			wantErr:  build.ErrChecksumMismatch,
		},
		{
			name:     "not found",
			source:   srv.URL + "/missing.tar.gz",
			checksum: testutil.FakeChecksum,
			wantMsg:  "404",
		},
		{
			name:     "unsupported scheme",
			source:   "ftp://ftp.gnu.org/gnu/gsl/gsl-2.4.tar.gz",
			checksum: testutil.FakeChecksum,
			wantMsg:  "unsupported URL scheme",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			ctx, _ := testutil.Context(t)
			cacheDir := t.TempDir()
			fetcher := build.NewCachingFetcher(cacheDir)

			// --- Act ---
			_, err := fetcher.Fetch(ctx, tc.source, tc.checksum)

			// --- Assert ---
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
			entries, err := os.ReadDir(cacheDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "failed downloads must not leave files in the cache")
		})
	}
}
