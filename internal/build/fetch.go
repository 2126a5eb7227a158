package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/formulago/internal/ctxlog"
)

// ErrChecksumMismatch is the cause of a fetch failure when the downloaded
// bytes do not hash to the declared sha256.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Fetcher retrieves a source archive and returns the local path of a copy
// whose sha256 has been verified.
type Fetcher interface {
	Fetch(ctx context.Context, source, checksum string) (string, error)
}

// CachingFetcher downloads http(s) and file URLs into a cache directory
// keyed by checksum. A cached file with the right digest is reused.
type CachingFetcher struct {
	CacheDir string
	Client   *http.Client
}

// NewCachingFetcher creates a fetcher caching into dir.
func NewCachingFetcher(dir string) *CachingFetcher {
	return &CachingFetcher{CacheDir: dir, Client: http.DefaultClient}
}

// Fetch implements Fetcher.
func (f *CachingFetcher) Fetch(ctx context.Context, source, checksum string) (string, error) {
	logger := ctxlog.FromContext(ctx).With("url", source)
	checksum = strings.ToLower(checksum)

	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	cached := filepath.Join(f.CacheDir, checksum+"--"+archiveName(source))

	if sum, err := fileSHA256(cached); err == nil {
		if sum == checksum {
			logger.Debug("Using cached source archive.", "path", cached)
			return cached, nil
		}
		logger.Warn("Cached source archive is corrupt, downloading again.", "path", cached)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	body, err := f.open(ctx, source)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(f.CacheDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	defer os.Remove(tmp.Name())

	logger.Info("⬇️ Downloading source archive.")
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", source, err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if got != checksum {
		return "", fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, source, checksum, got)
	}
	if err := os.Rename(tmp.Name(), cached); err != nil {
		return "", fmt.Errorf("failed to store %s in cache: %w", source, err)
	}
	logger.Debug("Source archive downloaded and verified.", "bytes", n, "path", cached)
	return cached, nil
}

// open returns a reader for an http(s) URL, a file URL or a plain path.
func (f *CachingFetcher) open(ctx context.Context, source string) (io.ReadCloser, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return os.Open(source)
	}

	switch u.Scheme {
	case "file":
		return os.Open(u.Path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		client := f.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", source, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to download %s: unexpected status %s", source, resp.Status)
		}
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

func archiveName(source string) string {
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return filepath.Base(source)
}

func fileSHA256(p string) (string, error) {
	file, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
