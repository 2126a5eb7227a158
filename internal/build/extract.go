package build

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Extract unpacks a tar archive, optionally gzip or xz compressed, into
// dest. The compression is detected from the leading bytes. It returns
// the source root: the single top-level directory of the archive if there
// is exactly one, dest otherwise.
func Extract(archive, dest string) (string, error) {
	file, err := os.Open(archive)
	if err != nil {
		return "", err
	}
	defer file.Close()

	br := bufio.NewReader(file)
	head, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", archive, err)
	}

	var r io.Reader = br
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return "", fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	case bytes.HasPrefix(head, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			return "", fmt.Errorf("failed to open xz stream: %w", err)
		}
		r = xr
	}

	if err := untar(r, dest); err != nil {
		return "", err
	}
	return sourceRoot(dest)
}

func untar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		name := filepath.Clean(hdr.Name)
		if name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the extraction directory", hdr.Name)
		}
		if err := checkNoSymlinks(dest, name); err != nil {
			return fmt.Errorf("archive entry %q: %w", hdr.Name, err)
		}
		target := filepath.Join(dest, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			link, err := linkTarget(name, hdr.Linkname)
			if err != nil {
				return fmt.Errorf("archive entry %q: %w", hdr.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(link, target); err != nil {
				return err
			}
		default:
			// Hard links, devices and fifos have no place in a source tarball.
		}
	}
}

// checkNoSymlinks fails if name, or any directory leading to it, is an
// existing symlink under dest. Entries are never written through links.
func checkNoSymlinks(dest, name string) error {
	cur := dest
	for _, part := range strings.Split(name, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path goes through symlink %s", cur)
		}
	}
	return nil
}

// linkTarget returns the cleaned target of a symlink entry, which must
// point inside the extraction directory from where the link lives.
func linkTarget(name, linkname string) (string, error) {
	if linkname == "" || filepath.IsAbs(linkname) {
		return "", fmt.Errorf("symlink target %q must be relative", linkname)
	}
	link := filepath.Clean(linkname)
	if !filepath.IsLocal(filepath.Join(filepath.Dir(name), link)) {
		return "", fmt.Errorf("symlink target %q escapes the extraction directory", linkname)
	}
	return link, nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func sourceRoot(dest string) (string, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dest, entries[0].Name()), nil
	}
	return dest, nil
}
