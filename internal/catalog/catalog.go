// Package catalog locates descriptors and picks the loader matching their
// format. A reference is either a path to a descriptor file or the bare
// name of a package inside a tap directory.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/specialistvlad/formulago/internal/ctxlog"
	"github.com/specialistvlad/formulago/internal/descriptor"
	"github.com/specialistvlad/formulago/internal/fsutil"
	"github.com/specialistvlad/formulago/internal/hcl"
	"github.com/specialistvlad/formulago/internal/yamlfmt"
)

// ErrNotFound is returned when a reference matches no descriptor.
var ErrNotFound = errors.New("descriptor not found")

// Catalog resolves references to descriptor files and loads them.
type Catalog struct {
	tap     string
	loaders map[string]descriptor.Loader
}

// New creates a catalog searching tap (may be empty) with the HCL and YAML
// loaders registered.
func New(tap string) *Catalog {
	yamlLoader := yamlfmt.NewLoader()
	return &Catalog{
		tap: tap,
		loaders: map[string]descriptor.Loader{
			".hcl":  hcl.NewLoader(),
			".yaml": yamlLoader,
			".yml":  yamlLoader,
		},
	}
}

// Extensions returns the supported file extensions in sorted order.
func (c *Catalog) Extensions() []string {
	exts := make([]string, 0, len(c.loaders))
	for ext := range c.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Locate turns a reference into a descriptor path.
func (c *Catalog) Locate(ctx context.Context, ref string) (string, error) {
	logger := ctxlog.FromContext(ctx)

	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return ref, nil
	}
	if strings.ContainsRune(ref, filepath.Separator) || filepath.Ext(ref) != "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if c.tap == "" {
		return "", fmt.Errorf("%w: %s is not a file and no tap is configured", ErrNotFound, ref)
	}

	files, err := fsutil.FindFilesByExtension(c.tap, c.Extensions()...)
	if err != nil {
		return "", fmt.Errorf("failed to search tap %s: %w", c.tap, err)
	}
	var matches []string
	for _, f := range files {
		base := filepath.Base(f)
		if strings.TrimSuffix(base, filepath.Ext(base)) == ref {
			matches = append(matches, f)
		}
	}
	logger.Debug("Searched tap for descriptor.", "tap", c.tap, "name", ref, "matches", len(matches))

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no descriptor named %q in %s", ErrNotFound, ref, c.tap)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous descriptor name %q: %s", ref, strings.Join(matches, ", "))
	}
}

// Load locates ref and parses it with the loader for its extension.
func (c *Catalog) Load(ctx context.Context, ref string) (*descriptor.Package, error) {
	path, err := c.Locate(ctx, ref)
	if err != nil {
		return nil, err
	}
	loader, ok := c.loaders[filepath.Ext(path)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported descriptor format %q (want one of %s)",
			descriptor.ErrMalformedDescriptor, filepath.Ext(path), strings.Join(c.Extensions(), ", "))
	}
	return loader.Load(ctx, path)
}
