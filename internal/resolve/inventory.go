package resolve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/specialistvlad/formulago/internal/ctxlog"
)

// Installed describes a dependency found on the host.
type Installed struct {
	Name string
	// Version is empty when the source cannot tell.
	Version string
	Path    string
}

// Inventory answers whether a dependency is present.
type Inventory interface {
	Lookup(ctx context.Context, name string) (*Installed, bool, error)
}

// CellarInventory finds packages installed under <root>/Cellar/<name>/<version>.
type CellarInventory struct {
	Dir string
}

// NewCellarInventory creates an inventory over the given Cellar directory.
func NewCellarInventory(dir string) *CellarInventory {
	return &CellarInventory{Dir: dir}
}

// Lookup returns the newest installed version of name. Versions that are
// valid semver sort by precedence and win over those that are not; the
// rest sort lexically.
func (c *CellarInventory) Lookup(ctx context.Context, name string) (*Installed, bool, error) {
	dir := filepath.Join(c.Dir, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return nil, false, nil
	}

	sort.SliceStable(versions, func(i, j int) bool {
		vi, erri := semver.NewVersion(versions[i])
		vj, errj := semver.NewVersion(versions[j])
		switch {
		case erri == nil && errj == nil:
			return vi.LessThan(vj)
		case erri != nil && errj != nil:
			return versions[i] < versions[j]
		default:
			return erri != nil
		}
	})
	latest := versions[len(versions)-1]

	ctxlog.FromContext(ctx).Debug("Found dependency in Cellar.", "dependency", name, "version", latest)
	return &Installed{Name: name, Version: latest, Path: filepath.Join(dir, latest)}, true, nil
}

// PathInventory treats an executable of the same name on the search path
// as an installed dependency of unknown version.
type PathInventory struct {
	paths PathResolver
}

// NewPathInventory creates an inventory backed by a PathResolver.
func NewPathInventory(paths PathResolver) *PathInventory {
	return &PathInventory{paths: paths}
}

// Lookup reports whether name resolves to an executable.
func (p *PathInventory) Lookup(ctx context.Context, name string) (*Installed, bool, error) {
	path, err := p.paths.LookPath(name)
	if err != nil {
		return nil, false, nil
	}
	ctxlog.FromContext(ctx).Debug("Found dependency on search path.", "dependency", name, "path", path)
	return &Installed{Name: name, Path: path}, true, nil
}

// Inventories consults each inventory in order and returns the first hit.
type Inventories []Inventory

// Lookup implements Inventory.
func (inv Inventories) Lookup(ctx context.Context, name string) (*Installed, bool, error) {
	for _, i := range inv {
		found, ok, err := i.Lookup(ctx, name)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return found, true, nil
		}
	}
	return nil, false, nil
}
