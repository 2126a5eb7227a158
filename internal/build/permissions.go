package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/formulago/internal/ctxlog"
	"github.com/specialistvlad/formulago/internal/descriptor"
)

// applyPermissions chmods every file under prefix matching a fix's glob.
// A pattern that matches nothing is not an error.
func applyPermissions(ctx context.Context, prefix string, fixes []descriptor.Permission) error {
	logger := ctxlog.FromContext(ctx)
	for _, fix := range fixes {
		matches, err := filepath.Glob(filepath.Join(prefix, fix.Pattern))
		if err != nil {
			return fmt.Errorf("invalid permission pattern %q: %w", fix.Pattern, err)
		}
		for _, m := range matches {
			if err := os.Chmod(m, fix.Mode); err != nil {
				return fmt.Errorf("failed to chmod %s: %w", m, err)
			}
		}
		logger.Debug("Applied permission fix.", "pattern", fix.Pattern, "mode", fix.Mode, "matches", len(matches))
	}
	return nil
}
