package descriptor

import "context"

// Loader is the interface for a format-specific descriptor loader.
type Loader interface {
	// Load reads the descriptor at path and returns a finalized Package.
	Load(ctx context.Context, path string) (*Package, error)

	// Parse decodes an in-memory descriptor. The filename is used for
	// diagnostics only.
	Parse(ctx context.Context, src []byte, filename string) (*Package, error)
}
