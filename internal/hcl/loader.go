package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/formulago/internal/ctxlog"
	"github.com/specialistvlad/formulago/internal/descriptor"
)

// Loader is the HCL-specific implementation of the descriptor.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL descriptor loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ descriptor.Loader = (*Loader)(nil)

// Load reads and parses a single descriptor file.
func (l *Loader) Load(ctx context.Context, path string) (*descriptor.Package, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor %s: %w", path, err)
	}
	return l.Parse(ctx, src, path)
}

// Parse decodes an in-memory HCL descriptor into a finalized Package.
func (l *Loader) Parse(ctx context.Context, src []byte, filename string) (*descriptor.Package, error) {
	logger := ctxlog.FromContext(ctx).With("file", filename)
	ctx = ctxlog.WithLogger(ctx, logger)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse HCL file %s: %w", descriptor.ErrMalformedDescriptor, filename, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode HCL file %s: %w", descriptor.ErrMalformedDescriptor, filename, diags)
	}
	if len(root.Packages) != 1 {
		return nil, fmt.Errorf("%w: %s must contain exactly one package block, found %d", descriptor.ErrMalformedDescriptor, filename, len(root.Packages))
	}

	pkg, err := l.translatePackage(ctx, root.Packages[0])
	if err != nil {
		return nil, err
	}
	pkg.Source = filename

	if err := descriptor.Finalize(pkg); err != nil {
		return nil, fmt.Errorf("in %s: %w", filename, err)
	}

	logger.Debug("HCL loading complete.",
		"package", pkg.Name,
		"version", pkg.Version,
		"dependencies", len(pkg.Dependencies),
		"options", len(pkg.Options),
	)
	return pkg, nil
}

// exprList splits a list-valued attribute into its element expressions.
func exprList(ctx context.Context, expr hcl.Expression, attrName string) ([]hcl.Expression, error) {
	if !isExprDefined(ctx, expr, attrName) {
		return nil, nil
	}
	items, diags := hcl.ExprList(expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s must be a list: %w", descriptor.ErrMalformedDescriptor, attrName, diags)
	}
	return items, nil
}
