// This file contains the logic for translating HCL schema structs into the
// format-agnostic descriptor model.

package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/formulago/internal/ctxlog"
	"github.com/specialistvlad/formulago/internal/descriptor"
)

// translatePackage converts the HCL package block into the agnostic model.
func (l *Loader) translatePackage(ctx context.Context, b *packageBlock) (*descriptor.Package, error) {
	logger := ctxlog.FromContext(ctx).With("package", b.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Translating HCL package to descriptor model.")

	pkg := &descriptor.Package{
		Name:        b.Name,
		Version:     b.Version,
		URL:         b.URL,
		Checksum:    b.SHA256,
		Homepage:    b.Homepage,
		Description: b.Description,
		Head:        b.Head,
		Bottles:     b.Bottles,
		Caveats:     definedOrNil(ctx, b.Caveats, "caveats"),
	}

	for _, d := range b.Dependencies {
		dep, err := l.translateDependency(ctx, d)
		if err != nil {
			return nil, err
		}
		pkg.Dependencies = append(pkg.Dependencies, dep)
	}

	for _, o := range b.Options {
		pkg.Options = append(pkg.Options, &descriptor.BuildOption{
			Name:      o.Name,
			Value:     definedOrNil(ctx, o.Value, "value"),
			Condition: definedOrNil(ctx, o.Condition, "condition"),
		})
	}

	if b.Build != nil {
		pkg.Build = &descriptor.Build{
			Directory:    b.Build.Directory,
			Configure:    b.Build.Configure,
			Compile:      b.Build.Compile,
			Install:      b.Build.Install,
			UnsetEnv:     b.Build.UnsetEnv,
			StandardArgs: b.Build.StandardArgs,
		}
	}

	for _, p := range b.Permissions {
		mode, err := descriptor.ParseMode(p.Mode)
		if err != nil {
			return nil, fmt.Errorf("permissions %q: %w", p.Pattern, err)
		}
		pkg.Permissions = append(pkg.Permissions, &descriptor.Permission{Pattern: p.Pattern, Mode: mode})
	}

	if b.Test != nil {
		test := &descriptor.TestScript{
			Command: b.Test.Command,
			Expect:  definedOrNil(ctx, b.Test.Expect, "expect"),
		}
		for _, f := range b.Test.Files {
			test.Files = append(test.Files, &descriptor.TestFile{
				Path:    f.Path,
				Content: definedOrNil(ctx, f.Content, "content"),
			})
		}
		pkg.Test = test
	}

	return pkg, nil
}

// translateDependency converts a single `depends_on` block.
func (l *Loader) translateDependency(ctx context.Context, d *dependencyBlock) (*descriptor.Dependency, error) {
	dep := &descriptor.Dependency{
		Name:              d.Name,
		Kind:              descriptor.Kind(d.Kind),
		Variant:           d.Variant,
		VersionConstraint: d.Version,
	}
	if d.Runtime == nil {
		return dep, nil
	}

	rt := &descriptor.Runtime{Executable: d.Runtime.Executable}
	for _, q := range d.Runtime.Queries {
		rt.Queries = append(rt.Queries, &descriptor.Query{Name: q.Name, Args: q.Args})
	}
	library, err := exprList(ctx, d.Runtime.Library, "library")
	if err != nil {
		return nil, fmt.Errorf("dependency %q: %w", d.Name, err)
	}
	rt.Library = library
	dep.Runtime = rt
	return dep, nil
}

// definedOrNil returns nil for attributes the user never wrote, so the
// model can distinguish "absent" from "null".
func definedOrNil(ctx context.Context, expr hcl.Expression, attrName string) hcl.Expression {
	if !isExprDefined(ctx, expr, attrName) {
		return nil
	}
	return expr
}
