package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/formulago/internal/ctxlog"
	"github.com/specialistvlad/formulago/internal/descriptor"
	"github.com/zclconf/go-cty/cty"
)

// standardCMakeArgs mirrors the arguments every cmake based formula gets
// before its own options.
var standardCMakeArgs = []Flag{
	{Name: "-DCMAKE_C_FLAGS_RELEASE", Value: "-DNDEBUG", HasValue: true},
	{Name: "-DCMAKE_CXX_FLAGS_RELEASE", Value: "-DNDEBUG", HasValue: true},
	{Name: "-DCMAKE_INSTALL_PREFIX", HasValue: true}, // value is the keg prefix
	{Name: "-DCMAKE_BUILD_TYPE", Value: "Release", HasValue: true},
	{Name: "-DCMAKE_FIND_FRAMEWORK", Value: "LAST", HasValue: true},
	{Name: "-DCMAKE_VERBOSE_MAKEFILE", Value: "ON", HasValue: true},
	{Name: "-Wno-dev"},
}

// Resolver computes install plans.
type Resolver struct {
	layout    Layout
	paths     PathResolver
	inventory Inventory
}

// New creates a Resolver. A nil inventory disables availability checks.
func New(layout Layout, paths PathResolver, inventory Inventory) *Resolver {
	return &Resolver{layout: layout, paths: paths, inventory: inventory}
}

// Resolve produces the install plan for pkg under the given selection.
func (r *Resolver) Resolve(ctx context.Context, pkg *descriptor.Package, sel Selection) (*Plan, error) {
	ctx, logger := ctxlog.With(ctx, "package", pkg.Name, "version", pkg.Version)
	logger.Debug("Resolving install plan.", "with", sel.With, "without", sel.Without)

	selected, err := selectDependencies(pkg, sel)
	if err != nil {
		return nil, err
	}
	if err := checkExclusive(pkg, selected); err != nil {
		return nil, err
	}

	plan := &Plan{
		Name:       pkg.Name,
		Version:    pkg.Version,
		URL:        pkg.URL,
		Checksum:   pkg.Checksum,
		Prefix:     r.layout.Keg(pkg.Name, pkg.Version),
		RootPrefix: r.layout.Root,
		Build:      copyBuild(pkg.Build),
	}

	ordered := make([]*descriptor.Dependency, 0, len(pkg.Dependencies))
	for _, d := range pkg.Dependencies {
		if selected[d.Name] {
			ordered = append(ordered, d)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind.Rank() < ordered[j].Kind.Rank()
	})

	bindings := make(map[string]*ResolvedDependency)
	for _, d := range ordered {
		rd, err := r.resolveDependency(ctx, d)
		if err != nil {
			return nil, err
		}
		plan.Dependencies = append(plan.Dependencies, rd)
		if d.Variant != "" {
			bindings[d.Variant] = rd
		}
	}

	sc := &scope{pkg: pkg, prefix: plan.Prefix, root: r.layout.Root, selected: selected, bindings: bindings}
	evalCtx := sc.evalContext()

	if plan.Flags, err = r.evaluateFlags(ctx, pkg, plan.Prefix, evalCtx); err != nil {
		return nil, err
	}

	for _, p := range pkg.Permissions {
		plan.Permissions = append(plan.Permissions, *p)
	}

	if pkg.Caveats != nil {
		if plan.Caveats, err = evalString(pkg.Caveats, evalCtx, "caveats"); err != nil {
			return nil, err
		}
	}

	if pkg.Test != nil {
		if plan.Test, err = renderTest(pkg.Test, evalCtx); err != nil {
			return nil, err
		}
	}

	logger.Debug("Install plan resolved.", "dependencies", len(plan.Dependencies), "flags", len(plan.Flags))
	return plan, nil
}

// selectDependencies applies the selection rules and returns the selected set.
func selectDependencies(pkg *descriptor.Package, sel Selection) (map[string]bool, error) {
	with := make(map[string]bool, len(sel.With))
	without := make(map[string]bool, len(sel.Without))

	for _, name := range sel.With {
		if _, ok := pkg.Dependency(name); !ok {
			return nil, fmt.Errorf("%w: --with=%s: %s has no dependency named %q", ErrInvalidOption, name, pkg.Name, name)
		}
		with[name] = true
	}
	for _, name := range sel.Without {
		d, ok := pkg.Dependency(name)
		if !ok {
			return nil, fmt.Errorf("%w: --without=%s: %s has no dependency named %q", ErrInvalidOption, name, pkg.Name, name)
		}
		if d.Kind.Mandatory() {
			return nil, fmt.Errorf("%w: --without=%s: %s dependencies cannot be disabled", ErrInvalidOption, name, d.Kind)
		}
		if with[name] {
			return nil, fmt.Errorf("%w: %s is both enabled and disabled", ErrInvalidOption, name)
		}
		without[name] = true
	}

	selected := make(map[string]bool, len(pkg.Dependencies))
	for _, d := range pkg.Dependencies {
		switch d.Kind {
		case descriptor.KindRecommended:
			selected[d.Name] = !without[d.Name]
		case descriptor.KindOptional:
			selected[d.Name] = with[d.Name]
		default:
			selected[d.Name] = true
		}
	}
	return selected, nil
}

// checkExclusive enforces that at most one member of each variant group is
// selected. Groups and members are reported in sorted order so the error
// does not depend on how the selection was spelled.
func checkExclusive(pkg *descriptor.Package, selected map[string]bool) error {
	groups := make(map[string][]string)
	for _, d := range pkg.Dependencies {
		if d.Variant != "" && selected[d.Name] {
			groups[d.Variant] = append(groups[d.Variant], d.Name)
		}
	}

	variants := make([]string, 0, len(groups))
	for v := range groups {
		variants = append(variants, v)
	}
	sort.Strings(variants)

	for _, v := range variants {
		members := groups[v]
		if len(members) > 1 {
			sort.Strings(members)
			return fmt.Errorf("%w: %s does not support building %s together (variant %q); disable all but one with --without",
				ErrConflictingOptions, pkg.Name, strings.Join(members, " and "), v)
		}
	}
	return nil
}

func (r *Resolver) resolveDependency(ctx context.Context, d *descriptor.Dependency) (*ResolvedDependency, error) {
	rd := &ResolvedDependency{Name: d.Name, Kind: d.Kind, Variant: d.Variant}

	if d.Runtime != nil {
		paths, err := r.introspect(ctx, d)
		if err != nil {
			return nil, err
		}
		rd.Runtime = paths
		return rd, nil
	}

	if r.inventory == nil {
		return rd, nil
	}
	found, ok, err := r.inventory.Lookup(ctx, d.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDependencyUnavailable, d.Name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s) is not installed", ErrDependencyUnavailable, d.Name, d.Kind)
	}
	rd.InstalledVersion = found.Version

	if d.Constraint != nil {
		if found.Version == "" {
			return nil, fmt.Errorf("%w: %s requires version %s but the installed version is unknown", ErrDependencyUnavailable, d.Name, d.VersionConstraint)
		}
		v, err := semver.NewVersion(found.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: %s has unparseable version %q: %w", ErrDependencyUnavailable, d.Name, found.Version, err)
		}
		if !d.Constraint.Check(v) {
			return nil, fmt.Errorf("%w: %s %s does not satisfy %s", ErrDependencyUnavailable, d.Name, found.Version, d.VersionConstraint)
		}
	}
	return rd, nil
}

// introspect locates a runtime and runs its queries. Library candidates
// are tried in declaration order and the first one that exists wins.
func (r *Resolver) introspect(ctx context.Context, d *descriptor.Dependency) (*RuntimePaths, error) {
	logger := ctxlog.FromContext(ctx).With("dependency", d.Name)
	rt := d.Runtime

	exe, err := r.paths.LookPath(rt.Executable)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRuntimeNotFound, d.Name, err)
	}

	paths := &RuntimePaths{Executable: exe, Values: make(map[string]string, len(rt.Queries))}
	vars := map[string]cty.Value{"executable": cty.StringVal(exe)}
	for _, q := range rt.Queries {
		out, err := r.paths.Query(ctx, exe, q.Args)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: query %q: %w", ErrRuntimeNotFound, d.Name, q.Name, err)
		}
		value := strings.TrimSpace(out)
		paths.Values[q.Name] = value
		vars[q.Name] = cty.StringVal(value)
		logger.Debug("Runtime query answered.", "query", q.Name, "value", value)
	}

	if len(rt.Library) == 0 {
		return paths, nil
	}

	evalCtx := &hcl.EvalContext{Variables: vars, Functions: functions}
	tried := make([]string, 0, len(rt.Library))
	for i, candidate := range rt.Library {
		path, err := evalString(candidate, evalCtx, fmt.Sprintf("dependency %q library candidate %d", d.Name, i))
		if err != nil {
			return nil, err
		}
		if r.paths.Exists(path) {
			logger.Debug("Runtime library located.", "library", path, "candidate", i)
			paths.Library = path
			return paths, nil
		}
		tried = append(tried, path)
	}
	return nil, fmt.Errorf("%w: %s: no library file found, tried %s", ErrRuntimeNotFound, d.Name, strings.Join(tried, ", "))
}

// evaluateFlags evaluates every option exactly once, in declaration order.
func (r *Resolver) evaluateFlags(ctx context.Context, pkg *descriptor.Package, prefix string, evalCtx *hcl.EvalContext) ([]Flag, error) {
	logger := ctxlog.FromContext(ctx)

	var flags []Flag
	index := make(map[string]int)
	set := func(f Flag) {
		if i, ok := index[f.Name]; ok {
			logger.Debug("Option overrides earlier value.", "option", f.Name, "old", flags[i].Value, "new", f.Value)
			flags[i] = f
			return
		}
		index[f.Name] = len(flags)
		flags = append(flags, f)
	}

	if pkg.Build.StandardArgs == descriptor.StandardArgsCMake {
		for _, f := range standardCMakeArgs {
			if f.Name == "-DCMAKE_INSTALL_PREFIX" {
				f.Value = prefix
			}
			set(f)
		}
	}

	for _, o := range pkg.Options {
		if o.Condition != nil {
			ok, err := evalBool(o.Condition, evalCtx, fmt.Sprintf("option %q condition", o.Name))
			if err != nil {
				return nil, err
			}
			if !ok {
				logger.Debug("Option condition is false, skipping.", "option", o.Name)
				continue
			}
		}
		f := Flag{Name: o.Name}
		if o.Value != nil {
			v, err := evalString(o.Value, evalCtx, fmt.Sprintf("option %q value", o.Name))
			if err != nil {
				return nil, err
			}
			f.Value, f.HasValue = v, true
		}
		set(f)
	}
	return flags, nil
}

func renderTest(t *descriptor.TestScript, evalCtx *hcl.EvalContext) (*TestPlan, error) {
	tp := &TestPlan{Command: append([]string(nil), t.Command...)}
	for _, f := range t.Files {
		tf := TestFile{Path: f.Path}
		if f.Content != nil {
			content, err := evalString(f.Content, evalCtx, fmt.Sprintf("test file %q", f.Path))
			if err != nil {
				return nil, err
			}
			tf.Content = content
		}
		tp.Files = append(tp.Files, tf)
	}
	if t.Expect != nil {
		expect, err := evalString(t.Expect, evalCtx, "test expectation")
		if err != nil {
			return nil, err
		}
		tp.Expect = &expect
	}
	return tp, nil
}

func copyBuild(b *descriptor.Build) descriptor.Build {
	return descriptor.Build{
		Directory:    b.Directory,
		Configure:    append([]string(nil), b.Configure...),
		Compile:      append([]string(nil), b.Compile...),
		Install:      append([]string(nil), b.Install...),
		UnsetEnv:     append([]string(nil), b.UnsetEnv...),
		StandardArgs: b.StandardArgs,
	}
}
