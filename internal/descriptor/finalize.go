package descriptor

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/hcl/v2"
)

// PackageVariables are the root names available to package-level expressions.
var PackageVariables = []string{
	"name", "version", "prefix", "bin", "lib", "include", "share", "root_prefix", "with", "binding",
}

var (
	checksumPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	versionPattern  = regexp.MustCompile(`[-_]v?(\d+(?:\.\d+)*[a-z]?)`)
	bareVersion     = regexp.MustCompile(`^v?(\d+(?:\.\d+)*)$`)
	archiveSuffixes = []string{".tar.gz", ".tgz", ".tar.xz", ".txz", ".tar.bz2", ".tar", ".zip"}
)

var defaultBuild = Build{
	Directory:    "builddir",
	Configure:    []string{"cmake", ".."},
	Install:      []string{"make", "install"},
	StandardArgs: StandardArgsCMake,
}

// ValidateChecksum reports ErrChecksumFormat unless sum is a sha256 hex digest.
func ValidateChecksum(sum string) error {
	if !checksumPattern.MatchString(sum) {
		return fmt.Errorf("%w: %q is not a 64 character hex sha256 digest", ErrChecksumFormat, sum)
	}
	return nil
}

// ParseMode parses an octal file mode such as "0755".
func ParseMode(s string) (fs.FileMode, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 8, 32)
	if err != nil || v == 0 || v > 0o7777 {
		return 0, fmt.Errorf("%w: invalid file mode %q", ErrMalformedDescriptor, s)
	}
	return fs.FileMode(v), nil
}

// InferVersion derives a version from the file name of a source URL, the
// way `root_v6.12.04.source.tar.gz` yields `6.12.04`.
func InferVersion(url string) (string, bool) {
	stem := path.Base(url)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(stem, suffix) {
			stem = strings.TrimSuffix(stem, suffix)
			break
		}
	}
	stem = strings.TrimSuffix(stem, ".source")
	stem = strings.TrimSuffix(stem, ".src")

	if m := versionPattern.FindStringSubmatch(stem); m != nil {
		return m[1], true
	}
	if m := bareVersion.FindStringSubmatch(stem); m != nil {
		return m[1], true
	}
	return "", false
}

// Finalize applies defaults to a freshly decoded package and enforces every
// structural invariant. Loaders must call it before returning a Package.
func Finalize(p *Package) error {
	if err := requireFields(p); err != nil {
		return err
	}
	if err := ValidateChecksum(p.Checksum); err != nil {
		return err
	}
	platforms := make([]string, 0, len(p.Bottles))
	for platform := range p.Bottles {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	for _, platform := range platforms {
		if err := ValidateChecksum(p.Bottles[platform]); err != nil {
			return fmt.Errorf("bottle %q: %w", platform, err)
		}
	}

	if p.Version == "" {
		v, ok := InferVersion(p.URL)
		if !ok {
			return fmt.Errorf("%w: package %q has no version and none can be inferred from %q", ErrMalformedDescriptor, p.Name, p.URL)
		}
		p.Version = v
	}
	if err := checkPathElement("name", p.Name); err != nil {
		return err
	}
	if err := checkPathElement("version", p.Version); err != nil {
		return err
	}

	if err := finalizeDependencies(p); err != nil {
		return err
	}
	if err := finalizeBuild(p); err != nil {
		return err
	}
	if err := checkPaths(p); err != nil {
		return err
	}
	return checkExpressions(p)
}

func requireFields(p *Package) error {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(p.Checksum) == "" {
		missing = append(missing, "sha256")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required field(s): %s", ErrMalformedDescriptor, strings.Join(missing, ", "))
	}
	return nil
}

func finalizeDependencies(p *Package) error {
	seen := make(map[string]struct{}, len(p.Dependencies))
	recommended := make(map[string]string)

	for _, d := range p.Dependencies {
		if d.Name == "" {
			return fmt.Errorf("%w: dependency with empty name", ErrMalformedDescriptor)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("%w: dependency %q declared more than once", ErrMalformedDescriptor, d.Name)
		}
		seen[d.Name] = struct{}{}

		switch d.Kind {
		case "":
			d.Kind = KindRuntime
		case KindBuild, KindRuntime, KindRecommended, KindOptional:
		default:
			return fmt.Errorf("%w: dependency %q has unknown kind %q", ErrMalformedDescriptor, d.Name, d.Kind)
		}

		if d.Variant != "" {
			if d.Kind.Mandatory() {
				return fmt.Errorf("%w: dependency %q is %s and cannot join variant group %q", ErrMalformedDescriptor, d.Name, d.Kind, d.Variant)
			}
			if d.Kind == KindRecommended {
				if other, ok := recommended[d.Variant]; ok {
					return fmt.Errorf("%w: variant group %q has two recommended members (%s, %s)", ErrMalformedDescriptor, d.Variant, other, d.Name)
				}
				recommended[d.Variant] = d.Name
			}
		}

		if d.VersionConstraint != "" {
			c, err := semver.NewConstraint(d.VersionConstraint)
			if err != nil {
				return fmt.Errorf("%w: dependency %q: invalid version constraint %q: %w", ErrMalformedDescriptor, d.Name, d.VersionConstraint, err)
			}
			d.Constraint = c
		}

		if d.Runtime != nil {
			if d.Runtime.Executable == "" {
				return fmt.Errorf("%w: dependency %q: runtime needs an executable", ErrMalformedDescriptor, d.Name)
			}
			names := make(map[string]struct{})
			for _, q := range d.Runtime.Queries {
				if q.Name == "executable" || q.Name == "library" || q.Name == "name" {
					return fmt.Errorf("%w: dependency %q: query name %q is reserved", ErrMalformedDescriptor, d.Name, q.Name)
				}
				if _, dup := names[q.Name]; dup {
					return fmt.Errorf("%w: dependency %q: query %q declared more than once", ErrMalformedDescriptor, d.Name, q.Name)
				}
				names[q.Name] = struct{}{}
			}
		}
	}
	return nil
}

func finalizeBuild(p *Package) error {
	if p.Build == nil {
		b := defaultBuild
		p.Build = &b
		return nil
	}
	b := p.Build
	if b.Directory == "" {
		b.Directory = defaultBuild.Directory
	}
	if len(b.Configure) == 0 {
		b.Configure = defaultBuild.Configure
	}
	if len(b.Install) == 0 {
		b.Install = defaultBuild.Install
	}
	switch b.StandardArgs {
	case "":
		b.StandardArgs = StandardArgsCMake
	case StandardArgsCMake, StandardArgsNone:
	default:
		return fmt.Errorf("%w: unknown standard_args preset %q", ErrMalformedDescriptor, b.StandardArgs)
	}
	return nil
}

// checkPathElement requires v to be one local path element, since name and
// version become directories under the Cellar and the work root.
func checkPathElement(field, v string) error {
	if !filepath.IsLocal(v) || filepath.Base(v) != v || strings.ContainsAny(v, `/\`) {
		return fmt.Errorf("%w: %s %q must be a single path element", ErrMalformedDescriptor, field, v)
	}
	return nil
}

func checkPaths(p *Package) error {
	if !filepath.IsLocal(p.Build.Directory) {
		return fmt.Errorf("%w: build directory %q must be a relative path inside the source tree", ErrMalformedDescriptor, p.Build.Directory)
	}
	for _, perm := range p.Permissions {
		if !filepath.IsLocal(perm.Pattern) {
			return fmt.Errorf("%w: permission pattern %q must be relative to the prefix", ErrMalformedDescriptor, perm.Pattern)
		}
		if _, err := filepath.Match(perm.Pattern, ""); err != nil {
			return fmt.Errorf("%w: permission pattern %q: %w", ErrMalformedDescriptor, perm.Pattern, err)
		}
	}
	if p.Test != nil {
		if len(p.Test.Command) == 0 {
			return fmt.Errorf("%w: test block needs a command", ErrMalformedDescriptor)
		}
		for _, f := range p.Test.Files {
			if !filepath.IsLocal(f.Path) {
				return fmt.Errorf("%w: test file %q must be a relative path", ErrMalformedDescriptor, f.Path)
			}
		}
	}
	return nil
}

// checkExpressions rejects references to variables that will never exist,
// so a typo surfaces at load time instead of halfway through an install.
func checkExpressions(p *Package) error {
	roots := make(map[string]struct{}, len(PackageVariables))
	for _, name := range PackageVariables {
		roots[name] = struct{}{}
	}
	variants := make(map[string]struct{})
	for _, d := range p.Dependencies {
		if d.Variant != "" {
			variants[d.Variant] = struct{}{}
		}
	}

	check := func(what string, expr hcl.Expression) error {
		if expr == nil {
			return nil
		}
		for _, traversal := range expr.Variables() {
			root := traversal.RootName()
			if _, ok := roots[root]; !ok {
				return fmt.Errorf("%w: %s references unknown variable %q", ErrMalformedDescriptor, what, root)
			}
			attr, ok := secondAttr(traversal)
			if !ok {
				continue
			}
			switch root {
			case "with":
				if _, found := p.Dependency(attr); !found {
					return fmt.Errorf("%w: %s references undeclared dependency %q", ErrMalformedDescriptor, what, attr)
				}
			case "binding":
				if _, found := variants[attr]; !found {
					return fmt.Errorf("%w: %s references unknown variant %q", ErrMalformedDescriptor, what, attr)
				}
			}
		}
		return nil
	}

	for _, o := range p.Options {
		if o.Name == "" {
			return fmt.Errorf("%w: option with empty name", ErrMalformedDescriptor)
		}
		if err := check(fmt.Sprintf("option %q condition", o.Name), o.Condition); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("option %q value", o.Name), o.Value); err != nil {
			return err
		}
	}
	if err := check("caveats", p.Caveats); err != nil {
		return err
	}
	if p.Test != nil {
		for _, f := range p.Test.Files {
			if err := check(fmt.Sprintf("test file %q", f.Path), f.Content); err != nil {
				return err
			}
		}
		if err := check("test expectation", p.Test.Expect); err != nil {
			return err
		}
	}

	for _, d := range p.Dependencies {
		if d.Runtime == nil {
			continue
		}
		allowed := map[string]struct{}{"executable": {}}
		for _, q := range d.Runtime.Queries {
			allowed[q.Name] = struct{}{}
		}
		for i, candidate := range d.Runtime.Library {
			for _, traversal := range candidate.Variables() {
				if _, ok := allowed[traversal.RootName()]; !ok {
					return fmt.Errorf("%w: dependency %q library candidate %d references unknown query %q", ErrMalformedDescriptor, d.Name, i, traversal.RootName())
				}
			}
		}
	}
	return nil
}

func secondAttr(t hcl.Traversal) (string, bool) {
	if len(t) < 2 {
		return "", false
	}
	attr, ok := t[1].(hcl.TraverseAttr)
	if !ok {
		return "", false
	}
	return attr.Name, true
}

// IsMalformed reports whether err is any descriptor validation failure.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedDescriptor) || errors.Is(err, ErrChecksumFormat)
}
