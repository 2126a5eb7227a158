package descriptor

import (
	"io/fs"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/hcl/v2"
)

// Kind classifies how a dependency participates in resolution.
type Kind string

const (
	// KindBuild dependencies are always selected and only needed while building.
	KindBuild Kind = "build"
	// KindRuntime dependencies are always selected. This is the default kind.
	KindRuntime Kind = "runtime"
	// KindRecommended dependencies are selected unless explicitly disabled.
	KindRecommended Kind = "recommended"
	// KindOptional dependencies are selected only when explicitly enabled.
	KindOptional Kind = "optional"
)

// Mandatory reports whether the dependency is selected unconditionally.
func (k Kind) Mandatory() bool {
	return k == KindBuild || k == KindRuntime
}

// Rank orders kinds inside an install plan.
func (k Kind) Rank() int {
	switch k {
	case KindBuild:
		return 0
	case KindRuntime:
		return 1
	case KindRecommended:
		return 2
	default:
		return 3
	}
}

// Standard argument presets prepended to the configure flags.
const (
	StandardArgsCMake = "cmake"
	StandardArgsNone  = "none"
)

// Package is the unified, format-agnostic representation of a descriptor.
// It is immutable once Finalize has accepted it.
type Package struct {
	Name        string
	Version     string
	URL         string
	Checksum    string
	Homepage    string
	Description string
	Head        string
	// Bottles maps a platform tag to the sha256 of its precompiled artifact.
	// Bottles are validated but never installed.
	Bottles map[string]string

	Dependencies []*Dependency
	Options      []*BuildOption
	Build        *Build
	Permissions  []*Permission

	// Caveats is a template rendered during resolution. Nil when absent.
	Caveats hcl.Expression
	// Test is nil when the descriptor declares no verification.
	Test *TestScript

	// Source is the path the descriptor was read from.
	Source string
}

// Dependency returns the dependency with the given name.
func (p *Package) Dependency(name string) (*Dependency, bool) {
	for _, d := range p.Dependencies {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Dependency is a single `depends_on` entry.
type Dependency struct {
	Name string
	Kind Kind
	// Variant names the binding slot this dependency fills. Members of the
	// same variant group are mutually exclusive.
	Variant string
	// VersionConstraint is the raw semver constraint, empty when unconstrained.
	VersionConstraint string
	// Constraint is parsed from VersionConstraint by Finalize.
	Constraint *semver.Constraints
	// Runtime is non-nil when the resolver must introspect an interpreter.
	Runtime *Runtime
}

// Runtime describes how to locate a language runtime's installation paths.
type Runtime struct {
	Executable string
	Queries    []*Query
	// Library holds candidate library paths, tried in order. Each candidate
	// may reference `executable` and any query result.
	Library []hcl.Expression
}

// Query is a named invocation of the runtime executable whose trimmed
// stdout becomes a variable.
type Query struct {
	Name string
	Args []string
}

// BuildOption is a configure flag. Options are evaluated in declaration
// order; a later option with the same name overrides an earlier one.
type BuildOption struct {
	Name string
	// Value is nil for bare flags such as `-Wno-dev`.
	Value hcl.Expression
	// Condition is nil for unconditional options.
	Condition hcl.Expression
}

// Build is the external build system recipe.
type Build struct {
	Directory    string
	Configure    []string
	Compile      []string
	Install      []string
	UnsetEnv     []string
	StandardArgs string
}

// Permission is a post-install mode fix applied to files under the prefix.
type Permission struct {
	Pattern string
	Mode    fs.FileMode
}

// TestScript is the post-install verification.
type TestScript struct {
	Files   []*TestFile
	Command []string
	Expect  hcl.Expression
}

// TestFile is written into the test directory before the command runs.
type TestFile struct {
	Path    string
	Content hcl.Expression
}
