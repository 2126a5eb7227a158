package resolve

import (
	"path/filepath"
	"strings"

	"github.com/specialistvlad/formulago/internal/descriptor"
)

// Layout describes where packages are installed.
type Layout struct {
	// Root is the install root, the equivalent of a Homebrew prefix.
	Root string
}

// Cellar is the directory holding one subdirectory per installed package.
func (l Layout) Cellar() string {
	return filepath.Join(l.Root, "Cellar")
}

// Keg returns the install prefix of one package version.
func (l Layout) Keg(name, version string) string {
	return filepath.Join(l.Cellar(), name, version)
}

// Selection holds the user's optional feature choices.
type Selection struct {
	With    []string
	Without []string
}

// Plan is the fully resolved, deterministic input of the build orchestrator.
// It is consumed once and then discarded.
type Plan struct {
	Name     string
	Version  string
	URL      string
	Checksum string

	Prefix     string
	RootPrefix string

	Dependencies []*ResolvedDependency
	Flags        []Flag

	Build       descriptor.Build
	Permissions []descriptor.Permission
	Caveats     string
	Test        *TestPlan
}

// Args renders the flags in order, ready to append to the configure command.
func (p *Plan) Args() []string {
	args := make([]string, 0, len(p.Flags))
	for _, f := range p.Flags {
		args = append(args, f.String())
	}
	return args
}

// ResolvedDependency is a selected dependency.
type ResolvedDependency struct {
	Name    string
	Kind    descriptor.Kind
	Variant string
	// InstalledVersion is empty when the inventory was skipped or the
	// dependency was found on PATH rather than in the Cellar.
	InstalledVersion string
	Runtime          *RuntimePaths
}

// RuntimePaths is the result of introspecting a language runtime.
type RuntimePaths struct {
	Executable string
	Library    string
	// Values holds the trimmed output of every runtime query.
	Values map[string]string
}

// Flag is a single configure argument.
type Flag struct {
	Name     string
	Value    string
	HasValue bool
}

// String renders the flag as NAME=VALUE, or just NAME for bare flags.
func (f Flag) String() string {
	if !f.HasValue {
		return f.Name
	}
	return f.Name + "=" + f.Value
}

// TestPlan is the rendered verification script.
type TestPlan struct {
	Files   []TestFile
	Command []string
	// Expect is nil when only the exit status is checked.
	Expect *string
}

// TestFile is a rendered file of the verification script.
type TestFile struct {
	Path    string
	Content string
}

// Describe renders the plan in a human readable form for `plan` output.
func (p *Plan) Describe() string {
	var b strings.Builder
	b.WriteString(p.Name + " " + p.Version + "\n")
	b.WriteString("  prefix: " + p.Prefix + "\n")
	b.WriteString("  source: " + p.URL + "\n")
	b.WriteString("  dependencies:\n")
	for _, d := range p.Dependencies {
		line := "    - " + d.Name + " (" + string(d.Kind) + ")"
		if d.InstalledVersion != "" {
			line += " " + d.InstalledVersion
		}
		if d.Runtime != nil && d.Runtime.Library != "" {
			line += " library=" + d.Runtime.Library
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("  configure: " + strings.Join(append(append([]string{}, p.Build.Configure...), p.Args()...), " ") + "\n")
	if len(p.Build.Compile) > 0 {
		b.WriteString("  compile: " + strings.Join(p.Build.Compile, " ") + "\n")
	}
	b.WriteString("  install: " + strings.Join(p.Build.Install, " ") + "\n")
	return b.String()
}
