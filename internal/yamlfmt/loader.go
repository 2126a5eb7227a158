package yamlfmt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/formulago/internal/ctxlog"
	"github.com/specialistvlad/formulago/internal/descriptor"
	"gopkg.in/yaml.v3"
)

type document struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Homepage     string            `yaml:"homepage"`
	URL          string            `yaml:"url"`
	Version      string            `yaml:"version"`
	SHA256       string            `yaml:"sha256"`
	Head         string            `yaml:"head"`
	Bottles      map[string]string `yaml:"bottles"`
	Caveats      *string           `yaml:"caveats"`
	Dependencies []dependency      `yaml:"dependencies"`
	Options      []option          `yaml:"options"`
	Build        *build            `yaml:"build"`
	Permissions  []permission      `yaml:"permissions"`
	Test         *test             `yaml:"test"`
}

type dependency struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Variant string   `yaml:"variant"`
	Version string   `yaml:"version"`
	Runtime *runtime `yaml:"runtime"`
}

type runtime struct {
	Executable string   `yaml:"executable"`
	Queries    []query  `yaml:"queries"`
	Library    []string `yaml:"library"`
}

type query struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args"`
}

type option struct {
	Name      string  `yaml:"name"`
	Value     *string `yaml:"value"`
	Condition *string `yaml:"condition"`
}

type build struct {
	Directory    string   `yaml:"directory"`
	Configure    []string `yaml:"configure"`
	Compile      []string `yaml:"compile"`
	Install      []string `yaml:"install"`
	UnsetEnv     []string `yaml:"unset_env"`
	StandardArgs string   `yaml:"standard_args"`
}

type permission struct {
	Pattern string `yaml:"pattern"`
	Mode    string `yaml:"mode"`
}

type test struct {
	Files   []testFile `yaml:"files"`
	Command []string   `yaml:"command"`
	Expect  *string    `yaml:"expect"`
}

type testFile struct {
	Path    string  `yaml:"path"`
	Content *string `yaml:"content"`
}

// Loader is the YAML implementation of descriptor.Loader.
type Loader struct{}

// NewLoader creates a new YAML descriptor loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ descriptor.Loader = (*Loader)(nil)

// Load reads and parses a single YAML descriptor file.
func (l *Loader) Load(ctx context.Context, path string) (*descriptor.Package, error) {
	ctxlog.FromContext(ctx).Debug("YAML loader started.", "path", path)
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor %s: %w", path, err)
	}
	return l.Parse(ctx, src, path)
}

// Parse decodes an in-memory YAML descriptor into a finalized Package.
func (l *Loader) Parse(ctx context.Context, src []byte, filename string) (*descriptor.Package, error) {
	logger := ctxlog.FromContext(ctx).With("file", filename)

	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s is empty", descriptor.ErrMalformedDescriptor, filename)
		}
		return nil, fmt.Errorf("%w: failed to parse YAML file %s: %w", descriptor.ErrMalformedDescriptor, filename, err)
	}

	t := translator{filename: filename}
	pkg, err := t.translate(&doc)
	if err != nil {
		return nil, fmt.Errorf("in %s: %w", filename, err)
	}
	pkg.Source = filename

	if err := descriptor.Finalize(pkg); err != nil {
		return nil, fmt.Errorf("in %s: %w", filename, err)
	}

	logger.Debug("YAML loading complete.", "package", pkg.Name, "version", pkg.Version)
	return pkg, nil
}

// translator turns the YAML document into the descriptor model, parsing
// expression strings along the way.
type translator struct {
	filename string
}

func (t translator) translate(doc *document) (*descriptor.Package, error) {
	pkg := &descriptor.Package{
		Name:        doc.Name,
		Version:     doc.Version,
		URL:         doc.URL,
		Checksum:    doc.SHA256,
		Homepage:    doc.Homepage,
		Description: doc.Description,
		Head:        doc.Head,
		Bottles:     doc.Bottles,
	}

	var err error
	if pkg.Caveats, err = t.template(doc.Caveats, "caveats"); err != nil {
		return nil, err
	}

	for _, d := range doc.Dependencies {
		dep := &descriptor.Dependency{
			Name:              d.Name,
			Kind:              descriptor.Kind(d.Kind),
			Variant:           d.Variant,
			VersionConstraint: d.Version,
		}
		if d.Runtime != nil {
			rt := &descriptor.Runtime{Executable: d.Runtime.Executable}
			for _, q := range d.Runtime.Queries {
				rt.Queries = append(rt.Queries, &descriptor.Query{Name: q.Name, Args: q.Args})
			}
			for i := range d.Runtime.Library {
				expr, err := t.template(&d.Runtime.Library[i], fmt.Sprintf("dependency %q library", d.Name))
				if err != nil {
					return nil, err
				}
				rt.Library = append(rt.Library, expr)
			}
			dep.Runtime = rt
		}
		pkg.Dependencies = append(pkg.Dependencies, dep)
	}

	for _, o := range doc.Options {
		value, err := t.template(o.Value, fmt.Sprintf("option %q value", o.Name))
		if err != nil {
			return nil, err
		}
		cond, err := t.expression(o.Condition, fmt.Sprintf("option %q condition", o.Name))
		if err != nil {
			return nil, err
		}
		pkg.Options = append(pkg.Options, &descriptor.BuildOption{Name: o.Name, Value: value, Condition: cond})
	}

	if doc.Build != nil {
		pkg.Build = &descriptor.Build{
			Directory:    doc.Build.Directory,
			Configure:    doc.Build.Configure,
			Compile:      doc.Build.Compile,
			Install:      doc.Build.Install,
			UnsetEnv:     doc.Build.UnsetEnv,
			StandardArgs: doc.Build.StandardArgs,
		}
	}

	for _, p := range doc.Permissions {
		mode, err := descriptor.ParseMode(p.Mode)
		if err != nil {
			return nil, fmt.Errorf("permissions %q: %w", p.Pattern, err)
		}
		pkg.Permissions = append(pkg.Permissions, &descriptor.Permission{Pattern: p.Pattern, Mode: mode})
	}

	if doc.Test != nil {
		ts := &descriptor.TestScript{Command: doc.Test.Command}
		if ts.Expect, err = t.template(doc.Test.Expect, "test expect"); err != nil {
			return nil, err
		}
		for _, f := range doc.Test.Files {
			content, err := t.template(f.Content, fmt.Sprintf("test file %q", f.Path))
			if err != nil {
				return nil, err
			}
			ts.Files = append(ts.Files, &descriptor.TestFile{Path: f.Path, Content: content})
		}
		pkg.Test = ts
	}

	return pkg, nil
}

// template parses s as an HCL template; nil input means the field is absent.
func (t translator) template(s *string, what string) (hcl.Expression, error) {
	if s == nil {
		return nil, nil
	}
	expr, diags := hclsyntax.ParseTemplate([]byte(*s), t.filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s: %w", descriptor.ErrMalformedDescriptor, what, diags)
	}
	return expr, nil
}

// expression parses s as a bare HCL expression.
func (t translator) expression(s *string, what string) (hcl.Expression, error) {
	if s == nil {
		return nil, nil
	}
	expr, diags := hclsyntax.ParseExpression([]byte(*s), t.filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s: %w", descriptor.ErrMalformedDescriptor, what, diags)
	}
	return expr, nil
}
