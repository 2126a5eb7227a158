package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes all top-level blocks of a descriptor file. There is no
// remain body, so unknown blocks and attributes are decoding errors.
type fileRoot struct {
	Packages []*packageBlock `hcl:"package,block"`
}

// Required fields are declared optional here so that their absence is
// reported by descriptor.Finalize as a malformed descriptor rather than as
// an HCL decoding diagnostic.
type packageBlock struct {
	Name        string            `hcl:"name,label"`
	Description string            `hcl:"description,optional"`
	Homepage    string            `hcl:"homepage,optional"`
	URL         string            `hcl:"url,optional"`
	Version     string            `hcl:"version,optional"`
	SHA256      string            `hcl:"sha256,optional"`
	Head        string            `hcl:"head,optional"`
	Bottles     map[string]string `hcl:"bottles,optional"`
	Caveats     hcl.Expression    `hcl:"caveats,optional"`

	Dependencies []*dependencyBlock `hcl:"depends_on,block"`
	Options      []*optionBlock     `hcl:"option,block"`
	Build        *buildBlock        `hcl:"build,block"`
	Permissions  []*permissionBlock `hcl:"permissions,block"`
	Test         *testBlock         `hcl:"test,block"`
}

type dependencyBlock struct {
	Name    string        `hcl:"name,label"`
	Kind    string        `hcl:"kind,optional"`
	Variant string        `hcl:"variant,optional"`
	Version string        `hcl:"version,optional"`
	Runtime *runtimeBlock `hcl:"runtime,block"`
}

type runtimeBlock struct {
	Executable string         `hcl:"executable,optional"`
	Queries    []*queryBlock  `hcl:"query,block"`
	Library    hcl.Expression `hcl:"library,optional"`
}

type queryBlock struct {
	Name string   `hcl:"name,label"`
	Args []string `hcl:"args,optional"`
}

type optionBlock struct {
	Name      string         `hcl:"name,label"`
	Value     hcl.Expression `hcl:"value,optional"`
	Condition hcl.Expression `hcl:"condition,optional"`
}

type buildBlock struct {
	Directory    string   `hcl:"directory,optional"`
	Configure    []string `hcl:"configure,optional"`
	Compile      []string `hcl:"compile,optional"`
	Install      []string `hcl:"install,optional"`
	UnsetEnv     []string `hcl:"unset_env,optional"`
	StandardArgs string   `hcl:"standard_args,optional"`
}

type permissionBlock struct {
	Pattern string `hcl:"pattern,label"`
	Mode    string `hcl:"mode"`
}

type testBlock struct {
	Files   []*testFileBlock `hcl:"file,block"`
	Command []string         `hcl:"command,optional"`
	Expect  hcl.Expression   `hcl:"expect,optional"`
}

type testFileBlock struct {
	Path    string         `hcl:"path,label"`
	Content hcl.Expression `hcl:"content,optional"`
}
