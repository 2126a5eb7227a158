package descriptor

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSum = "f438f2ae6e25496fa81df525935fb0bf2a403855d95c40b3e0f3a3e1e861a085"

func minimalPackage() *Package {
	return &Package{
		Name:     "root",
		URL:      "https://root.cern.ch/download/root_v6.12.04.source.tar.gz",
		Checksum: validSum,
	}
}

func mustExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func TestInferVersion(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"https://root.cern.ch/download/root_v6.12.04.source.tar.gz", "6.12.04", true},
		{"https://example.com/cmake-3.10.2.tar.gz", "3.10.2", true},
		{"https://example.com/fftw-3.3.7.tar.xz", "3.3.7", true},
		{"https://example.com/openssl-1.0.2n.tar.gz", "1.0.2n", true},
		{"https://github.com/foo/bar/archive/v1.2.tgz", "1.2", true},
		{"https://example.com/download/latest.tar.gz", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			t.Parallel()
			got, ok := InferVersion(tc.url)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateChecksum(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateChecksum(validSum))
	assert.NoError(t, ValidateChecksum("F438F2AE6E25496FA81DF525935FB0BF2A403855D95C40B3E0F3A3E1E861A085"))

	for _, bad := range []string{"", "abc", validSum + "0", validSum[:63] + "g"} {
		err := ValidateChecksum(bad)
		assert.ErrorIs(t, err, ErrChecksumFormat, "checksum %q", bad)
		assert.True(t, IsMalformed(err))
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	mode, err := ParseMode("0755")
	require.NoError(t, err)
	assert.Equal(t, "-rwxr-xr-x", mode.String())

	for _, bad := range []string{"", "0", "999", "rwx", "17777"} {
		_, err := ParseMode(bad)
		assert.ErrorIs(t, err, ErrMalformedDescriptor, "mode %q", bad)
	}
}

func TestFinalize_AppliesDefaults(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	p := minimalPackage()
	p.Dependencies = []*Dependency{{Name: "fftw"}}

	// --- Act ---
	err := Finalize(p)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "6.12.04", p.Version, "version should be inferred from the url")
	assert.Equal(t, KindRuntime, p.Dependencies[0].Kind, "kind should default to runtime")
	require.NotNil(t, p.Build)
	assert.Equal(t, "builddir", p.Build.Directory)
	assert.Equal(t, []string{"cmake", ".."}, p.Build.Configure)
	assert.Equal(t, []string{"make", "install"}, p.Build.Install)
	assert.Equal(t, StandardArgsCMake, p.Build.StandardArgs)
}

func TestFinalize_MissingRequiredFields(t *testing.T) {
	t.Parallel()

	p := &Package{Name: "root"}
	err := Finalize(p)

	require.ErrorIs(t, err, ErrMalformedDescriptor)
	assert.Contains(t, err.Error(), "url, sha256")
}

func TestFinalize_Rejects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(p *Package)
		wantErr error
		wantMsg string
	}{
		{
			name:    "bad checksum",
			mutate:  func(p *Package) { p.Checksum = "deadbeef" },
			wantErr: ErrChecksumFormat,
		},
		{
			name:    "bad bottle checksum",
			mutate:  func(p *Package) { p.Bottles = map[string]string{"sierra": "nope"} },
			wantErr: ErrChecksumFormat,
			wantMsg: `bottle "sierra"`,
		},
		{
			name: "version cannot be inferred",
			mutate: func(p *Package) {
				p.URL = "https://example.com/latest.tar.gz"
			},
			wantErr: ErrMalformedDescriptor,
			wantMsg: "no version",
		},
		{
			name:    "version climbs out of the cellar",
			mutate:  func(p *Package) { p.Version = "../../.." },
			wantErr: ErrMalformedDescriptor,
			wantMsg: `version "../../.." must be a single path element`,
		},
		{
			name:    "version is the current directory",
			mutate:  func(p *Package) { p.Version = "." },
			wantErr: ErrMalformedDescriptor,
			wantMsg: "single path element",
		},
		{
			name:    "name with separator",
			mutate:  func(p *Package) { p.Name = "root/6.12" },
			wantErr: ErrMalformedDescriptor,
			wantMsg: `name "root/6.12"`,
		},
		{
			name:    "absolute name",
			mutate:  func(p *Package) { p.Name = "/home/u" },
			wantErr: ErrMalformedDescriptor,
			wantMsg: "single path element",
		},
		{
			name: "duplicate dependency",
			mutate: func(p *Package) {
				p.Dependencies = []*Dependency{{Name: "gsl"}, {Name: "gsl", Kind: KindBuild}}
			},
			wantErr: ErrMalformedDescriptor,
			wantMsg: "declared more than once",
		},
		{
			name: "unknown kind",
			mutate: func(p *Package) {
				p.Dependencies = []*Dependency{{Name: "gsl", Kind: "sometimes"}}
			},
			wantErr: ErrMalformedDescriptor,
			wantMsg: "unknown kind",
		},
		{
			name: "mandatory dependency in variant group",
			mutate: func(p *Package) {
				p.Dependencies = []*Dependency{{Name: "python", Kind: KindRuntime, Variant: "python"}}
			},
			wantErr: ErrMalformedDescriptor,
			wantMsg: "cannot join variant group",
		},
		{
			name: "two recommended members",
			mutate: func(p *Package) {
				p.Dependencies = []*Dependency{
					{Name: "python", Kind: KindRecommended, Variant: "python"},
					{Name: "python3", Kind: KindRecommended, Variant: "python"},
				}
			},
			wantErr: ErrMalformedDescriptor,
			wantMsg: "two recommended members",
		},
		{
			name: "invalid version constraint",
			mutate: func(p *Package) {
				p.Dependencies = []*Dependency{{Name: "cmake", VersionConstraint: ">= banana"}}
			},
			wantErr: ErrMalformedDescriptor,
			wantMsg: "invalid version constraint",
		},
		{
			name: "runtime without executable",
			mutate: func(p *Package) {
				p.Dependencies = []*Dependency{{Name: "python", Runtime: &Runtime{}}}
			},
			wantErr: ErrMalformedDescriptor,
			wantMsg: "needs an executable",
		},
		{
			name: "reserved query name",
			mutate: func(p *Package) {
				p.Dependencies = []*Dependency{{Name: "python", Runtime: &Runtime{
					Executable: "python",
					Queries:    []*Query{{Name: "library"}},
				}}}
			},
			wantErr: ErrMalformedDescriptor,
			wantMsg: "reserved",
		},
		{
			name:    "unknown standard args preset",
			mutate:  func(p *Package) { p.Build = &Build{StandardArgs: "autotools"} },
			wantErr: ErrMalformedDescriptor,
			wantMsg: "standard_args",
		},
		{
			name:    "build directory escapes source tree",
			mutate:  func(p *Package) { p.Build = &Build{Directory: "../out"} },
			wantErr: ErrMalformedDescriptor,
			wantMsg: "build directory",
		},
		{
			name: "absolute permission pattern",
			mutate: func(p *Package) {
				p.Permissions = []*Permission{{Pattern: "/usr/bin/*", Mode: 0o755}}
			},
			wantErr: ErrMalformedDescriptor,
			wantMsg: "relative to the prefix",
		},
		{
			name:    "test without command",
			mutate:  func(p *Package) { p.Test = &TestScript{} },
			wantErr: ErrMalformedDescriptor,
			wantMsg: "needs a command",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := minimalPackage()
			tc.mutate(p)

			err := Finalize(p)

			require.ErrorIs(t, err, tc.wantErr)
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestFinalize_ExpressionReferences(t *testing.T) {
	t.Parallel()

	deps := func() []*Dependency {
		return []*Dependency{
			{Name: "python", Kind: KindRecommended, Variant: "python"},
			{Name: "python3", Kind: KindOptional, Variant: "python"},
		}
	}

	testCases := []struct {
		name      string
		condition string
		value     string
		wantMsg   string
	}{
		{name: "valid", condition: "with.python || with.python3", value: "binding.python.library"},
		{name: "unknown root", condition: "enabled.python", wantMsg: `unknown variable "enabled"`},
		{name: "undeclared dependency", condition: "with.ruby", wantMsg: `undeclared dependency "ruby"`},
		{name: "unknown variant", value: "binding.perl.library", wantMsg: `unknown variant "perl"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := minimalPackage()
			p.Dependencies = deps()
			o := &BuildOption{Name: "-DPYTHON_LIBRARY"}
			if tc.condition != "" {
				o.Condition = mustExpr(t, tc.condition)
			}
			if tc.value != "" {
				o.Value = mustExpr(t, tc.value)
			}
			p.Options = []*BuildOption{o}

			err := Finalize(p)

			if tc.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrMalformedDescriptor)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestFinalize_LibraryCandidatesOnlyUseQueries(t *testing.T) {
	t.Parallel()

	p := minimalPackage()
	p.Dependencies = []*Dependency{{
		Name: "python",
		Runtime: &Runtime{
			Executable: "python",
			Queries:    []*Query{{Name: "prefix", Args: []string{"-c", "x"}}},
			Library:    []hcl.Expression{mustExpr(t, "prefix"), mustExpr(t, "version")},
		},
	}}

	err := Finalize(p)

	require.ErrorIs(t, err, ErrMalformedDescriptor)
	assert.Contains(t, err.Error(), `unknown query "version"`)
}
