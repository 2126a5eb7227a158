package resolve

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/formulago/internal/descriptor"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions available to every descriptor expression.
var functions = map[string]function.Function{
	"upper":     stdlib.UpperFunc,
	"lower":     stdlib.LowerFunc,
	"join":      stdlib.JoinFunc,
	"format":    stdlib.FormatFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"replace":   stdlib.ReplaceFunc,
	"coalesce":  stdlib.CoalesceFunc,
}

// scope collects the variables package-level expressions are evaluated in.
type scope struct {
	pkg      *descriptor.Package
	prefix   string
	root     string
	selected map[string]bool
	bindings map[string]*ResolvedDependency
}

func (s *scope) evalContext() *hcl.EvalContext {
	with := make(map[string]cty.Value, len(s.pkg.Dependencies))
	for _, d := range s.pkg.Dependencies {
		with[d.Name] = cty.BoolVal(s.selected[d.Name])
	}

	binding := make(map[string]cty.Value, len(s.bindings))
	for variant, dep := range s.bindings {
		attrs := map[string]cty.Value{"name": cty.StringVal(dep.Name)}
		if rt := dep.Runtime; rt != nil {
			attrs["executable"] = cty.StringVal(rt.Executable)
			attrs["library"] = cty.StringVal(rt.Library)
			for k, v := range rt.Values {
				attrs[k] = cty.StringVal(v)
			}
		}
		binding[variant] = cty.ObjectVal(attrs)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"name":        cty.StringVal(s.pkg.Name),
			"version":     cty.StringVal(s.pkg.Version),
			"prefix":      cty.StringVal(s.prefix),
			"bin":         cty.StringVal(filepath.Join(s.prefix, "bin")),
			"lib":         cty.StringVal(filepath.Join(s.prefix, "lib")),
			"include":     cty.StringVal(filepath.Join(s.prefix, "include")),
			"share":       cty.StringVal(filepath.Join(s.prefix, "share")),
			"root_prefix": cty.StringVal(s.root),
			"with":        cty.ObjectVal(with),
			"binding":     cty.ObjectVal(binding),
		},
		Functions: functions,
	}
}

// evalString evaluates expr and converts the result to a string.
func evalString(expr hcl.Expression, evalCtx *hcl.EvalContext, what string) (string, error) {
	v, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", fmt.Errorf("%w: %s: %w", descriptor.ErrMalformedDescriptor, what, diags)
	}
	v, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("%w: %s must be a string: %w", descriptor.ErrMalformedDescriptor, what, err)
	}
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("%w: %s evaluated to null", descriptor.ErrMalformedDescriptor, what)
	}
	return v.AsString(), nil
}

// evalBool evaluates a predicate.
func evalBool(expr hcl.Expression, evalCtx *hcl.EvalContext, what string) (bool, error) {
	v, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return false, fmt.Errorf("%w: %s: %w", descriptor.ErrMalformedDescriptor, what, diags)
	}
	v, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a bool: %w", descriptor.ErrMalformedDescriptor, what, err)
	}
	if v.IsNull() || !v.IsKnown() {
		return false, fmt.Errorf("%w: %s evaluated to null", descriptor.ErrMalformedDescriptor, what)
	}
	return v.True(), nil
}
