// Package descriptor defines the format-agnostic package descriptor model
// (the "formula"), the Loader interface implemented by the concrete format
// packages, and the structural validation every loaded descriptor must pass.
//
// A `descriptor.Package` is the single source of truth for the resolver and
// the build orchestrator. Fields that depend on resolution results, such as
// build option values, option conditions, caveats and test file contents,
// are kept as unevaluated HCL expressions regardless of the source format;
// they are evaluated exactly once by the resolver.
//
// Concrete implementations of the Loader interface live in the `hcl` and
// `yamlfmt` packages. Both hand their output to Finalize, which applies
// defaults and enforces the invariants described on each type.
package descriptor
