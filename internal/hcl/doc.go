// Package hcl provides the concrete HCL implementation of the descriptor
// Loader interface. It is responsible for file parsing and for translating
// the HCL block schema into the format-agnostic descriptor model.
//
// Literal fields (url, sha256, dependency kinds, commands) are decoded
// eagerly. Fields that reference resolution-time variables, such as option
// values and conditions, caveats and test file contents, are kept as raw
// hcl.Expression values and evaluated later by the resolver.
package hcl
