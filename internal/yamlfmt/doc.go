// Package yamlfmt implements the descriptor Loader interface for YAML
// descriptors. The document layout mirrors the HCL format field for field.
//
// YAML has no expression syntax of its own, so expression-valued fields are
// written as HCL templates ("${prefix}/bin") and conditions as HCL
// expressions ("with.python || with.python3"). They are parsed with
// hclsyntax at load time, which keeps the resolver independent of the
// source format.
package yamlfmt
