// Package resolve turns a loaded descriptor and a user selection into a
// deterministic install plan.
//
// # Resolution
//
//  1. Mandatory (build and runtime) dependencies are always included.
//  2. Recommended dependencies are included unless disabled with --without.
//  3. Optional dependencies are included only when enabled with --with.
//  4. Members of one variant group are mutually exclusive; selecting two of
//     them fails with ErrConflictingOptions whatever the selection order.
//  5. Selected dependencies are checked against the Inventory, and runtime
//     dependencies are introspected through the PathResolver.
//  6. Build options are evaluated once, in declaration order, against the
//     final selection. A later option with the same name replaces the value
//     of an earlier one and keeps its position.
//
// # Boundaries
//
// Everything impure sits behind two interfaces: PathResolver (locating and
// querying language runtimes, probing library files) and Inventory
// (installed dependencies). Both have fakes in internal/testutil.
package resolve
