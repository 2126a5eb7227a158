// Package build implements the build orchestrator: it takes a resolved
// install plan through a strictly sequential pipeline and reports the
// outcome.
//
// # Pipeline
//
//	Resolved → Fetching → Configuring → Building → Installing → Verifying → Verified
//	                ╲           ╲            ╲            ╲            ╲
//	                 └───────────┴────────────┴────────────┴────────────┴──→ Failed(stage)
//
// Each stage depends on the filesystem state left by the previous one, so
// nothing runs concurrently. Every external invocation is blocking, has its
// output captured, and is killed when it exceeds the configured timeout.
// There are no retries: the first failure is terminal and is returned as a
// *StageError naming the stage, the exit code and the captured output.
//
// # Work directory
//
// The orchestrator exclusively owns <work-dir>/<name>-<version>. It is
// wiped before every run so a re-run never sees stale state, removed after
// a verified install unless KeepBuildDir is set, and left in place on
// failure for inspection.
package build
