// Package shell runs external programs as blocking, synchronous
// invocations with captured stdout and stderr and an optional
// per-invocation timeout. It is the single boundary through which the
// resolver and the build orchestrator touch subprocesses, which lets tests
// substitute a fake Runner.
package shell
