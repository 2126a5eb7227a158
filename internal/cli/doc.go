// Package cli turns the formulago command line into an app.Config. Flags may
// appear before or after the install/plan command, FORMULAGO_* environment
// variables fill in what the flags leave out, and every failure is reported
// as an ExitError carrying the process exit code.
package cli
