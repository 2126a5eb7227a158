// Package testutil holds helpers shared by the package tests: a logger
// carrying context, fakes for the host-facing interfaces, and builders for
// source archives and descriptor files.
package testutil
