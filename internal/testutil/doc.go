// Package testutil holds fixtures shared by the provider, bridge and
// harness tests.
package testutil
