//go:build !sectordebug

package sectorstore

// maybePanic is a no-op in release builds; contract violations are reported
// as ordinary errors only.
func maybePanic(err error) {}

const debugBuild = false
