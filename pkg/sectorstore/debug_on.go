//go:build sectordebug

package sectorstore

// maybePanic aborts on contract violations when the module is built with
// the sectordebug tag, mirroring the source's "debug builds should abort
// with a message; release builds may elide the check for speed" policy.
func maybePanic(err error) {
	panic(err)
}

const debugBuild = true
