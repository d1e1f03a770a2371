//go:build linux

package sandbox

import "golang.org/x/sys/unix"

// applyRAMCap limits the child's address space to capMB. Applied right
// after Start, so a pathological allocation in the first instants can
// slip through; the timeout still bounds the damage.
func applyRAMCap(pid, capMB int) error {
	limit := uint64(capMB) * 1024 * 1024
	rlim := unix.Rlimit{Cur: limit, Max: limit}
	return unix.Prlimit(pid, unix.RLIMIT_AS, &rlim, nil)
}
