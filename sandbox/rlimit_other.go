//go:build !linux

package sandbox

// applyRAMCap is a no-op where per-process address-space limits are
// unavailable.
func applyRAMCap(pid, capMB int) error {
	return nil
}
