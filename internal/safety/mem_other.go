//go:build !linux && !darwin

package safety

// systemFreeMemory is not measured here; the system check is skipped
func systemFreeMemory() (uint64, bool) {
	return 0, false
}
