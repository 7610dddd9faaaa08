package safety

import "golang.org/x/sys/unix"

func systemFreeMemory() (uint64, bool) {
	pages, err := unix.SysctlUint32("vm.page_free_count")
	if err != nil {
		return 0, false
	}
	return uint64(pages) * uint64(unix.Getpagesize()), true
}
