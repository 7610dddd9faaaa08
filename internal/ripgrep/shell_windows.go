//go:build windows

package ripgrep

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// shellCommand runs line under cmd.exe. The command line is passed verbatim
// because QuoteForShell already produced cmd.exe quoting. Cancelling kills
// the whole tree, ripgrep included, not just cmd.exe.
func shellCommand(ctx context.Context, line string) *exec.Cmd {
	comspec := os.Getenv("ComSpec")
	if comspec == "" {
		comspec = filepath.Join(os.Getenv("SystemRoot"), "System32", "cmd.exe")
	}
	cmd := exec.CommandContext(ctx, comspec)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: `/S /C "` + line + `"`,
	}
	cmd.Cancel = func() error {
		return killTree(uint32(cmd.Process.Pid))
	}
	return cmd
}

// descendants lists every process below pid, children before grandchildren
func descendants(pid uint32) ([]uint32, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snap)

	children := make(map[uint32][]uint32)
	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		if entry.ProcessID != entry.ParentProcessID {
			children[entry.ParentProcessID] = append(children[entry.ParentProcessID], entry.ProcessID)
		}
	}

	var out []uint32
	seen := map[uint32]bool{pid: true}
	queue := []uint32{pid}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, c := range children[p] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out, nil
}

// killTree terminates pid and everything it started. The tree is read
// before the root dies so orphaned children are still found.
func killTree(pid uint32) error {
	tree, err := descendants(pid)
	if err != nil {
		return err
	}
	firstErr := terminate(pid)
	for _, p := range tree {
		// A child may have exited on its own already
		terminate(p)
	}
	return firstErr
}

func terminate(pid uint32) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)
	return windows.TerminateProcess(h, 1)
}

func executable(uint32) bool {
	return true
}
