//go:build !windows

package ripgrep

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// shellCommand runs line under sh in its own process group, so cancelling
// kills ripgrep along with the shell.
func shellCommand(ctx context.Context, line string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", line)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	return cmd
}

// executable reports whether mode carries any execute bit
func executable(mode uint32) bool {
	return mode&0o111 != 0
}
