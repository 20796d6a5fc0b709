//go:build linux
// +build linux

package launcher

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the engine in its own process group and asks the
// kernel to kill it if this process dies first, mirroring
// _teacher/chromium/kill_linux.go's KillAfterParent.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}

// killProcessGroup force-kills the whole process group rooted at pid, used
// as the fallback when the engine doesn't exit within the graceful window.
func killProcessGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}
