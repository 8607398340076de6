//go:build unix

package engine

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcessGroup puts the child in its own process group so that
// SIGINT/SIGTERM sent to the parent's process group (e.g. by a shell on
// Ctrl-C) do not also reach the engine directly (spec §4.2).
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// setNice applies a nice adjustment to an already-started process.
func setNice(pid, adjust int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, pid, adjust)
}

// terminate sends SIGTERM to the child's process group.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}
