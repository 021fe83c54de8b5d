//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the child in its own process group so signals
// reach everything it spawned, and so terminal signals aimed at the TUI do
// not reach it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// requestStop sends SIGTERM to the child's process group.
func requestStop(proc *os.Process) error {
	return signalGroup(proc, syscall.SIGTERM)
}

// forceKill sends SIGKILL to the child's process group.
func forceKill(proc *os.Process) error {
	return signalGroup(proc, syscall.SIGKILL)
}

func signalGroup(proc *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-proc.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// group already gone; fall back to the leader itself
		err = proc.Signal(sig)
	}
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
