// Package procutil provides the platform terminate-then-kill sequence used
// to stop child ffmpeg/HAT processes on cancellation.
package procutil

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sheetcap/sheetcap/internal/logger"
)

// KillGracePeriod is the wait between SIGTERM and SIGKILL, per spec §5's
// cancellation model.
const KillGracePeriod = 2500 * time.Millisecond

// SetupProcessGroup configures cmd to run in its own process group so that
// Terminate can signal the whole group (ffmpeg's own children included).
func SetupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Terminate sends SIGTERM to cmd's process group and, if it hasn't exited
// within KillGracePeriod, follows with SIGKILL. done should be closed (or
// receivable) once cmd.Wait returns; Terminate does not itself call Wait.
func Terminate(cmd *exec.Cmd, done <-chan struct{}) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid

	signalGroup(pgid, unix.SIGTERM)

	select {
	case <-done:
		return
	case <-time.After(KillGracePeriod):
		logger.Warn("process did not exit after SIGTERM, sending SIGKILL", "pid", pgid)
		signalGroup(pgid, unix.SIGKILL)
	}
}

func signalGroup(pgid int, sig syscall.Signal) {
	if err := unix.Kill(-pgid, sig); err != nil {
		logger.Debug("signal process group failed", "pgid", pgid, "signal", sig, "err", err)
	}
}
