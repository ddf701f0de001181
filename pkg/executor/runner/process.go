package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultWaitDelay bounds how long Run keeps waiting on output pipes once the
// process group has been killed or the leader has exited.
const DefaultWaitDelay = 2 * time.Second

// ProcessRunner runs commands as local child processes, each in its own
// process group so that no descendant outlives the run.
type ProcessRunner struct {
	WaitDelay time.Duration
}

func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{WaitDelay: DefaultWaitDelay}
}

func (r *ProcessRunner) Run(ctx context.Context, c Command) Result {
	start := time.Now()

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	// Setpgid gives the child a fresh process group (PGID == PID), so the
	// whole tree can be signalled at once.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Cancel only runs while the leader has not been reaped, so a kill made
	// here is the deadline cutting a live script short.
	var timedOut atomic.Bool
	cmd.Cancel = func() error {
		err := killGroup(cmd.Process.Pid)
		if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			timedOut.Store(true)
		}
		return err
	}
	cmd.WaitDelay = r.WaitDelay

	err := cmd.Run()
	duration := time.Since(start)

	// Background descendants survive their leader; none may outlive the run.
	if cmd.Process != nil {
		_ = killGroup(cmd.Process.Pid)
	}

	// The leader exited but a background descendant kept the pipes open.
	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}

	exitCode := 0
	var runErr error
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// -1 when the process was terminated by a signal.
			exitCode = exitErr.ExitCode()
		} else if !timedOut.Load() {
			exitCode = -1
			runErr = err
		}
	}
	if timedOut.Load() {
		exitCode = -1
	}

	return Result{
		ExitCode: exitCode,
		Stdout:   strings.ToValidUTF8(stdoutBuf.String(), "\uFFFD"),
		Stderr:   strings.ToValidUTF8(stderrBuf.String(), "\uFFFD"),
		Duration: duration,
		TimedOut: timedOut.Load(),
		Error:    runErr,
	}
}

// killGroup sends SIGKILL to every process in the group led by pid.
func killGroup(pid int) error {
	err := unix.Kill(-pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
