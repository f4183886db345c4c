// Package proc wraps started OS processes behind a small handle interface so
// the monitor and shutdown paths can be exercised against fakes in tests.
package proc

import (
	"context"
	"os/exec"
	"syscall"
)

// Process is the handle the supervisor keeps for a launched node.
type Process interface {
	// PID returns the operating system process id.
	PID() int
	// Exited reports whether the process has terminated.
	Exited() bool
	// Terminate sends a graceful termination request (SIGTERM).
	Terminate() error
	// Kill forcefully terminates the process.
	Kill() error
	// Done returns a channel closed once the process has exited.
	Done() <-chan struct{}
	// WaitExit blocks until the process exits or the context is done.
	WaitExit(ctx context.Context) error
}

// OSProcess is the real Process implementation backed by exec.Cmd.
type OSProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// NewOSProcess wraps an already-started command. It spawns the single
// goroutine that reaps the child; all exit checks go through the done channel
// so Wait is never called twice.
func NewOSProcess(cmd *exec.Cmd) *OSProcess {
	p := &OSProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p
}

// PID returns the child's process id.
func (p *OSProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Exited reports whether the child has been reaped.
func (p *OSProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the error from Wait, valid only after Exited is true.
func (p *OSProcess) ExitErr() error {
	return p.waitErr
}

// Terminate sends SIGTERM to request voluntary shutdown.
func (p *OSProcess) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill sends SIGKILL.
func (p *OSProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Done returns a channel closed when the child has exited.
func (p *OSProcess) Done() <-chan struct{} {
	return p.done
}

// WaitExit blocks until the child exits or ctx is done.
func (p *OSProcess) WaitExit(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
