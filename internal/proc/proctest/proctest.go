// Package proctest provides a fake process handle for exercising the
// monitor and shutdown paths without real child processes.
package proctest

import (
	"context"
	"sync"
)

// FakeProcess implements proc.Process with scriptable exit behavior.
type FakeProcess struct {
	mu sync.Mutex

	pid             int
	done            chan struct{}
	exited          bool
	ignoreTerminate bool
	terminateErr    error
	killErr         error
	terminateCalls  int
	killCalls       int
}

// New creates a fake live process with the given pid.
func New(pid int) *FakeProcess {
	return &FakeProcess{pid: pid, done: make(chan struct{})}
}

// IgnoreTerminate makes Terminate a no-op, simulating a child that ignores
// the graceful request until killed.
func (p *FakeProcess) IgnoreTerminate() { p.ignoreTerminate = true }

// FailTerminate makes Terminate return err.
func (p *FakeProcess) FailTerminate(err error) { p.terminateErr = err }

// Exit marks the process as exited.
func (p *FakeProcess) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		p.exited = true
		close(p.done)
	}
}

func (p *FakeProcess) PID() int { return p.pid }

func (p *FakeProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *FakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminateCalls++
	ignore, err := p.ignoreTerminate, p.terminateErr
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if !ignore {
		p.Exit()
	}
	return nil
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	p.killCalls++
	err := p.killErr
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.Exit()
	return nil
}

func (p *FakeProcess) Done() <-chan struct{} { return p.done }

func (p *FakeProcess) WaitExit(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TerminateCalls returns how many times Terminate was invoked.
func (p *FakeProcess) TerminateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminateCalls
}

// KillCalls returns how many times Kill was invoked.
func (p *FakeProcess) KillCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killCalls
}
