package spawnmgr

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// withLauncher replaces the process launcher, for tests
func withLauncher(l launcher) Option {
	return func(m *Manager) {
		m.launcher = l
	}
}

// fakeBehavior scripts how the channels of a fakeLauncher answer requests
type fakeBehavior struct {
	pid      string        // first reply field
	eof      bool          // Read reports end-of-stream
	writeErr error         // Write fails
	readErr  error         // Read fails
	fileErr  error         // ReadFile fails
	delay    time.Duration // time spent inside each exchange
	hang     bool          // the process ignores its channel closing
}

// fakeLauncher hands out fake spawn servers and records what happens to
// them. Every channel it creates shares one in-flight counter, so overlapping
// exchanges are detected across restarts.
type fakeLauncher struct {
	mu        sync.Mutex
	behavior  fakeBehavior
	err       error
	nextPID   int
	launches  int
	events    []string
	channels  []*fakeChannel
	processes []*fakeProcess

	inFlight atomic.Int32
	overlap  atomic.Bool
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		behavior: fakeBehavior{pid: "4242"},
		nextPID:  100,
	}
}

func (l *fakeLauncher) Launch(cfg launchConfig) (serverProcess, Channel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.launches++
	l.events = append(l.events, "launch")
	if l.err != nil {
		return nil, nil, l.err
	}

	l.nextPID++
	proc := &fakeProcess{pid: l.nextPID, exited: make(chan struct{}), killed: make(chan struct{})}
	ch := &fakeChannel{launcher: l, process: proc, behavior: l.behavior}
	l.processes = append(l.processes, proc)
	l.channels = append(l.channels, ch)
	return proc, ch, nil
}

func (l *fakeLauncher) setBehavior(b fakeBehavior) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.behavior = b
}

func (l *fakeLauncher) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *fakeLauncher) record(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *fakeLauncher) snapshot() (launches int, events []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches, append([]string(nil), l.events...)
}

func (l *fakeLauncher) channel(i int) *fakeChannel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.channels[i]
}

func (l *fakeLauncher) process(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processes[i]
}

type fakeProcess struct {
	pid       int
	exited    chan struct{}
	exitOnce  sync.Once
	killed    chan struct{}
	killOnce  sync.Once
	waitCalls atomic.Int32
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Wait() error {
	p.waitCalls.Add(1)
	select {
	case <-p.exited:
	case <-p.killed:
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.killOnce.Do(func() { close(p.killed) })
	return nil
}

func (p *fakeProcess) wasKilled() bool {
	select {
	case <-p.killed:
		return true
	default:
		return false
	}
}

func (p *fakeProcess) exit() {
	p.exitOnce.Do(func() { close(p.exited) })
}

// fakeChannel answers according to its behavior. It flags any exchange that
// starts while another one, on any channel of the same launcher, is still
// in flight.
type fakeChannel struct {
	launcher *fakeLauncher
	process  *fakeProcess
	behavior fakeBehavior

	closed    atomic.Bool
	pending   atomic.Bool
	deadlines []time.Time
}

func (c *fakeChannel) enter() {
	c.pending.Store(true)
	if c.launcher.inFlight.Add(1) > 1 {
		c.launcher.overlap.Store(true)
	}
}

// leave ends the exchange in flight, if any. An exchange abandoned halfway
// ends when the channel is closed.
func (c *fakeChannel) leave() {
	if c.pending.Swap(false) {
		c.launcher.inFlight.Add(-1)
	}
}

func (c *fakeChannel) Write(command string, args ...string) error {
	if c.closed.Load() {
		return &IOError{Op: "write", Err: os.ErrClosed}
	}
	c.enter()
	c.launcher.record("write:" + command)
	if c.behavior.delay > 0 {
		time.Sleep(c.behavior.delay)
	}
	if c.behavior.writeErr != nil {
		c.leave()
		return c.behavior.writeErr
	}
	return nil
}

func (c *fakeChannel) Read() ([]string, error) {
	switch {
	case c.behavior.eof:
		c.leave()
		return nil, io.EOF
	case c.behavior.readErr != nil:
		c.leave()
		return nil, c.behavior.readErr
	}
	return []string{c.behavior.pid}, nil
}

func (c *fakeChannel) ReadFile() (*os.File, error) {
	defer c.leave()
	if c.behavior.fileErr != nil {
		return nil, c.behavior.fileErr
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	_ = w.Close()
	return r, nil
}

func (c *fakeChannel) SetDeadline(t time.Time) error {
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *fakeChannel) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.leave()
		if !c.behavior.hang {
			c.process.exit()
		}
	}
	return nil
}
