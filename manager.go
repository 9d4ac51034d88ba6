package spawnmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns a spawn server process and asks it to spawn application
// workers. All spawn requests are serialized: a request holds the manager
// for its whole duration, including any restart of the spawn server, so two
// exchanges never share the channel.
//
// When an exchange fails the manager assumes the channel can no longer be
// trusted and restarts the spawn server at the start of the next Spawn.
//
// The exported fields are configuration. Set them through options, or between
// calls; they must not change while another method may be running. A watch
// started by Watch keeps the values it started with.
type Manager struct {
	// ServerCommand is the spawn server program, run as Interpreter's argument
	ServerCommand string

	// LogFile receives the spawn server's stdout and stderr. Empty means the
	// server shares this process's stderr.
	LogFile string

	// Environment is exported to the spawn server as EnvironmentVariable.
	// Empty leaves the variable as inherited.
	Environment string

	// EnvironmentVariable is the name Environment is exported under
	EnvironmentVariable string

	// Interpreter runs ServerCommand; it is looked up in PATH
	Interpreter string

	// ShutdownTimeout bounds the wait for a spawn server to exit once its
	// channel is closed. The server is killed afterwards. Zero waits forever.
	ShutdownTimeout time.Duration

	// PIDFile, if set, holds the pid of the running spawn server
	PIDFile string

	// WatchDebounce coalesces change events seen by Watch
	WatchDebounce time.Duration

	logger   *zap.Logger
	metrics  *Metrics
	launcher launcher

	// reloadPending is set by Watch without taking sem and folded into
	// needsRestart by the next holder of sem.
	reloadPending atomic.Bool

	// sem is a one-slot semaphore guarding every field below
	sem          chan struct{}
	process      serverProcess
	channel      Channel
	needsRestart bool
	closed       bool
}

// Option configures a Manager
type Option func(*Manager)

// WithLogFile sets the file the spawn server's output is appended to
func WithLogFile(path string) Option {
	return func(m *Manager) {
		m.LogFile = path
	}
}

// WithEnvironment sets the application environment label
func WithEnvironment(env string) Option {
	return func(m *Manager) {
		m.Environment = env
	}
}

// WithEnvironmentVariable sets the variable name the environment label is exported as
func WithEnvironmentVariable(name string) Option {
	return func(m *Manager) {
		m.EnvironmentVariable = name
	}
}

// WithInterpreter sets the command that runs the spawn server program
func WithInterpreter(cmd string) Option {
	return func(m *Manager) {
		m.Interpreter = cmd
	}
}

// WithShutdownTimeout sets how long to wait for the spawn server to exit
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.ShutdownTimeout = d
	}
}

// WithPIDFile makes the manager record the spawn server pid at path
func WithPIDFile(path string) Option {
	return func(m *Manager) {
		m.PIDFile = path
	}
}

// WithWatchDebounce sets the debounce duration for Watch
func WithWatchDebounce(d time.Duration) Option {
	return func(m *Manager) {
		m.WatchDebounce = d
	}
}

// WithLogger sets the logger for restart and spawn events
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics makes the manager report to metrics
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// New creates a Manager and starts its spawn server. If the server cannot be
// started New returns the *SystemError or *IOError describing why, and no
// Manager.
func New(serverCommand string, opts ...Option) (*Manager, error) {
	if serverCommand == "" {
		return nil, errors.New("spawnmgr: spawn server command is required")
	}

	m := &Manager{
		ServerCommand:       serverCommand,
		Environment:         DefaultEnvironment,
		EnvironmentVariable: DefaultEnvironmentVariable,
		Interpreter:         DefaultInterpreter,
		ShutdownTimeout:     DefaultShutdownTimeout,
		WatchDebounce:       DefaultWatchDebounce,
		launcher:            execLauncher{},
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.EnvironmentVariable == "" {
		m.EnvironmentVariable = DefaultEnvironmentVariable
	}
	m.sem = make(chan struct{}, 1)

	if err := m.restart(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) lock() {
	m.sem <- struct{}{}
}

func (m *Manager) lockContext(ctx context.Context) error {
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) unlock() {
	<-m.sem
}

// Spawn asks the spawn server to start a worker for req.AppRoot and returns
// its handle.
//
// If a previous request failed, the spawn server is restarted first; when
// that restart fails Spawn returns a *RestartError wrapping the cause and
// does not contact the server. Any failure while talking to the server is
// returned as is and makes the next Spawn restart the server.
//
// ctx bounds the wait for other Spawn calls to finish. If it carries a
// deadline, the deadline also bounds the exchange with the server.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (*Handle, error) {
	if err := m.lockContext(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.applyPendingReload()

	start := time.Now()
	log := m.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("app_root", req.AppRoot),
	)

	if m.needsRestart {
		log.Info("restarting spawn server")
		if err := m.restart(); err != nil {
			log.Warn("failed to restart spawn server", zap.Error(err))
			m.metrics.recordSpawn(resultRestartError, time.Since(start))
			return nil, &RestartError{Err: err}
		}
	}

	handle, err := m.exchange(ctx, req)
	if err != nil {
		log.Warn("spawn server request failed, will restart it on the next spawn", zap.Error(err))
		m.needsRestart = true
		m.metrics.recordSpawn(resultError, time.Since(start))
		return nil, err
	}

	log.Debug("spawned application", zap.Int("pid", handle.PID()), zap.Duration("duration", time.Since(start)))
	m.metrics.recordSpawn(resultOK, time.Since(start))
	return handle, nil
}

// exchange performs one spawn request on the current channel
func (m *Manager) exchange(ctx context.Context, req SpawnRequest) (*Handle, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if d, ok := m.channel.(deadliner); ok {
			if err := d.SetDeadline(deadline); err != nil {
				return nil, &IOError{Op: "set deadline", Err: err}
			}
			defer func() { _ = d.SetDeadline(time.Time{}) }()
		}
	}

	if err := m.channel.Write(SpawnCommand, req.AppRoot, req.User, req.Group); err != nil {
		return nil, err
	}

	fields, err := m.channel.Read()
	if errors.Is(err, io.EOF) {
		return nil, &IOError{Op: "read", Err: ErrServerExited}
	}
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, &IOError{Op: "read", Err: ErrInvalidPID}
	}

	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return nil, &IOError{Op: "read", Err: fmt.Errorf("%w: %q", ErrInvalidPID, fields[0])}
	}

	file, err := m.channel.ReadFile()
	if err != nil {
		return nil, err
	}

	return NewHandle(req.AppRoot, pid, file), nil
}

// restart stops the tracked spawn server, if any, and starts a new one. The
// manager is marked as needing a restart until the new server is up, so a
// failure at any step is retried by the next Spawn.
func (m *Manager) restart() error {
	if m.process != nil {
		m.stopServer()
	}

	m.needsRestart = true

	process, channel, err := m.launcher.Launch(launchConfig{
		ServerCommand:       m.ServerCommand,
		Interpreter:         m.Interpreter,
		LogFile:             m.LogFile,
		Environment:         m.Environment,
		EnvironmentVariable: m.EnvironmentVariable,
	})
	m.metrics.recordRestart(err)
	if err != nil {
		return err
	}

	m.process = process
	m.channel = channel
	m.needsRestart = false
	m.metrics.setServerUp(true)

	pid := process.Pid()
	if m.PIDFile != "" {
		if err := writePIDFile(m.PIDFile, pid); err != nil {
			m.logger.Warn("failed to record spawn server pid", zap.String("path", m.PIDFile), zap.Error(err))
		}
	}
	m.logger.Info("spawn server started",
		zap.Int("pid", pid),
		zap.String("interpreter", m.Interpreter),
		zap.String("server", m.ServerCommand),
	)
	return nil
}

// stopServer closes the channel and reaps the spawn server. The server is
// expected to exit when its stdin closes; after ShutdownTimeout it is killed.
// The pid file, if any, is removed.
func (m *Manager) stopServer() {
	pid := m.process.Pid()
	log := m.logger.With(zap.Int("pid", pid))

	if err := m.channel.Close(); err != nil {
		log.Warn("failed to close spawn server channel", zap.Error(err))
	}

	done := make(chan error, 1)
	process := m.process
	go func() { done <- process.Wait() }()

	var err error
	if m.ShutdownTimeout > 0 {
		timer := time.NewTimer(m.ShutdownTimeout)
		select {
		case err = <-done:
		case <-timer.C:
			log.Warn("spawn server did not exit in time, killing it", zap.Duration("timeout", m.ShutdownTimeout))
			if kerr := process.Kill(); kerr != nil {
				log.Warn("failed to kill spawn server", zap.Error(kerr))
			}
			err = <-done
		}
		timer.Stop()
	} else {
		err = <-done
	}

	if err != nil {
		log.Debug("spawn server exited", zap.Error(err))
	} else {
		log.Debug("spawn server exited")
	}

	m.process = nil
	m.channel = nil
	m.metrics.setServerUp(false)

	if m.PIDFile != "" {
		if err := removePIDFile(m.PIDFile); err != nil {
			log.Warn("failed to remove spawn server pid file", zap.String("path", m.PIDFile), zap.Error(err))
		}
	}
}

// Close shuts the spawn server down and waits for it to exit. It never
// fails; shutdown problems are logged. Calling Close again is a no-op.
// After Close, Spawn returns ErrClosed.
func (m *Manager) Close() error {
	m.lock()
	defer m.unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.process != nil {
		m.stopServer()
	}
	return nil
}

// PID returns the pid of the running spawn server, or 0 if none is running
func (m *Manager) PID() int {
	m.lock()
	defer m.unlock()

	if m.process == nil {
		return 0
	}
	return m.process.Pid()
}

// NeedsRestart reports whether the next Spawn will restart the spawn server
func (m *Manager) NeedsRestart() bool {
	m.lock()
	defer m.unlock()
	m.applyPendingReload()
	return m.needsRestart
}

// Reload makes the next Spawn restart the spawn server, for example after
// its program has been upgraded. It has no effect on a closed manager.
func (m *Manager) Reload() {
	m.lock()
	defer m.unlock()

	if m.closed || m.needsRestart {
		return
	}
	m.needsRestart = true
	m.logger.Info("spawn server marked for restart")
}

// requestReload marks the manager for restart without waiting for sem. It is
// applied by the next Spawn or NeedsRestart.
func (m *Manager) requestReload() {
	m.reloadPending.Store(true)
}

// applyPendingReload folds a reload requested by requestReload into
// needsRestart. The caller holds sem.
func (m *Manager) applyPendingReload() {
	if !m.reloadPending.Swap(false) || m.closed || m.needsRestart {
		return
	}
	m.needsRestart = true
	m.logger.Info("spawn server marked for restart")
}
