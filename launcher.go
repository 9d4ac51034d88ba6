package spawnmgr

import (
	"os"
	"os/exec"

	"github.com/axondata/go-spawnmgr/internal/unix"
)

// serverProcess is a running spawn server as seen by the manager
type serverProcess interface {
	Pid() int
	// Wait blocks until the process has exited and been reaped
	Wait() error
	Kill() error
}

// launchConfig is the part of the manager's configuration needed to start
// a spawn server.
type launchConfig struct {
	ServerCommand       string
	Interpreter         string
	LogFile             string
	Environment         string
	EnvironmentVariable string
}

// launcher starts a spawn server and returns it together with the parent end
// of its channel. On error nothing is left open or running.
type launcher interface {
	Launch(cfg launchConfig) (serverProcess, Channel, error)
}

// execLauncher starts the spawn server as a child process whose stdin is one
// end of an anonymous socket pair.
type execLauncher struct{}

func (execLauncher) Launch(cfg launchConfig) (serverProcess, Channel, error) {
	if err := unix.MarkInheritedCloseOnExec(); err != nil {
		return nil, nil, &SystemError{Op: "close-on-exec", Err: err}
	}

	parentEnd, childEnd, err := unix.Socketpair()
	if err != nil {
		return nil, nil, &SystemError{Op: "socketpair", Err: err}
	}

	ch, err := NewUnixChannel(parentEnd)
	if err != nil {
		_ = childEnd.Close()
		return nil, nil, err
	}

	var logFile *os.File
	if cfg.LogFile != "" {
		logFile, err = os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, LogFileMode)
		if err != nil {
			_ = ch.Close()
			_ = childEnd.Close()
			return nil, nil, &IOError{Op: "open log", Path: cfg.LogFile, Err: err}
		}
	}

	cmd := serverCommand(cfg, childEnd, logFile)
	startErr := cmd.Start()

	// Both now belong to the child, or are no longer needed if it never started.
	_ = childEnd.Close()
	if logFile != nil {
		_ = logFile.Close()
	}

	if startErr != nil {
		_ = ch.Close()
		return nil, nil, &SystemError{Op: "start", Err: startErr}
	}

	return &execProcess{cmd: cmd}, ch, nil
}

// serverCommand describes the child side of the spawn server: stdin is the
// channel, stderr goes to the log target (or the host's stderr) and stdout
// follows stderr. Launch marks every other descriptor close-on-exec first,
// so the child inherits nothing else.
func serverCommand(cfg launchConfig, stdin, logFile *os.File) *exec.Cmd {
	cmd := exec.Command(cfg.Interpreter, cfg.ServerCommand)

	out := os.Stderr
	if logFile != nil {
		out = logFile
	}
	cmd.Stdin = stdin
	cmd.Stdout = out
	cmd.Stderr = out

	if cfg.Environment != "" {
		cmd.Env = append(os.Environ(), cfg.EnvironmentVariable+"="+cfg.Environment)
	}
	return cmd
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }
