package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	spawnmgr "github.com/axondata/go-spawnmgr"
)

func newServeTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-test",
		Short: "Run a minimal spawn server on stdin, for smoke tests",
		Long: `Run a minimal spawn server that speaks the spawn protocol on stdin.

Every spawn request is answered with this process's pid and a fresh TCP
listener on 127.0.0.1. Use it as:

  SPAWN_INTERPRETER=spawnctl SPAWN_SERVER=serve-test spawnctl spawn /srv/app`,
		Args: cobra.NoArgs,
		// Runs as a child of the manager; configuration is not needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(*cobra.Command, []string) error {
			return serveTest(os.Stdin)
		},
	}
}

func serveTest(stdin *os.File) error {
	ch, err := spawnmgr.NewUnixChannel(stdin)
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	for {
		fields, err := ch.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(fields) != 4 || fields[0] != spawnmgr.SpawnCommand {
			return fmt.Errorf("unexpected request %q", fields)
		}
		if err := answerSpawn(ch); err != nil {
			return err
		}
	}
}

func answerSpawn(ch *spawnmgr.UnixChannel) error {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return err
	}
	defer func() { _ = ln.Close() }()

	file, err := ln.File()
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if err := ch.WriteMessage(strconv.Itoa(os.Getpid())); err != nil {
		return err
	}
	return ch.WriteFile(file)
}
