// Package spawnmgr manages a long-lived spawn server process and uses it to
// start application workers on demand.
//
// A Manager starts the spawn server when it is created and talks to it over
// an anonymous Unix socket pair connected to the server's stdin. Each Spawn
// sends one request and receives the worker's pid plus its listening socket,
// passed as a file descriptor:
//
//	mgr, err := spawnmgr.New("/usr/lib/app/spawn-server",
//	    spawnmgr.WithLogFile("/var/log/app/spawn-server.log"),
//	    spawnmgr.WithEnvironment("production"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	handle, err := mgr.Spawn(ctx, spawnmgr.SpawnRequest{AppRoot: "/srv/apps/foo"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer handle.Close()
//	fmt.Printf("worker %d listening on fd %d\n", handle.PID(), handle.File().Fd())
//
// # Recovery
//
// Spawn requests are serialized; a request holds the manager until it has
// finished, including any restart of the spawn server. When an exchange with
// the server fails, the error is returned to the caller unchanged and the
// server is restarted at the start of the next Spawn. If that restart fails
// too, Spawn returns a *RestartError whose cause is the *SystemError or
// *IOError the restart produced:
//
//	var restartErr *spawnmgr.RestartError
//	if errors.As(err, &restartErr) {
//	    // the spawn server is down and could not be brought back up
//	}
//
// # Protocol
//
// A request is the message ["spawn_application", appRoot, user, group]. The
// server answers with a message whose first field is the worker pid in
// decimal, followed by one transferred descriptor. A server that cannot
// handle a request closes the channel instead of answering. See UnixChannel
// for the framing.
//
// The package supports Linux and Darwin.
package spawnmgr
