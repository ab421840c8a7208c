package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"comparetab/logger"
)

// runClient is the foreground path: make sure a daemon is serving the
// socket, then relay this process's stdio to it so the editor can treat the
// binary itself as its RPC endpoint.
func runClient() error {
	conn, err := dialDaemon(getSocketPath())
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		io.Copy(conn, os.Stdin)
		conn.Close()
	}()
	_, err = io.Copy(os.Stdout, conn)
	return err
}

// dialDaemon connects to an already-running daemon, spawning one first when
// the socket is dead.
func dialDaemon(socketPath string) (net.Conn, error) {
	if conn, err := net.Dial("unix", socketPath); err == nil {
		return conn, nil
	}

	if err := spawnDaemon(); err != nil {
		return nil, fmt.Errorf("failed to spawn daemon: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", socketPath); err == nil {
			logger.Debug("daemon is up on %s", socketPath)
			return conn, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("daemon did not come up within 5s")
}

// spawnDaemon re-executes this binary detached, in daemon mode. The pid
// file keeps a second spawn from racing a live daemon.
func spawnDaemon() error {
	if running, pid := isDaemonRunning(); running {
		logger.Debug("daemon already running, pid %d", pid)
		return nil
	}

	logger.Debug("spawning daemon")
	_, err := os.StartProcess(os.Args[0], []string{os.Args[0], "--daemon"}, &os.ProcAttr{
		Env:   os.Environ(),
		Files: []*os.File{nil, nil, nil},
	})
	return err
}
