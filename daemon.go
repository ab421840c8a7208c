package main

import (
	"context"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/neovim/go-client/nvim"

	"comparetab/settings"
)

// Daemon accepts editor connections on a unix socket and runs one compare
// service per connection. It exits on its own once it has been idle long
// enough.
type Daemon struct {
	config   Config
	settings settings.Settings

	socketPath string
	pidPath    string
	listener   net.Listener
	clients    int64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDaemon(config Config) (*Daemon, error) {
	settingsPath := config.SettingsPath
	if settingsPath == "" {
		var err error
		settingsPath, err = settings.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	st, err := settings.Load(settingsPath)
	if err != nil {
		log.Printf("warning: settings file unusable, using defaults: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config:     config,
		settings:   st,
		socketPath: getSocketPath(),
		pidPath:    getPidPath(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start serves until stopped by signal or idleness.
func (d *Daemon) Start() error {
	if err := d.writePidFile(); err != nil {
		log.Printf("warning: pid file: %v", err)
	}
	defer os.Remove(d.pidPath)

	// A dead daemon may have left its socket behind.
	os.Remove(d.socketPath)
	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	defer os.Remove(d.socketPath)

	log.Printf("listening on %s", d.socketPath)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Printf("shutdown signal")
		d.Stop()
	}()

	go d.accept()
	go d.idleWatch()

	<-d.ctx.Done()
	log.Printf("daemon exiting")
	return nil
}

func (d *Daemon) Stop() {
	if d.listener != nil {
		d.listener.Close()
	}
	d.cancel()
}

func (d *Daemon) accept() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				return
			}
			log.Printf("accept: %v", err)
			continue
		}
		go d.serveConn(conn)
	}
}

func (d *Daemon) serveConn(conn net.Conn) {
	defer conn.Close()

	total := atomic.AddInt64(&d.clients, 1)
	log.Printf("client connected (%d total)", total)
	defer func() {
		log.Printf("client disconnected (%d left)", atomic.AddInt64(&d.clients, -1))
	}()

	n, err := nvim.New(conn, conn, conn, log.Printf)
	if err != nil {
		log.Printf("nvim client: %v", err)
		return
	}

	// Each editor connection gets its own compare service and event loop.
	svc, err := newService(n, d.settings)
	if err != nil {
		log.Printf("compare service: %v", err)
		return
	}
	defer svc.stop()
	go svc.run()

	if err := n.Serve(); err != nil && err != io.EOF {
		log.Printf("serve: %v", err)
	}
}

// idleWatch stops the daemon after it has had no clients for a while. The
// first window is generous so a spawning client has time to connect; in
// debug mode the daemon dies as soon as it is empty.
func (d *Daemon) idleWatch() {
	interval := 30 * time.Second
	if d.config.DebugImmediateShutdown {
		interval = time.Second
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-timer.C:
			if atomic.LoadInt64(&d.clients) == 0 {
				log.Printf("idle, shutting down")
				d.Stop()
				return
			}
		}

		if !d.config.DebugImmediateShutdown && atomic.LoadInt64(&d.clients) == 0 {
			timer.Reset(5 * time.Second)
		} else {
			timer.Reset(interval)
		}
	}
}

func (d *Daemon) writePidFile() error {
	log.Printf("daemon pid %d", os.Getpid())
	return os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())), 0644)
}
