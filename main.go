package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"comparetab/logger"
)

// Config is the bootstrap configuration, read from the COMPARETAB_CONFIG
// environment variable as JSON. User-facing behaviour lives in the settings
// file instead; this only covers process-level knobs.
type Config struct {
	SettingsPath           string `json:"settings_path"` // empty for the default location
	DebugImmediateShutdown bool   `json:"debug_immediate_shutdown"`
	LogLevel               string `json:"log_level"` // trace, debug, info, warn, error
}

func loadConfig() Config {
	var config Config

	raw := os.Getenv("COMPARETAB_CONFIG")
	if raw == "" {
		return config
	}
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		log.Fatalf("invalid COMPARETAB_CONFIG: %v", err)
	}

	log.Printf("config: %+v", config)
	return config
}

// runtimeDir is where the daemon keeps its log, socket and pid file: next
// to the executable, so multiple installs never collide.
func runtimeDir() string {
	execPath, err := os.Executable()
	if err != nil {
		log.Fatalf("error getting executable path: %v", err)
	}
	return filepath.Dir(execPath)
}

func getSocketPath() string { return filepath.Join(runtimeDir(), "comparetab.sock") }
func getPidPath() string    { return filepath.Join(runtimeDir(), "comparetab.pid") }

// setupLogger points both the logger package and the stdlib log at the
// line-capped file. Caller must defer Close.
func setupLogger(logLevel string) *logger.LimitedLogger {
	f, err := os.OpenFile(filepath.Join(runtimeDir(), "comparetab.log"),
		os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}

	ll := logger.NewLimitedLogger(f, logger.ParseLogLevel(logLevel))
	log.SetOutput(ll)
	return ll
}

// isDaemonRunning checks the pid file against a live process.
func isDaemonRunning() (bool, int) {
	data, err := os.ReadFile(getPidPath())
	if err != nil {
		return false, 0
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}
	// Signal 0 probes for existence without delivering anything.
	return process.Signal(syscall.Signal(0)) == nil, pid
}

func runDaemon() {
	config := loadConfig()

	logLevel := config.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	ll := setupLogger(logLevel)
	defer ll.Close()

	daemon, err := NewDaemon(config)
	if err != nil {
		log.Fatalf("error creating daemon: %v", err)
	}
	if err := daemon.Start(); err != nil {
		log.Fatalf("error starting daemon: %v", err)
	}
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--daemon" {
		runDaemon()
		return
	}

	if err := runClient(); err != nil {
		log.Fatalf("client: %v", err)
	}
}
