// Command sdfw-core is the resident DNS forwarder service: it loads
// settings, starts the loopback listeners, the control state machine, the
// health monitor, and the local IPC socket, then waits for a shutdown
// signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/service"
)

var (
	dataDir          string
	logLevel         string
	printStackOnExit bool
)

func init() {
	flag.StringVar(&dataDir, "data-dir", defaultDataDir(), "directory for settings and the IPC socket")
	flag.StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warning, error, critical")
	flag.BoolVar(&printStackOnExit, "print-stack-on-exit", false, "print all goroutine stacks before exiting")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "sdfw")
	}
	return "/var/lib/sdfw"
}

func main() {
	flag.Parse()

	if err := log.Start(logLevel, true, ""); err != nil {
		fmt.Fprintf(os.Stderr, "sdfw-core: failed to start logging: %s\n", err)
		os.Exit(1)
	}
	defer log.Shutdown()

	inst, err := service.New("dev", service.Config{
		SettingsPath: filepath.Join(dataDir, "settings.json"),
		SocketPath:   filepath.Join(dataDir, "sdfw.sock"),
	})
	if err != nil {
		log.Errorf("sdfw-core: failed to build instance: %s", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := inst.StartDefault(ctx); err != nil {
		log.Errorf("sdfw-core: failed to start: %s", err)
		os.Exit(1)
	}
	log.Infof("sdfw-core: started, data dir %s", dataDir)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(
		signalCh,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	<-signalCh
	log.Warningf("sdfw-core: received shutdown signal, stopping")

	if printStackOnExit {
		_ = pprof.Lookup("goroutine").WriteTo(os.Stdout, 1)
	}

	// Catch repeated signals during shutdown instead of hanging forever.
	go func() {
		<-signalCh
		fmt.Println("sdfw-core: second interrupt, forcing exit")
		os.Exit(1)
	}()
	go func() {
		time.Sleep(10 * time.Second)
		fmt.Println("sdfw-core: shutdown took too long, forcing exit")
		os.Exit(1)
	}()

	if !inst.Stop() {
		log.Errorf("sdfw-core: one or more modules failed to stop cleanly")
		os.Exit(1)
	}
}
