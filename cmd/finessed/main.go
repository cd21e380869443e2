// Command finessed is the acceleration daemon: it listens for client
// registrations on a mount point's UNIX socket and serves every
// subsequent request out of the client's shared-memory region. Mount
// point discovery, log file emission, and argument parsing are out of
// scope; this is wiring glue, not a production entry point.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobsa/timeutil"

	"github.com/fsgeek/finesse/internal/config"
	"github.com/fsgeek/finesse/internal/memfs"
	"github.com/fsgeek/finesse/internal/server"
)

const mountPointEnv = "FINESSE_MOUNT_POINT"

func main() {
	flag.Parse()

	mountPoint := os.Getenv(mountPointEnv)
	if mountPoint == "" {
		log.Fatalf("finessed: %s must name the mount point to accelerate", mountPointEnv)
	}

	logger := log.New(os.Stderr, "finessed: ", log.LstdFlags)
	fs := memfs.New(timeutil.RealClock())

	srv := server.New(fs, server.Config{
		MountPoint: mountPoint,
		StatsPath:  config.StatsPath(),
		Workers:    config.Workers(),
		Logger:     logger,
		Clock:      timeutil.RealClock(),
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Printf("shutting down")
		if err := srv.Shutdown(); err != nil {
			logger.Printf("shutdown: %v", err)
		}
		os.Exit(0)
	}()

	if err := srv.Serve(); err != nil {
		logger.Fatalf("serve: %v", err)
	}
}
