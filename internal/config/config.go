// Package config centralizes the environment variables the daemon and
// its clients read, the way gcsfuse's cmd package collects flag/env
// parsing in one place rather than scattering os.Getenv calls.
package config

import (
	"os"
	"strconv"

	"github.com/fsgeek/finesse/internal/ipc"
)

const (
	statsPathEnv = "FINESSE_STATS_PATH"
	workersEnv   = "FINESSE_WORKERS"

	defaultStatsPath = "/var/run/finesse/stats.csv"
	defaultWorkers   = 4
)

// SocketDir returns the directory registration sockets and arena files
// live in, honoring FINESSE_SOCKET_DIR. It defers to package ipc, which
// owns the variable's name, so there is exactly one place that decides
// what it means for it to be unset.
func SocketDir() string {
	return ipc.SocketDir()
}

// StatsPath returns where the daemon flushes its per-call statistics CSV
// on shutdown, honoring FINESSE_STATS_PATH.
func StatsPath() string {
	if p := os.Getenv(statsPathEnv); p != "" {
		return p
	}
	return defaultStatsPath
}

// Workers returns the per-client dispatcher pool size, honoring
// FINESSE_WORKERS. An unset or malformed value falls back to
// defaultWorkers rather than failing startup.
func Workers() int {
	v := os.Getenv(workersEnv)
	if v == "" {
		return defaultWorkers
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultWorkers
	}
	return n
}
