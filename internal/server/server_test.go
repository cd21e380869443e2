package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsgeek/finesse/internal/memfs"
)

func TestNewDefaultsWorkersAndClock(t *testing.T) {
	fs := memfs.New(newSimulatedClock())
	s := New(fs, Config{MountPoint: "/mnt/test"})

	if s.cfg.Workers != 4 {
		t.Fatalf("Workers = %d, want 4", s.cfg.Workers)
	}
	if s.cfg.Clock == nil {
		t.Fatal("Clock should default to a non-nil clock")
	}
	if s.clientCount() != 0 {
		t.Fatalf("clientCount() = %d, want 0", s.clientCount())
	}
}

func TestShutdownFlushesStatsWithNoClients(t *testing.T) {
	fs := memfs.New(newSimulatedClock())
	statsPath := filepath.Join(t.TempDir(), "stats.csv")
	s := New(fs, Config{MountPoint: "/mnt/test", StatsPath: statsPath})

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if _, err := os.Stat(statsPath); err != nil {
		t.Fatalf("expected a stats file at %s: %v", statsPath, err)
	}
}

func TestShutdownWithoutStatsPathIsANoop(t *testing.T) {
	fs := memfs.New(newSimulatedClock())
	s := New(fs, Config{MountPoint: "/mnt/test"})

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
