package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fsgeek/finesse/internal/ipc"
	"github.com/fsgeek/finesse/shm"
)

func TestNewClientStateMapsExistingRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")
	region, err := shm.Create(path, uuid.New())
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	region.Close()

	n, objects := newTestNativeHandler(t)
	adapter := &Adapter{FS: n.FS, Objects: objects, ArenaDir: n.ArenaDir}

	req := ipc.NewRequest(uuid.New(), uint32(os.Getpid()), "/mnt/test", path)
	c, err := newClientState(req, adapter, n, 2, nil)
	if err != nil {
		t.Fatalf("newClientState: %v", err)
	}
	defer c.Region.Close()

	if c.Pid != uint32(os.Getpid()) {
		t.Fatalf("Pid = %d, want %d", c.Pid, os.Getpid())
	}
	if !c.alive() {
		t.Fatal("alive() = false for the test process's own pid")
	}
}

func TestClientStateAliveFalseForDeadPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")
	region, err := shm.Create(path, uuid.New())
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	region.Close()

	n, objects := newTestNativeHandler(t)
	adapter := &Adapter{FS: n.FS, Objects: objects, ArenaDir: n.ArenaDir}

	// A pid this large is never assigned on Linux (max_pid caps well below
	// it), so Kill(pid, 0) reliably reports ESRCH.
	req := ipc.NewRequest(uuid.New(), 1<<30, "/mnt/test", path)
	c, err := newClientState(req, adapter, n, 1, nil)
	if err != nil {
		t.Fatalf("newClientState: %v", err)
	}
	defer c.Region.Close()

	if c.alive() {
		t.Fatal("alive() = true for an implausible pid")
	}
}

func TestClientStateAliveTrueForZeroPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")
	region, err := shm.Create(path, uuid.New())
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	region.Close()

	n, objects := newTestNativeHandler(t)
	adapter := &Adapter{FS: n.FS, Objects: objects, ArenaDir: n.ArenaDir}

	req := ipc.NewRequest(uuid.New(), 0, "/mnt/test", path)
	c, err := newClientState(req, adapter, n, 1, nil)
	if err != nil {
		t.Fatalf("newClientState: %v", err)
	}
	defer c.Region.Close()

	if !c.alive() {
		t.Fatal("alive() should default true when no pid was reported")
	}
}

func TestWatchLivenessReapsClientWhenProcessIsGone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")
	region, err := shm.Create(path, uuid.New())
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	region.Close()

	n, objects := newTestNativeHandler(t)
	adapter := &Adapter{FS: n.FS, Objects: objects, ArenaDir: n.ArenaDir}

	// A pid this large is never assigned on Linux, so alive() reports
	// false on the very first poll.
	req := ipc.NewRequest(uuid.New(), 1<<30, "/mnt/test", path)
	c, err := newClientState(req, adapter, n, 1, nil)
	if err != nil {
		t.Fatalf("newClientState: %v", err)
	}

	// A second mapping of the same MAP_SHARED file, opened before the
	// reap, so its shutdown flag can be observed after c.Region itself
	// has been unmapped by close() without touching freed memory.
	checker, err := shm.Open(path)
	if err != nil {
		t.Fatalf("shm.Open: %v", err)
	}
	defer checker.Close()

	go c.watchLiveness(10 * time.Millisecond)

	select {
	case <-c.done:
		t.Fatal("done closed by watchLiveness, but only run() should close it")
	case <-time.After(100 * time.Millisecond):
	}

	if !checker.IsShutdown() {
		t.Fatal("watchLiveness did not destroy the region for a dead client")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("shm file still exists after reap: err = %v", err)
	}
}

func TestWatchLivenessStopsWhenDispatcherFinishesOnItsOwn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")
	region, err := shm.Create(path, uuid.New())
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	region.Close()

	n, objects := newTestNativeHandler(t)
	adapter := &Adapter{FS: n.FS, Objects: objects, ArenaDir: n.ArenaDir}

	req := ipc.NewRequest(uuid.New(), uint32(os.Getpid()), "/mnt/test", path)
	c, err := newClientState(req, adapter, n, 1, nil)
	if err != nil {
		t.Fatalf("newClientState: %v", err)
	}

	close(c.done)
	go c.watchLiveness(5 * time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	if c.Region.IsShutdown() {
		t.Fatal("watchLiveness tore down a region whose client is alive and already done")
	}
	c.Region.Close()
}
