package client

import (
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/fsgeek/finesse/internal/memfs"
	"github.com/fsgeek/finesse/internal/server"
	"github.com/fsgeek/finesse/internal/wire"
)

// startServer spins up a real daemon on a throwaway socket directory and
// returns the mount point clients should dial. Every test below goes
// through the full bootstrap: seqpacket registration, region mapping on
// both sides, and the server's dispatcher goroutines draining the region.
func startServer(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("FINESSE_SOCKET_DIR", dir)

	mountPoint := filepath.Join(dir, "mnt")
	srv := server.New(memfs.New(timeutil.RealClock()), server.Config{
		MountPoint: mountPoint,
		Workers:    2,
	})
	go srv.Serve()
	t.Cleanup(func() { srv.Shutdown() })

	return mountPoint
}

// dialWithRetry absorbs the window between Serve being scheduled and its
// listener actually binding.
func dialWithRetry(t *testing.T, mountPoint string) *Client {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		c, err := Dial(mountPoint)
		if err == nil {
			return c
		}
		if time.Now().After(deadline) {
			t.Fatalf("Dial: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDialRegistersAndTestEchoes(t *testing.T) {
	mountPoint := startServer(t)

	c := dialWithRetry(t, mountPoint)
	defer c.Close()

	if c.ServerID() == c.ID() {
		t.Fatal("server echoed the client's own id as its identity")
	}
	if err := c.Test(0x10); err != nil {
		t.Fatalf("Test: %v", err)
	}

	stat, err := c.ServerStat()
	if err != nil {
		t.Fatalf("ServerStat: %v", err)
	}
	if stat.ClientCount != 1 {
		t.Fatalf("ClientCount = %d, want 1", stat.ClientCount)
	}
}

func TestNameMapOfRootReturnsAResolvableHandle(t *testing.T) {
	mountPoint := startServer(t)

	c := dialWithRetry(t, mountPoint)
	defer c.Close()

	root, err := c.NameMap(wire.NullHandle, "")
	if err != nil {
		t.Fatalf("NameMap: %v", err)
	}
	if root.IsNull() {
		t.Fatal("NameMap of the root returned the null handle instead of a fresh one")
	}

	// The minted handle addresses the same directory the null handle does.
	if _, err := c.StatFS(root); err != nil {
		t.Fatalf("StatFS via minted root handle: %v", err)
	}

	if err := c.NameMapRelease(root); err != nil {
		t.Fatalf("NameMapRelease: %v", err)
	}
}

func TestStatFSReportsNonZeroBlockSize(t *testing.T) {
	mountPoint := startServer(t)

	c := dialWithRetry(t, mountPoint)
	defer c.Close()

	reply, err := c.StatFS(wire.NullHandle)
	if err != nil {
		t.Fatalf("StatFS: %v", err)
	}
	if reply.BlockSize == 0 {
		t.Fatal("BlockSize = 0, want the embedded file system's real block size")
	}
}

func TestUnlinkOfMissingNameReturnsENOENT(t *testing.T) {
	mountPoint := startServer(t)

	c := dialWithRetry(t, mountPoint)
	defer c.Close()

	err := c.Unlink(wire.NullHandle, "nope")
	if err != syscall.ENOENT {
		t.Fatalf("Unlink = %v, want ENOENT", err)
	}

	// The failed unlink must not have minted an object table entry.
	stat, err := c.ServerStat()
	if err != nil {
		t.Fatalf("ServerStat: %v", err)
	}
	if stat.ObjectTableSize != 0 {
		t.Fatalf("ObjectTableSize = %d, want 0", stat.ObjectTableSize)
	}
}

func TestMkdirThenDirectoryMapListsTheChild(t *testing.T) {
	mountPoint := startServer(t)

	c := dialWithRetry(t, mountPoint)
	defer c.Close()

	if _, err := c.Mkdir(wire.NullHandle, "snapshots", 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	entries, err := c.DirectoryMap(wire.NullHandle)
	if err != nil {
		t.Fatalf("DirectoryMap: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("DirectoryMap returned %d entries, want 1", len(entries))
	}
	if got := wire.GetString(entries[0].Name[:]); got != "snapshots" {
		t.Fatalf("entry name = %q, want snapshots", got)
	}
}

func TestLookupWalksAMultiComponentPath(t *testing.T) {
	mountPoint := startServer(t)

	c := dialWithRetry(t, mountPoint)
	defer c.Close()

	if _, err := c.Mkdir(wire.NullHandle, "a", 0755); err != nil {
		t.Fatalf("Mkdir a: %v", err)
	}
	a, err := c.NameMap(wire.NullHandle, "a")
	if err != nil {
		t.Fatalf("NameMap a: %v", err)
	}
	if _, err := c.Mkdir(a, "b", 0755); err != nil {
		t.Fatalf("Mkdir a/b: %v", err)
	}

	reply, err := c.Lookup(wire.NullHandle, "a/b")
	if err != nil {
		t.Fatalf("Lookup a/b: %v", err)
	}
	if reply.Child.IsNull() {
		t.Fatal("Lookup returned a null child handle")
	}
	if reply.Nlink == 0 {
		t.Fatal("Lookup reply carries no attributes for the resolved directory")
	}
}
