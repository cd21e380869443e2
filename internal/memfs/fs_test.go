package memfs

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/fsgeek/finesse/fuseops"
)

func newSimulatedClock() *timeutil.SimulatedClock {
	c := &timeutil.SimulatedClock{}
	c.SetTime(time.Unix(1000, 0))
	return c
}

func header() fuseops.OpHeader {
	return fuseops.OpHeader{Origin: fuseops.OriginFinesse}
}

func mkdir(t *testing.T, fs fuseops.FileSystem, parent fuseops.InodeID, name string) fuseops.InodeID {
	t.Helper()
	op := fuseops.NewMkDirOp(header(), parent, name, uint32(os.ModeDir|0755))
	fs.MkDir(op)
	if errno := fuseops.Wait(op); errno != 0 {
		t.Fatalf("MkDir(%q): %v", name, errno)
	}
	return op.Entry.Child
}

func createFile(t *testing.T, fs fuseops.FileSystem, parent fuseops.InodeID, name string) (fuseops.InodeID, fuseops.HandleID) {
	t.Helper()
	op := fuseops.NewCreateFileOp(header(), parent, name, 0644, 0)
	fs.CreateFile(op)
	if errno := fuseops.Wait(op); errno != 0 {
		t.Fatalf("CreateFile(%q): %v", name, errno)
	}
	return op.Entry.Child, op.Handle
}

func TestLookUpInodeRoot(t *testing.T) {
	fs := New(newSimulatedClock())

	dirID := mkdir(t, fs, fuseops.RootInodeID, "sub")

	op := fuseops.NewLookUpInodeOp(header(), fuseops.RootInodeID, "sub")
	fs.LookUpInode(op)
	if errno := fuseops.Wait(op); errno != 0 {
		t.Fatalf("LookUpInode: %v", errno)
	}
	if op.Entry.Child != dirID {
		t.Fatalf("Entry.Child = %v, want %v", op.Entry.Child, dirID)
	}
}

func TestLookUpInodeMissingReturnsENOENT(t *testing.T) {
	fs := New(newSimulatedClock())

	op := fuseops.NewLookUpInodeOp(header(), fuseops.RootInodeID, "nope")
	fs.LookUpInode(op)
	if errno := fuseops.Wait(op); errno != syscall.ENOENT {
		t.Fatalf("errno = %v, want ENOENT", errno)
	}
}

func TestWriteThenReadFileRoundTrip(t *testing.T) {
	fs := New(newSimulatedClock())

	id, handle := createFile(t, fs, fuseops.RootInodeID, "greeting")

	wop := fuseops.NewWriteFileOp(header(), id, handle, 0, []byte("hello"))
	fs.WriteFile(wop)
	if errno := fuseops.Wait(wop); errno != 0 {
		t.Fatalf("WriteFile: %v", errno)
	}

	rop := fuseops.NewReadFileOp(header(), id, handle, 0, 16)
	fs.ReadFile(rop)
	if errno := fuseops.Wait(rop); errno != 0 {
		t.Fatalf("ReadFile: %v", errno)
	}
	if got := string(rop.Data); got != "hello" {
		t.Fatalf("Data = %q, want %q", got, "hello")
	}
}

func TestReadDirOffsetStableAcrossRemoval(t *testing.T) {
	fs := New(newSimulatedClock())

	mkdir(t, fs, fuseops.RootInodeID, "a")
	mkdir(t, fs, fuseops.RootInodeID, "b")
	mkdir(t, fs, fuseops.RootInodeID, "c")

	uop := fuseops.NewUnlinkOp(header(), fuseops.RootInodeID, "b")
	// b is a directory; exercise Unlink against a directory entry purely
	// to knock out the middle slot without disturbing a's and c's offsets.
	fs.Unlink(uop)
	_ = fuseops.Wait(uop)

	oop := fuseops.NewOpenDirOp(header(), fuseops.RootInodeID, 0)
	fs.OpenDir(oop)
	if errno := fuseops.Wait(oop); errno != 0 {
		t.Fatalf("OpenDir: %v", errno)
	}

	rop := fuseops.NewReadDirOp(header(), fuseops.RootInodeID, oop.Handle, 0, 4096)
	fs.ReadDir(rop)
	if errno := fuseops.Wait(rop); errno != 0 {
		t.Fatalf("ReadDir: %v", errno)
	}

	names := map[string]bool{}
	for _, e := range rop.Entries {
		names[e.Name] = true
	}
	if names["b"] {
		t.Fatal("removed entry b still present in listing")
	}
	if !names["a"] || !names["c"] {
		t.Fatalf("expected a and c to survive, got %v", rop.Entries)
	}
	for _, e := range rop.Entries {
		if e.Name == "c" && e.Offset != 3 {
			t.Fatalf("c's offset = %d after removing b, want 3 (unchanged)", e.Offset)
		}
	}
}

func TestRmDirRejectsNonEmptyDirectory(t *testing.T) {
	fs := New(newSimulatedClock())

	dirID := mkdir(t, fs, fuseops.RootInodeID, "parent")
	mkdir(t, fs, dirID, "child")

	op := fuseops.NewRmDirOp(header(), fuseops.RootInodeID, "parent")
	fs.RmDir(op)
	if errno := fuseops.Wait(op); errno != syscall.ENOTEMPTY {
		t.Fatalf("errno = %v, want ENOTEMPTY", errno)
	}
}

func TestRenameOverwritesExistingDestination(t *testing.T) {
	fs := New(newSimulatedClock())

	srcID, _ := createFile(t, fs, fuseops.RootInodeID, "src")
	createFile(t, fs, fuseops.RootInodeID, "dst")

	op := fuseops.NewRenameOp(header(), fuseops.RootInodeID, "src", fuseops.RootInodeID, "dst")
	fs.Rename(op)
	if errno := fuseops.Wait(op); errno != 0 {
		t.Fatalf("Rename: %v", errno)
	}

	lop := fuseops.NewLookUpInodeOp(header(), fuseops.RootInodeID, "dst")
	fs.LookUpInode(lop)
	if errno := fuseops.Wait(lop); errno != 0 {
		t.Fatalf("LookUpInode(dst): %v", errno)
	}
	if lop.Entry.Child != srcID {
		t.Fatalf("dst now resolves to %v, want the renamed src inode %v", lop.Entry.Child, srcID)
	}

	lop2 := fuseops.NewLookUpInodeOp(header(), fuseops.RootInodeID, "src")
	fs.LookUpInode(lop2)
	if errno := fuseops.Wait(lop2); errno != syscall.ENOENT {
		t.Fatalf("src still resolves after rename, errno = %v", errno)
	}
}

func TestStatFSReportsInodeCount(t *testing.T) {
	fs := New(newSimulatedClock())
	mkdir(t, fs, fuseops.RootInodeID, "one")

	op := fuseops.NewStatFSOp(header())
	fs.StatFS(op)
	if errno := fuseops.Wait(op); errno != 0 {
		t.Fatalf("StatFS: %v", errno)
	}
	if op.Info.Inodes != 2 {
		t.Fatalf("Inodes = %d, want 2 (root + one)", op.Info.Inodes)
	}
}
