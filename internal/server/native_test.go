package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"

	"github.com/fsgeek/finesse/fuseops"
	"github.com/fsgeek/finesse/internal/memfs"
	"github.com/fsgeek/finesse/internal/objtable"
	"github.com/fsgeek/finesse/internal/stats"
	"github.com/fsgeek/finesse/internal/wire"
	"github.com/fsgeek/finesse/shm"
)

func newSimulatedClock() *timeutil.SimulatedClock {
	c := &timeutil.SimulatedClock{}
	c.SetTime(time.Unix(1000, 0))
	return c
}

func newTestRegion(t *testing.T) *shm.Region {
	t.Helper()
	path := filepath.Join(t.TempDir(), "region")
	r, err := shm.Create(path, uuid.New())
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func newTestNativeHandler(t *testing.T) (*NativeHandler, *objtable.Table) {
	t.Helper()
	clock := newSimulatedClock()
	objects := objtable.New()
	return &NativeHandler{
		FS:          memfs.New(clock),
		Objects:     objects,
		Stats:       stats.New(clock),
		ArenaDir:    t.TempDir(),
		ClientCount: func() uint32 { return 1 },
		Clock:       clock,
	}, objects
}

func TestNativeTestEchoesPayload(t *testing.T) {
	n, _ := newTestNativeHandler(t)
	r := newTestRegion(t)

	slot, err := r.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeTest)
	if err != nil {
		t.Fatalf("AllocateRequestBuffer: %v", err)
	}
	body := slot.Body()

	params := wire.TestParams{VersionByte: 7}
	copy(params.Payload[:], "ping")
	if err := wire.EncodePayload(&body.Payload, &params); err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	if errno := n.Dispatch(slot); errno != 0 {
		t.Fatalf("Dispatch: %v", errno)
	}

	var reply wire.TestReply
	if err := wire.DecodePayload(&body.Payload, &reply); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if reply.VersionByte != 7 {
		t.Fatalf("VersionByte = %d, want 7", reply.VersionByte)
	}
	if wire.GetString(reply.Payload[:4]) != "ping" {
		t.Fatalf("Payload = %q, want ping", wire.GetString(reply.Payload[:4]))
	}
}

func TestNativeServerStatReportsClientCountAndObjectTableSize(t *testing.T) {
	n, objects := newTestNativeHandler(t)
	objects.Create(42)
	r := newTestRegion(t)

	slot, err := r.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeServerStat)
	if err != nil {
		t.Fatalf("AllocateRequestBuffer: %v", err)
	}
	body := slot.Body()

	if errno := n.Dispatch(slot); errno != 0 {
		t.Fatalf("Dispatch: %v", errno)
	}

	var reply wire.ServerStatReply
	if err := wire.DecodePayload(&body.Payload, &reply); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if reply.ClientCount != 1 {
		t.Fatalf("ClientCount = %d, want 1", reply.ClientCount)
	}
	if reply.ObjectTableSize != 1 {
		t.Fatalf("ObjectTableSize = %d, want 1", reply.ObjectTableSize)
	}
}

func TestNativeNameMapThenReleaseRoundTrip(t *testing.T) {
	n, objects := newTestNativeHandler(t)

	mk := newTestRegion(t)
	mkSlot, err := mk.AllocateRequestBuffer(wire.ClassFuse, wire.FuseMkdir, 0)
	if err != nil {
		t.Fatalf("AllocateRequestBuffer: %v", err)
	}
	adapter := &Adapter{FS: n.FS, Objects: objects, ArenaDir: n.ArenaDir}
	var mkParams wire.MkdirParams
	wire.PutString(mkParams.Name[:], "sub")
	mkParams.Mode = 0755
	if err := wire.EncodePayload(&mkSlot.Body().Payload, &mkParams); err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	if errno := adapter.Dispatch(mkSlot, fuseops.OriginFinesse); errno != 0 {
		t.Fatalf("mkdir Dispatch: %v", errno)
	}

	// The mkdir reply itself minted a handle for the new child, so the
	// table already holds one entry with one reference.
	var mkReply wire.MkdirReply
	if err := wire.DecodePayload(&mkSlot.Body().Payload, &mkReply); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if objects.Size() != 1 {
		t.Fatalf("Size = %d, want 1 after the mkdir reply mints a handle", objects.Size())
	}

	r := newTestRegion(t)
	slot, err := r.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeNameMap)
	if err != nil {
		t.Fatalf("AllocateRequestBuffer: %v", err)
	}
	body := slot.Body()
	var params wire.NameMapParams
	wire.PutString(params.Name[:], "sub")
	if err := wire.EncodePayload(&body.Payload, &params); err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	if errno := n.Dispatch(slot); errno != 0 {
		t.Fatalf("Dispatch NameMap: %v", errno)
	}

	var reply wire.NameMapReply
	if err := wire.DecodePayload(&body.Payload, &reply); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if reply.Target.IsNull() {
		t.Fatal("NameMap returned a null handle for an existing child")
	}
	if reply.Target != mkReply.Child {
		t.Fatal("NameMap minted a different handle than the mkdir reply for the same inode")
	}
	if objects.Size() != 1 {
		t.Fatalf("Size = %d, want 1: NameMap references the existing entry", objects.Size())
	}

	// Drop both references: the NameMap's, then the mkdir reply's. Only
	// the second release empties the table.
	for i, target := range []wire.Handle{reply.Target, mkReply.Child} {
		releaseSlot, err := r.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeNameMapRelease)
		if err != nil {
			t.Fatalf("AllocateRequestBuffer: %v", err)
		}
		relParams := wire.NameMapReleaseParams{Target: target}
		if err := wire.EncodePayload(&releaseSlot.Body().Payload, &relParams); err != nil {
			t.Fatalf("EncodePayload: %v", err)
		}
		if errno := n.Dispatch(releaseSlot); errno != 0 {
			t.Fatalf("Dispatch NameMapRelease %d: %v", i, errno)
		}
	}
	if objects.Size() != 0 {
		t.Fatalf("Size = %d, want 0 after both references are dropped", objects.Size())
	}
}

func TestNativeUnknownTypeReturnsENOSYS(t *testing.T) {
	n, _ := newTestNativeHandler(t)
	r := newTestRegion(t)

	slot, err := r.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeRequestType(99))
	if err != nil {
		t.Fatalf("AllocateRequestBuffer: %v", err)
	}
	if errno := n.Dispatch(slot); errno == 0 {
		t.Fatal("expected a non-zero errno for an unknown native type")
	}
}
