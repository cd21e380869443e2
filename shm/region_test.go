package shm

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/fsgeek/finesse/internal/wire"
)

func newTestRegion(t *testing.T) *Region {
	t.Helper()
	path := filepath.Join(t.TempDir(), "region")
	r, err := Create(path, uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestAllocateRequestReadyGetReadyRoundTrip(t *testing.T) {
	r := newTestRegion(t)

	s, err := r.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeTest)
	if err != nil {
		t.Fatalf("AllocateRequestBuffer: %v", err)
	}

	id := r.RequestReady(s)
	if id == 0 {
		t.Fatal("RequestReady returned a zero request id")
	}

	got, err := r.GetReadyRequest()
	if err != nil {
		t.Fatalf("GetReadyRequest: %v", err)
	}
	if got.Index() != s.Index() {
		t.Fatalf("GetReadyRequest returned slot %d, want %d", got.Index(), s.Index())
	}
	if got.RequestID() != id {
		t.Fatalf("GetReadyRequest slot id = %d, want %d", got.RequestID(), id)
	}

	if _, err := r.GetReadyRequest(); err != ErrNone {
		t.Fatalf("second GetReadyRequest = %v, want ErrNone", err)
	}

	r.ResponseReady(got)

	ready, err := r.GetResponse(s, false)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if !ready {
		t.Fatal("GetResponse reported not ready after ResponseReady")
	}

	r.ReleaseRequestBuffer(s)
	if pop := r.AllocationPopulation(); pop != 0 {
		t.Fatalf("AllocationPopulation = %d after release, want 0", pop)
	}
}

func TestAllocateRequestBufferExhaustion(t *testing.T) {
	r := newTestRegion(t)

	slots := make([]*Slot, 0, SlotCount)
	for i := 0; i < SlotCount; i++ {
		s, err := r.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeTest)
		if err != nil {
			t.Fatalf("AllocateRequestBuffer[%d]: %v", i, err)
		}
		slots = append(slots, s)
	}

	if _, err := r.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeTest); err != ErrNoBuffer {
		t.Fatalf("expected ErrNoBuffer on the 65th allocation, got %v", err)
	}

	for _, s := range slots {
		r.ReleaseRequestBuffer(s)
	}
}

func TestGetResponseNonBlockingReturnsFalse(t *testing.T) {
	r := newTestRegion(t)

	s, err := r.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeTest)
	if err != nil {
		t.Fatalf("AllocateRequestBuffer: %v", err)
	}

	ready, err := r.GetResponse(s, false)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if ready {
		t.Fatal("GetResponse reported ready before ResponseReady was called")
	}
}

func TestDestroyRegionRejectsOutstandingAllocations(t *testing.T) {
	r := newTestRegion(t)

	if _, err := r.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeTest); err != nil {
		t.Fatalf("AllocateRequestBuffer: %v", err)
	}

	if err := r.DestroyRegion(); err == nil {
		t.Fatal("expected DestroyRegion to reject an outstanding allocation")
	}
	if !r.IsShutdown() {
		t.Fatal("DestroyRegion should still raise the shutdown flag even on precondition failure")
	}
}

func TestWaitForReadyRequestObservesShutdown(t *testing.T) {
	r := newTestRegion(t)

	done := make(chan error, 1)
	go func() {
		done <- r.WaitForReadyRequest()
	}()

	if err := r.DestroyRegion(); err != nil {
		t.Fatalf("DestroyRegion: %v", err)
	}

	if err := <-done; err != ErrShuttingDown {
		t.Fatalf("WaitForReadyRequest = %v, want ErrShuttingDown", err)
	}
}
