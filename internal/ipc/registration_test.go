package ipc

import (
	"testing"

	"github.com/google/uuid"
)

func TestRequestEncodeDecodeRoundTrip(t *testing.T) {
	want := NewRequest(uuid.New(), 4242, "/mnt/finesse", "/dev/shm/finesse-abc")

	data, err := EncodeRequest(want)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	got, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}

	if got.ClientID != want.ClientID {
		t.Fatalf("ClientID = %v, want %v", got.ClientID, want.ClientID)
	}
	if got.Pid != want.Pid {
		t.Fatalf("Pid = %d, want %d", got.Pid, want.Pid)
	}
	if got.MountPointString() != "/mnt/finesse" {
		t.Fatalf("MountPointString = %q", got.MountPointString())
	}
	if got.ShmPathString() != "/dev/shm/finesse-abc" {
		t.Fatalf("ShmPathString = %q", got.ShmPathString())
	}
}

func TestReplyEncodeDecodeRoundTrip(t *testing.T) {
	serverID := uuid.New()
	want := NewAcceptedReply(serverID, 266240)

	data, err := EncodeReply(want)
	if err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}

	got, err := DecodeReply(data)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}

	if got.ServerID != serverID {
		t.Fatalf("ServerID = %v, want %v", got.ServerID, serverID)
	}
	if got.ShmSize != 266240 {
		t.Fatalf("ShmSize = %d, want 266240", got.ShmSize)
	}
	if !got.Accepted {
		t.Fatal("Accepted = false, want true")
	}
}

func TestRejectedReplyNotAccepted(t *testing.T) {
	data, err := EncodeReply(NewRejectedReply())
	if err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}

	got, err := DecodeReply(data)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if got.Accepted {
		t.Fatal("Accepted = true, want false")
	}
}

func TestSocketPathStableUnderRepeatedCalls(t *testing.T) {
	a, err := SocketPath("/mnt/finesse")
	if err != nil {
		t.Fatalf("SocketPath: %v", err)
	}
	b, err := SocketPath("/mnt/finesse")
	if err != nil {
		t.Fatalf("SocketPath: %v", err)
	}
	if a != b {
		t.Fatalf("SocketPath not stable: %q vs %q", a, b)
	}
}

func TestSocketPathDiffersByMountPoint(t *testing.T) {
	a, err := SocketPath("/mnt/one")
	if err != nil {
		t.Fatalf("SocketPath: %v", err)
	}
	b, err := SocketPath("/mnt/two")
	if err != nil {
		t.Fatalf("SocketPath: %v", err)
	}
	if a == b {
		t.Fatal("SocketPath should differ for different mount points")
	}
}
