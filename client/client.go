// Package client implements the application side of the Finesse
// bootstrap: creating and mapping a shared-memory region, registering it
// with the daemon over the mount point's seqpacket socket, and driving
// request/response round trips through the region's slots. The
// per-entry-point libc interception shims sit above this package; each
// one is a thin wrapper over a typed call below.
package client

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/fsgeek/finesse/internal/ipc"
	"github.com/fsgeek/finesse/internal/wire"
	"github.com/fsgeek/finesse/shm"
)

// Client is one process's connection to the daemon accelerating a mount
// point. It is safe for concurrent use: every call claims its own slot,
// and slot acquisition is lock-free.
type Client struct {
	id       uuid.UUID
	serverID uuid.UUID
	conn     *net.UnixConn
	region   *shm.Region
	shmPath  string
}

// Dial registers with the server accelerating mountPoint. It creates and
// maps a fresh shared-memory region named by the client's own UUID, sends
// the registration record, and waits for the server's confirmation before
// returning a usable Client.
func Dial(mountPoint string) (*Client, error) {
	id := uuid.New()
	shmPath := filepath.Join(ipc.SocketDir(), "client-"+id.String())

	region, err := shm.Create(shmPath, id)
	if err != nil {
		return nil, err
	}

	teardown := func() {
		region.Close()
		os.Remove(shmPath)
	}

	conn, err := ipc.Dial(mountPoint)
	if err != nil {
		teardown()
		return nil, err
	}

	req := ipc.NewRequest(id, uint32(os.Getpid()), mountPoint, shmPath)
	if err := ipc.SendRequest(conn, req); err != nil {
		conn.Close()
		teardown()
		return nil, err
	}

	reply, err := ipc.ReceiveReply(conn)
	if err != nil {
		conn.Close()
		teardown()
		return nil, err
	}
	if !reply.Accepted {
		conn.Close()
		teardown()
		return nil, fmt.Errorf("client: server rejected registration for %s", mountPoint)
	}
	if reply.ShmSize != region.Size() {
		conn.Close()
		teardown()
		return nil, fmt.Errorf("client: server mapped %d bytes of %s, want %d", reply.ShmSize, shmPath, region.Size())
	}
	region.SetServerID(reply.ServerID)

	return &Client{
		id:       id,
		serverID: reply.ServerID,
		conn:     conn,
		region:   region,
		shmPath:  shmPath,
	}, nil
}

// ID returns the identifier this client generated at Dial time.
func (c *Client) ID() uuid.UUID { return c.id }

// ServerID returns the identity the server reported in its confirmation.
func (c *Client) ServerID() uuid.UUID { return c.serverID }

// Region exposes the underlying shared-memory region for callers needing
// lower-level control than the typed helpers below, such as tests that
// exercise slot exhaustion directly.
func (c *Client) Region() *shm.Region { return c.region }

// call runs one request/response round trip through a freshly allocated
// slot: encode params, publish, block for the response, decode the reply
// when the caller wants one, release the slot. A non-zero result from the
// server comes back as the matching syscall.Errno; a region observed
// shutting down mid-wait comes back as ENOTCONN.
func (c *Client) call(class wire.MessageClass, fuseType wire.FuseRequestType, nativeType wire.NativeRequestType, params, reply interface{}) error {
	slot, err := c.region.AllocateRequestBuffer(class, fuseType, nativeType)
	if err != nil {
		return syscall.ENOMEM
	}
	defer c.region.ReleaseRequestBuffer(slot)

	if params != nil {
		if err := wire.EncodePayload(&slot.Body().Payload, params); err != nil {
			return err
		}
	}

	if id := c.region.RequestReady(slot); id == 0 {
		return syscall.EIO
	}
	if _, err := c.region.GetResponse(slot, true); err != nil {
		return syscall.ENOTCONN
	}

	if result := slot.Result(); result != 0 {
		return syscall.Errno(result)
	}
	if reply != nil {
		return wire.DecodePayload(&slot.Body().Payload, reply)
	}
	return nil
}

// Test is the liveness probe: the version byte round-trips through the
// server's native Test handler unchanged.
func (c *Client) Test(version byte) error {
	params := wire.TestParams{VersionByte: version}
	var reply wire.TestReply
	if err := c.call(wire.ClassNative, 0, wire.NativeTest, &params, &reply); err != nil {
		return err
	}
	if reply.VersionByte != version {
		return fmt.Errorf("client: test echo returned version %#x, want %#x", reply.VersionByte, version)
	}
	return nil
}

// ServerStat fetches the server's current statistics snapshot.
func (c *Client) ServerStat() (wire.ServerStatReply, error) {
	var reply wire.ServerStatReply
	err := c.call(wire.ClassNative, 0, wire.NativeServerStat, &wire.ServerStatParams{}, &reply)
	return reply, err
}

// NameMap resolves name relative to parent (the null handle meaning the
// root) and returns a stable handle for the result. The handle stays
// valid until released with NameMapRelease.
func (c *Client) NameMap(parent wire.Handle, name string) (wire.Handle, error) {
	var params wire.NameMapParams
	params.Parent = parent
	wire.PutString(params.Name[:], name)

	var reply wire.NameMapReply
	if err := c.call(wire.ClassNative, 0, wire.NativeNameMap, &params, &reply); err != nil {
		return wire.NullHandle, err
	}
	return reply.Target, nil
}

// NameMapRelease drops the reference a NameMap call took out.
func (c *Client) NameMapRelease(target wire.Handle) error {
	params := wire.NameMapReleaseParams{Target: target}
	return c.call(wire.ClassNative, 0, wire.NativeNameMapRelease, &params, nil)
}

// Lookup resolves name relative to parent through the FUSE-class
// sub-protocol and returns the reply attributes alongside the child's
// handle.
func (c *Client) Lookup(parent wire.Handle, name string) (wire.LookupReply, error) {
	var params wire.LookupParams
	params.Parent = parent
	wire.PutString(params.Name[:], name)

	var reply wire.LookupReply
	err := c.call(wire.ClassFuse, wire.FuseLookup, 0, &params, &reply)
	return reply, err
}

// StatFS fetches file-system-wide statistics through the FUSE-class
// sub-protocol.
func (c *Client) StatFS(target wire.Handle) (wire.StatfsReply, error) {
	params := wire.StatfsParams{Target: target}
	var reply wire.StatfsReply
	err := c.call(wire.ClassFuse, wire.FuseStatfs, 0, &params, &reply)
	return reply, err
}

// Unlink removes name from the directory parent names.
func (c *Client) Unlink(parent wire.Handle, name string) error {
	var params wire.UnlinkParams
	params.Parent = parent
	wire.PutString(params.Name[:], name)
	return c.call(wire.ClassFuse, wire.FuseUnlink, 0, &params, nil)
}

// Mkdir creates a directory named name under parent.
func (c *Client) Mkdir(parent wire.Handle, name string, mode uint32) (wire.Handle, error) {
	var params wire.MkdirParams
	params.Parent = parent
	params.Mode = mode
	wire.PutString(params.Name[:], name)

	var reply wire.MkdirReply
	if err := c.call(wire.ClassFuse, wire.FuseMkdir, 0, &params, &reply); err != nil {
		return wire.NullHandle, err
	}
	return reply.Child, nil
}

// DirectoryMap fetches parent's full listing in one round trip, reading
// the entries back out of the auxiliary arena the server names in its
// reply and releasing the arena once decoded.
func (c *Client) DirectoryMap(parent wire.Handle) ([]wire.DirEntryRecord, error) {
	params := wire.DirectoryMapParams{Parent: parent}
	var reply wire.DirectoryMapReply
	if err := c.call(wire.ClassNative, 0, wire.NativeDirectoryMap, &params, &reply); err != nil {
		return nil, err
	}
	if reply.EntryCount == 0 {
		return nil, nil
	}

	name := wire.GetString(reply.ArenaName[:])
	id, err := uuid.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("client: response names invalid arena %q: %w", name, err)
	}

	arena, err := shm.OpenArena(ipc.SocketDir(), id)
	if err != nil {
		return nil, err
	}
	entries, derr := wire.DecodeDirEntries(arena.Buffer(0), int(reply.EntryCount))
	arena.Close()
	if derr != nil {
		return nil, derr
	}

	rel := wire.DirectoryMapReleaseParams{ArenaName: reply.ArenaName}
	if err := c.call(wire.ClassNative, 0, wire.NativeDirectoryMapRelease, &rel, nil); err != nil {
		return nil, err
	}
	return entries, nil
}

// Close hangs up the registration socket and unmaps the region, then
// unlinks the region's backing file. The server keeps its own mapping
// alive until its liveness poll notices this process is gone.
func (c *Client) Close() error {
	var first error
	if err := c.conn.Close(); err != nil {
		first = err
	}
	if err := c.region.Close(); err != nil && first == nil {
		first = err
	}
	if err := os.Remove(c.shmPath); err != nil && first == nil && !os.IsNotExist(err) {
		first = err
	}
	return first
}
