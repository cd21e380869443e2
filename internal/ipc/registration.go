package ipc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/fsgeek/finesse/internal/wire"
)

// maxMountPointLen bounds the mount point string embedded in a
// registration request; it exists only as an informational field for the
// server's logs, since the socket path itself is already derived from a
// hash of the canonical mount point.
const maxMountPointLen = 200

// maxShmPathLen bounds the shared-memory object path the client created
// and is handing to the server to map.
const maxShmPathLen = 200

// Request is what a client sends once, over the registration socket,
// before switching to the shared-memory region for every subsequent call.
type Request struct {
	ClientID   uuid.UUID
	Pid        uint32
	MountPoint [maxMountPointLen]byte
	ShmPath    [maxShmPathLen]byte
}

// NewRequest builds a Request, truncating mountPoint/shmPath the same way
// the wire package truncates names.
func NewRequest(clientID uuid.UUID, pid uint32, mountPoint, shmPath string) Request {
	var r Request
	r.ClientID = clientID
	r.Pid = pid
	wire.PutString(r.MountPoint[:], mountPoint)
	wire.PutString(r.ShmPath[:], shmPath)
	return r
}

func (r Request) MountPointString() string { return wire.GetString(r.MountPoint[:]) }
func (r Request) ShmPathString() string    { return wire.GetString(r.ShmPath[:]) }

// Reply is the server's answer to a registration Request: a result, the
// server's identity, and an echo of the shared-memory size the server
// mapped. The echo lets the client confirm both sides agree on the
// region's extent before the first slot is ever touched.
type Reply struct {
	ServerID uuid.UUID
	ShmSize  uint64
	Accepted bool
	_pad     [7]byte
}

// NewAcceptedReply builds a successful Reply echoing the size of the
// region the server just mapped.
func NewAcceptedReply(serverID uuid.UUID, shmSize uint64) Reply {
	return Reply{ServerID: serverID, ShmSize: shmSize, Accepted: true}
}

// NewRejectedReply builds a Reply carrying no server identity, used when
// a client's registration cannot be honored (its region file cannot be
// opened or mapped, or carries the wrong signature).
func NewRejectedReply() Reply {
	return Reply{Accepted: false}
}

// wireRequest/wireReply are fixed-size shadow types binary.Write/Read can
// operate on directly: uuid.UUID does not implement encoding.BinaryMarshaler
// in a way binary.Write recognizes, so each is copied into a plain
// [16]byte array before encoding.
type wireRequest struct {
	ClientID   [16]byte
	Pid        uint32
	Pad        uint32
	MountPoint [maxMountPointLen]byte
	ShmPath    [maxShmPathLen]byte
}

type wireReply struct {
	ServerID [16]byte
	ShmSize  uint64
	Accepted uint8
	Pad      [7]byte
}

// EncodeRequest serializes r for transmission over a SOCK_SEQPACKET
// registration socket.
func EncodeRequest(r Request) ([]byte, error) {
	var w wireRequest
	copy(w.ClientID[:], r.ClientID[:])
	w.Pid = r.Pid
	w.MountPoint = r.MountPoint
	w.ShmPath = r.ShmPath

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
		return nil, fmt.Errorf("ipc: encode request: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRequest parses a raw datagram received on the registration socket.
func DecodeRequest(data []byte) (Request, error) {
	var w wireRequest
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &w); err != nil {
		return Request{}, fmt.Errorf("ipc: decode request: %w", err)
	}

	id, err := uuid.FromBytes(w.ClientID[:])
	if err != nil {
		return Request{}, fmt.Errorf("ipc: decode request: %w", err)
	}

	return Request{
		ClientID:   id,
		Pid:        w.Pid,
		MountPoint: w.MountPoint,
		ShmPath:    w.ShmPath,
	}, nil
}

// EncodeReply serializes r for transmission back to the registering
// client.
func EncodeReply(r Reply) ([]byte, error) {
	var w wireReply
	copy(w.ServerID[:], r.ServerID[:])
	w.ShmSize = r.ShmSize
	if r.Accepted {
		w.Accepted = 1
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
		return nil, fmt.Errorf("ipc: encode reply: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeReply parses a raw datagram received from the server.
func DecodeReply(data []byte) (Reply, error) {
	var w wireReply
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &w); err != nil {
		return Reply{}, fmt.Errorf("ipc: decode reply: %w", err)
	}

	id, err := uuid.FromBytes(w.ServerID[:])
	if err != nil {
		return Reply{}, fmt.Errorf("ipc: decode reply: %w", err)
	}

	return Reply{ServerID: id, ShmSize: w.ShmSize, Accepted: w.Accepted != 0}, nil
}

// SendRequest writes an encoded Request as a single SOCK_SEQPACKET
// datagram.
func SendRequest(conn *net.UnixConn, r Request) error {
	data, err := EncodeRequest(r)
	if err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

// ReceiveRequest reads and decodes one registration datagram.
func ReceiveRequest(conn *net.UnixConn) (Request, error) {
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return Request{}, fmt.Errorf("ipc: receive request: %w", err)
	}
	return DecodeRequest(buf[:n])
}

// SendReply writes an encoded Reply as a single datagram.
func SendReply(conn *net.UnixConn, r Reply) error {
	data, err := EncodeReply(r)
	if err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

// ReceiveReply reads and decodes the server's reply.
func ReceiveReply(conn *net.UnixConn) (Reply, error) {
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return Reply{}, fmt.Errorf("ipc: receive reply: %w", err)
	}
	return DecodeReply(buf[:n])
}
