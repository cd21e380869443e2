package wire

// NativeRequestType enumerates the Finesse-specific sub-protocol,
// including the directory-map bulk snapshot calls.
type NativeRequestType uint16

const (
	NativeTest NativeRequestType = iota + 1
	NativeServerStat
	NativeNameMap
	NativeNameMapRelease
	NativeDirectoryMap
	NativeDirectoryMapRelease
)

func (t NativeRequestType) String() string {
	switch t {
	case NativeTest:
		return "Test"
	case NativeServerStat:
		return "ServerStat"
	case NativeNameMap:
		return "NameMap"
	case NativeNameMapRelease:
		return "NameMapRelease"
	case NativeDirectoryMap:
		return "DirectoryMap"
	case NativeDirectoryMapRelease:
		return "DirectoryMapRelease"
	default:
		return "Unknown"
	}
}

// TestParams/TestReply implement the liveness probe: whatever version byte
// the client stamps into the request is echoed back unchanged.
type TestParams struct {
	VersionByte byte
	Payload     [MaxInlineData]byte
}

type TestReply struct {
	VersionByte byte
	Payload     [MaxInlineData]byte
}

// ServerStatParams carries no fields; ServerStatReply snapshots the
// server-local counters a client can read without waiting for the
// shutdown CSV.
type ServerStatParams struct{}

type ServerStatReply struct {
	ClientCount      uint32
	ObjectTableSize  uint32
	UptimeNanos      int64
	ActiveArenaCount uint32
}

// NameMapParams resolves (parent handle, name) to a handle via the
// embedded FUSE adapter followed by an object-table insert.
type NameMapParams struct {
	Parent Handle
	Name   [MaxNameLen]byte
}

type NameMapReply struct {
	Target Handle
}

type NameMapReleaseParams struct {
	Target Handle
}

// DirectoryMapParams/Reply implement the bulk directory snapshot: one
// request materializes a whole listing into an arena. The arena name gets
// its own dedicated field rather than overloading a fixed-size key.
type DirectoryMapParams struct {
	Parent Handle
}

type DirectoryMapReply struct {
	ArenaName  [MaxArenaName]byte
	EntryCount uint32
}

type DirectoryMapReleaseParams struct {
	ArenaName [MaxArenaName]byte
}
