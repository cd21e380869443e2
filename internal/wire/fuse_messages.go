package wire

// FuseRequestType enumerates the FUSE-shaped sub-protocol. Values mirror
// the low-level FUSE operations the embedded operation
// vector (package fuseops) exposes; the server's adapter (package server)
// maps each one onto the matching fuseops.*Op constructor.
type FuseRequestType uint16

const (
	FuseLookup FuseRequestType = iota + 1
	FuseForget
	FuseGetAttr
	FuseSetAttr
	FuseReadlink
	FuseMknod
	FuseMkdir
	FuseUnlink
	FuseRmdir
	FuseSymlink
	FuseRename
	FuseLink
	FuseOpen
	FuseRead
	FuseWrite
	FuseFlush
	FuseRelease
	FuseFsync
	FuseOpendir
	FuseReaddir
	FuseReleasedir
	FuseFsyncdir
	FuseSetxattr
	FuseGetxattr
	FuseListxattr
	FuseRemovexattr
	FuseStatfs
	FuseAccess
	FuseCreate
	FuseGetlk
	FuseSetlk
	FuseBmap
	FuseIoctl
	FusePoll
	FuseWriteBuf
	FuseRetrieveReply
	FuseForgetMulti
	FuseFlock
	FuseFallocate
	FuseReaddirplus
	FuseCopyFileRange
	FuseLseek
)

var fuseRequestTypeNames = [...]string{
	FuseLookup: "Lookup", FuseForget: "Forget", FuseGetAttr: "GetAttr",
	FuseSetAttr: "SetAttr", FuseReadlink: "Readlink", FuseMknod: "Mknod",
	FuseMkdir: "Mkdir", FuseUnlink: "Unlink", FuseRmdir: "Rmdir",
	FuseSymlink: "Symlink", FuseRename: "Rename", FuseLink: "Link",
	FuseOpen: "Open", FuseRead: "Read", FuseWrite: "Write", FuseFlush: "Flush",
	FuseRelease: "Release", FuseFsync: "Fsync", FuseOpendir: "Opendir",
	FuseReaddir: "Readdir", FuseReleasedir: "Releasedir", FuseFsyncdir: "Fsyncdir",
	FuseSetxattr: "Setxattr", FuseGetxattr: "Getxattr", FuseListxattr: "Listxattr",
	FuseRemovexattr: "Removexattr", FuseStatfs: "Statfs", FuseAccess: "Access",
	FuseCreate: "Create", FuseGetlk: "Getlk", FuseSetlk: "Setlk", FuseBmap: "Bmap",
	FuseIoctl: "Ioctl", FusePoll: "Poll", FuseWriteBuf: "WriteBuf",
	FuseRetrieveReply: "RetrieveReply", FuseForgetMulti: "ForgetMulti",
	FuseFlock: "Flock", FuseFallocate: "Fallocate", FuseReaddirplus: "Readdirplus",
	FuseCopyFileRange: "CopyFileRange", FuseLseek: "Lseek",
}

func (t FuseRequestType) String() string {
	if int(t) < len(fuseRequestTypeNames) && fuseRequestTypeNames[t] != "" {
		return fuseRequestTypeNames[t]
	}
	return "Unknown"
}

// FuseRequestTypeCount must equal the number of distinct FuseRequestType
// values; fuse_messages_test.go checks the names table has exactly this
// many non-empty entries, so the table and the enum cannot drift apart.
const FuseRequestTypeCount = int(FuseLseek)

////////////////////////////////////////////////////////////////////////
// Requests identifying an object carry a Handle; requests naming a new
// object carry a parent Handle plus a bounded inline name.
////////////////////////////////////////////////////////////////////////

type LookupParams struct {
	Parent Handle
	Name   [MaxNameLen]byte
}

type LookupReply struct {
	Child    Handle
	Size     uint64
	Mode     uint32
	Nlink    uint32
	Uid, Gid uint32
}

type ForgetParams struct {
	Target Handle
}

type GetAttrParams struct {
	Target Handle
}

type GetAttrReply struct {
	Size     uint64
	Mode     uint32
	Nlink    uint32
	Uid, Gid uint32
	AtimeSec int64
	MtimeSec int64
	CtimeSec int64
}

type SetAttrParams struct {
	Target    Handle
	ValidMask uint32 // bit per field below that the caller wants applied
	Size      uint64
	Mode      uint32
	AtimeSec  int64
	MtimeSec  int64
}

type SetAttrReply struct {
	GetAttrReply
}

type ReadlinkParams struct {
	Target Handle
}

type ReadlinkReply struct {
	Target [MaxInlineData]byte
}

type MknodParams struct {
	Parent Handle
	Name   [MaxNameLen]byte
	Mode   uint32
	Rdev   uint32
}

type MknodReply struct {
	Child Handle
}

type MkdirParams struct {
	Parent Handle
	Name   [MaxNameLen]byte
	Mode   uint32
}

type MkdirReply struct {
	Child Handle
}

type UnlinkParams struct {
	Parent Handle
	Name   [MaxNameLen]byte
}

type RmdirParams struct {
	Parent Handle
	Name   [MaxNameLen]byte
}

type SymlinkParams struct {
	Parent Handle
	Name   [MaxNameLen]byte
	Target [MaxInlineData]byte
}

type SymlinkReply struct {
	Child Handle
}

type RenameParams struct {
	OldParent Handle
	OldName   [MaxNameLen]byte
	NewParent Handle
	NewName   [MaxNameLen]byte
}

type LinkParams struct {
	Parent Handle
	Name   [MaxNameLen]byte
	Target Handle
}

type LinkReply struct {
	Child Handle
}

type OpenParams struct {
	Target Handle
	Flags  uint32
}

type OpenReply struct {
	FileHandle uint64
}

// ReadParams/ReadReply carry only the request shape and size; payload
// bytes beyond MaxInlineData travel through an auxiliary arena named in
// ArenaName.
type ReadParams struct {
	Target     Handle
	FileHandle uint64
	Offset     int64
	Size       uint32
}

type ReadReply struct {
	Inline    [MaxInlineData]byte
	Returned  uint32
	ArenaName [MaxArenaName]byte // set iff Returned > len(Inline)
}

type WriteParams struct {
	Target     Handle
	FileHandle uint64
	Offset     int64
	Inline     [MaxInlineData]byte
	Size       uint32
	ArenaName  [MaxArenaName]byte // set iff Size > len(Inline)
}

type WriteReply struct {
	Written uint32
}

type FlushParams struct {
	Target     Handle
	FileHandle uint64
}

type ReleaseParams struct {
	Target     Handle
	FileHandle uint64
}

type FsyncParams struct {
	Target     Handle
	FileHandle uint64
	DataOnly   bool
}

type OpendirParams struct {
	Target Handle
	Flags  uint32
}

type OpendirReply struct {
	FileHandle uint64
}

type ReaddirParams struct {
	Target     Handle
	FileHandle uint64
	Offset     uint64
	Size       uint32
}

// ReaddirReply's entries are always carried in an auxiliary arena: even a
// modest directory overruns a slot body, which is also why the
// DirectoryMap native call exists. The reply has no inline entry storage;
// the server's adapter leaves InlineCount zero.
type ReaddirReply struct {
	InlineCount uint32
	ArenaName   [MaxArenaName]byte
	EntryCount  uint32
	Eof         bool
}

type ReleasedirParams struct {
	Target     Handle
	FileHandle uint64
}

type FsyncdirParams struct {
	Target     Handle
	FileHandle uint64
	DataOnly   bool
}

type SetxattrParams struct {
	Target Handle
	Name   [MaxNameLen]byte
	Value  [MaxInlineData]byte
	Size   uint32
	Flags  uint32
}

type GetxattrParams struct {
	Target Handle
	Name   [MaxNameLen]byte
	Size   uint32
}

type GetxattrReply struct {
	Value    [MaxInlineData]byte
	Returned uint32
}

type ListxattrParams struct {
	Target Handle
	Size   uint32
}

type ListxattrReply struct {
	Names    [MaxInlineData]byte // NUL-separated, double-NUL terminated
	Returned uint32
}

type RemovexattrParams struct {
	Target Handle
	Name   [MaxNameLen]byte
}

type StatfsParams struct {
	Target Handle
}

type StatfsReply struct {
	BlockSize       uint32
	Blocks          uint64
	BlocksFree      uint64
	BlocksAvailable uint64
	IoSize          uint32
	Inodes          uint64
	InodesFree      uint64
}

type AccessParams struct {
	Target Handle
	Mask   uint32
}

type CreateParams struct {
	Parent Handle
	Name   [MaxNameLen]byte
	Mode   uint32
	Flags  uint32
}

type CreateReply struct {
	Child      Handle
	FileHandle uint64
}

type FileLockWire struct {
	Type  uint32
	Start uint64
	End   uint64
	Pid   uint32
}

type GetlkParams struct {
	Target     Handle
	FileHandle uint64
	Lock       FileLockWire
}

type GetlkReply struct {
	Lock FileLockWire
}

type SetlkParams struct {
	Target     Handle
	FileHandle uint64
	Lock       FileLockWire
	Wait       bool
}

type BmapParams struct {
	Target    Handle
	BlockSize uint32
	Block     uint64
}

type BmapReply struct {
	Block uint64
}

type IoctlParams struct {
	Target     Handle
	FileHandle uint64
	Cmd        uint32
	Arg        uint64
	Inline     [MaxInlineData]byte
	InSize     uint32
}

type IoctlReply struct {
	Inline   [MaxInlineData]byte
	Returned uint32
}

type PollParams struct {
	Target     Handle
	FileHandle uint64
	Events     uint32
}

type PollReply struct {
	Ready uint32
}

// WriteBufParams is the vectored-write variant; it has no inline data, so
// its whole payload lives in the arena named by ArenaName.
type WriteBufParams struct {
	Target     Handle
	FileHandle uint64
	Offset     int64
	Size       uint32
	ArenaName  [MaxArenaName]byte
}

type WriteBufReply struct {
	Written uint32
}

// RetrieveReplyParams answers a kernel-initiated retrieve notification.
// The server's adapter answers every RetrieveReply request with ENOTSUP.
type RetrieveReplyParams struct {
	Target    Handle
	Offset    int64
	Size      uint32
	ArenaName [MaxArenaName]byte
	Notify    uint64
}

type ForgetMultiParams struct {
	Count   uint32
	Targets [8]Handle // inline budget; larger batches split across requests
}

type FlockParams struct {
	Target     Handle
	FileHandle uint64
	Exclusive  bool
	Unlock     bool
}

type FallocateParams struct {
	Target     Handle
	FileHandle uint64
	Offset     int64
	Length     int64
	Mode       uint32
}

type ReaddirplusParams struct {
	Target     Handle
	FileHandle uint64
	Offset     uint64
	Size       uint32
}

type ReaddirplusReply struct {
	ArenaName  [MaxArenaName]byte
	EntryCount uint32
	Eof        bool
}

type CopyFileRangeParams struct {
	SourceTarget Handle
	SourceHandle uint64
	SourceOffset int64
	DestTarget   Handle
	DestHandle   uint64
	DestOffset   int64
	Length       int64
}

type CopyFileRangeReply struct {
	Copied int64
}

type LseekParams struct {
	Target     Handle
	FileHandle uint64
	Offset     int64
	Whence     int32
}

type LseekReply struct {
	Offset int64
}
