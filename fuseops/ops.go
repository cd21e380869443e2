package fuseops

import "syscall"

// Op is implemented by every request struct in this package. A file system
// embedding this package receives Ops through its FileSystem interface
// methods and must call exactly one of Respond or Fail before returning.
//
// Adapted from github.com/jacobsa/fuse/fuseops's Op interface; the
// bazilfuse-request plumbing that backed commonOp there is replaced with a
// one-shot completion channel so the same Op type serves both a real
// kernel-facing connection and Finesse's synthetic dispatcher calls.
type Op interface {
	// Header returns the fields common to all ops.
	Header() *OpHeader

	// Fail completes the op with a kernel-style errno. A zero err means
	// success; callers should prefer Respond for the success path so the
	// return type stays self-documenting.
	Fail(err syscall.Errno)

	// done reports whether the op has already been completed, to guard
	// against double-Respond/Fail bugs in file system implementations.
	done() bool
}

// opBase is embedded by every concrete Op and implements the bookkeeping
// shared by all of them.
type opBase struct {
	header   OpHeader
	complete chan syscall.Errno
	finished bool
}

func newOpBase(h OpHeader) opBase {
	return opBase{header: h, complete: make(chan syscall.Errno, 1)}
}

func (o *opBase) Header() *OpHeader { return &o.header }

func (o *opBase) Fail(err syscall.Errno) {
	if o.finished {
		panic("fuseops: Op already completed")
	}
	o.finished = true
	o.complete <- err
}

func (o *opBase) done() bool { return o.finished }

// Wait blocks until the op has been completed (by Respond or Fail on the
// corresponding concrete type) and returns the resulting errno, zero on
// success. It is called by package server's adapter, never by the file
// system implementation itself.
func Wait(o Op) syscall.Errno {
	switch v := o.(type) {
	case *LookUpInodeOp:
		return <-v.complete
	case *GetInodeAttributesOp:
		return <-v.complete
	case *SetInodeAttributesOp:
		return <-v.complete
	case *ForgetInodeOp:
		return <-v.complete
	case *MkDirOp:
		return <-v.complete
	case *MkNodOp:
		return <-v.complete
	case *CreateFileOp:
		return <-v.complete
	case *CreateSymlinkOp:
		return <-v.complete
	case *CreateLinkOp:
		return <-v.complete
	case *RmDirOp:
		return <-v.complete
	case *UnlinkOp:
		return <-v.complete
	case *RenameOp:
		return <-v.complete
	case *ReadSymlinkOp:
		return <-v.complete
	case *OpenDirOp:
		return <-v.complete
	case *ReadDirOp:
		return <-v.complete
	case *ReleaseDirHandleOp:
		return <-v.complete
	case *OpenFileOp:
		return <-v.complete
	case *ReadFileOp:
		return <-v.complete
	case *WriteFileOp:
		return <-v.complete
	case *SyncFileOp:
		return <-v.complete
	case *FlushFileOp:
		return <-v.complete
	case *ReleaseFileHandleOp:
		return <-v.complete
	case *StatFSOp:
		return <-v.complete
	case *AccessOp:
		return <-v.complete
	case *SetXattrOp:
		return <-v.complete
	case *GetXattrOp:
		return <-v.complete
	case *ListXattrOp:
		return <-v.complete
	case *RemoveXattrOp:
		return <-v.complete
	case *GetLkOp:
		return <-v.complete
	case *SetLkOp:
		return <-v.complete
	case *FlockOp:
		return <-v.complete
	case *FallocateOp:
		return <-v.complete
	case *BmapOp:
		return <-v.complete
	case *IoctlOp:
		return <-v.complete
	case *PollOp:
		return <-v.complete
	case *ReadDirPlusOp:
		return <-v.complete
	case *CopyFileRangeOp:
		return <-v.complete
	case *LseekOp:
		return <-v.complete
	default:
		panic("fuseops: Wait on unknown op type")
	}
}

////////////////////////////////////////////////////////////////////////
// Inodes
////////////////////////////////////////////////////////////////////////

// LookUpInodeOp resolves a child by name within a parent directory.
type LookUpInodeOp struct {
	opBase
	Parent InodeID
	Name   string
	Entry  ChildInodeEntry
}

func NewLookUpInodeOp(h OpHeader, parent InodeID, name string) *LookUpInodeOp {
	return &LookUpInodeOp{opBase: newOpBase(h), Parent: parent, Name: name}
}

func (o *LookUpInodeOp) Respond(entry ChildInodeEntry) {
	o.Entry = entry
	o.opBase.complete <- 0
	o.opBase.finished = true
}

// GetInodeAttributesOp refreshes the attributes for a previously-resolved
// inode.
type GetInodeAttributesOp struct {
	opBase
	Inode      InodeID
	Attributes InodeAttributes
}

func NewGetInodeAttributesOp(h OpHeader, inode InodeID) *GetInodeAttributesOp {
	return &GetInodeAttributesOp{opBase: newOpBase(h), Inode: inode}
}

func (o *GetInodeAttributesOp) Respond(attr InodeAttributes) {
	o.Attributes = attr
	o.opBase.complete <- 0
	o.opBase.finished = true
}

// SetInodeAttributesOp changes attributes for an inode (chmod, chown,
// truncate, utimes).
type SetInodeAttributesOp struct {
	opBase
	Inode      InodeID
	Size       *uint64
	Mode       *uint32
	Attributes InodeAttributes
}

func NewSetInodeAttributesOp(h OpHeader, inode InodeID) *SetInodeAttributesOp {
	return &SetInodeAttributesOp{opBase: newOpBase(h), Inode: inode}
}

func (o *SetInodeAttributesOp) Respond(attr InodeAttributes) {
	o.Attributes = attr
	o.opBase.complete <- 0
	o.opBase.finished = true
}

// ForgetInodeOp tells the file system an inode ID previously issued will
// not be used again until reissued.
type ForgetInodeOp struct {
	opBase
	Inode InodeID
}

func NewForgetInodeOp(h OpHeader, inode InodeID) *ForgetInodeOp {
	return &ForgetInodeOp{opBase: newOpBase(h), Inode: inode}
}

func (o *ForgetInodeOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

////////////////////////////////////////////////////////////////////////
// Creation / linking
////////////////////////////////////////////////////////////////////////

type MkDirOp struct {
	opBase
	Parent InodeID
	Name   string
	Mode   uint32
	Entry  ChildInodeEntry
}

func NewMkDirOp(h OpHeader, parent InodeID, name string, mode uint32) *MkDirOp {
	return &MkDirOp{opBase: newOpBase(h), Parent: parent, Name: name, Mode: mode}
}

func (o *MkDirOp) Respond(entry ChildInodeEntry) {
	o.Entry = entry
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type MkNodOp struct {
	opBase
	Parent InodeID
	Name   string
	Mode   uint32
	Rdev   uint32
	Entry  ChildInodeEntry
}

func NewMkNodOp(h OpHeader, parent InodeID, name string, mode uint32, rdev uint32) *MkNodOp {
	return &MkNodOp{opBase: newOpBase(h), Parent: parent, Name: name, Mode: mode, Rdev: rdev}
}

func (o *MkNodOp) Respond(entry ChildInodeEntry) {
	o.Entry = entry
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type CreateFileOp struct {
	opBase
	Parent InodeID
	Name   string
	Mode   uint32
	Flags  uint32
	Entry  ChildInodeEntry
	Handle HandleID
}

func NewCreateFileOp(h OpHeader, parent InodeID, name string, mode, flags uint32) *CreateFileOp {
	return &CreateFileOp{opBase: newOpBase(h), Parent: parent, Name: name, Mode: mode, Flags: flags}
}

func (o *CreateFileOp) Respond(entry ChildInodeEntry, handle HandleID) {
	o.Entry = entry
	o.Handle = handle
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type CreateSymlinkOp struct {
	opBase
	Parent InodeID
	Name   string
	Target string
	Entry  ChildInodeEntry
}

func NewCreateSymlinkOp(h OpHeader, parent InodeID, name, target string) *CreateSymlinkOp {
	return &CreateSymlinkOp{opBase: newOpBase(h), Parent: parent, Name: name, Target: target}
}

func (o *CreateSymlinkOp) Respond(entry ChildInodeEntry) {
	o.Entry = entry
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type CreateLinkOp struct {
	opBase
	Parent InodeID
	Name   string
	Target InodeID
	Entry  ChildInodeEntry
}

func NewCreateLinkOp(h OpHeader, parent InodeID, name string, target InodeID) *CreateLinkOp {
	return &CreateLinkOp{opBase: newOpBase(h), Parent: parent, Name: name, Target: target}
}

func (o *CreateLinkOp) Respond(entry ChildInodeEntry) {
	o.Entry = entry
	o.opBase.complete <- 0
	o.opBase.finished = true
}

////////////////////////////////////////////////////////////////////////
// Unlinking
////////////////////////////////////////////////////////////////////////

type RmDirOp struct {
	opBase
	Parent InodeID
	Name   string
}

func NewRmDirOp(h OpHeader, parent InodeID, name string) *RmDirOp {
	return &RmDirOp{opBase: newOpBase(h), Parent: parent, Name: name}
}

func (o *RmDirOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type UnlinkOp struct {
	opBase
	Parent InodeID
	Name   string
}

func NewUnlinkOp(h OpHeader, parent InodeID, name string) *UnlinkOp {
	return &UnlinkOp{opBase: newOpBase(h), Parent: parent, Name: name}
}

func (o *UnlinkOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type RenameOp struct {
	opBase
	OldParent InodeID
	OldName   string
	NewParent InodeID
	NewName   string
}

func NewRenameOp(h OpHeader, oldParent InodeID, oldName string, newParent InodeID, newName string) *RenameOp {
	return &RenameOp{opBase: newOpBase(h), OldParent: oldParent, OldName: oldName, NewParent: newParent, NewName: newName}
}

func (o *RenameOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type ReadSymlinkOp struct {
	opBase
	Inode  InodeID
	Target string
}

func NewReadSymlinkOp(h OpHeader, inode InodeID) *ReadSymlinkOp {
	return &ReadSymlinkOp{opBase: newOpBase(h), Inode: inode}
}

func (o *ReadSymlinkOp) Respond(target string) {
	o.Target = target
	o.opBase.complete <- 0
	o.opBase.finished = true
}

////////////////////////////////////////////////////////////////////////
// Directory handles
////////////////////////////////////////////////////////////////////////

type OpenDirOp struct {
	opBase
	Inode  InodeID
	Flags  uint32
	Handle HandleID
}

func NewOpenDirOp(h OpHeader, inode InodeID, flags uint32) *OpenDirOp {
	return &OpenDirOp{opBase: newOpBase(h), Inode: inode, Flags: flags}
}

func (o *OpenDirOp) Respond(handle HandleID) {
	o.Handle = handle
	o.opBase.complete <- 0
	o.opBase.finished = true
}

// Dirent is one entry returned by ReadDirOp, in the listing order.
type Dirent struct {
	Offset DirOffset
	Inode  InodeID
	Name   string
	Type   uint8
}

type ReadDirOp struct {
	opBase
	Inode   InodeID
	Handle  HandleID
	Offset  DirOffset
	Size    int
	Entries []Dirent
}

func NewReadDirOp(h OpHeader, inode InodeID, handle HandleID, offset DirOffset, size int) *ReadDirOp {
	return &ReadDirOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Offset: offset, Size: size}
}

func (o *ReadDirOp) Respond(entries []Dirent) {
	o.Entries = entries
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type ReleaseDirHandleOp struct {
	opBase
	Handle HandleID
}

func NewReleaseDirHandleOp(h OpHeader, handle HandleID) *ReleaseDirHandleOp {
	return &ReleaseDirHandleOp{opBase: newOpBase(h), Handle: handle}
}

func (o *ReleaseDirHandleOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

// ReadDirPlusOp combines a ReadDir with a per-entry attribute refresh,
// saving a follow-up GetInodeAttributes round trip per entry.
type ReadDirPlusOp struct {
	opBase
	Inode   InodeID
	Handle  HandleID
	Offset  DirOffset
	Size    int
	Entries []ChildInodeEntry
	Names   []string
}

func NewReadDirPlusOp(h OpHeader, inode InodeID, handle HandleID, offset DirOffset, size int) *ReadDirPlusOp {
	return &ReadDirPlusOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Offset: offset, Size: size}
}

func (o *ReadDirPlusOp) Respond(names []string, entries []ChildInodeEntry) {
	o.Names = names
	o.Entries = entries
	o.opBase.complete <- 0
	o.opBase.finished = true
}

////////////////////////////////////////////////////////////////////////
// File handles
////////////////////////////////////////////////////////////////////////

type OpenFileOp struct {
	opBase
	Inode  InodeID
	Flags  uint32
	Handle HandleID
}

func NewOpenFileOp(h OpHeader, inode InodeID, flags uint32) *OpenFileOp {
	return &OpenFileOp{opBase: newOpBase(h), Inode: inode, Flags: flags}
}

func (o *OpenFileOp) Respond(handle HandleID) {
	o.Handle = handle
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type ReadFileOp struct {
	opBase
	Inode  InodeID
	Handle HandleID
	Offset int64
	Size   int
	Data   []byte
}

func NewReadFileOp(h OpHeader, inode InodeID, handle HandleID, offset int64, size int) *ReadFileOp {
	return &ReadFileOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Offset: offset, Size: size}
}

func (o *ReadFileOp) Respond(data []byte) {
	o.Data = data
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type WriteFileOp struct {
	opBase
	Inode   InodeID
	Handle  HandleID
	Offset  int64
	Data    []byte
	Written int
}

func NewWriteFileOp(h OpHeader, inode InodeID, handle HandleID, offset int64, data []byte) *WriteFileOp {
	return &WriteFileOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Offset: offset, Data: data}
}

func (o *WriteFileOp) Respond(written int) {
	o.Written = written
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type SyncFileOp struct {
	opBase
	Inode  InodeID
	Handle HandleID
}

func NewSyncFileOp(h OpHeader, inode InodeID, handle HandleID) *SyncFileOp {
	return &SyncFileOp{opBase: newOpBase(h), Inode: inode, Handle: handle}
}

func (o *SyncFileOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type FlushFileOp struct {
	opBase
	Inode  InodeID
	Handle HandleID
}

func NewFlushFileOp(h OpHeader, inode InodeID, handle HandleID) *FlushFileOp {
	return &FlushFileOp{opBase: newOpBase(h), Inode: inode, Handle: handle}
}

func (o *FlushFileOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type ReleaseFileHandleOp struct {
	opBase
	Handle HandleID
}

func NewReleaseFileHandleOp(h OpHeader, handle HandleID) *ReleaseFileHandleOp {
	return &ReleaseFileHandleOp{opBase: newOpBase(h), Handle: handle}
}

func (o *ReleaseFileHandleOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

////////////////////////////////////////////////////////////////////////
// File-system-wide
////////////////////////////////////////////////////////////////////////

type StatFSOp struct {
	opBase
	Info StatFSInfo
}

func NewStatFSOp(h OpHeader) *StatFSOp { return &StatFSOp{opBase: newOpBase(h)} }

func (o *StatFSOp) Respond(info StatFSInfo) {
	o.Info = info
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type AccessOp struct {
	opBase
	Inode InodeID
	Mask  uint32
}

func NewAccessOp(h OpHeader, inode InodeID, mask uint32) *AccessOp {
	return &AccessOp{opBase: newOpBase(h), Inode: inode, Mask: mask}
}

func (o *AccessOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

////////////////////////////////////////////////////////////////////////
// Extended attributes
////////////////////////////////////////////////////////////////////////

type SetXattrOp struct {
	opBase
	Inode InodeID
	Name  string
	Value []byte
	Flags uint32
}

func NewSetXattrOp(h OpHeader, inode InodeID, name string, value []byte, flags uint32) *SetXattrOp {
	return &SetXattrOp{opBase: newOpBase(h), Inode: inode, Name: name, Value: value, Flags: flags}
}

func (o *SetXattrOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type GetXattrOp struct {
	opBase
	Inode InodeID
	Name  string
	Size  int
	Value []byte
}

func NewGetXattrOp(h OpHeader, inode InodeID, name string, size int) *GetXattrOp {
	return &GetXattrOp{opBase: newOpBase(h), Inode: inode, Name: name, Size: size}
}

func (o *GetXattrOp) Respond(value []byte) {
	o.Value = value
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type ListXattrOp struct {
	opBase
	Inode InodeID
	Size  int
	Names []string
}

func NewListXattrOp(h OpHeader, inode InodeID, size int) *ListXattrOp {
	return &ListXattrOp{opBase: newOpBase(h), Inode: inode, Size: size}
}

func (o *ListXattrOp) Respond(names []string) {
	o.Names = names
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type RemoveXattrOp struct {
	opBase
	Inode InodeID
	Name  string
}

func NewRemoveXattrOp(h OpHeader, inode InodeID, name string) *RemoveXattrOp {
	return &RemoveXattrOp{opBase: newOpBase(h), Inode: inode, Name: name}
}

func (o *RemoveXattrOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

////////////////////////////////////////////////////////////////////////
// Locking and misc
////////////////////////////////////////////////////////////////////////

type FileLock struct {
	Type  uint32
	Start uint64
	End   uint64
	Pid   uint32
}

type GetLkOp struct {
	opBase
	Inode  InodeID
	Handle HandleID
	Lock   FileLock
}

func NewGetLkOp(h OpHeader, inode InodeID, handle HandleID, lock FileLock) *GetLkOp {
	return &GetLkOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Lock: lock}
}

func (o *GetLkOp) Respond(lock FileLock) {
	o.Lock = lock
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type SetLkOp struct {
	opBase
	Inode  InodeID
	Handle HandleID
	Lock   FileLock
	Wait   bool
}

func NewSetLkOp(h OpHeader, inode InodeID, handle HandleID, lock FileLock, wait bool) *SetLkOp {
	return &SetLkOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Lock: lock, Wait: wait}
}

func (o *SetLkOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type FlockOp struct {
	opBase
	Inode     InodeID
	Handle    HandleID
	Exclusive bool
	Unlock    bool
}

func NewFlockOp(h OpHeader, inode InodeID, handle HandleID, exclusive, unlock bool) *FlockOp {
	return &FlockOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Exclusive: exclusive, Unlock: unlock}
}

func (o *FlockOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type FallocateOp struct {
	opBase
	Inode  InodeID
	Handle HandleID
	Offset int64
	Length int64
	Mode   uint32
}

func NewFallocateOp(h OpHeader, inode InodeID, handle HandleID, offset, length int64, mode uint32) *FallocateOp {
	return &FallocateOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Offset: offset, Length: length, Mode: mode}
}

func (o *FallocateOp) Respond() {
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type BmapOp struct {
	opBase
	Inode     InodeID
	BlockSize uint32
	Block     uint64
	Result    uint64
}

func NewBmapOp(h OpHeader, inode InodeID, blockSize uint32, block uint64) *BmapOp {
	return &BmapOp{opBase: newOpBase(h), Inode: inode, BlockSize: blockSize, Block: block}
}

func (o *BmapOp) Respond(result uint64) {
	o.Result = result
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type IoctlOp struct {
	opBase
	Inode   InodeID
	Handle  HandleID
	Cmd     uint32
	Arg     uint64
	InData  []byte
	OutData []byte
}

func NewIoctlOp(h OpHeader, inode InodeID, handle HandleID, cmd uint32, arg uint64, in []byte) *IoctlOp {
	return &IoctlOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Cmd: cmd, Arg: arg, InData: in}
}

func (o *IoctlOp) Respond(out []byte) {
	o.OutData = out
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type PollOp struct {
	opBase
	Inode  InodeID
	Handle HandleID
	Events uint32
	Ready  uint32
}

func NewPollOp(h OpHeader, inode InodeID, handle HandleID, events uint32) *PollOp {
	return &PollOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Events: events}
}

func (o *PollOp) Respond(ready uint32) {
	o.Ready = ready
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type CopyFileRangeOp struct {
	opBase
	InodeIn   InodeID
	HandleIn  HandleID
	OffsetIn  int64
	InodeOut  InodeID
	HandleOut HandleID
	OffsetOut int64
	Length    int64
	Copied    int64
}

func NewCopyFileRangeOp(h OpHeader, inIno InodeID, inHandle HandleID, inOff int64, outIno InodeID, outHandle HandleID, outOff int64, length int64) *CopyFileRangeOp {
	return &CopyFileRangeOp{
		opBase: newOpBase(h), InodeIn: inIno, HandleIn: inHandle, OffsetIn: inOff,
		InodeOut: outIno, HandleOut: outHandle, OffsetOut: outOff, Length: length,
	}
}

func (o *CopyFileRangeOp) Respond(copied int64) {
	o.Copied = copied
	o.opBase.complete <- 0
	o.opBase.finished = true
}

type LseekOp struct {
	opBase
	Inode  InodeID
	Handle HandleID
	Offset int64
	Whence int32
	Result int64
}

func NewLseekOp(h OpHeader, inode InodeID, handle HandleID, offset int64, whence int32) *LseekOp {
	return &LseekOp{opBase: newOpBase(h), Inode: inode, Handle: handle, Offset: offset, Whence: whence}
}

func (o *LseekOp) Respond(result int64) {
	o.Result = result
	o.opBase.complete <- 0
	o.opBase.finished = true
}
