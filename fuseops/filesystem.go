package fuseops

import "syscall"

// FileSystem is the interface an embedding daemon implements. It mirrors
// github.com/jacobsa/fuse/fuseutil's FileSystem interface: one method per
// op type, each responsible for calling Respond or Fail on the op it
// receives. A single implementation serves both ops that arrived from the
// kernel and ops synthesized by Finesse's server-side adapter (package
// server); the op's Header().Origin tells the implementation nothing it
// needs to care about, since the contract is identical either way.
type FileSystem interface {
	LookUpInode(op *LookUpInodeOp)
	GetInodeAttributes(op *GetInodeAttributesOp)
	SetInodeAttributes(op *SetInodeAttributesOp)
	ForgetInode(op *ForgetInodeOp)

	MkDir(op *MkDirOp)
	MkNod(op *MkNodOp)
	CreateFile(op *CreateFileOp)
	CreateSymlink(op *CreateSymlinkOp)
	CreateLink(op *CreateLinkOp)

	RmDir(op *RmDirOp)
	Unlink(op *UnlinkOp)
	Rename(op *RenameOp)
	ReadSymlink(op *ReadSymlinkOp)

	OpenDir(op *OpenDirOp)
	ReadDir(op *ReadDirOp)
	ReadDirPlus(op *ReadDirPlusOp)
	ReleaseDirHandle(op *ReleaseDirHandleOp)

	OpenFile(op *OpenFileOp)
	ReadFile(op *ReadFileOp)
	WriteFile(op *WriteFileOp)
	SyncFile(op *SyncFileOp)
	FlushFile(op *FlushFileOp)
	ReleaseFileHandle(op *ReleaseFileHandleOp)

	StatFS(op *StatFSOp)
	Access(op *AccessOp)

	SetXattr(op *SetXattrOp)
	GetXattr(op *GetXattrOp)
	ListXattr(op *ListXattrOp)
	RemoveXattr(op *RemoveXattrOp)

	GetLk(op *GetLkOp)
	SetLk(op *SetLkOp)
	Flock(op *FlockOp)
	Fallocate(op *FallocateOp)
	Bmap(op *BmapOp)
	Ioctl(op *IoctlOp)
	Poll(op *PollOp)
	CopyFileRange(op *CopyFileRangeOp)
	Lseek(op *LseekOp)
}

// NotImplementedFileSystem answers every op with ENOSYS. Embed it to pick
// up defaults for ops a given file system does not care about, the same
// role github.com/jacobsa/fuse/fuseutil.NotImplementedFileSystem plays.
type NotImplementedFileSystem struct{}

var _ FileSystem = &NotImplementedFileSystem{}

func (*NotImplementedFileSystem) LookUpInode(op *LookUpInodeOp) { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) GetInodeAttributes(op *GetInodeAttributesOp) {
	op.Fail(syscall.ENOSYS)
}
func (*NotImplementedFileSystem) SetInodeAttributes(op *SetInodeAttributesOp) {
	op.Fail(syscall.ENOSYS)
}
func (*NotImplementedFileSystem) ForgetInode(op *ForgetInodeOp)             { op.Respond() }
func (*NotImplementedFileSystem) MkDir(op *MkDirOp)                         { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) MkNod(op *MkNodOp)                         { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) CreateFile(op *CreateFileOp)               { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) CreateSymlink(op *CreateSymlinkOp)         { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) CreateLink(op *CreateLinkOp)               { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) RmDir(op *RmDirOp)                         { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) Unlink(op *UnlinkOp)                       { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) Rename(op *RenameOp)                       { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) ReadSymlink(op *ReadSymlinkOp)             { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) OpenDir(op *OpenDirOp)                     { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) ReadDir(op *ReadDirOp)                     { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) ReadDirPlus(op *ReadDirPlusOp)             { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) ReleaseDirHandle(op *ReleaseDirHandleOp)   { op.Respond() }
func (*NotImplementedFileSystem) OpenFile(op *OpenFileOp)                   { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) ReadFile(op *ReadFileOp)                   { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) WriteFile(op *WriteFileOp)                 { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) SyncFile(op *SyncFileOp)                   { op.Respond() }
func (*NotImplementedFileSystem) FlushFile(op *FlushFileOp)                 { op.Respond() }
func (*NotImplementedFileSystem) ReleaseFileHandle(op *ReleaseFileHandleOp) { op.Respond() }
func (*NotImplementedFileSystem) StatFS(op *StatFSOp)                       { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) Access(op *AccessOp)                       { op.Respond() }
func (*NotImplementedFileSystem) SetXattr(op *SetXattrOp)                   { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) GetXattr(op *GetXattrOp)                   { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) ListXattr(op *ListXattrOp)                 { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) RemoveXattr(op *RemoveXattrOp)             { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) GetLk(op *GetLkOp)                         { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) SetLk(op *SetLkOp)                         { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) Flock(op *FlockOp)                         { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) Fallocate(op *FallocateOp)                 { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) Bmap(op *BmapOp)                           { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) Ioctl(op *IoctlOp)                         { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) Poll(op *PollOp)                           { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) CopyFileRange(op *CopyFileRangeOp)         { op.Fail(syscall.ENOSYS) }
func (*NotImplementedFileSystem) Lseek(op *LseekOp)                         { op.Fail(syscall.ENOSYS) }
