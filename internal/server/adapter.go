package server

import (
	"os"
	"strings"
	"syscall"

	"github.com/fsgeek/finesse/fuseops"
	"github.com/fsgeek/finesse/internal/objtable"
	"github.com/fsgeek/finesse/internal/wire"
	"github.com/fsgeek/finesse/shm"
)

// Adapter translates wire requests belonging to wire.ClassFuse into calls
// against an embedded fuseops.FileSystem, and its responses back into the
// fixed-size reply structs package wire defines.
type Adapter struct {
	FS       fuseops.FileSystem
	Objects  *objtable.Table
	ArenaDir string
}

// attrFields copies the attribute subset every creation-style reply
// shares from a freshly resolved ChildInodeEntry.
func attrFields(a fuseops.InodeAttributes) (size uint64, mode, nlink, uid, gid uint32) {
	return a.Size, uint32(a.Mode), a.Nlink, a.Uid, a.Gid
}

// modeToDirentType maps an os.FileMode to the small dirent type tag a
// directory listing carries, mirroring the DT_* constants a getdents(2)
// caller expects.
func modeToDirentType(m os.FileMode) uint8 {
	switch {
	case m&os.ModeDir != 0:
		return 4 // DT_DIR
	case m&os.ModeSymlink != 0:
		return 10 // DT_LNK
	default:
		return 8 // DT_REG
	}
}

// parentAndLeaf resolves the directory an operation will act in. A name
// with no slash is the common case — the parent handle already names the
// directory. A multi-component name walks the resolver in
// stop-at-the-final-parent mode, so callers always get (directory inode,
// leaf name) regardless of how much path the client embedded.
func (a *Adapter) parentAndLeaf(h fuseops.OpHeader, parent wire.Handle, raw string) (fuseops.InodeID, string, syscall.Errno) {
	if !strings.Contains(raw, "/") {
		inode, err := handleToInode(a.Objects, parent)
		if err != nil {
			return 0, "", err.(syscall.Errno)
		}
		return inode, raw, 0
	}

	r := &resolver{objects: a.Objects, fs: a.FS, header: h}
	entry, leaf, fail := r.resolve(parent, raw, resolveFlags{followSymlinks: true, stopAtParent: true})
	if fail != nil {
		return 0, "", fail.Errno
	}
	if leaf == "" {
		return 0, "", syscall.EINVAL
	}
	return entry.Child, leaf, 0
}

// Dispatch decodes slot's request payload, calls into FS, and encodes the
// reply in place. It returns the errno to stamp into the slot's Result
// field; zero means success.
func (a *Adapter) Dispatch(slot *shm.Slot, origin fuseops.Origin) syscall.Errno {
	body := slot.Body()
	h := fuseops.OpHeader{Origin: origin}

	switch body.FuseType {
	case wire.FuseLookup:
		return a.lookup(body, h)
	case wire.FuseForget:
		return a.forget(body, h)
	case wire.FuseGetAttr:
		return a.getAttr(body, h)
	case wire.FuseSetAttr:
		return a.setAttr(body, h)
	case wire.FuseReadlink:
		return a.readlink(body, h)
	case wire.FuseMknod:
		return a.mknod(body, h)
	case wire.FuseMkdir:
		return a.mkdir(body, h)
	case wire.FuseUnlink:
		return a.unlink(body, h)
	case wire.FuseRmdir:
		return a.rmdir(body, h)
	case wire.FuseSymlink:
		return a.symlink(body, h)
	case wire.FuseRename:
		return a.rename(body, h)
	case wire.FuseLink:
		return a.link(body, h)
	case wire.FuseOpen:
		return a.open(body, h)
	case wire.FuseRead:
		return a.read(body, h)
	case wire.FuseWrite:
		return a.write(body, h)
	case wire.FuseFlush:
		return a.flush(body, h)
	case wire.FuseRelease:
		return a.release(body, h)
	case wire.FuseFsync:
		return a.fsync(body, h)
	case wire.FuseOpendir:
		return a.opendir(body, h)
	case wire.FuseReaddir:
		return a.readdir(body, h)
	case wire.FuseReleasedir:
		return a.releasedir(body, h)
	case wire.FuseFsyncdir:
		return a.fsyncdir(body, h)
	case wire.FuseSetxattr:
		return a.setxattr(body, h)
	case wire.FuseGetxattr:
		return a.getxattr(body, h)
	case wire.FuseListxattr:
		return a.listxattr(body, h)
	case wire.FuseRemovexattr:
		return a.removexattr(body, h)
	case wire.FuseStatfs:
		return a.statfs(body, h)
	case wire.FuseAccess:
		return a.access(body, h)
	case wire.FuseCreate:
		return a.create(body, h)
	case wire.FuseGetlk:
		return a.getlk(body, h)
	case wire.FuseSetlk:
		return a.setlk(body, h)
	case wire.FuseFlock:
		return a.flock(body, h)
	case wire.FuseFallocate:
		return a.fallocate(body, h)
	case wire.FuseBmap:
		return a.bmap(body, h)
	case wire.FuseIoctl:
		return a.ioctl(body, h)
	case wire.FusePoll:
		return a.poll(body, h)
	case wire.FuseWriteBuf:
		return a.writeBuf(body, h)
	case wire.FuseRetrieveReply:
		return a.retrieveReply(body, h)
	case wire.FuseForgetMulti:
		return a.forgetMulti(body, h)
	case wire.FuseReaddirplus:
		return a.readdirplus(body, h)
	case wire.FuseCopyFileRange:
		return a.copyFileRange(body, h)
	case wire.FuseLseek:
		return a.lseek(body, h)
	default:
		return syscall.ENOSYS
	}
}

func (a *Adapter) lookup(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.LookupParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}

	r := &resolver{objects: a.Objects, fs: a.FS, header: h}
	entry, _, fail := r.resolve(p.Parent, wire.GetString(p.Name[:]), resolveFlags{})
	if fail != nil {
		return fail.Errno
	}

	size, mode, nlink, uid, gid := attrFields(entry.Attributes)
	reply := wire.LookupReply{
		Child: inodeToHandle(a.Objects, entry.Child),
		Size:  size, Mode: mode, Nlink: nlink, Uid: uid, Gid: gid,
	}
	return encodeOr(body, &reply)
}

func (a *Adapter) forget(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.ForgetParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}

	op := fuseops.NewForgetInodeOp(h, inode)
	a.FS.ForgetInode(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}
	// A null parent handle resolves to the root without an object table
	// entry ever having been minted for it, so only drop a reference the
	// table actually holds.
	if _, ok := a.Objects.LookupByInode(uint64(inode)); ok {
		a.Objects.Release(uint64(inode), 1)
	}
	return 0
}

func (a *Adapter) getAttr(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.GetAttrParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}

	op := fuseops.NewGetInodeAttributesOp(h, inode)
	a.FS.GetInodeAttributes(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	size, mode, nlink, uid, gid := attrFields(op.Attributes)
	reply := wire.GetAttrReply{
		Size: size, Mode: mode, Nlink: nlink, Uid: uid, Gid: gid,
		AtimeSec: op.Attributes.Atime.Unix(),
		MtimeSec: op.Attributes.Mtime.Unix(),
		CtimeSec: op.Attributes.Ctime.Unix(),
	}
	return encodeOr(body, &reply)
}

func (a *Adapter) setAttr(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.SetAttrParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}

	op := fuseops.NewSetInodeAttributesOp(h, inode)
	const (
		validSize = 1 << iota
		validMode
	)
	if p.ValidMask&validSize != 0 {
		size := p.Size
		op.Size = &size
	}
	if p.ValidMask&validMode != 0 {
		mode := p.Mode
		op.Mode = &mode
	}

	a.FS.SetInodeAttributes(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	size, mode, nlink, uid, gid := attrFields(op.Attributes)
	reply := wire.SetAttrReply{GetAttrReply: wire.GetAttrReply{
		Size: size, Mode: mode, Nlink: nlink, Uid: uid, Gid: gid,
	}}
	return encodeOr(body, &reply)
}

func (a *Adapter) readlink(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.ReadlinkParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}

	op := fuseops.NewReadSymlinkOp(h, inode)
	a.FS.ReadSymlink(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	var reply wire.ReadlinkReply
	wire.PutString(reply.Target[:], op.Target)
	return encodeOr(body, &reply)
}

func (a *Adapter) mknod(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.MknodParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	parent, name, errno := a.parentAndLeaf(h, p.Parent, wire.GetString(p.Name[:]))
	if errno != 0 {
		return errno
	}

	op := fuseops.NewMkNodOp(h, parent, name, p.Mode, p.Rdev)
	a.FS.MkNod(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.MknodReply{Child: inodeToHandle(a.Objects, op.Entry.Child)}
	return encodeOr(body, &reply)
}

func (a *Adapter) mkdir(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.MkdirParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	parent, name, errno := a.parentAndLeaf(h, p.Parent, wire.GetString(p.Name[:]))
	if errno != 0 {
		return errno
	}

	op := fuseops.NewMkDirOp(h, parent, name, p.Mode)
	a.FS.MkDir(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.MkdirReply{Child: inodeToHandle(a.Objects, op.Entry.Child)}
	return encodeOr(body, &reply)
}

func (a *Adapter) unlink(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.UnlinkParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	parent, name, errno := a.parentAndLeaf(h, p.Parent, wire.GetString(p.Name[:]))
	if errno != 0 {
		return errno
	}

	op := fuseops.NewUnlinkOp(h, parent, name)
	a.FS.Unlink(op)
	return fuseops.Wait(op)
}

func (a *Adapter) rmdir(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.RmdirParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	parent, name, errno := a.parentAndLeaf(h, p.Parent, wire.GetString(p.Name[:]))
	if errno != 0 {
		return errno
	}

	op := fuseops.NewRmDirOp(h, parent, name)
	a.FS.RmDir(op)
	return fuseops.Wait(op)
}

func (a *Adapter) symlink(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.SymlinkParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	parent, name, errno := a.parentAndLeaf(h, p.Parent, wire.GetString(p.Name[:]))
	if errno != 0 {
		return errno
	}

	op := fuseops.NewCreateSymlinkOp(h, parent, name, wire.GetString(p.Target[:]))
	a.FS.CreateSymlink(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.SymlinkReply{Child: inodeToHandle(a.Objects, op.Entry.Child)}
	return encodeOr(body, &reply)
}

func (a *Adapter) rename(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.RenameParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	oldParent, oldName, errno := a.parentAndLeaf(h, p.OldParent, wire.GetString(p.OldName[:]))
	if errno != 0 {
		return errno
	}
	newParent, newName, errno := a.parentAndLeaf(h, p.NewParent, wire.GetString(p.NewName[:]))
	if errno != 0 {
		return errno
	}

	op := fuseops.NewRenameOp(h, oldParent, oldName, newParent, newName)
	a.FS.Rename(op)
	return fuseops.Wait(op)
}

func (a *Adapter) link(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.LinkParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	parent, name, errno := a.parentAndLeaf(h, p.Parent, wire.GetString(p.Name[:]))
	if errno != 0 {
		return errno
	}
	target, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}

	op := fuseops.NewCreateLinkOp(h, parent, name, target)
	a.FS.CreateLink(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.LinkReply{Child: inodeToHandle(a.Objects, op.Entry.Child)}
	return encodeOr(body, &reply)
}

func (a *Adapter) open(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.OpenParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}

	op := fuseops.NewOpenFileOp(h, inode, p.Flags)
	a.FS.OpenFile(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.OpenReply{FileHandle: uint64(op.Handle)}
	return encodeOr(body, &reply)
}

func (a *Adapter) read(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.ReadParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}

	op := fuseops.NewReadFileOp(h, inode, fuseops.HandleID(p.FileHandle), p.Offset, int(p.Size))
	a.FS.ReadFile(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	var reply wire.ReadReply
	if len(op.Data) <= len(reply.Inline) {
		copy(reply.Inline[:], op.Data)
		reply.Returned = uint32(len(op.Data))
	} else {
		arena, aerr := createTrackedArena(a.ArenaDir)
		if aerr != nil {
			return syscall.ENOMEM
		}
		_, buf, aerr := arena.Allocate()
		if aerr != nil || len(op.Data) > len(buf) {
			return syscall.ENOMEM
		}
		copy(buf, op.Data)
		reply.Returned = uint32(len(op.Data))
		copy(reply.ArenaName[:], arena.Name().String())
	}
	return encodeOr(body, &reply)
}

func (a *Adapter) write(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.WriteParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}

	var data []byte
	if p.ArenaName == ([wire.MaxArenaName]byte{}) {
		data = p.Inline[:p.Size]
	} else {
		name, perr := parseArenaName(p.ArenaName[:])
		if perr != nil {
			return syscall.EINVAL
		}
		arena, aerr := shm.OpenArena(a.ArenaDir, name)
		if aerr != nil {
			return syscall.EIO
		}
		defer arena.Close()
		data = arena.Buffer(0)[:p.Size]
	}

	op := fuseops.NewWriteFileOp(h, inode, fuseops.HandleID(p.FileHandle), p.Offset, data)
	a.FS.WriteFile(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.WriteReply{Written: uint32(op.Written)}
	return encodeOr(body, &reply)
}

func (a *Adapter) flush(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.FlushParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewFlushFileOp(h, inode, fuseops.HandleID(p.FileHandle))
	a.FS.FlushFile(op)
	return fuseops.Wait(op)
}

func (a *Adapter) release(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.ReleaseParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	op := fuseops.NewReleaseFileHandleOp(h, fuseops.HandleID(p.FileHandle))
	a.FS.ReleaseFileHandle(op)
	return fuseops.Wait(op)
}

func (a *Adapter) fsync(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.FsyncParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewSyncFileOp(h, inode, fuseops.HandleID(p.FileHandle))
	a.FS.SyncFile(op)
	return fuseops.Wait(op)
}

func (a *Adapter) opendir(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.OpendirParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewOpenDirOp(h, inode, p.Flags)
	a.FS.OpenDir(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}
	reply := wire.OpendirReply{FileHandle: uint64(op.Handle)}
	return encodeOr(body, &reply)
}

func (a *Adapter) readdir(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.ReaddirParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}

	op := fuseops.NewReadDirOp(h, inode, fuseops.HandleID(p.FileHandle), fuseops.DirOffset(p.Offset), int(p.Size))
	a.FS.ReadDir(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.ReaddirReply{EntryCount: uint32(len(op.Entries)), Eof: len(op.Entries) == 0}
	if len(op.Entries) > 0 {
		arena, aerr := createTrackedArena(a.ArenaDir)
		if aerr != nil {
			return syscall.ENOMEM
		}
		_, buf, aerr := arena.Allocate()
		if aerr != nil {
			return syscall.ENOMEM
		}

		records := make([]wire.DirEntryRecord, len(op.Entries))
		for i, e := range op.Entries {
			records[i].Inode = uint64(e.Inode)
			records[i].Offset = uint64(e.Offset)
			records[i].Type = e.Type
			wire.PutString(records[i].Name[:], e.Name)
			records[i].NameLen = uint8(len(e.Name))
		}
		written, eerr := wire.EncodeDirEntries(buf, records)
		if eerr != nil {
			return syscall.EIO
		}
		reply.EntryCount = uint32(written)
		copy(reply.ArenaName[:], arena.Name().String())
	}
	return encodeOr(body, &reply)
}

func (a *Adapter) releasedir(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.ReleasedirParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	op := fuseops.NewReleaseDirHandleOp(h, fuseops.HandleID(p.FileHandle))
	a.FS.ReleaseDirHandle(op)
	return fuseops.Wait(op)
}

func (a *Adapter) fsyncdir(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	// The embedded file system's operation vector has no directory-only
	// fsync; a directory fsync is forwarded as an ordinary SyncFile the
	// same way a kernel-level FUSE_FSYNCDIR degrades when unimplemented.
	var p wire.FsyncdirParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewSyncFileOp(h, inode, fuseops.HandleID(p.FileHandle))
	a.FS.SyncFile(op)
	return fuseops.Wait(op)
}

func (a *Adapter) setxattr(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.SetxattrParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewSetXattrOp(h, inode, wire.GetString(p.Name[:]), p.Value[:p.Size], p.Flags)
	a.FS.SetXattr(op)
	return fuseops.Wait(op)
}

func (a *Adapter) getxattr(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.GetxattrParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewGetXattrOp(h, inode, wire.GetString(p.Name[:]), int(p.Size))
	a.FS.GetXattr(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	var reply wire.GetxattrReply
	n := copy(reply.Value[:], op.Value)
	reply.Returned = uint32(n)
	return encodeOr(body, &reply)
}

func (a *Adapter) listxattr(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.ListxattrParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewListXattrOp(h, inode, int(p.Size))
	a.FS.ListXattr(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	var reply wire.ListxattrReply
	offset := 0
	for _, name := range op.Names {
		n := copy(reply.Names[offset:], name)
		offset += n + 1 // NUL separator
		if offset >= len(reply.Names) {
			break
		}
	}
	reply.Returned = uint32(offset)
	return encodeOr(body, &reply)
}

func (a *Adapter) removexattr(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.RemovexattrParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewRemoveXattrOp(h, inode, wire.GetString(p.Name[:]))
	a.FS.RemoveXattr(op)
	return fuseops.Wait(op)
}

func (a *Adapter) statfs(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	op := fuseops.NewStatFSOp(h)
	a.FS.StatFS(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.StatfsReply{
		BlockSize: op.Info.BlockSize, Blocks: op.Info.Blocks, BlocksFree: op.Info.BlocksFree,
		BlocksAvailable: op.Info.BlocksAvailable, IoSize: op.Info.IoSize,
		Inodes: op.Info.Inodes, InodesFree: op.Info.InodesFree,
	}
	return encodeOr(body, &reply)
}

func (a *Adapter) access(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.AccessParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewAccessOp(h, inode, p.Mask)
	a.FS.Access(op)
	return fuseops.Wait(op)
}

func (a *Adapter) create(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.CreateParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	parent, name, errno := a.parentAndLeaf(h, p.Parent, wire.GetString(p.Name[:]))
	if errno != 0 {
		return errno
	}

	op := fuseops.NewCreateFileOp(h, parent, name, p.Mode, p.Flags)
	a.FS.CreateFile(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.CreateReply{Child: inodeToHandle(a.Objects, op.Entry.Child), FileHandle: uint64(op.Handle)}
	return encodeOr(body, &reply)
}

func (a *Adapter) getlk(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.GetlkParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewGetLkOp(h, inode, fuseops.HandleID(p.FileHandle), fuseops.FileLock(p.Lock))
	a.FS.GetLk(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.GetlkReply{Lock: wire.FileLockWire(op.Lock)}
	return encodeOr(body, &reply)
}

func (a *Adapter) setlk(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.SetlkParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewSetLkOp(h, inode, fuseops.HandleID(p.FileHandle), fuseops.FileLock(p.Lock), p.Wait)
	a.FS.SetLk(op)
	return fuseops.Wait(op)
}

func (a *Adapter) flock(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.FlockParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewFlockOp(h, inode, fuseops.HandleID(p.FileHandle), p.Exclusive, p.Unlock)
	a.FS.Flock(op)
	return fuseops.Wait(op)
}

func (a *Adapter) fallocate(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.FallocateParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewFallocateOp(h, inode, fuseops.HandleID(p.FileHandle), p.Offset, p.Length, p.Mode)
	a.FS.Fallocate(op)
	return fuseops.Wait(op)
}

func (a *Adapter) bmap(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.BmapParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewBmapOp(h, inode, p.BlockSize, p.Block)
	a.FS.Bmap(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}
	reply := wire.BmapReply{Block: op.Result}
	return encodeOr(body, &reply)
}

func (a *Adapter) ioctl(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.IoctlParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewIoctlOp(h, inode, fuseops.HandleID(p.FileHandle), p.Cmd, p.Arg, p.Inline[:p.InSize])
	a.FS.Ioctl(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	var reply wire.IoctlReply
	n := copy(reply.Inline[:], op.OutData)
	reply.Returned = uint32(n)
	return encodeOr(body, &reply)
}

func (a *Adapter) poll(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.PollParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewPollOp(h, inode, fuseops.HandleID(p.FileHandle), p.Events)
	a.FS.Poll(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}
	reply := wire.PollReply{Ready: op.Ready}
	return encodeOr(body, &reply)
}

// writeBuf is the vectored-write variant: unlike write there is no inline
// fallback, the payload always arrives through an arena.
func (a *Adapter) writeBuf(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.WriteBufParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	if int(p.Size) > shm.ArenaBufferSize {
		return syscall.EINVAL
	}

	name, perr := parseArenaName(p.ArenaName[:])
	if perr != nil {
		return syscall.EINVAL
	}
	arena, aerr := shm.OpenArena(a.ArenaDir, name)
	if aerr != nil {
		return syscall.EIO
	}
	defer arena.Close()

	op := fuseops.NewWriteFileOp(h, inode, fuseops.HandleID(p.FileHandle), p.Offset, arena.Buffer(0)[:p.Size])
	a.FS.WriteFile(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.WriteBufReply{Written: uint32(op.Written)}
	return encodeOr(body, &reply)
}

// retrieveReply answers the kernel's retrieve-notification path. A client
// has no kernel page cache to retrieve from, so a client-originated
// retrieve reply is a protocol violation, not a forwardable op.
func (a *Adapter) retrieveReply(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.RetrieveReplyParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	return syscall.ENOTSUP
}

// forgetMulti batches up to len(Targets) forgets into one round trip.
// Each target is forgotten independently; the first failure stops the
// batch and is returned as the whole message's result.
func (a *Adapter) forgetMulti(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.ForgetMultiParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	if p.Count > uint32(len(p.Targets)) {
		return syscall.EINVAL
	}

	for _, target := range p.Targets[:p.Count] {
		inode, err := handleToInode(a.Objects, target)
		if err != nil {
			return err.(syscall.Errno)
		}

		op := fuseops.NewForgetInodeOp(h, inode)
		a.FS.ForgetInode(op)
		if errno := fuseops.Wait(op); errno != 0 {
			return errno
		}
		if _, ok := a.Objects.LookupByInode(uint64(inode)); ok {
			a.Objects.Release(uint64(inode), 1)
		}
	}
	return 0
}

func (a *Adapter) readdirplus(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.ReaddirplusParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}

	op := fuseops.NewReadDirPlusOp(h, inode, fuseops.HandleID(p.FileHandle), fuseops.DirOffset(p.Offset), int(p.Size))
	a.FS.ReadDirPlus(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}

	reply := wire.ReaddirplusReply{EntryCount: uint32(len(op.Entries)), Eof: len(op.Entries) == 0}
	if len(op.Entries) > 0 {
		arena, aerr := createTrackedArena(a.ArenaDir)
		if aerr != nil {
			return syscall.ENOMEM
		}
		_, buf, aerr := arena.Allocate()
		if aerr != nil {
			return syscall.ENOMEM
		}

		records := make([]wire.DirEntryPlusRecord, len(op.Entries))
		for i, e := range op.Entries {
			size, mode, nlink, uid, gid := attrFields(e.Attributes)
			records[i].Inode = uint64(e.Child)
			records[i].Type = modeToDirentType(e.Attributes.Mode)
			if i < len(op.Names) {
				wire.PutString(records[i].Name[:], op.Names[i])
				records[i].NameLen = uint8(len(op.Names[i]))
			}
			records[i].Size = size
			records[i].Mode = mode
			records[i].Nlink = nlink
			records[i].Uid = uid
			records[i].Gid = gid
		}
		written, eerr := wire.EncodeDirEntriesPlus(buf, records)
		if eerr != nil {
			return syscall.EIO
		}
		reply.EntryCount = uint32(written)
		copy(reply.ArenaName[:], arena.Name().String())
	}
	return encodeOr(body, &reply)
}

func (a *Adapter) copyFileRange(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.CopyFileRangeParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	srcInode, err := handleToInode(a.Objects, p.SourceTarget)
	if err != nil {
		return err.(syscall.Errno)
	}
	dstInode, err := handleToInode(a.Objects, p.DestTarget)
	if err != nil {
		return err.(syscall.Errno)
	}

	op := fuseops.NewCopyFileRangeOp(h, srcInode, fuseops.HandleID(p.SourceHandle), p.SourceOffset,
		dstInode, fuseops.HandleID(p.DestHandle), p.DestOffset, p.Length)
	a.FS.CopyFileRange(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}
	reply := wire.CopyFileRangeReply{Copied: op.Copied}
	return encodeOr(body, &reply)
}

func (a *Adapter) lseek(body *wire.Body, h fuseops.OpHeader) syscall.Errno {
	var p wire.LseekParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	inode, err := handleToInode(a.Objects, p.Target)
	if err != nil {
		return err.(syscall.Errno)
	}
	op := fuseops.NewLseekOp(h, inode, fuseops.HandleID(p.FileHandle), p.Offset, int32(p.Whence))
	a.FS.Lseek(op)
	if errno := fuseops.Wait(op); errno != 0 {
		return errno
	}
	reply := wire.LseekReply{Offset: op.Result}
	return encodeOr(body, &reply)
}

func encodeOr(body *wire.Body, v interface{}) syscall.Errno {
	if err := wire.EncodePayload(&body.Payload, v); err != nil {
		return syscall.EIO
	}
	return 0
}
