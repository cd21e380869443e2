package server

import (
	"syscall"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"

	"github.com/fsgeek/finesse/fuseops"
	"github.com/fsgeek/finesse/internal/objtable"
	"github.com/fsgeek/finesse/internal/stats"
	"github.com/fsgeek/finesse/internal/wire"
	"github.com/fsgeek/finesse/shm"
)

// NativeHandler services the Finesse-specific calls a client issues in
// addition to the FUSE-shaped sub-protocol (liveness
// check, server statistics, and the name/directory map calls that let a
// client resolve a path once and reuse the resulting handle).
type NativeHandler struct {
	FS          fuseops.FileSystem
	Objects     *objtable.Table
	Stats       *stats.Recorder
	ArenaDir    string
	ClientCount func() uint32
	Clock       timeutil.Clock
}

// Dispatch mirrors Adapter.Dispatch for wire.ClassNative messages.
func (n *NativeHandler) Dispatch(slot *shm.Slot) syscall.Errno {
	body := slot.Body()

	switch body.NativeType {
	case wire.NativeTest:
		return n.test(body)
	case wire.NativeServerStat:
		return n.serverStat(body)
	case wire.NativeNameMap:
		return n.nameMap(body)
	case wire.NativeNameMapRelease:
		return n.nameMapRelease(body)
	case wire.NativeDirectoryMap:
		return n.directoryMap(body)
	case wire.NativeDirectoryMapRelease:
		return n.directoryMapRelease(body)
	default:
		return syscall.ENOSYS
	}
}

func (n *NativeHandler) test(body *wire.Body) syscall.Errno {
	var p wire.TestParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}
	reply := wire.TestReply{VersionByte: p.VersionByte, Payload: p.Payload}
	return encodeOr(body, &reply)
}

func (n *NativeHandler) serverStat(body *wire.Body) syscall.Errno {
	reply := wire.ServerStatReply{
		ClientCount:      n.ClientCount(),
		ObjectTableSize:  uint32(n.Objects.Size()),
		ActiveArenaCount: activeArenaCount(),
	}
	if n.Stats != nil {
		reply.UptimeNanos = n.Stats.UptimeNanos()
	}
	return encodeOr(body, &reply)
}

// nameMap resolves (parent, name) through the embedded file system once
// and registers the result in the object table, so later FUSE-class calls
// can address the child directly by handle. The name may span multiple
// components; the resolver walks them one lookup at a time.
// A null parent with an empty name maps the root itself.
func (n *NativeHandler) nameMap(body *wire.Body) syscall.Errno {
	var p wire.NameMapParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}

	r := &resolver{objects: n.Objects, fs: n.FS, header: fuseops.OpHeader{Origin: fuseops.OriginFinesse}}
	entry, _, fail := r.resolve(p.Parent, wire.GetString(p.Name[:]), resolveFlags{followSymlinks: true})
	if fail != nil {
		return fail.Errno
	}

	reply := wire.NameMapReply{Target: inodeToHandle(n.Objects, entry.Child)}
	return encodeOr(body, &reply)
}

// nameMapRelease drops the reference nameMap took out, the counterpart a
// client calls once it is done addressing a name by handle. It resolves
// strictly through the UUID index: the null-handle-means-root shorthand
// does not apply here, since no reference was ever minted for a handle
// the server never issued.
func (n *NativeHandler) nameMapRelease(body *wire.Body) syscall.Errno {
	var p wire.NameMapReleaseParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}

	id, err := uuid.FromBytes(p.Target[:])
	if err != nil {
		return syscall.EBADF
	}
	e, ok := n.Objects.LookupByUUID(id)
	if !ok {
		return syscall.EBADF
	}
	n.Objects.Release(e.Inode, 1)
	return 0
}

// directoryMap materializes a bulk directory snapshot: rather than a
// client issuing one readdir call per page, it gets the whole listing in
// one arena.
func (n *NativeHandler) directoryMap(body *wire.Body) syscall.Errno {
	var p wire.DirectoryMapParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}

	parent, err := handleToInode(n.Objects, p.Parent)
	if err != nil {
		return err.(syscall.Errno)
	}

	openOp := fuseops.NewOpenDirOp(fuseops.OpHeader{Origin: fuseops.OriginFinesse}, parent, 0)
	n.FS.OpenDir(openOp)
	if errno := fuseops.Wait(openOp); errno != 0 {
		return errno
	}
	defer func() {
		relOp := fuseops.NewReleaseDirHandleOp(fuseops.OpHeader{Origin: fuseops.OriginFinesse}, openOp.Handle)
		n.FS.ReleaseDirHandle(relOp)
		fuseops.Wait(relOp)
	}()

	var all []fuseops.Dirent
	offset := fuseops.DirOffset(0)
	for {
		readOp := fuseops.NewReadDirOp(fuseops.OpHeader{Origin: fuseops.OriginFinesse}, parent, openOp.Handle, offset, shm.ArenaBufferSize)
		n.FS.ReadDir(readOp)
		if errno := fuseops.Wait(readOp); errno != 0 {
			return errno
		}
		if len(readOp.Entries) == 0 {
			break
		}
		all = append(all, readOp.Entries...)
		offset = readOp.Entries[len(readOp.Entries)-1].Offset
	}

	reply := wire.DirectoryMapReply{}
	if len(all) > 0 {
		arena, aerr := createTrackedArena(n.ArenaDir)
		if aerr != nil {
			return syscall.ENOMEM
		}
		_, buf, aerr := arena.Allocate()
		if aerr != nil {
			return syscall.ENOMEM
		}

		records := make([]wire.DirEntryRecord, len(all))
		for i, e := range all {
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
		// A single 64KB arena buffer may not hold every entry of a very
		// large directory; EntryCount reflects what actually fits, the
		// same truncation-by-count contract Readdir uses.
		reply.EntryCount = uint32(written)
		copy(reply.ArenaName[:], arena.Name().String())
	}
	return encodeOr(body, &reply)
}

func (n *NativeHandler) directoryMapRelease(body *wire.Body) syscall.Errno {
	var p wire.DirectoryMapReleaseParams
	if err := wire.DecodePayload(&body.Payload, &p); err != nil {
		return syscall.EINVAL
	}

	name, perr := parseArenaName(p.ArenaName[:])
	if perr != nil {
		return syscall.EINVAL
	}
	if err := removeTrackedArena(n.ArenaDir, name); err != nil {
		return syscall.EIO
	}
	return 0
}
