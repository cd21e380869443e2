package memfs

import (
	"os"
	"sync"
	"syscall"

	"github.com/jacobsa/timeutil"

	"github.com/fsgeek/finesse/fuseops"
)

// fileSystem is an in-memory fuseops.FileSystem. Every op that reaches
// it, whether synthesized by package server's adapter or (in a future
// kernel-facing build) delivered by the kernel itself, is served from the
// same inode table under the same lock, matching the contract
// FileSystem's doc comment describes.
type fileSystem struct {
	fuseops.NotImplementedFileSystem

	clock timeutil.Clock

	mu        sync.Mutex
	inodes    map[fuseops.InodeID]*inode
	nextInode fuseops.InodeID

	nextHandle  fuseops.HandleID
	dirHandles  map[fuseops.HandleID]fuseops.InodeID
	fileHandles map[fuseops.HandleID]fuseops.InodeID
}

// New returns a file system with a single empty root directory.
func New(clock timeutil.Clock) fuseops.FileSystem {
	fs := &fileSystem{
		clock:       clock,
		inodes:      make(map[fuseops.InodeID]*inode),
		nextInode:   fuseops.RootInodeID + 1,
		nextHandle:  1,
		dirHandles:  make(map[fuseops.HandleID]fuseops.InodeID),
		fileHandles: make(map[fuseops.HandleID]fuseops.InodeID),
	}
	root := newInode(clock, os.ModeDir|0755, 0, 0)
	fs.inodes[fuseops.RootInodeID] = root
	return fs
}

func (fs *fileSystem) allocInode() fuseops.InodeID {
	id := fs.nextInode
	fs.nextInode++
	return id
}

func (fs *fileSystem) allocHandle() fuseops.HandleID {
	id := fs.nextHandle
	fs.nextHandle++
	return id
}

func (fs *fileSystem) get(id fuseops.InodeID) (*inode, syscall.Errno) {
	in, ok := fs.inodes[id]
	if !ok {
		return nil, syscall.ENOENT
	}
	return in, 0
}

func toEntry(id fuseops.InodeID, in *inode) fuseops.ChildInodeEntry {
	return fuseops.ChildInodeEntry{Child: id, Generation: 1, Attributes: in.attrs}
}

func (fs *fileSystem) LookUpInode(op *fuseops.LookUpInodeOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, errno := fs.get(op.Parent)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	childID, ok := parent.lookUpChild(op.Name)
	if !ok {
		op.Fail(syscall.ENOENT)
		return
	}
	child, errno := fs.get(childID)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	op.Respond(toEntry(childID, child))
}

func (fs *fileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, errno := fs.get(op.Inode)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	op.Respond(in.attrs)
}

func (fs *fileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, errno := fs.get(op.Inode)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	if op.Size != nil {
		in.truncate(*op.Size)
	}
	if op.Mode != nil {
		in.attrs.Mode = os.FileMode(*op.Mode)
	}
	in.attrs.Ctime = fs.clock.Now()
	op.Respond(in.attrs)
}

func (fs *fileSystem) ForgetInode(op *fuseops.ForgetInodeOp) {
	op.Respond()
}

func (fs *fileSystem) MkDir(op *fuseops.MkDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, errno := fs.get(op.Parent)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	if _, ok := parent.lookUpChild(op.Name); ok {
		op.Fail(syscall.EEXIST)
		return
	}

	id := fs.allocInode()
	child := newInode(fs.clock, os.ModeDir|os.FileMode(op.Mode).Perm(), 0, 0)
	fs.inodes[id] = child
	parent.addChild(id, op.Name, child.attrs.Mode)

	op.Respond(toEntry(id, child))
}

func (fs *fileSystem) MkNod(op *fuseops.MkNodOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, errno := fs.get(op.Parent)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	if _, ok := parent.lookUpChild(op.Name); ok {
		op.Fail(syscall.EEXIST)
		return
	}

	id := fs.allocInode()
	child := newInode(fs.clock, os.FileMode(op.Mode), 0, 0)
	fs.inodes[id] = child
	parent.addChild(id, op.Name, child.attrs.Mode)

	op.Respond(toEntry(id, child))
}

func (fs *fileSystem) CreateFile(op *fuseops.CreateFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, errno := fs.get(op.Parent)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	if _, ok := parent.lookUpChild(op.Name); ok {
		op.Fail(syscall.EEXIST)
		return
	}

	id := fs.allocInode()
	child := newInode(fs.clock, os.FileMode(op.Mode).Perm(), 0, 0)
	fs.inodes[id] = child
	parent.addChild(id, op.Name, child.attrs.Mode)

	handle := fs.allocHandle()
	fs.fileHandles[handle] = id

	op.Respond(toEntry(id, child), handle)
}

func (fs *fileSystem) CreateSymlink(op *fuseops.CreateSymlinkOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, errno := fs.get(op.Parent)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	if _, ok := parent.lookUpChild(op.Name); ok {
		op.Fail(syscall.EEXIST)
		return
	}

	id := fs.allocInode()
	child := newInode(fs.clock, os.ModeSymlink|0777, 0, 0)
	child.target = op.Target
	fs.inodes[id] = child
	parent.addChild(id, op.Name, child.attrs.Mode)

	op.Respond(toEntry(id, child))
}

func (fs *fileSystem) CreateLink(op *fuseops.CreateLinkOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, errno := fs.get(op.Parent)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	target, errno := fs.get(op.Target)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	if _, ok := parent.lookUpChild(op.Name); ok {
		op.Fail(syscall.EEXIST)
		return
	}

	target.attrs.Nlink++
	parent.addChild(op.Target, op.Name, target.attrs.Mode)
	op.Respond(toEntry(op.Target, target))
}

func (fs *fileSystem) RmDir(op *fuseops.RmDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, errno := fs.get(op.Parent)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	childID, ok := parent.lookUpChild(op.Name)
	if !ok {
		op.Fail(syscall.ENOENT)
		return
	}
	child, errno := fs.get(childID)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	if !child.isDir() {
		op.Fail(syscall.ENOTDIR)
		return
	}
	if child.childCount() > 0 {
		op.Fail(syscall.ENOTEMPTY)
		return
	}

	parent.removeChild(op.Name)
	delete(fs.inodes, childID)
	op.Respond()
}

func (fs *fileSystem) Unlink(op *fuseops.UnlinkOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, errno := fs.get(op.Parent)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	childID, ok := parent.lookUpChild(op.Name)
	if !ok {
		op.Fail(syscall.ENOENT)
		return
	}
	child, errno := fs.get(childID)
	if errno != 0 {
		op.Fail(errno)
		return
	}

	parent.removeChild(op.Name)
	child.attrs.Nlink--
	if child.attrs.Nlink == 0 {
		delete(fs.inodes, childID)
	}
	op.Respond()
}

func (fs *fileSystem) Rename(op *fuseops.RenameOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldParent, errno := fs.get(op.OldParent)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	newParent, errno := fs.get(op.NewParent)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	childID, ok := oldParent.lookUpChild(op.OldName)
	if !ok {
		op.Fail(syscall.ENOENT)
		return
	}
	child, errno := fs.get(childID)
	if errno != 0 {
		op.Fail(errno)
		return
	}

	if existingID, ok := newParent.lookUpChild(op.NewName); ok {
		newParent.removeChild(op.NewName)
		delete(fs.inodes, existingID)
	}

	oldParent.removeChild(op.OldName)
	newParent.addChild(childID, op.NewName, child.attrs.Mode)
	op.Respond()
}

func (fs *fileSystem) ReadSymlink(op *fuseops.ReadSymlinkOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, errno := fs.get(op.Inode)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	if !in.isSymlink() {
		op.Fail(syscall.EINVAL)
		return
	}
	op.Respond(in.target)
}

func (fs *fileSystem) OpenDir(op *fuseops.OpenDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, errno := fs.get(op.Inode)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	if !in.isDir() {
		op.Fail(syscall.ENOTDIR)
		return
	}

	handle := fs.allocHandle()
	fs.dirHandles[handle] = op.Inode
	op.Respond(handle)
}

func (fs *fileSystem) ReadDir(op *fuseops.ReadDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, errno := fs.get(op.Inode)
	if errno != 0 {
		op.Fail(errno)
		return
	}

	var out []fuseops.Dirent
	for i := int(op.Offset); i < len(in.entries); i++ {
		e := in.entries[i]
		if e.Type == dtUnknown {
			continue
		}
		out = append(out, fuseops.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  e.Inode,
			Name:   e.Name,
			Type:   e.Type,
		})
	}
	op.Respond(out)
}

func (fs *fileSystem) ReadDirPlus(op *fuseops.ReadDirPlusOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, errno := fs.get(op.Inode)
	if errno != 0 {
		op.Fail(errno)
		return
	}

	var names []string
	var entries []fuseops.ChildInodeEntry
	for i := int(op.Offset); i < len(in.entries); i++ {
		e := in.entries[i]
		if e.Type == dtUnknown {
			continue
		}
		child, errno := fs.get(e.Inode)
		if errno != 0 {
			continue
		}
		names = append(names, e.Name)
		entries = append(entries, toEntry(e.Inode, child))
	}
	op.Respond(names, entries)
}

func (fs *fileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	fs.mu.Lock()
	delete(fs.dirHandles, op.Handle)
	fs.mu.Unlock()
	op.Respond()
}

func (fs *fileSystem) OpenFile(op *fuseops.OpenFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, errno := fs.get(op.Inode)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	if in.isDir() {
		op.Fail(syscall.EISDIR)
		return
	}

	handle := fs.allocHandle()
	fs.fileHandles[handle] = op.Inode
	op.Respond(handle)
}

func (fs *fileSystem) ReadFile(op *fuseops.ReadFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, errno := fs.get(op.Inode)
	if errno != 0 {
		op.Fail(errno)
		return
	}

	buf := make([]byte, op.Size)
	n, _ := in.readAt(buf, op.Offset)
	op.Respond(buf[:n])
}

func (fs *fileSystem) WriteFile(op *fuseops.WriteFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, errno := fs.get(op.Inode)
	if errno != 0 {
		op.Fail(errno)
		return
	}
	n := in.writeAt(op.Data, op.Offset)
	op.Respond(n)
}

func (fs *fileSystem) SyncFile(op *fuseops.SyncFileOp)   { op.Respond() }
func (fs *fileSystem) FlushFile(op *fuseops.FlushFileOp) { op.Respond() }

func (fs *fileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	fs.mu.Lock()
	delete(fs.fileHandles, op.Handle)
	fs.mu.Unlock()
	op.Respond()
}

func (fs *fileSystem) StatFS(op *fuseops.StatFSOp) {
	fs.mu.Lock()
	n := len(fs.inodes)
	fs.mu.Unlock()

	op.Respond(fuseops.StatFSInfo{
		BlockSize:       4096,
		Blocks:          1 << 20,
		BlocksFree:      1 << 19,
		BlocksAvailable: 1 << 19,
		IoSize:          65536,
		Inodes:          uint64(n),
		InodesFree:      1 << 20,
	})
}

func (fs *fileSystem) Access(op *fuseops.AccessOp) {
	op.Respond()
}

var _ fuseops.FileSystem = (*fileSystem)(nil)
