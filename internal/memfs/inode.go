// Package memfs is a small in-memory fuseops.FileSystem, the embedded
// file system every bundled demo and test wires the server package
// against. It is grounded directly on jacobsa-fuse's samples/memfs: one
// inode map guarded by one mutex, directory entries addressed by
// a stable offset so a concurrent Readdir never skips or repeats a name.
package memfs

import (
	"os"

	"github.com/jacobsa/timeutil"

	"github.com/fsgeek/finesse/fuseops"
)

const (
	dtUnknown uint8 = 0
	dtDir     uint8 = 4
	dtReg     uint8 = 8
	dtLnk     uint8 = 10
)

// dirent is one slot in a directory inode's child list. Unused slots are
// left with Type == dtUnknown so Offset values stay stable across
// removals, the same discipline samples/memfs uses.
type dirent struct {
	Inode fuseops.InodeID
	Name  string
	Type  uint8
}

type inode struct {
	clock timeutil.Clock

	attrs    fuseops.InodeAttributes
	entries  []dirent // non-empty only for directories
	contents []byte   // non-empty only for regular files
	target   string   // non-empty only for symlinks
}

func newInode(clock timeutil.Clock, mode os.FileMode, uid, gid uint32) *inode {
	now := clock.Now()
	return &inode{
		clock: clock,
		attrs: fuseops.InodeAttributes{
			Mode:  mode,
			Uid:   uid,
			Gid:   gid,
			Nlink: 1,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
	}
}

func (in *inode) isDir() bool     { return in.attrs.Mode&os.ModeDir != 0 }
func (in *inode) isSymlink() bool { return in.attrs.Mode&os.ModeSymlink != 0 }

func direntType(mode os.FileMode) uint8 {
	switch {
	case mode&os.ModeDir != 0:
		return dtDir
	case mode&os.ModeSymlink != 0:
		return dtLnk
	default:
		return dtReg
	}
}

// findChild returns the index of name within in.entries, or false if no
// used entry has that name.
func (in *inode) findChild(name string) (int, bool) {
	for i, e := range in.entries {
		if e.Type != dtUnknown && e.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (in *inode) lookUpChild(name string) (fuseops.InodeID, bool) {
	i, ok := in.findChild(name)
	if !ok {
		return 0, false
	}
	return in.entries[i].Inode, true
}

// addChild inserts a new directory entry, reusing the first unused slot
// so offsets already handed out to a Readdir caller never change.
func (in *inode) addChild(id fuseops.InodeID, name string, mode os.FileMode) {
	in.attrs.Mtime = in.clock.Now()
	e := dirent{Inode: id, Name: name, Type: direntType(mode)}

	for i := range in.entries {
		if in.entries[i].Type == dtUnknown {
			in.entries[i] = e
			return
		}
	}
	in.entries = append(in.entries, e)
}

func (in *inode) removeChild(name string) {
	in.attrs.Mtime = in.clock.Now()
	i, ok := in.findChild(name)
	if !ok {
		panic("memfs: removeChild: unknown name " + name)
	}
	in.entries[i] = dirent{}
}

func (in *inode) childCount() int {
	n := 0
	for _, e := range in.entries {
		if e.Type != dtUnknown {
			n++
		}
	}
	return n
}

func (in *inode) readAt(p []byte, off int64) (int, error) {
	if off > int64(len(in.contents)) {
		return 0, nil
	}
	n := copy(p, in.contents[off:])
	return n, nil
}

func (in *inode) writeAt(p []byte, off int64) int {
	in.attrs.Mtime = in.clock.Now()
	end := int(off) + len(p)
	if end > len(in.contents) {
		grown := make([]byte, end)
		copy(grown, in.contents)
		in.contents = grown
		in.attrs.Size = uint64(end)
	}
	return copy(in.contents[off:], p)
}

func (in *inode) truncate(size uint64) {
	in.attrs.Mtime = in.clock.Now()
	switch {
	case size <= uint64(len(in.contents)):
		in.contents = in.contents[:size]
	default:
		grown := make([]byte, size)
		copy(grown, in.contents)
		in.contents = grown
	}
	in.attrs.Size = size
}
