// Package fuseops defines the low-level FUSE operation vector that a
// Finesse-aware daemon embeds. It is adapted from the op-struct design in
// github.com/jacobsa/fuse/fuseops: each kernel-shaped request becomes a
// typed Go struct carrying a Header and request-specific fields, answered
// through a Respond/Fail method rather than returned as an (x, error) pair,
// so that the same Op value can be handed to either the real kernel-facing
// FUSE server or Finesse's adapter (see package server) without the
// low-level filesystem implementation knowing which one is listening.
package fuseops

import (
	"os"
	"time"
)

// InodeID identifies an inode the way the kernel does: the number 1 is the
// root of the mounted file system; other values are minted by the file
// system and returned in a ChildInodeEntry.
type InodeID uint64

// RootInodeID is the inode ID reserved for the root of the mounted volume.
const RootInodeID InodeID = 1

// HandleID is an opaque value that a file system mints when opening a file
// or directory and which is echoed in every follow-up op against that open
// instance.
type HandleID uint64

// DirOffset is an opaque directory-stream cursor, meaningful only to the
// file system that produced it (see ReadDirOp).
type DirOffset uint64

// Origin records who originated a synthetic Op: the kernel (by way of the
// embedding daemon's normal FUSE serving loop) or Finesse (by way of the
// server-side adapter in package server). It is recorded on the header
// only: completion does not branch on it, and every Op completes through
// its own one-shot channel whichever origin it carries.
type Origin int

const (
	OriginKernel Origin = iota
	OriginFinesse
)

// OpHeader carries the fields common to every op, set by whichever caller
// constructs the Op (kernel-facing server or Finesse adapter).
type OpHeader struct {
	// Uid/Gid of the process that is considered to have originated the
	// request. The adapter in package server sets only Origin, so Uid, Gid
	// and Pid stay zero on Finesse-originated ops.
	Uid uint32
	Gid uint32
	Pid uint32

	Origin Origin
}

// InodeAttributes mirrors struct stat fields the file system must be able
// to report for any inode.
type InodeAttributes struct {
	Size  uint64
	Nlink uint32
	Mode  os.FileMode
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Uid   uint32
	Gid   uint32
	Rdev  uint32
}

// ChildInodeEntry is returned by ops that resolve or create a child inode
// (LookUpInode, MkDir, CreateFile, ...).
type ChildInodeEntry struct {
	Child                InodeID
	Generation           uint64
	Attributes           InodeAttributes
	AttributesExpiration time.Time
	EntryExpiration      time.Time
}

// StatFSInfo is the file-system-wide information returned by StatFSOp,
// shaped like struct statvfs.
type StatFSInfo struct {
	BlockSize       uint32
	Blocks          uint64
	BlocksFree      uint64
	BlocksAvailable uint64
	IoSize          uint32
	Inodes          uint64
	InodesFree      uint64
}
