// Package server implements the daemon side of Finesse: per-client
// monitoring, the dispatch loop that drains a client's shared-memory
// region, the FUSE-shaped adapter that turns wire requests into fuseops
// calls against an embedded file system, the native operation handlers,
// and the path resolver they share.
package server

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/fsgeek/finesse/fuseops"
	"github.com/fsgeek/finesse/internal/objtable"
	"github.com/fsgeek/finesse/internal/wire"
)

// handleToInode resolves a wire.Handle to an inode number via the object
// table: a null handle means the mounted volume's root, any other handle
// must already be indexed.
func handleToInode(objects *objtable.Table, h wire.Handle) (fuseops.InodeID, error) {
	if h.IsNull() {
		return fuseops.RootInodeID, nil
	}

	id, err := uuid.FromBytes(h[:])
	if err != nil {
		return 0, syscall.EBADF
	}

	e, ok := objects.LookupByUUID(id)
	if !ok {
		return 0, syscall.EBADF
	}
	return fuseops.InodeID(e.Inode), nil
}

// inodeToHandle returns the wire handle naming inode, registering a fresh
// object table entry the first time this inode is seen and incrementing
// the reference count on subsequent calls. The root gets a real entry
// like any other inode: a null handle is accepted as shorthand for the
// root in requests, but a handle the server hands out is always a
// resolvable UUID.
func inodeToHandle(objects *objtable.Table, inode fuseops.InodeID) wire.Handle {
	e := objects.Create(uint64(inode))
	var h wire.Handle
	b, _ := e.UUID.MarshalBinary()
	copy(h[:], b)
	return h
}

// maxSymlinkDepth bounds how many symlink splices one resolution will
// tolerate before reporting ELOOP, the same budget the kernel's walker
// uses.
const maxSymlinkDepth = 40

// execMask is the X_OK access bit checked per traversed directory when a
// caller asks for per-component security checks.
const execMask = 1

// resolveFlags select the optional behaviors of a path resolution:
// whether symlinks encountered along the way are followed,
// whether each traversed directory gets an Access check, and whether
// resolution stops at the final component's parent (for operations like
// unlink and create that need the containing directory, not the leaf).
type resolveFlags struct {
	followSymlinks bool
	checkAccess    bool
	stopAtParent   bool
}

// resolveFailure reports where a resolution stopped: the errno, the last
// directory successfully entered, and the component that could not be
// resolved past.
type resolveFailure struct {
	Errno     syscall.Errno
	Cursor    fuseops.InodeID
	Component string
}

func (f *resolveFailure) Error() string {
	return fmt.Sprintf("server: resolving %q under inode %d: %v", f.Component, f.Cursor, f.Errno)
}

// resolver walks a slash-separated path component by component, issuing
// one LookUpInode per component against the embedded file system.
type resolver struct {
	objects *objtable.Table
	fs      fuseops.FileSystem
	header  fuseops.OpHeader
}

// splitComponents breaks path on '/', dropping empty components and
// "." no-ops. ".." is not resolvable without parent back-pointers in the
// operation vector, so its presence fails the whole split.
func splitComponents(path string) ([]string, error) {
	var out []string
	for _, c := range strings.Split(path, "/") {
		switch c {
		case "", ".":
			continue
		case "..":
			return nil, syscall.EINVAL
		}
		out = append(out, c)
	}
	return out, nil
}

// resolve walks path starting from the object start names. On success it
// returns the final entry (with attributes) and, in stopAtParent mode,
// the unresolved leaf component. On failure it returns the partially
// resolved cursor and the component that stopped the walk.
func (r *resolver) resolve(start wire.Handle, path string, flags resolveFlags) (fuseops.ChildInodeEntry, string, *resolveFailure) {
	cur, err := handleToInode(r.objects, start)
	if err != nil {
		return fuseops.ChildInodeEntry{}, "", &resolveFailure{Errno: err.(syscall.Errno)}
	}

	components, err := splitComponents(path)
	if err != nil {
		return fuseops.ChildInodeEntry{}, "", &resolveFailure{Errno: syscall.EINVAL, Cursor: cur, Component: ".."}
	}

	entry := fuseops.ChildInodeEntry{Child: cur}
	haveAttrs := false
	depth := 0

	for i := 0; i < len(components); i++ {
		name := components[i]
		last := i == len(components)-1

		if flags.stopAtParent && last {
			return entry, name, nil
		}

		if haveAttrs && entry.Attributes.Mode&os.ModeDir == 0 {
			return entry, name, &resolveFailure{Errno: syscall.ENOTDIR, Cursor: cur, Component: name}
		}

		if flags.checkAccess {
			accessOp := fuseops.NewAccessOp(r.header, cur, execMask)
			r.fs.Access(accessOp)
			if errno := fuseops.Wait(accessOp); errno != 0 {
				return entry, name, &resolveFailure{Errno: errno, Cursor: cur, Component: name}
			}
		}

		op := fuseops.NewLookUpInodeOp(r.header, cur, name)
		r.fs.LookUpInode(op)
		if errno := fuseops.Wait(op); errno != 0 {
			return entry, name, &resolveFailure{Errno: errno, Cursor: cur, Component: name}
		}

		if flags.followSymlinks && op.Entry.Attributes.Mode&os.ModeSymlink != 0 {
			depth++
			if depth > maxSymlinkDepth {
				return entry, name, &resolveFailure{Errno: syscall.ELOOP, Cursor: cur, Component: name}
			}

			rl := fuseops.NewReadSymlinkOp(r.header, op.Entry.Child)
			r.fs.ReadSymlink(rl)
			if errno := fuseops.Wait(rl); errno != 0 {
				return entry, name, &resolveFailure{Errno: errno, Cursor: cur, Component: name}
			}

			spliced, serr := splitComponents(rl.Target)
			if serr != nil {
				return entry, name, &resolveFailure{Errno: syscall.EINVAL, Cursor: cur, Component: rl.Target}
			}
			if strings.HasPrefix(rl.Target, "/") {
				cur = fuseops.RootInodeID
				entry = fuseops.ChildInodeEntry{Child: cur}
				haveAttrs = false
			}
			components = append(spliced, components[i+1:]...)
			i = -1
			continue
		}

		entry = op.Entry
		haveAttrs = true
		cur = op.Entry.Child
	}

	if !haveAttrs {
		attrOp := fuseops.NewGetInodeAttributesOp(r.header, cur)
		r.fs.GetInodeAttributes(attrOp)
		if errno := fuseops.Wait(attrOp); errno != 0 {
			return entry, "", &resolveFailure{Errno: errno, Cursor: cur}
		}
		entry.Attributes = attrOp.Attributes
	}

	return entry, "", nil
}
