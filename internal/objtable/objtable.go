// Package objtable implements the server's inode/UUID object table: the
// bidirectional, reference-counted index translating between kernel inode
// numbers and the 128-bit handles Finesse's wire protocol exchanges.
//
// The locking discipline follows jacobsa/fuse's memfs sample inode index:
// one mutex guarding two maps, with invariants stated and checked by
// InvariantMutex rather than left to comments.
package objtable

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
)

// Entry is one object table row: an inode's identity plus how many
// outstanding handles reference it.
type Entry struct {
	Inode    uint64
	UUID     uuid.UUID
	refCount uint64
}

// RefCount returns the entry's current reference count.
func (e *Entry) RefCount() uint64 { return e.refCount }

// Table is the server's single object table, shared across all connected
// clients: one table per mounted filesystem, not per client.
type Table struct {
	mu syncutil.InvariantMutex

	// INVARIANT: byInode and byUUID agree: for every k, byInode[k].UUID
	// maps back to k in byUUID, and vice versa.
	// INVARIANT: every Entry's refCount >= 1.
	byInode map[uint64]*Entry    // GUARDED_BY(mu)
	byUUID  map[uuid.UUID]*Entry // GUARDED_BY(mu)
}

// New returns an empty object table.
func New() *Table {
	t := &Table{
		byInode: make(map[uint64]*Entry),
		byUUID:  make(map[uuid.UUID]*Entry),
	}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *Table) checkInvariants() {
	if len(t.byInode) != len(t.byUUID) {
		panic(fmt.Sprintf("objtable: byInode has %d entries, byUUID has %d", len(t.byInode), len(t.byUUID)))
	}
	for inode, e := range t.byInode {
		if e.Inode != inode {
			panic(fmt.Sprintf("objtable: byInode[%d].Inode == %d", inode, e.Inode))
		}
		if t.byUUID[e.UUID] != e {
			panic(fmt.Sprintf("objtable: byInode[%d] not reachable via byUUID[%s]", inode, e.UUID))
		}
		if e.refCount == 0 {
			panic(fmt.Sprintf("objtable: entry for inode %d has refCount 0 while still indexed", inode))
		}
	}
}

// Create returns the entry for inode, installing a fresh one (new UUID,
// reference count 1) if none exists, or incrementing the existing entry's
// reference count and returning it. Callers that race to Create the same
// inode therefore converge on one entry and one UUID; any identity a
// loser might have minted for the inode is simply never used.
func (t *Table) Create(inode uint64) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.byInode[inode]; ok {
		e.refCount++
		return e
	}

	e := &Entry{Inode: inode, UUID: uuid.New(), refCount: 1}
	t.byInode[inode] = e
	t.byUUID[e.UUID] = e
	return e
}

// LookupByInode returns the entry for inode, or ok == false if none
// exists.
func (t *Table) LookupByInode(inode uint64) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byInode[inode]
	return e, ok
}

// LookupByUUID returns the entry for id, or ok == false if none exists.
func (t *Table) LookupByUUID(id uuid.UUID) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byUUID[id]
	return e, ok
}

// Release drops n references from inode's entry; forget-style callers
// report how many references to drop in one call. Once the
// count reaches zero the entry is removed from both maps. Release on an
// inode with no entry, or a drop count exceeding the current reference
// count, is a caller bug and panics rather than silently clamping.
func (t *Table) Release(inode uint64, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byInode[inode]
	if !ok {
		panic(fmt.Sprintf("objtable: Release on inode %d with no entry", inode))
	}
	if n > e.refCount {
		panic(fmt.Sprintf("objtable: Release(%d, %d) exceeds refCount %d", inode, n, e.refCount))
	}

	e.refCount -= n
	if e.refCount == 0 {
		delete(t.byInode, inode)
		delete(t.byUUID, e.UUID)
	}
}

// Size returns the number of live entries, used by the ServerStat native
// operation's ObjectTableSize field.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byInode)
}
