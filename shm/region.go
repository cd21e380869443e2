// Package shm implements the shared-memory request channel: the
// fixed-size slot slab, its allocation bitmap, the two event bitmaps, and
// the auxiliary arenas used for payloads too large to fit in a slot.
package shm

import (
	"errors"
	"fmt"
	"log"
	"os"
	"unsafe"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"
	"golang.org/x/sys/unix"

	"github.com/fsgeek/finesse/internal/wire"
)

// ErrNone is returned by GetReadyRequest when no request is waiting.
var ErrNone = errors.New("shm: no ready request")

// ErrShuttingDown is returned by waits that observe the region's shutdown
// flag; callers surface it to clients as ENOTCONN.
var ErrShuttingDown = errors.New("shm: region is shutting down")

// ErrNoBuffer is returned by AllocateRequestBuffer when all N slots are in
// use.
var ErrNoBuffer = errors.New("shm: no free request buffer")

// Region is one connected client's mapped shared-memory channel: header
// state followed by the fixed slab of message slots.
type Region struct {
	data []byte
	hdr  *header

	file  *os.File
	owned bool // true if this process created the backing file
	path  string

	reqMu    *Mutex
	reqCond  *Cond
	respMu   *Mutex
	respCond *Cond

	clock timeutil.Clock
	log   *log.Logger
}

// Create makes a brand-new shared-memory object at path (read-write,
// exclusive-create, as the registering client does), sizes it, maps it,
// and initializes the header. The server id stays the zero UUID until the
// server's confirmation record fills it in via SetServerID.
func Create(path string, clientID uuid.UUID) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", path, err)
	}

	size := totalRegionSize()
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
	}

	r, err := mapRegion(f, path, true)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	r.hdr.Signature = Signature
	r.hdr.ClientID = clientID
	r.hdr.TotalSize = uint64(size)
	r.hdr.SlotCount = SlotCount
	r.hdr.NextRequestID = requestIDSentinel

	r.log.Printf("created region %s: %d slots, %d bytes", path, SlotCount, size)
	return r, nil
}

// Open maps an existing shared-memory object by path (the server side of
// registration: it receives the client's shared-memory name and maps the
// same file).
func Open(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}

	r, err := mapRegion(f, path, false)
	if err != nil {
		return nil, err
	}

	if r.hdr.Signature != Signature {
		r.unmapOnly()
		f.Close()
		return nil, fmt.Errorf("shm: %s: signature mismatch", path)
	}

	r.log.Printf("mapped region %s for client %s", path, r.ClientID())
	return r, nil
}

func mapRegion(f *os.File, path string, owned bool) (*Region, error) {
	size := totalRegionSize()
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	base := unsafe.Pointer(&data[0])
	hdr := headerAt(base)

	r := &Region{
		data:  data,
		hdr:   hdr,
		file:  f,
		owned: owned,
		path:  path,
		clock: timeutil.RealClock(),
		log:   getLogger(),
	}
	r.reqMu = NewMutex(&hdr.RequestMutexState)
	r.reqCond = NewCond(&hdr.RequestCondSeq, r.reqMu)
	r.respMu = NewMutex(&hdr.ResponseMutexState)
	r.respCond = NewCond(&hdr.ResponseCondSeq, r.respMu)

	return r, nil
}

func (r *Region) unmapOnly() {
	unix.Munmap(r.data)
}

// SetServerID records the server's identifier once registration completes.
func (r *Region) SetServerID(id uuid.UUID) { r.hdr.ServerID = id }

// ServerID/ClientID return the region's two 128-bit identifiers.
func (r *Region) ServerID() uuid.UUID { return r.hdr.ServerID }
func (r *Region) ClientID() uuid.UUID { return r.hdr.ClientID }

// Path returns the filesystem path this region's shared-memory object was
// created or opened at.
func (r *Region) Path() string { return r.path }

// Size returns the mapping's total size as recorded in the header, echoed
// back to the client in the registration confirmation.
func (r *Region) Size() uint64 { return r.hdr.TotalSize }

// Close unmaps the region and closes the backing file descriptor. If this
// process created the file (owned == true), callers typically unlink the
// path once the peer has also mapped it; the mapping persists until both
// sides close their descriptors.
func (r *Region) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		return err
	}
	return r.file.Close()
}

// Slot is a handle to one allocated message slot.
type Slot struct {
	region *Region
	idx    int
	sh     *slotHeader
}

func (r *Region) slot(idx int) *Slot {
	return &Slot{region: r, idx: idx, sh: slotHeaderAt(unsafe.Pointer(&r.data[0]), idx)}
}

// Index returns the slot's position in the region's slab, used for
// logging.
func (s *Slot) Index() int { return s.idx }

// Envelope/Body expose the slot's fields for the adapter and native
// handlers to read and fill in.
func (s *Slot) Type() wire.MessageType     { return wire.MessageType(s.sh.Type) }
func (s *Slot) SetType(t wire.MessageType) { s.sh.Type = uint8(t) }
func (s *Slot) Result() int32              { return s.sh.Result }
func (s *Slot) SetResult(v int32)          { s.sh.Result = v }
func (s *Slot) RequestID() wire.RequestID  { return wire.RequestID(s.sh.RequestID) }
func (s *Slot) Body() *wire.Body           { return &s.sh.Body }

func (r *Region) now() int64 { return r.clock.Now().UnixNano() }

// AllocateRequestBuffer is a non-blocking, CAS-based slot acquisition.
// It never blocks; callers that want a "full, so wait" policy must retry
// themselves. Package client does not retry: it reports ENOMEM.
func (r *Region) AllocateRequestBuffer(class wire.MessageClass, fuseType wire.FuseRequestType, nativeType wire.NativeRequestType) (*Slot, error) {
	hint := int(atomicLoad(&r.hdr.LastAllocHint))
	idx := allocateBit(&r.hdr.AllocBitmap, hint)
	if idx < 0 {
		return nil, ErrNoBuffer
	}
	atomicStore32(&r.hdr.LastAllocHint, uint32((idx+1)%SlotCount))

	s := r.slot(idx)
	*s.sh = slotHeader{}
	s.sh.Type = uint8(wire.MessageRequest)
	s.sh.Result = int32(unix.ENOSYS)
	s.sh.Body.Version = wire.Version
	s.sh.Body.Class = class
	s.sh.Body.FuseType = fuseType
	s.sh.Body.NativeType = nativeType
	s.sh.Body.Stats.RequestClass = class
	if class == wire.ClassFuse {
		s.sh.Body.Stats.RequestType = uint16(fuseType)
	} else {
		s.sh.Body.Stats.RequestType = uint16(nativeType)
	}
	s.sh.Body.Stats.StartNanos = r.now()

	return s, nil
}

// RequestReady stamps a fresh request id, records
// the enqueue timestamp, publish the slot in the request-ready bitmap, and
// wake one waiter.
func (r *Region) RequestReady(s *Slot) wire.RequestID {
	if !bitIsSet(&r.hdr.AllocBitmap, s.idx) {
		return 0
	}

	id := atomicAdd64(&r.hdr.NextRequestID, 1)
	if id == 0 {
		id = atomicAdd64(&r.hdr.NextRequestID, 1)
	}
	s.sh.RequestID = id
	s.sh.Body.Stats.EnqueuedNanos = r.now()

	r.reqMu.Lock()
	setBit(&r.hdr.RequestReady, s.idx)
	r.reqCond.Signal()
	r.reqMu.Unlock()

	return wire.RequestID(id)
}

// ResponseReady records the response-enqueue timestamp and publishes the
// slot in the response-ready bitmap.
func (r *Region) ResponseReady(s *Slot) {
	if bitIsSet(&r.hdr.ResponseReady, s.idx) {
		panic("shm: ResponseReady on a slot whose response bit is already set")
	}
	s.sh.Body.Stats.ResponseEnqueuedNanos = r.now()

	r.respMu.Lock()
	setBit(&r.hdr.ResponseReady, s.idx)
	r.respCond.Broadcast()
	r.respMu.Unlock()
}

// GetResponse collects a slot's response. With wait == true it blocks until
// the slot's response bit is set or the region shuts down; with wait ==
// false it polls once.
func (r *Region) GetResponse(s *Slot, wait bool) (bool, error) {
	r.respMu.Lock()
	for !bitIsSet(&r.hdr.ResponseReady, s.idx) {
		if atomicLoad(&r.hdr.ShutdownFlag) != 0 {
			r.respMu.Unlock()
			return false, ErrShuttingDown
		}
		if !wait {
			r.respMu.Unlock()
			return false, nil
		}
		r.respCond.Wait()
	}
	clearBit(&r.hdr.ResponseReady, s.idx)
	r.respMu.Unlock()

	s.sh.Body.Stats.ResponseDequeuedNanos = r.now()
	return true, nil
}

// WaitForReadyRequest blocks until some slot's request-ready bit is set,
// or the region shuts down.
func (r *Region) WaitForReadyRequest() error {
	r.reqMu.Lock()
	atomicAdd(&r.hdr.WaiterCount, 1)
	for atomicLoad64(&r.hdr.RequestReady) == 0 && atomicLoad(&r.hdr.ShutdownFlag) == 0 {
		r.reqCond.Wait()
	}
	atomicAdd(&r.hdr.WaiterCount, ^uint32(0)) // -1
	shuttingDown := atomicLoad(&r.hdr.ShutdownFlag) != 0
	r.reqMu.Unlock()

	if shuttingDown {
		return ErrShuttingDown
	}
	return nil
}

// GetReadyRequest is a non-blocking pick of one ready request, scanning
// from a random start.
func (r *Region) GetReadyRequest() (*Slot, error) {
	r.reqMu.Lock()
	if atomicLoad(&r.hdr.ShutdownFlag) != 0 {
		r.reqMu.Unlock()
		return nil, ErrShuttingDown
	}
	cur := atomicLoad64(&r.hdr.RequestReady)
	if cur == 0 {
		r.reqMu.Unlock()
		return nil, ErrNone
	}
	idx := pickSetBit(cur)
	clearBit(&r.hdr.RequestReady, idx)
	r.reqMu.Unlock()

	s := r.slot(idx)
	s.sh.Body.Stats.DequeuedNanos = r.now()
	return s, nil
}

// ReleaseRequestBuffer zeroes the request id and clears the allocation
// bit, returning the slot to the free pool.
func (r *Region) ReleaseRequestBuffer(s *Slot) {
	if !bitIsSet(&r.hdr.AllocBitmap, s.idx) {
		panic("shm: ReleaseRequestBuffer on a slot that was already free")
	}
	s.sh.RequestID = 0
	s.sh.Body.Stats.CompletedNanos = r.now()
	clearBit(&r.hdr.AllocBitmap, s.idx)
}

// AllocationPopulation returns the number of currently-allocated slots,
// used by tests asserting a full round trip leaves the population count
// unchanged.
func (r *Region) AllocationPopulation() int { return popcount(&r.hdr.AllocBitmap) }

// DestroyRegion sets the shutdown flag, wakes every waiter, and spins
// until the waiter count reaches zero or a bounded retry budget is
// exhausted. Its precondition (allocation bitmap is zero) is reported as
// an error rather than a panic, since shutdown must still be able to
// proceed for operational use even when a caller's bookkeeping slipped.
func (r *Region) DestroyRegion() error {
	r.log.Printf("destroying region %s", r.path)
	r.reqMu.Lock()
	atomicStore32(&r.hdr.ShutdownFlag, 1)
	const maxRetries = 1000
	for i := 0; i < maxRetries && atomicLoad(&r.hdr.WaiterCount) > 0; i++ {
		r.reqCond.Broadcast()
		r.reqMu.Unlock()
		r.reqMu.Lock()
	}
	r.reqMu.Unlock()

	r.respMu.Lock()
	r.respCond.Broadcast()
	r.respMu.Unlock()

	if pop := r.AllocationPopulation(); pop != 0 {
		return fmt.Errorf("shm: DestroyRegion precondition violated: %d slots still allocated", pop)
	}
	return nil
}

// IsShutdown reports whether the region's shutdown flag has been set.
func (r *Region) IsShutdown() bool { return atomicLoad(&r.hdr.ShutdownFlag) != 0 }
