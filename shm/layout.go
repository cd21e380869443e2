package shm

import (
	"unsafe"

	"github.com/fsgeek/finesse/internal/wire"
)

// PageSize is the slot stride: each slot occupies exactly one page.
// Linux x86_64/arm64 both use 4KiB pages for the mappings Finesse
// creates; a host with a larger page size simply leaves unused padding
// after each slot, which is harmless.
const PageSize = 4096

// SlotCount is the slab size. The allocation/request-ready/response-ready
// bitmaps are each a single uint64, so the count is fixed at 64.
const SlotCount = 64

// Signature is the 16-byte constant that must compare equal on both sides
// of a mapping.
var Signature = [16]byte{'F', 'I', 'N', 'E', 'S', 'S', 'E', '-', 'R', 'E', 'G', 'I', 'O', 'N', '\x00', '\x01'}

// header is the fixed layout at the start of a region's mapping. It
// occupies its own page so that slot 0 always begins at offset PageSize,
// keeping the index arithmetic trivial and every slot body cache-line
// aligned with room to spare.
type header struct {
	Signature  [16]byte
	ServerID   [16]byte
	ClientID   [16]byte
	TotalSize  uint64
	SlotCount  uint32
	_reserved0 uint32

	AllocBitmap   uint64
	RequestReady  uint64
	ResponseReady uint64

	NextRequestID uint64

	RequestMutexState  uint32
	RequestCondSeq     uint32
	ResponseMutexState uint32
	ResponseCondSeq    uint32

	ShutdownFlag  uint32
	WaiterCount   uint32
	LastAllocHint uint32
	_reserved1    uint32
}

// requestIDSentinel seeds the request-id counter 2^20 below the top of the
// uint64 range, so the counter wraps after about a million requests; the
// wrap skips zero, and a stress test can reach that path quickly.
const requestIDSentinel = ^uint64(0) - 1<<20

// slotHeader is the fixed layout at the start of every slot.
type slotHeader struct {
	Type      uint8
	_pad0     [7]byte
	Result    int32
	_pad1     [4]byte
	RequestID uint64
	_pad2     [40]byte // Body starts at offset 64, on a cache line
	Body      wire.Body
}

func totalRegionSize() int64 {
	return int64(PageSize) * int64(1+SlotCount)
}

func headerAt(base unsafe.Pointer) *header {
	return (*header)(base)
}

func slotHeaderAt(base unsafe.Pointer, idx int) *slotHeader {
	off := uintptr(PageSize) * uintptr(1+idx)
	return (*slotHeader)(unsafe.Pointer(uintptr(base) + off))
}
