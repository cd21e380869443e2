package shm

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// ArenaBufferSize is the fixed size of one buffer inside an arena. It is
// large enough to hold a full directory listing page or a read/write
// payload that does not fit in a slot's inline budget.
const ArenaBufferSize = 64 * 1024

// ArenaBufferCount is the number of fixed-size buffers in one arena,
// matching the single-uint64 allocation bitmap used for slots.
const ArenaBufferCount = 64

// arenaHeader is the fixed layout at the start of an arena's mapping.
type arenaHeader struct {
	Signature   [16]byte
	Name        [16]byte // the arena's UUID, duplicated in-band for validation
	BufferSize  uint64
	BufferCount uint32
	_reserved0  uint32
	AllocBitmap uint64
	AllocHint   uint32
	_reserved1  uint32
}

// arenaSignature distinguishes an arena mapping from a request region
// mapping, since both are plain shared-memory files named by a UUID.
var arenaSignature = [16]byte{'F', 'I', 'N', 'E', 'S', 'S', 'E', '-', 'A', 'R', 'E', 'N', 'A', '\x00', '\x00', '\x01'}

func arenaTotalSize() int64 {
	return int64(unsafe.Sizeof(arenaHeader{})) + int64(ArenaBufferCount)*int64(ArenaBufferSize)
}

// Arena is a mapped auxiliary shared-memory region used for payloads that
// exceed a slot's inline budget: directory listings (the DirectoryMap
// native call), and large reads and writes.
//
// Unlike the request Region, an arena is created on demand for each reply
// that needs one and named by a fresh UUID, so there is no fixed
// slot count shared across the server — each arena is its own allocator.
type Arena struct {
	data []byte
	hdr  *arenaHeader
	file *os.File
	name uuid.UUID
	path string
}

// CreateArena allocates a new arena-backed shared-memory object under dir,
// named by a freshly generated UUID, and returns it along with the name to
// embed in the wire message's ArenaName field.
func CreateArena(dir string) (*Arena, error) {
	name := uuid.New()
	path := dir + "/" + name.String()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("shm: create arena %s: %w", path, err)
	}

	size := arenaTotalSize()
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: truncate arena %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: mmap arena %s: %w", path, err)
	}

	hdr := (*arenaHeader)(unsafe.Pointer(&data[0]))
	hdr.Signature = arenaSignature
	nameBytes, _ := name.MarshalBinary()
	copy(hdr.Name[:], nameBytes)
	hdr.BufferSize = ArenaBufferSize
	hdr.BufferCount = ArenaBufferCount

	return &Arena{data: data, hdr: hdr, file: f, name: name, path: path}, nil
}

// OpenArena maps an existing arena by its UUID name, used by the receiving
// side (the server reading a client-created arena, or vice versa).
func OpenArena(dir string, name uuid.UUID) (*Arena, error) {
	path := dir + "/" + name.String()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open arena %s: %w", path, err)
	}

	size := arenaTotalSize()
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap arena %s: %w", path, err)
	}

	hdr := (*arenaHeader)(unsafe.Pointer(&data[0]))
	if hdr.Signature != arenaSignature {
		unix.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("shm: arena %s: signature mismatch", path)
	}

	return &Arena{data: data, hdr: hdr, file: f, name: name, path: path}, nil
}

// Name returns the arena's UUID, the value written into a wire message's
// ArenaName field.
func (a *Arena) Name() uuid.UUID { return a.name }

// Path returns the arena's backing filesystem path.
func (a *Arena) Path() string { return a.path }

func (a *Arena) bufferOffset(idx int) int64 {
	return int64(unsafe.Sizeof(arenaHeader{})) + int64(idx)*ArenaBufferSize
}

// Allocate reserves one fixed-size buffer and returns its index and a byte
// slice view onto it.
func (a *Arena) Allocate() (int, []byte, error) {
	hint := int(atomicLoad(&a.hdr.AllocHint))
	idx := allocateBit(&a.hdr.AllocBitmap, hint)
	if idx < 0 {
		return 0, nil, fmt.Errorf("shm: arena %s has no free buffers", a.path)
	}
	atomicStore32(&a.hdr.AllocHint, uint32((idx+1)%ArenaBufferCount))

	off := a.bufferOffset(idx)
	buf := a.data[off : off+ArenaBufferSize]
	return idx, buf, nil
}

// Buffer returns the byte slice for an already-allocated buffer index.
func (a *Arena) Buffer(idx int) []byte {
	off := a.bufferOffset(idx)
	return a.data[off : off+ArenaBufferSize]
}

// Release frees buffer idx back to the arena's allocation bitmap.
func (a *Arena) Release(idx int) {
	clearBit(&a.hdr.AllocBitmap, idx)
}

// Close unmaps the arena. The caller (whichever side last references it,
// such as the server on a DirectoryMapRelease native operation) is
// responsible for unlinking the backing path once both sides are done.
func (a *Arena) Close() error {
	if err := unix.Munmap(a.data); err != nil {
		return err
	}
	return a.file.Close()
}

// Remove closes and unlinks the arena's backing file, used once a
// DirectoryMapRelease or equivalent teardown confirms no party still
// needs it.
func (a *Arena) Remove() error {
	if err := a.Close(); err != nil {
		return err
	}
	return os.Remove(a.path)
}
