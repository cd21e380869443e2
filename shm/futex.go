package shm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Cross-process mutex and condition variable built directly on the Linux
// futex(2) syscall.
//
// The region's request/response mutex+condvar pairs must be usable from
// both sides of the mapping, and Go cannot expose a
// PTHREAD_PROCESS_SHARED mutex/condvar without cgo: sync.Mutex and
// sync.Cond are only ever valid within one process's address space. Both
// types below operate purely on a uint32 word that lives inside the
// mapped region (see region.go), so any number of processes mapping the
// same file see the same lock state.
//
// This is a simplified rendering of the classic three-state futex mutex
// (Ulrich Drepper, "Futexes Are Tricky") plus a sequence-counter condvar,
// grounded in the raw-futex idiom shown in
// _examples/other_examples/.../mazboot-golang-main-syscall.go.go.

const (
	futexUnlocked  = 0
	futexLocked    = 1
	futexContended = 2

	sysFutexWait = 0
	sysFutexWake = 1
)

func futexWait(addr *uint32, expect uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(sysFutexWait),
		uintptr(expect),
		0, 0, 0,
	)
	if errno != 0 && errno != unix.EAGAIN && errno != unix.EINTR {
		return errno
	}
	return nil
}

func futexWake(addr *uint32, n int32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(sysFutexWake),
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

func casUint32(addr *uint32, old, new uint32) bool {
	return atomicCompareAndSwap(addr, old, new)
}

// Mutex is a process-shared mutex whose state word lives in mapped memory.
type Mutex struct {
	state *uint32
}

// NewMutex wraps the futex word at addr. The caller is responsible for the
// word being zero-initialized before any process calls Lock.
func NewMutex(addr *uint32) *Mutex {
	return &Mutex{state: addr}
}

func (m *Mutex) Lock() {
	if casUint32(m.state, futexUnlocked, futexLocked) {
		return
	}
	for atomicSwap(m.state, futexContended) != futexUnlocked {
		futexWait(m.state, futexContended)
	}
}

func (m *Mutex) Unlock() {
	if atomicSwap(m.state, futexUnlocked) == futexContended {
		futexWake(m.state, 1)
	}
}

// Cond is a process-shared condition variable associated with a Mutex,
// implemented with a sequence counter the way glibc's futex-based condvar
// is: Wait captures the current sequence before unlocking mu, so a
// Signal/Broadcast that lands between the unlock and the futex syscall is
// never lost.
type Cond struct {
	seq *uint32
	mu  *Mutex
}

// NewCond wraps the sequence word at addr, associated with mu.
func NewCond(addr *uint32, mu *Mutex) *Cond {
	return &Cond{seq: addr, mu: mu}
}

// Wait must be called with c.mu held. It releases the mutex, blocks until
// a Signal/Broadcast, and reacquires the mutex before returning.
func (c *Cond) Wait() {
	old := atomicLoad(c.seq)
	c.mu.Unlock()
	futexWait(c.seq, old)
	c.mu.Lock()
}

func (c *Cond) Signal() {
	atomicAdd(c.seq, 1)
	futexWake(c.seq, 1)
}

func (c *Cond) Broadcast() {
	atomicAdd(c.seq, 1)
	futexWake(c.seq, 1<<30) // INT_MAX-ish: wake everyone waiting on this word
}
