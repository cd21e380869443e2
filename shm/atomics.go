package shm

import "sync/atomic"

// Thin wrappers so futex.go and bitmap.go read uniformly regardless of
// which sync/atomic entry point a given Go version prefers.

func atomicCompareAndSwap(addr *uint32, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(addr, old, new)
}

func atomicSwap(addr *uint32, new uint32) uint32 {
	return atomic.SwapUint32(addr, new)
}

func atomicLoad(addr *uint32) uint32 {
	return atomic.LoadUint32(addr)
}

func atomicAdd(addr *uint32, delta uint32) uint32 {
	return atomic.AddUint32(addr, delta)
}

func atomicLoad64(addr *uint64) uint64 {
	return atomic.LoadUint64(addr)
}

func atomicCompareAndSwap64(addr *uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(addr, old, new)
}

func atomicStore32(addr *uint32, v uint32) {
	atomic.StoreUint32(addr, v)
}

func atomicAdd64(addr *uint64, delta uint64) uint64 {
	return atomic.AddUint64(addr, delta)
}
