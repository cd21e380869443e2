package server

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fsgeek/finesse/shm"
)

// activeArenas counts arenas created but not yet released, surfaced by the
// ServerStat native reply's ActiveArenaCount field.
var activeArenas int64

func createTrackedArena(dir string) (*shm.Arena, error) {
	a, err := shm.CreateArena(dir)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&activeArenas, 1)
	return a, nil
}

func removeTrackedArena(dir string, name uuid.UUID) error {
	a, err := shm.OpenArena(dir, name)
	if err != nil {
		return err
	}
	if err := a.Remove(); err != nil {
		return err
	}
	atomic.AddInt64(&activeArenas, -1)
	return nil
}

func activeArenaCount() uint32 {
	return uint32(atomic.LoadInt64(&activeArenas))
}
