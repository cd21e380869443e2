package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"syscall"

	"github.com/jacobsa/reqtrace"

	"github.com/fsgeek/finesse/fuseops"
	"github.com/fsgeek/finesse/internal/stats"
	"github.com/fsgeek/finesse/internal/wire"
	"github.com/fsgeek/finesse/shm"
)

// Dispatcher drains one client's shared-memory region and routes each
// ready request to the FUSE adapter or the native handler, depending on
// the envelope's message class. Region access is
// cross-process and futex-based; each worker goroutine waits on the
// region and takes ready slots from it directly, with no in-process
// channel between them.
type Dispatcher struct {
	Region  *shm.Region
	Adapter *Adapter
	Native  *NativeHandler
	Stats   *stats.Recorder
	Workers int
	Log     *log.Logger
}

// Run drains the region until it is destroyed, fanning requests out
// across d.Workers goroutines. It blocks until the region reports
// shutdown, at which point every worker has drained and it returns.
func (d *Dispatcher) Run() {
	workers := d.Workers
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			d.loop()
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) loop() {
	for {
		if err := d.Region.WaitForReadyRequest(); err != nil {
			return
		}

		slot, err := d.Region.GetReadyRequest()
		if err != nil {
			if err == shm.ErrShuttingDown {
				return
			}
			continue
		}
		if slot == nil {
			continue
		}

		d.handle(slot)
	}
}

// spanName groups trace spans by request type. No kernel PID exists on
// this side of the boundary, so the request type is the natural span
// grouping for a dispatch loop.
func spanName(body *wire.Body) string {
	if body.Class == wire.ClassNative {
		return "native." + body.NativeType.String()
	}
	return "fuse." + body.FuseType.String()
}

func (d *Dispatcher) handle(slot *shm.Slot) {
	body := slot.Body()

	_, report := reqtrace.StartSpan(context.Background(), spanName(body))

	var errno int32
	switch body.Class {
	case wire.ClassFuse:
		errno = int32(d.Adapter.Dispatch(slot, fuseops.OriginFinesse))
	case wire.ClassNative:
		errno = int32(d.Native.Dispatch(slot))
	default:
		if d.Log != nil {
			d.Log.Printf("server: slot %d: unknown message class %v", slot.Index(), body.Class)
		}
		errno = int32(syscall.EINVAL)
	}

	if errno != 0 {
		report(fmt.Errorf("%w", syscall.Errno(errno)))
	} else {
		report(nil)
	}

	slot.SetResult(errno)
	d.Region.ResponseReady(slot)

	if d.Stats != nil {
		d.Stats.RecordCall(body.Stats, errno == 0)
	}
}
