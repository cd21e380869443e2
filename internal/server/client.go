package server

import (
	"log"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/fsgeek/finesse/internal/ipc"
	"github.com/fsgeek/finesse/shm"
)

// alivePollInterval is how often a client's registering process is
// pid-polled for liveness. A client that vanished gets its region torn
// down so blocked waiters observe shutdown and the dispatcher drops it.
const alivePollInterval = 2 * time.Second

// clientState is the per-client bookkeeping a registered client keeps on
// the server side: its mapped region, its arena directory, and the
// dispatcher draining its requests.
type clientState struct {
	ID       uuid.UUID
	Pid      uint32
	Region   *shm.Region
	ShmPath  string
	ArenaDir string

	dispatcher *Dispatcher
	done       chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// newClientState maps the region a client created and named in its
// registration request, and wires a dispatcher against it.
func newClientState(req ipc.Request, adapter *Adapter, native *NativeHandler, workers int, logger *log.Logger) (*clientState, error) {
	region, err := shm.Open(req.ShmPathString())
	if err != nil {
		return nil, err
	}

	c := &clientState{
		ID:       req.ClientID,
		Pid:      req.Pid,
		Region:   region,
		ShmPath:  req.ShmPathString(),
		ArenaDir: ipc.SocketDir(),
		done:     make(chan struct{}),
	}
	c.dispatcher = &Dispatcher{
		Region:  region,
		Adapter: adapter,
		Native:  native,
		Stats:   native.Stats,
		Workers: workers,
		Log:     logger,
	}
	return c, nil
}

// run drains the client's region until it is destroyed or the client's
// process has exited, whichever comes first. It always closes done on
// return so Server.monitor can reap the client.
func (c *clientState) run() {
	defer close(c.done)
	c.dispatcher.Run()
}

// alive reports whether the client process that registered this region
// still exists.
func (c *clientState) alive() bool {
	if c.Pid == 0 {
		return true
	}
	return syscall.Kill(int(c.Pid), 0) == nil
}

// watchLiveness polls the registering process's pid every interval until
// it is gone or the dispatcher has already stopped on its own, then tears
// the region down. This is what makes a dead client's region actually get
// destroyed: without it the dispatcher goroutines spawned by run() would
// block forever in Region.WaitForReadyRequest, since nothing else ever
// calls DestroyRegion for a client that simply vanishes. Production
// wiring always passes alivePollInterval; tests pass a much shorter one
// so the reap does not have to wait seconds.
func (c *clientState) watchLiveness(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.alive() {
				c.close()
				return
			}
		}
	}
}

// close tears down the client's region and unlinks its backing file. It
// is idempotent: Shutdown's sweep and watchLiveness's reap race to close
// the same client, and Region.Close unmaps the file once, so only the
// first caller's teardown actually runs. DestroyRegion refuses while
// buffers are still allocated; that refusal is returned to the caller
// rather than escalated, since shutdown must still proceed for
// operational use even when a caller's bookkeeping slipped.
func (c *clientState) close() error {
	c.closeOnce.Do(func() {
		if err := c.Region.DestroyRegion(); err != nil {
			c.closeErr = err
			return
		}
		c.closeErr = c.Region.Close()
		removeShmFile(c.ShmPath)
	})
	return c.closeErr
}

// removeShmFile best-effort unlinks the backing file for a client's
// region once it has been fully torn down.
func removeShmFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
