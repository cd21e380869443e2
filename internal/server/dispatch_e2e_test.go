package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	. "github.com/jacobsa/ogletest"

	"github.com/fsgeek/finesse/internal/memfs"
	"github.com/fsgeek/finesse/internal/objtable"
	"github.com/fsgeek/finesse/internal/stats"
	"github.com/fsgeek/finesse/internal/wire"
	"github.com/fsgeek/finesse/shm"
)

func TestDispatcherEndToEnd(t *testing.T) { RunTests(t) }

// DispatcherEndToEndTest exercises a full client/server round trip rather
// than unit-testing one op handler at a time: allocate a
// request buffer, publish it, let a live Dispatcher goroutine drain the
// region, then read the response back out.
type DispatcherEndToEndTest struct {
	dir        string
	region     *shm.Region
	dispatcher *Dispatcher
	done       chan struct{}
}

func init() { RegisterTestSuite(&DispatcherEndToEndTest{}) }

func (s *DispatcherEndToEndTest) SetUp(*TestInfo) {
	var err error
	s.dir, err = os.MkdirTemp("", "finesse_dispatch_e2e")
	AssertEq(nil, err)

	s.region, err = shm.Create(filepath.Join(s.dir, "region"), uuid.New())
	AssertEq(nil, err)

	clock := newSimulatedClock()
	objects := objtable.New()
	fs := memfs.New(clock)
	recorder := stats.New(clock)

	s.dispatcher = &Dispatcher{
		Region:  s.region,
		Adapter: &Adapter{FS: fs, Objects: objects, ArenaDir: s.dir},
		Native: &NativeHandler{
			FS:          fs,
			Objects:     objects,
			Stats:       recorder,
			ArenaDir:    s.dir,
			ClientCount: func() uint32 { return 1 },
			Clock:       clock,
		},
		Stats:   recorder,
		Workers: 2,
	}

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.dispatcher.Run()
	}()
}

func (s *DispatcherEndToEndTest) TearDown() {
	s.region.DestroyRegion()
	<-s.done
	s.region.Close()
	os.RemoveAll(s.dir)
}

func (s *DispatcherEndToEndTest) RoundTripsATestCall() {
	slot, err := s.region.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeTest)
	AssertEq(nil, err)

	params := wire.TestParams{VersionByte: 9}
	AssertEq(nil, wire.EncodePayload(&slot.Body().Payload, &params))

	s.region.RequestReady(slot)

	ready, err := s.region.GetResponse(slot, true)
	AssertEq(nil, err)
	ExpectTrue(ready)
	ExpectEq(int32(0), slot.Result())

	var reply wire.TestReply
	AssertEq(nil, wire.DecodePayload(&slot.Body().Payload, &reply))
	ExpectEq(byte(9), reply.VersionByte)

	s.region.ReleaseRequestBuffer(slot)
}

func (s *DispatcherEndToEndTest) RoundTripsAMkdirThenLookup() {
	mkSlot, err := s.region.AllocateRequestBuffer(wire.ClassFuse, wire.FuseMkdir, 0)
	AssertEq(nil, err)

	var mkParams wire.MkdirParams
	wire.PutString(mkParams.Name[:], "greetings")
	mkParams.Mode = 0755
	AssertEq(nil, wire.EncodePayload(&mkSlot.Body().Payload, &mkParams))

	s.region.RequestReady(mkSlot)
	ready, err := s.region.GetResponse(mkSlot, true)
	AssertEq(nil, err)
	ExpectTrue(ready)
	ExpectEq(int32(0), mkSlot.Result())
	s.region.ReleaseRequestBuffer(mkSlot)

	lookupSlot, err := s.region.AllocateRequestBuffer(wire.ClassNative, 0, wire.NativeNameMap)
	AssertEq(nil, err)

	var nameParams wire.NameMapParams
	wire.PutString(nameParams.Name[:], "greetings")
	AssertEq(nil, wire.EncodePayload(&lookupSlot.Body().Payload, &nameParams))

	s.region.RequestReady(lookupSlot)
	ready, err = s.region.GetResponse(lookupSlot, true)
	AssertEq(nil, err)
	ExpectTrue(ready)
	ExpectEq(int32(0), lookupSlot.Result())

	var reply wire.NameMapReply
	AssertEq(nil, wire.DecodePayload(&lookupSlot.Body().Payload, &reply))
	ExpectFalse(reply.Target.IsNull())

	s.region.ReleaseRequestBuffer(lookupSlot)
}
