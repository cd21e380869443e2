package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/fsgeek/finesse/internal/wire"
)

func newSimulatedClock() *timeutil.SimulatedClock {
	c := &timeutil.SimulatedClock{}
	c.SetTime(time.Unix(1000, 0))
	return c
}

func TestRecordAccumulatesBucket(t *testing.T) {
	r := New(newSimulatedClock())

	r.Record(wire.ClassFuse, uint16(wire.FuseLookup), OutcomeSuccess, 10, 20, 30, 100)
	r.Record(wire.ClassFuse, uint16(wire.FuseLookup), OutcomeSuccess, 30, 40, 50, 300)
	r.Record(wire.ClassFuse, uint16(wire.FuseLookup), OutcomeError, 5, 5, 5, 50)

	if got := r.CallCount(); got != 3 {
		t.Fatalf("CallCount = %d, want 3", got)
	}

	key := bucketKey{class: wire.ClassFuse, reqType: uint16(wire.FuseLookup)}
	b := r.buckets[key]
	if b.success.count != 2 || b.failure.count != 1 {
		t.Fatalf("success.count = %d, failure.count = %d, want 2 and 1", b.success.count, b.failure.count)
	}
	s := b.success
	if s.requestQueueDelay != 40 || s.processing != 60 || s.responseQueueDelay != 80 || s.totalTime != 400 {
		t.Fatalf("success sums = %d,%d,%d,%d, want 40,60,80,400",
			s.requestQueueDelay, s.processing, s.responseQueueDelay, s.totalTime)
	}
}

func TestFlushWritesCSVWithFixedHeaderAndFoldedRow(t *testing.T) {
	r := New(newSimulatedClock())
	r.Record(wire.ClassNative, uint16(wire.NativeServerStat), OutcomeSuccess, 10, 20, 30, 1000)
	r.Record(wire.ClassNative, uint16(wire.NativeServerStat), OutcomeSuccess, 30, 40, 50, 2000)
	r.Record(wire.ClassNative, uint16(wire.NativeServerStat), OutcomeError, 1, 2, 3, 40)

	path := filepath.Join(t.TempDir(), "stats.csv")
	if err := r.Flush(path); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected a header and one data row, got %d lines: %q", len(lines), lines)
	}
	wantHeader := "Operation,Calls,Success,RequestQueueDelay,Processing,ResponseQueueDelay,TotalTime,Failure,RequestQueueDelay,Processing,ResponseQueueDelay,TotalTime"
	if lines[0] != wantHeader {
		t.Fatalf("header = %q, want %q", lines[0], wantHeader)
	}
	// Durations are accumulated sums, not per-call averages: the two
	// success records fold into 40,60,80,3000.
	wantRow := "native.ServerStat,3,2,40,60,80,3000,1,1,2,3,40"
	if lines[1] != wantRow {
		t.Fatalf("row = %q, want %q", lines[1], wantRow)
	}
}

func TestRecordCallDerivesFourComponentDurationsFromCallStats(t *testing.T) {
	r := New(newSimulatedClock())

	s := wire.CallStats{
		RequestClass:          wire.ClassFuse,
		RequestType:           uint16(wire.FuseRead),
		StartNanos:            100,
		EnqueuedNanos:         120,
		DequeuedNanos:         150,
		ResponseEnqueuedNanos: 400,
		ResponseDequeuedNanos: 450,
		CompletedNanos:        460,
	}
	r.RecordCall(s, true)

	if got := r.CallCount(); got != 1 {
		t.Fatalf("CallCount = %d, want 1", got)
	}

	key := bucketKey{class: wire.ClassFuse, reqType: uint16(wire.FuseRead)}
	totals := r.buckets[key].success
	if totals.requestQueueDelay != 20 || totals.processing != 30 || totals.responseQueueDelay != 250 || totals.totalTime != 50 {
		t.Fatalf("sums = %d,%d,%d,%d, want 20,30,250,50",
			totals.requestQueueDelay, totals.processing, totals.responseQueueDelay, totals.totalTime)
	}
}

func TestUptimeNanosAdvancesWithClock(t *testing.T) {
	clock := newSimulatedClock()
	r := New(clock)

	clock.AdvanceTime(5 * time.Second)
	if got := r.UptimeNanos(); got != int64(5*time.Second) {
		t.Fatalf("UptimeNanos = %d, want %d", got, int64(5*time.Second))
	}
}
