// Package stats implements per-call statistics, bucketed by message
// class and request type with success/failure folded into the same row,
// flushed to a CSV file on shutdown.
package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/jacobsa/timeutil"

	"github.com/fsgeek/finesse/internal/wire"
)

// Outcome classifies how a call completed. Unlike message class and
// request type it is not part of the bucket key; success and failure
// totals for the same (class, request type) share one CSV row.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "error"
}

type bucketKey struct {
	class   wire.MessageClass
	reqType uint16
}

// stageTotals accumulates the four component durations for one outcome
// (success or failure) of one (class, request type) bucket: request-queue
// delay, processing, response-queue delay, and total time, each a running
// nanosecond sum. The sums are rendered directly at flush time, never
// divided by count, so rows from separate runs stay summable and offline
// tooling can derive its own averages.
type stageTotals struct {
	count              uint64
	requestQueueDelay  int64
	processing         int64
	responseQueueDelay int64
	totalTime          int64
}

func (s *stageTotals) add(requestQueueDelay, processing, responseQueueDelay, totalTime int64) {
	s.count++
	s.requestQueueDelay += requestQueueDelay
	s.processing += processing
	s.responseQueueDelay += responseQueueDelay
	s.totalTime += totalTime
}

type bucket struct {
	success stageTotals
	failure stageTotals
}

// Recorder accumulates per-call statistics and flushes them to CSV. It is
// safe for concurrent use by every dispatcher goroutine.
type Recorder struct {
	clock timeutil.Clock

	mu      sync.Mutex
	buckets map[bucketKey]*bucket

	// calls is a single monotonic count of every call seen, independent
	// of bucketing and guarded by mu, readable through CallCount before the
	// shutdown flush. The ServerStat native reply does not carry it.
	calls uint64

	startedAt int64
}

// New returns an empty Recorder. clock is injected so tests can control
// elapsed-time measurements deterministically.
func New(clock timeutil.Clock) *Recorder {
	return &Recorder{
		clock:     clock,
		buckets:   make(map[bucketKey]*bucket),
		startedAt: clock.Now().UnixNano(),
	}
}

// Record files one completed call's four component durations into its
// bucket: the request-queue delay (create to enqueue), processing
// (enqueue to dequeue), response-queue delay (dequeue to response
// enqueue), and total time (response enqueue to response dequeue) — the
// four legs the CSV header names.
func (r *Recorder) Record(class wire.MessageClass, reqType uint16, outcome Outcome, requestQueueDelay, processing, responseQueueDelay, totalTime int64) {
	key := bucketKey{class: class, reqType: reqType}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{}
		r.buckets[key] = b
	}
	totals := &b.success
	if outcome != OutcomeSuccess {
		totals = &b.failure
	}
	totals.add(requestQueueDelay, processing, responseQueueDelay, totalTime)
}

// RecordCall derives class/type/outcome and all four component durations
// directly from a completed CallStats value and the final syscall
// result, so dispatch code does not have to unpack the envelope itself.
func (r *Recorder) RecordCall(s wire.CallStats, success bool) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	requestQueueDelay := s.EnqueuedNanos - s.StartNanos
	processing := s.DequeuedNanos - s.EnqueuedNanos
	responseQueueDelay := s.ResponseEnqueuedNanos - s.DequeuedNanos
	totalTime := s.ResponseDequeuedNanos - s.ResponseEnqueuedNanos
	r.Record(s.RequestClass, s.RequestType, outcome, requestQueueDelay, processing, responseQueueDelay, totalTime)
}

// CallCount returns the rolling total of every call recorded, regardless
// of bucket.
func (r *Recorder) CallCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// UptimeNanos returns how long this Recorder has been accumulating,
// surfaced in the ServerStat native reply's UptimeNanos field.
func (r *Recorder) UptimeNanos() int64 {
	return r.clock.Now().UnixNano() - r.startedAt
}

// csvHeader is the fixed external format: one row per (message class,
// request type), success and failure durations folded side by side rather
// than onto separate rows.
var csvHeader = []string{
	"Operation", "Calls",
	"Success", "RequestQueueDelay", "Processing", "ResponseQueueDelay", "TotalTime",
	"Failure", "RequestQueueDelay", "Processing", "ResponseQueueDelay", "TotalTime",
}

// operationName names a bucket's (class, request type) the way
// dispatch.go's spanName groups reqtrace spans, giving the CSV's
// Operation column a readable value instead of two raw integers.
func operationName(class wire.MessageClass, reqType uint16) string {
	if class == wire.ClassNative {
		return "native." + wire.NativeRequestType(reqType).String()
	}
	return "fuse." + wire.FuseRequestType(reqType).String()
}

// Flush writes every bucket as one CSV row to path under the fixed
// header, sorted for stable, diffable output across runs.
func (r *Recorder) Flush(path string) error {
	r.mu.Lock()
	keys := make([]bucketKey, 0, len(r.buckets))
	for k := range r.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].class != keys[j].class {
			return keys[i].class < keys[j].class
		}
		return keys[i].reqType < keys[j].reqType
	})

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		b := r.buckets[k]
		rows = append(rows, []string{
			operationName(k.class, k.reqType),
			strconv.FormatUint(b.success.count+b.failure.count, 10),
			strconv.FormatUint(b.success.count, 10),
			strconv.FormatInt(b.success.requestQueueDelay, 10),
			strconv.FormatInt(b.success.processing, 10),
			strconv.FormatInt(b.success.responseQueueDelay, 10),
			strconv.FormatInt(b.success.totalTime, 10),
			strconv.FormatUint(b.failure.count, 10),
			strconv.FormatInt(b.failure.requestQueueDelay, 10),
			strconv.FormatInt(b.failure.processing, 10),
			strconv.FormatInt(b.failure.responseQueueDelay, 10),
			strconv.FormatInt(b.failure.totalTime, 10),
		})
	}
	r.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stats: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("stats: write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("stats: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
