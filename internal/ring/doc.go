// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ring provides the two bounded lock-free FIFO queues ofcore's
// concurrency model needs:
//
//   - SPSC: Single-Producer Single-Consumer — the worker-input and
//     worker-output rings between lcores (internal/dataplane), where
//     each ring has exactly one writer and one reader by construction.
//   - MPSC: Multi-Producer Single-Consumer — the status-change event
//     queue between internal/portmon's polling goroutine and its
//     consumer; portmon has one producer, which the MPSC permits.
//
// # Basic Usage
//
//	q := ring.NewSPSC[Handle](1024)
//
//	// Enqueue (non-blocking)
//	h := handle
//	if err := q.Enqueue(&h); ring.IsWouldBlock(err) {
//	    // queue full - apply backpressure
//	}
//
//	// Dequeue (non-blocking)
//	h, err := q.Dequeue()
//	if ring.IsWouldBlock(err) {
//	    // queue empty - try again later
//	}
//
// # Pipeline stage (SPSC)
//
//	q := ring.NewSPSC[Data](1024)
//
//	go func() { // producer
//	    backoff := iox.Backoff{}
//	    for data := range input {
//	        for q.Enqueue(&data) != nil {
//	            backoff.Wait()
//	        }
//	        backoff.Reset()
//	    }
//	}()
//
//	go func() { // consumer
//	    backoff := iox.Backoff{}
//	    for {
//	        data, err := q.Dequeue()
//	        if err != nil {
//	            backoff.Wait()
//	            continue
//	        }
//	        backoff.Reset()
//	        process(data)
//	    }
//	}()
//
// # Event aggregation (MPSC)
//
//	q := ring.NewMPSC[Event](4096)
//
//	for _, port := range ports { // multiple producers
//	    go func(p Port) {
//	        for ev := range p.Events() {
//	            q.Enqueue(&ev)
//	        }
//	    }(port)
//	}
//
//	go func() { // single consumer
//	    for {
//	        ev, err := q.Dequeue()
//	        if err == nil {
//	            aggregate(ev)
//	        }
//	    }
//	}()
//
// # Capacity
//
// Capacity rounds up to the next power of 2; minimum capacity is 2.
// MPSC uses 2n physical slots for capacity n (FAA/SCQ-style producer
// claims); SPSC uses exactly n slots (Lamport ring buffer).
//
// # Graceful shutdown
//
// MPSC's Dequeue returns ErrWouldBlock while the slot at the head has
// been claimed by a producer but not yet written, even if later slots
// are ready. Drain (see [Drainer]) only records that no more enqueues
// will occur; neither Enqueue nor Dequeue reads that record, so the
// consumer empties the queue the same way before and after Drain.
//
// # Race detection
//
// Go's race detector tracks explicit synchronization primitives (mutex,
// channels, WaitGroup) but cannot observe happens-before relationships
// established purely through atomic acquire-release orderings. These
// queues are correct under that model but may produce false positives
// under -race; prefer stress testing without the race detector for
// lock-free algorithm verification.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors and
// [code.hybscloud.com/atomix] for atomic primitives with explicit
// memory ordering; MPSC additionally uses [code.hybscloud.com/spin] for
// its producer backoff loop.
package ring
