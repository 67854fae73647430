package pktbuf_test

import (
	"testing"

	"github.com/hcswitch/ofcore/internal/pktbuf"
)

func TestAllocFreeConservesRefcount(t *testing.T) {
	pool := pktbuf.NewPool(map[int]int{0: 4})

	handle, buf, err := pool.Alloc(0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if buf.Meta.Origin != pktbuf.OriginPool {
		t.Fatalf("expected OriginPool, got %v", buf.Meta.Origin)
	}
	if err := buf.SetLength(64); err != nil {
		t.Fatalf("SetLength: %v", err)
	}
	if len(buf.Data()) != 64 {
		t.Fatalf("Data() length = %d, want 64", len(buf.Data()))
	}
	if err := pool.Free(0, handle, buf); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestAllocOutOfMemory(t *testing.T) {
	pool := pktbuf.NewPool(map[int]int{0: 1})
	h1, b1, err := pool.Alloc(0)
	if err != nil {
		t.Fatalf("Alloc 1: %v", err)
	}
	if _, _, err := pool.Alloc(0); err == nil {
		t.Fatalf("expected OutOfMemory on second alloc with capacity 1")
	}
	if err := pool.Free(0, h1, b1); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if _, _, err := pool.Alloc(0); err != nil {
		t.Fatalf("Alloc after free: %v", err)
	}
}

func TestAllocUnknownSocketFallsBackToFirstAvailable(t *testing.T) {
	pool := pktbuf.NewPool(map[int]int{0: 2})
	_, buf, err := pool.Alloc(7) // socket 7 not configured
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if buf.Meta.Origin != pktbuf.OriginPool {
		t.Fatalf("expected fallback to socket 0's pool, got %v", buf.Meta.Origin)
	}
}

func TestAllocNoSocketsFallsBackToHeap(t *testing.T) {
	pool := pktbuf.NewPool(nil)
	_, buf, err := pool.Alloc(0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if buf.Meta.Origin != pktbuf.OriginFallback {
		t.Fatalf("expected OriginFallback, got %v", buf.Meta.Origin)
	}
	// Freeing a fallback buffer is a no-op for the pool, not an error.
	if err := pool.Free(0, 0, buf); err != nil {
		t.Fatalf("Free fallback: %v", err)
	}
}

func TestRetainRequiresMatchingFrees(t *testing.T) {
	pool := pktbuf.NewPool(map[int]int{0: 1})
	handle, buf, err := pool.Alloc(0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	buf.Retain()
	if err := pool.Free(0, handle, buf); err != nil {
		t.Fatalf("first Free: %v", err)
	}
	// Refcount still 1: pool must still be exhausted.
	if _, _, err := pool.Alloc(0); err == nil {
		t.Fatalf("expected pool still exhausted after one of two frees")
	}
	if err := pool.Free(0, handle, buf); err != nil {
		t.Fatalf("second Free: %v", err)
	}
	if _, _, err := pool.Alloc(0); err != nil {
		t.Fatalf("Alloc after both frees: %v", err)
	}
}

func TestSetLengthOutOfRange(t *testing.T) {
	pool := pktbuf.NewPool(map[int]int{0: 1})
	_, buf, err := pool.Alloc(0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := buf.SetLength(-1); err == nil {
		t.Fatalf("expected error for negative length")
	}
	if err := buf.SetLength(pktbuf.Capacity); err == nil {
		t.Fatalf("expected error for length exceeding capacity-headroom")
	}
}
