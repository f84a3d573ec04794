package ringbuf_test

import (
	"testing"

	"github.com/openmcast/udpm/ringbuf"
)

func TestAllocReleaseFIFO(t *testing.T) {
	r := ringbuf.New(16)

	ha, _, ok := r.Alloc(4)
	if !ok {
		t.Fatalf("alloc a failed")
	}
	hb, _, ok := r.Alloc(4)
	if !ok {
		t.Fatalf("alloc b failed")
	}

	if err := r.Release(ha); err != nil {
		t.Fatalf("release a: %v", err)
	}
	if err := r.Release(hb); err != nil {
		t.Fatalf("release b: %v", err)
	}
}

func TestReleaseOutOfOrderIsIllFormed(t *testing.T) {
	r := ringbuf.New(16)

	_, _, ok := r.Alloc(4)
	if !ok {
		t.Fatalf("alloc a failed")
	}
	hb, _, ok := r.Alloc(4)
	if !ok {
		t.Fatalf("alloc b failed")
	}

	if err := r.Release(hb); err == nil {
		t.Errorf("expected error releasing out of FIFO order, got nil")
	}
}

func TestUsedNeverExceedsCapacity(t *testing.T) {
	r := ringbuf.New(8)

	_, _, ok := r.Alloc(8)
	if !ok {
		t.Fatalf("alloc at exactly capacity should succeed")
	}
	if r.Used() != 8 {
		t.Errorf("Used() = %d, want 8", r.Used())
	}
	if _, _, ok := r.Alloc(1); ok {
		t.Errorf("alloc beyond capacity should fail")
	}
}

func TestShrinkLastOnlyAppliesToMostRecent(t *testing.T) {
	r := ringbuf.New(16)

	ha, _, ok := r.Alloc(8)
	if !ok {
		t.Fatalf("alloc a failed")
	}
	hb, _, ok := r.Alloc(4)
	if !ok {
		t.Fatalf("alloc b failed")
	}

	if _, err := r.ShrinkLast(ha, 2); err == nil {
		t.Errorf("expected error shrinking a non-most-recent allocation")
	}

	shrunk, err := r.ShrinkLast(hb, 1)
	if err != nil {
		t.Fatalf("shrink_last on most recent: %v", err)
	}
	if len(shrunk) != 1 {
		t.Errorf("shrunk slice length = %d, want 1", len(shrunk))
	}
	if r.Used() != 9 {
		t.Errorf("Used() after shrink = %d, want 9", r.Used())
	}

	if _, err := r.ShrinkLast(hb, 5); err == nil {
		t.Errorf("expected error growing via shrink_last")
	}
}

func TestAllocReusesSpaceAfterFullDrain(t *testing.T) {
	r := ringbuf.New(8)

	h1, _, ok := r.Alloc(8)
	if !ok {
		t.Fatalf("alloc 1 failed")
	}
	if err := r.Release(h1); err != nil {
		t.Fatalf("release 1: %v", err)
	}

	if _, _, ok := r.Alloc(8); !ok {
		t.Errorf("expected allocation to succeed after full drain")
	}
}

func TestAllocFailsWhenFragmentedEvenIfTotalFreeSuffices(t *testing.T) {
	r := ringbuf.New(10)

	h1, _, ok := r.Alloc(4)
	if !ok {
		t.Fatalf("alloc 1 failed")
	}
	h2, _, ok := r.Alloc(4)
	if !ok {
		t.Fatalf("alloc 2 failed")
	}
	if err := r.Release(h1); err != nil {
		t.Fatalf("release 1: %v", err)
	}
	// 6 bytes are free in total (4 at the front, 2 at the tail), but a
	// 5-byte allocation would have to wrap around the end of the ring.
	if r.Free() != 6 {
		t.Fatalf("Free() = %d, want 6", r.Free())
	}
	if _, _, ok := r.Alloc(5); ok {
		t.Errorf("expected non-contiguous allocation to fail")
	}
	if err := r.Release(h2); err != nil {
		t.Fatalf("release 2: %v", err)
	}
}
