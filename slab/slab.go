// Package slab implements the receive-side buffer economy: a bounded
// pool of reusable datagram-sized descriptors, backed by either ring
// memory or a heap fallback, that the receiver cycles through without
// allocating on every datagram.
package slab

import (
	"net"
	"time"
)

// MaxDatagram is the largest single UDP datagram this transport will
// ever read: enough for any one packet regardless of path MTU.
const MaxDatagram = 65536

// Slab is a descriptor for one reusable receive buffer.
type Slab struct {
	// Buf is the backing memory for this slab. Its capacity is always
	// MaxDatagram; Len reports how much of it holds a received datagram.
	Buf []byte
	Len int

	// FromAddr and RecvTime are filled in by the receiver for each
	// datagram that lands in this slab.
	FromAddr net.IP
	FromPort int
	RecvTime time.Time

	// Channel/DataOffset/DataSize are filled in after the framer
	// classifies and parses the datagram (short-path only; the long path
	// produces its payload from the fragment store instead).
	Channel    string
	DataOffset int
	DataSize   int

	// release, if non-nil, returns this slab's backing memory to the ring
	// it was carved from. Heap-backed slabs (the ring-exhaustion fallback)
	// leave this nil.
	release func()

	// ringOwned is true if Buf was carved from a Ring rather than
	// allocated on the heap.
	ringOwned bool
}

// NewHeap allocates a slab backed by heap memory rather than a Ring. Used
// as the ring-exhaustion fallback so the receiver never simply fails to
// read a pending datagram.
func NewHeap() *Slab {
	return &Slab{Buf: make([]byte, MaxDatagram)}
}

// NewRingBacked wraps ring-carved memory as a slab. release is invoked
// exactly once, by Release, to return the memory to its ring in FIFO
// order.
func NewRingBacked(buf []byte, release func()) *Slab {
	return &Slab{Buf: buf, release: release, ringOwned: true}
}

// Payload returns the classified payload region of the slab: the bytes
// at DataOffset, DataOffset+DataSize.
func (s *Slab) Payload() []byte {
	return s.Buf[s.DataOffset : s.DataOffset+s.DataSize]
}

// Release returns the slab's ring memory, if any, to its ring. It is
// always safe to call, including on heap-backed slabs, where it is a
// no-op.
func (s *Slab) Release() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// Queue is a bounded FIFO of slab descriptors, used for both the "empty"
// pool (slabs available for the receiver to fill) and, historically, a
// "filled" pool for a separate consumer stage. This transport only needs
// the "empty" pool since recvmsg is synchronous, but the type stays
// general so a future asynchronous dispatch layer can reuse it for a
// filled-queue handoff.
type Queue struct {
	ch chan *Slab
}

// NewQueue creates a queue with room for capacity descriptors.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan *Slab, capacity)}
}

// Put enqueues a slab. It never blocks as long as callers respect the
// queue's capacity (the transport always enqueues at most as many slabs
// as it dequeued).
func (q *Queue) Put(s *Slab) {
	q.ch <- s
}

// TryGet dequeues a slab without blocking, reporting false if the queue
// is empty.
func (q *Queue) TryGet() (*Slab, bool) {
	select {
	case s := <-q.ch:
		return s, true
	default:
		return nil, false
	}
}

// Len reports the number of slabs currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap reports the queue's capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
