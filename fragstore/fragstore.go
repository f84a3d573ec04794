// Package fragstore implements the fragment reassembly store: the set of
// in-progress long-message reassemblies, keyed by sender endpoint and
// bounded in both aggregate byte size and message count.
package fragstore

import (
	"fmt"
	"time"
)

// Endpoint identifies a datagram source by address and port. It is
// comparable so it can be used directly as a map key.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

// FragBuf holds the state of one in-progress reassembly.
type FragBuf struct {
	Sender  Endpoint
	Channel string
	Seqno   uint32

	// TotalSize is msg_size as it arrives on fragment 0's header: the
	// declared size of the application payload alone, excluding the
	// channel name and its NUL terminator. Payload is sized to match and
	// holds only those payload bytes, addressed by fragment_offset, which
	// is likewise payload-space and excludes the channel-name prefix that
	// rides ahead of fragment 0's payload share on the wire.
	TotalSize uint32
	Payload   []byte

	// FragmentsRemaining counts down from fragments_in_msg as distinct
	// fragment indices arrive. received tracks which fragment indices
	// have already been applied, so a duplicate arrival does not
	// decrement the counter a second time and trigger premature
	// completion (spec's documented safe superset of the plain
	// countdown).
	FragmentsRemaining int
	received           map[uint16]bool

	FirstUtime time.Time
}

func newFragBuf(sender Endpoint, channel string, seqno uint32, totalSize uint32, fragmentsInMsg uint16, firstUtime time.Time) *FragBuf {
	return &FragBuf{
		Sender:             sender,
		Channel:            channel,
		Seqno:              seqno,
		TotalSize:          totalSize,
		Payload:            make([]byte, totalSize),
		FragmentsRemaining: int(fragmentsInMsg),
		received:           make(map[uint16]bool, fragmentsInMsg),
		FirstUtime:         firstUtime,
	}
}

// ApplyFragment copies a fragment's payload bytes into place and reports
// whether the message is now complete. A duplicate fragment_no is
// silently accepted but does not decrement the remaining count twice.
func (fb *FragBuf) ApplyFragment(fragmentNo uint16, offset uint32, data []byte) (complete bool, err error) {
	if uint64(offset)+uint64(len(data)) > uint64(fb.TotalSize) {
		return false, fmt.Errorf("fragstore: fragment out of range (offset %d, size %d, total %d)", offset, len(data), fb.TotalSize)
	}
	copy(fb.Payload[offset:], data)
	if !fb.received[fragmentNo] {
		fb.received[fragmentNo] = true
		fb.FragmentsRemaining--
	}
	return fb.FragmentsRemaining <= 0, nil
}

// Store is a bounded collection of FragBufs, keyed by sender endpoint so
// that at most one reassembly is resident per sender at a time.
type Store struct {
	maxBytes uint32
	maxCount int

	bySender map[Endpoint]*FragBuf
	// order tracks insertion order, so the oldest entry is always
	// order[0]; removing an entry (on completion or eviction) scans order
	// for its sender. A sender gets at most one resident FragBuf, so
	// replacing it removes the old slot and appends a new one at the end.
	order      []Endpoint
	totalBytes uint32
}

// New creates a Store bounded by maxBytes aggregate resident payload and
// maxCount resident FragBufs.
func New(maxBytes uint32, maxCount int) *Store {
	return &Store{
		maxBytes: maxBytes,
		maxCount: maxCount,
		bySender: make(map[Endpoint]*FragBuf),
	}
}

// Lookup returns the resident FragBuf for sender, if any.
func (s *Store) Lookup(sender Endpoint) (*FragBuf, bool) {
	fb, ok := s.bySender[sender]
	return fb, ok
}

// Begin creates and inserts a new FragBuf for the first fragment of a
// message, evicting oldest-by-FirstUtime entries until the store's
// bounds are satisfied. It replaces any existing resident FragBuf for the
// same sender (the caller is expected to have already evicted a stale
// one via RemoveSender, but Begin is defensive about it regardless).
func (s *Store) Begin(sender Endpoint, channel string, seqno uint32, totalSize uint32, fragmentsInMsg uint16, firstUtime time.Time) *FragBuf {
	if existing, ok := s.bySender[sender]; ok {
		s.removeLocked(existing)
	}

	fb := newFragBuf(sender, channel, seqno, totalSize, fragmentsInMsg, firstUtime)
	s.bySender[sender] = fb
	s.order = append(s.order, sender)
	s.totalBytes += totalSize

	s.evictUntilWithinBounds(fb)
	return fb
}

// evictUntilWithinBounds drops oldest-by-FirstUtime entries until the
// store satisfies its byte and count bounds. keep, which was just
// inserted, is never evicted: once it is the only entry left the loop
// stops, even if the byte bound is still exceeded.
func (s *Store) evictUntilWithinBounds(keep *FragBuf) {
	for (s.totalBytes > s.maxBytes || len(s.bySender) > s.maxCount) && len(s.order) > 0 {
		oldestSender := s.order[0]
		oldest := s.bySender[oldestSender]
		if oldest == nil {
			s.order = s.order[1:]
			continue
		}
		if oldest == keep && len(s.order) == 1 {
			// Nothing else to evict; a single oversize message just has
			// to be allowed to exceed the byte bound transiently until it
			// completes or is superseded.
			break
		}
		s.removeLocked(oldest)
	}
}

// Remove evicts fb from the store, if it is still resident.
func (s *Store) Remove(fb *FragBuf) {
	if s.bySender[fb.Sender] == fb {
		s.removeLocked(fb)
	}
}

// RemoveSender evicts whatever FragBuf is resident for sender, if any.
func (s *Store) RemoveSender(sender Endpoint) {
	if fb, ok := s.bySender[sender]; ok {
		s.removeLocked(fb)
	}
}

func (s *Store) removeLocked(fb *FragBuf) {
	delete(s.bySender, fb.Sender)
	s.totalBytes -= fb.TotalSize
	for i, sender := range s.order {
		if sender == fb.Sender {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Count returns the number of resident FragBufs.
func (s *Store) Count() int { return len(s.bySender) }

// TotalBytes returns the aggregate TotalSize of resident FragBufs.
func (s *Store) TotalBytes() uint32 { return s.totalBytes }
