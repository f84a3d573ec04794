package udpm

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/openmcast/udpm/fragstore"
	"github.com/openmcast/udpm/slab"
	"github.com/openmcast/udpm/wire"
)

// Recv blocks until a publication arrives, timeout elapses, or the
// Transport is closed. A timeout of 0 blocks indefinitely.
//
// Recv releases the buffer backing the Message returned by the previous
// call before it does anything else, so callers that need a Message's
// bytes past their next Recv call must copy them out first.
func (t *Transport) Recv(timeout time.Duration) (*Message, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}

	if t.lastMsg != nil {
		t.lastMsg.Release()
		t.lastMsg = nil
	}

	t.mu.Lock()
	t.health.observeRingFree(t.ring.Free(), t.ring.Capacity())
	t.mu.Unlock()
	t.health.maybeReport(t.logger, time.Now())

	if timeout > 0 {
		_ = t.recvConn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = t.recvConn.SetReadDeadline(time.Time{})
	}

	for {
		if t.closed.Load() {
			return nil, ErrClosed
		}

		buf, shrink, release := t.acquireBuf()
		oob := make([]byte, 128)

		n, oobn, from, err := t.recvmsg(buf, oob)
		if err != nil {
			release()
			if isTimeout(err) {
				return nil, ErrAgain
			}
			if t.closed.Load() {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("udpm: recvmsg: %w", err)
		}

		recvUtime := time.Now()
		if t.cfg.Timestamp {
			if ts, ok := parseRecvTimestamp(oob[:oobn]); ok {
				recvUtime = ts
			}
		}
		t.health.recordRx()

		msg, complete, err := t.dispatch(buf[:n], shrink, release, from, recvUtime)
		if err != nil {
			t.health.recordDiscardedBad()
			t.logger.Debug("udpm: discarding malformed datagram", "error", err, "from", from)
			continue
		}
		if !complete {
			continue
		}

		t.lastMsg = msg
		return msg, nil
	}
}

// recvmsg performs one blocking read via the raw file descriptor behind
// recvConn, reusing the standard library's netpoller-integrated deadline
// handling (SetReadDeadline, already applied by the caller) while still
// getting at the control-message timestamp Recvmsg provides and plain
// reads don't.
func (t *Transport) recvmsg(buf, oob []byte) (n, oobn int, from fragstore.Endpoint, err error) {
	rawConn, err := t.recvConn.SyscallConn()
	if err != nil {
		return 0, 0, from, err
	}

	var innerErr error
	var sa unix.Sockaddr
	ctrlErr := rawConn.Read(func(fd uintptr) bool {
		var readN, readOobn int
		readN, readOobn, _, sa, innerErr = unix.Recvmsg(int(fd), buf, oob, 0)
		if innerErr == unix.EAGAIN {
			// Not yet readable; let the runtime poller re-arm us and
			// respect the deadline set on recvConn.
			return false
		}
		n, oobn = readN, readOobn
		return true
	})
	if ctrlErr != nil {
		return 0, 0, from, ctrlErr
	}
	if innerErr != nil {
		return 0, 0, from, innerErr
	}
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		from = fragstore.Endpoint{IP: sa4.Addr, Port: uint16(sa4.Port)}
	}
	return n, oobn, from, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// acquireBuf reserves a MaxDatagram-capacity buffer for one recvmsg call,
// preferring the ring buffer and falling back to the pool of reusable
// heap slabs, and finally to an untracked heap allocation if even that
// pool is exhausted. shrink trims the buffer to the datagram's actual
// length once it is known, reclaiming the unused ring tail; release
// returns the buffer to wherever it came from.
func (t *Transport) acquireBuf() (buf []byte, shrink func(n int) []byte, release func()) {
	t.mu.Lock()
	handle, ringBuf, ok := t.ring.Alloc(slab.MaxDatagram)
	t.mu.Unlock()
	if ok {
		shrink = func(n int) []byte {
			t.mu.Lock()
			defer t.mu.Unlock()
			shrunk, err := t.ring.ShrinkLast(handle, n)
			if err != nil {
				t.logger.Error("udpm: shrink_last failed", "error", err)
				return ringBuf[:n]
			}
			return shrunk
		}
		release = func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if err := t.ring.Release(handle); err != nil {
				t.logger.Error("udpm: ring release failed", "error", err)
			}
		}
		return ringBuf, shrink, release
	}

	if pooled, ok := t.empty.TryGet(); ok {
		shrink = func(n int) []byte { return pooled.Buf[:n] }
		release = func() { t.empty.Put(pooled) }
		return pooled.Buf, shrink, release
	}

	heapSlab := slab.NewHeap()
	shrink = func(n int) []byte { return heapSlab.Buf[:n] }
	release = func() {}
	return heapSlab.Buf, shrink, release
}

// dispatch classifies a received datagram and routes it to the short or
// long path. It reports complete=false, err=nil for a fragment that
// advanced a reassembly without finishing it.
//
// dispatch always resolves the per-datagram buffer's lifetime exactly
// once: the short path transfers it to the returned Message's release
// field, and every other path (a fragment, a completed reassembly built
// from its own already-copied buffer, or a malformed datagram) releases
// it immediately since nothing outside this call needs it anymore.
func (t *Transport) dispatch(datagram []byte, shrink func(int) []byte, release func(), from fragstore.Endpoint, recvUtime time.Time) (msg *Message, complete bool, err error) {
	switch wire.Classify(datagram) {
	case wire.KindShort:
		return t.dispatchShort(datagram, shrink, release, recvUtime)
	case wire.KindLong:
		defer release()
		return t.dispatchLong(datagram, from, recvUtime)
	default:
		release()
		return nil, false, fmt.Errorf("udpm: unrecognized magic")
	}
}

func (t *Transport) dispatchShort(datagram []byte, shrink func(int) []byte, release func(), recvUtime time.Time) (*Message, bool, error) {
	var hdr wire.ShortHeader
	if err := hdr.UnmarshalBinary(datagram); err != nil {
		release()
		return nil, false, err
	}

	rest := datagram[wire.ShortHeaderLen:]
	channel, consumed, err := wire.ParseNulTerminatedChannel(rest)
	if err != nil {
		release()
		return nil, false, err
	}
	payloadStart := wire.ShortHeaderLen + consumed

	final := shrink(len(datagram))
	msg := &Message{
		Channel:   channel,
		Payload:   final[payloadStart:],
		RecvUtime: recvUtime,
		release:   release,
	}
	return msg, true, nil
}

func (t *Transport) dispatchLong(datagram []byte, from fragstore.Endpoint, recvUtime time.Time) (*Message, bool, error) {
	var hdr wire.LongHeader
	if err := hdr.UnmarshalBinary(datagram); err != nil {
		return nil, false, err
	}
	rest := datagram[wire.LongHeaderLen:]

	t.mu.Lock()

	fb, ok := t.frag.Lookup(from)
	if ok && fb.Seqno != hdr.Seqno {
		// A stale reassembly from a different message; this sender never
		// finished it. Drop it and start fresh on fragment 0, or discard
		// this fragment if it isn't one.
		t.frag.RemoveSender(from)
		ok = false
	}

	var fragData []byte
	if !ok {
		if hdr.FragmentNo != 0 {
			t.mu.Unlock()
			return nil, false, fmt.Errorf("udpm: fragment %d of an unseen message (seqno %d)", hdr.FragmentNo, hdr.Seqno)
		}
		if hdr.MsgSize > MTU {
			t.mu.Unlock()
			return nil, false, fmt.Errorf("%w: declared msg_size %d exceeds mtu %d", ErrInvalid, hdr.MsgSize, MTU)
		}
		channel, consumed, err := wire.ParseNulTerminatedChannel(rest)
		if err != nil {
			t.mu.Unlock()
			return nil, false, err
		}
		fb = t.frag.Begin(from, channel, hdr.Seqno, hdr.MsgSize, hdr.FragmentsInMsg, recvUtime)
		fragData = rest[consumed:]
	} else {
		fragData = rest
		if hdr.FragmentNo == 0 {
			// A repeated fragment 0 still carries channel+NUL ahead of
			// its payload share; strip it so only payload bytes land in
			// the reassembly buffer.
			_, consumed, err := wire.ParseNulTerminatedChannel(rest)
			if err != nil {
				t.mu.Unlock()
				return nil, false, err
			}
			fragData = rest[consumed:]
		}
	}

	complete, err := fb.ApplyFragment(hdr.FragmentNo, hdr.FragmentOffset, fragData)
	if err != nil {
		t.frag.Remove(fb)
		t.mu.Unlock()
		return nil, false, err
	}
	if !complete {
		t.mu.Unlock()
		return nil, false, nil
	}
	t.frag.Remove(fb)
	t.mu.Unlock()

	msg := &Message{
		Channel:   fb.Channel,
		Payload:   fb.Payload,
		RecvUtime: fb.FirstUtime,
		release:   nil,
	}
	return msg, true, nil
}
