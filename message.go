package udpm

import "time"

// Message is a publication delivered to the caller of Recv: a channel
// name, a contiguous payload, and the receive timestamp of the first
// datagram that contributed to it.
//
// A Message's Payload may be backed by a reusable ring slab (short path)
// or by heap memory the Message now owns exclusively (long path, after
// reassembly). Either way, the caller must not retain Payload past the
// next call to Recv on the same Transport: Recv releases the previous
// Message's buffer before blocking for the next one, so a Message's
// validity window ends exactly there. Callers that need the bytes longer
// must copy them.
type Message struct {
	Channel   string
	Payload   []byte
	RecvUtime time.Time

	release func()
}

// Release returns this Message's backing buffer to the transport. It is
// idempotent and safe to call even on a Message whose buffer was already
// released by a subsequent Recv call.
func (m *Message) Release() {
	if m.release != nil {
		m.release()
		m.release = nil
	}
}
