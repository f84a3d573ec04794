package udpm

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/net/ipv4"

	"github.com/openmcast/udpm/wire"
)

// sender owns the send socket and the per-message sequence counter. All
// fragments of one message are written while holding txMu, so a
// concurrent Send from another goroutine can never interleave its
// fragments with this one's under the same seqno.
type sender struct {
	conn *ipv4.PacketConn
	dest *net.UDPAddr

	txMu   sync.Mutex
	seqno  atomic.Uint32
	logger Logger
}

func newSender(conn *ipv4.PacketConn, dest *net.UDPAddr, logger Logger) *sender {
	return &sender{conn: conn, dest: dest, logger: logger}
}

// Send publishes payload on channel. Messages that fit in a single
// datagram alongside their header go out whole; larger ones are split
// into FragmentMaxPayload-sized fragments sharing one sequence number.
func (s *sender) Send(channel string, payload []byte) error {
	if err := wire.ValidateChannel(channel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	payloadWire := len(channel) + 1 + len(payload)

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if payloadWire <= ShortThreshold {
		return s.sendShort(channel, payload)
	}
	return s.sendLong(channel, payload)
}

func (s *sender) sendShort(channel string, payload []byte) error {
	seqno := s.seqno.Load()
	hdr, _ := wire.ShortHeader{Seqno: seqno}.MarshalBinary()

	buf := make([]byte, 0, len(hdr)+len(channel)+1+len(payload))
	buf = append(buf, hdr...)
	buf = append(buf, channel...)
	buf = append(buf, 0)
	buf = append(buf, payload...)

	if _, err := s.conn.WriteTo(buf, nil, s.dest); err != nil {
		return fmt.Errorf("udpm: send short message: %w", err)
	}
	s.seqno.Inc()
	return nil
}

// sendLong splits payload into FragmentMaxPayload-sized fragments and
// writes one datagram per fragment. msg_size and fragment_offset are
// carried in payload space, excluding the channel name, matching
// udpm.cpp's framing exactly: fragment 0 additionally carries
// channel+NUL ahead of its payload share, so its payload budget is
// smaller than every later fragment's.
func (s *sender) sendLong(channel string, payload []byte) error {
	channelHeader := append([]byte(channel), 0)
	firstfragDatasize := FragmentMaxPayload - len(channelHeader)

	var nfragments64 int64
	if len(payload) <= firstfragDatasize {
		nfragments64 = 1
	} else {
		remaining := int64(len(payload) - firstfragDatasize)
		nfragments64 = 1 + (remaining+FragmentMaxPayload-1)/FragmentMaxPayload
	}
	if nfragments64 > 65535 {
		return fmt.Errorf("%w: message requires %d fragments, limit is 65535", ErrInvalid, nfragments64)
	}
	nfragments := uint16(nfragments64)

	seqno := s.seqno.Load()

	var sendErr error
	offset := 0
	for fragNo := uint16(0); fragNo < nfragments; fragNo++ {
		var fragPayloadLen int
		if fragNo == 0 {
			fragPayloadLen = firstfragDatasize
		} else {
			fragPayloadLen = FragmentMaxPayload
		}
		if remaining := len(payload) - offset; fragPayloadLen > remaining {
			fragPayloadLen = remaining
		}

		hdr, _ := wire.LongHeader{
			Seqno:          seqno,
			MsgSize:        uint32(len(payload)),
			FragmentOffset: uint32(offset),
			FragmentNo:     fragNo,
			FragmentsInMsg: nfragments,
		}.MarshalBinary()

		buf := make([]byte, 0, len(hdr)+len(channelHeader)+fragPayloadLen)
		buf = append(buf, hdr...)
		if fragNo == 0 {
			buf = append(buf, channelHeader...)
		}
		buf = append(buf, payload[offset:offset+fragPayloadLen]...)
		offset += fragPayloadLen

		if _, err := s.conn.WriteTo(buf, nil, s.dest); err != nil {
			sendErr = fmt.Errorf("udpm: send fragment %d/%d: %w", fragNo+1, nfragments, err)
			break
		}
	}

	// The sequence counter advances once per message regardless of a
	// partial mid-stream failure: a receiver that saw any fragments from
	// this seqno has already committed store space to it, and reusing
	// the seqno for the next message would make that resident entry
	// indistinguishable from a duplicate.
	s.seqno.Inc()
	return sendErr
}
