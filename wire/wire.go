// Package wire implements the byte-level encoding and decoding of UDP
// multicast publication headers: the short (single-datagram) header and
// the long (fragmented) header, and the channel-name framing shared by
// both.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Magic values identifying the two packet kinds. These are published
// ZCM/LCM-compatible constants and must be preserved bit-exactly for
// interop with other UDPM implementations.
const (
	MagicShort uint32 = 0x4c433032
	MagicLong  uint32 = 0x4c433033
)

// ChannelMax is the longest channel name this transport will accept,
// not counting the NUL terminator.
const ChannelMax = 63

// ShortHeaderLen and LongHeaderLen are the wire sizes of the two header
// kinds, in bytes.
const (
	ShortHeaderLen = 8
	LongHeaderLen  = 20
)

// ShortHeader is the header of a single-datagram publication.
//
//	offset 0: u32 magic = MagicShort
//	offset 4: u32 seqno
type ShortHeader struct {
	Seqno uint32
}

// MarshalBinary encodes the short header.
func (h ShortHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ShortHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], MagicShort)
	binary.BigEndian.PutUint32(buf[4:8], h.Seqno)
	return buf, nil
}

// UnmarshalBinary decodes a short header. The caller must already have
// verified the magic via Classify.
func (h *ShortHeader) UnmarshalBinary(data []byte) error {
	if len(data) < ShortHeaderLen {
		return fmt.Errorf("wire: short header too short: %d bytes", len(data))
	}
	h.Seqno = binary.BigEndian.Uint32(data[4:8])
	return nil
}

// LongHeader is the header of one fragment of a multi-datagram
// publication.
//
//	offset 0 : u32 magic = MagicLong
//	offset 4 : u32 seqno
//	offset 8 : u32 msg_size
//	offset 12: u32 fragment_offset
//	offset 16: u16 fragment_no
//	offset 18: u16 fragments_in_msg
type LongHeader struct {
	Seqno          uint32
	MsgSize        uint32
	FragmentOffset uint32
	FragmentNo     uint16
	FragmentsInMsg uint16
}

// MarshalBinary encodes the long header.
func (h LongHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, LongHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], MagicLong)
	binary.BigEndian.PutUint32(buf[4:8], h.Seqno)
	binary.BigEndian.PutUint32(buf[8:12], h.MsgSize)
	binary.BigEndian.PutUint32(buf[12:16], h.FragmentOffset)
	binary.BigEndian.PutUint16(buf[16:18], h.FragmentNo)
	binary.BigEndian.PutUint16(buf[18:20], h.FragmentsInMsg)
	return buf, nil
}

// UnmarshalBinary decodes a long header. The caller must already have
// verified the magic via Classify.
func (h *LongHeader) UnmarshalBinary(data []byte) error {
	if len(data) < LongHeaderLen {
		return fmt.Errorf("wire: long header too short: %d bytes", len(data))
	}
	h.Seqno = binary.BigEndian.Uint32(data[4:8])
	h.MsgSize = binary.BigEndian.Uint32(data[8:12])
	h.FragmentOffset = binary.BigEndian.Uint32(data[12:16])
	h.FragmentNo = binary.BigEndian.Uint16(data[16:18])
	h.FragmentsInMsg = binary.BigEndian.Uint16(data[18:20])
	return nil
}

// Kind identifies which header a datagram carries.
type Kind int

const (
	// KindUnknown means the datagram's magic matched neither known kind;
	// the caller should discard it as bad.
	KindUnknown Kind = iota
	KindShort
	KindLong
)

// Classify reads the 32-bit magic at the start of data and reports which
// packet kind it identifies. It does not validate the rest of the
// datagram.
func Classify(data []byte) Kind {
	if len(data) < 4 {
		return KindUnknown
	}
	switch binary.BigEndian.Uint32(data[0:4]) {
	case MagicShort:
		return KindShort
	case MagicLong:
		return KindLong
	default:
		return KindUnknown
	}
}

// ValidateChannel reports whether ch is a legal channel name: 1 to
// ChannelMax bytes, no embedded NUL.
func ValidateChannel(ch string) error {
	if len(ch) == 0 {
		return fmt.Errorf("wire: empty channel name")
	}
	if len(ch) > ChannelMax {
		return fmt.Errorf("wire: channel name too long: %d > %d", len(ch), ChannelMax)
	}
	if bytes.IndexByte([]byte(ch), 0) >= 0 {
		return fmt.Errorf("wire: channel name contains NUL byte")
	}
	return nil
}

// ParseNulTerminatedChannel extracts a NUL-terminated channel name from
// the start of data, returning the channel string and the number of bytes
// consumed including the terminator.
func ParseNulTerminatedChannel(data []byte) (channel string, consumed int, err error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", 0, fmt.Errorf("wire: no NUL terminator found for channel name")
	}
	channel = string(data[:idx])
	if err := ValidateChannel(channel); err != nil {
		return "", 0, err
	}
	return channel, idx + 1, nil
}
