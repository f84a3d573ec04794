package udpm

import (
	"errors"
	"testing"
	"time"

	"github.com/openmcast/udpm/fragstore"
	"github.com/openmcast/udpm/wire"
)

func longFragment0(t *testing.T, channel string, msgSize uint32, fragmentsInMsg uint16, payload []byte) []byte {
	t.Helper()
	hdr, err := wire.LongHeader{
		MsgSize:        msgSize,
		FragmentOffset: 0,
		FragmentNo:     0,
		FragmentsInMsg: fragmentsInMsg,
	}.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	buf := append(hdr, append([]byte(channel), 0)...)
	return append(buf, payload...)
}

func TestDispatchLongRejectsOversizeMsgSize(t *testing.T) {
	tr := &Transport{frag: fragstore.New(DefaultMaxFragBufTotalSize, DefaultMaxNumFragBufs)}
	from := fragstore.Endpoint{IP: [4]byte{10, 0, 0, 1}, Port: 1000}

	datagram := longFragment0(t, "OVERSIZE", MTU+1, 1, nil)

	_, complete, err := tr.dispatchLong(datagram, from, time.Now())
	if err == nil {
		t.Fatalf("expected an error for msg_size exceeding mtu")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want wrapping ErrInvalid", err)
	}
	if complete {
		t.Errorf("expected complete=false")
	}
	if tr.frag.Count() != 0 {
		t.Errorf("frag.Count() = %d, want 0 (nothing should have been allocated)", tr.frag.Count())
	}
}

func TestDispatchLongReassemblesInPayloadSpace(t *testing.T) {
	tr := &Transport{frag: fragstore.New(DefaultMaxFragBufTotalSize, DefaultMaxNumFragBufs)}
	from := fragstore.Endpoint{IP: [4]byte{10, 0, 0, 2}, Port: 1000}

	payload := []byte("hello fragmented world")
	datagram := longFragment0(t, "C", uint32(len(payload)), 1, payload)

	msg, complete, err := tr.dispatchLong(datagram, from, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !complete {
		t.Fatalf("expected completion on a single-fragment long message")
	}
	if msg.Channel != "C" {
		t.Errorf("Channel = %q, want %q", msg.Channel, "C")
	}
	if string(msg.Payload) != string(payload) {
		t.Errorf("Payload = %q, want %q", msg.Payload, payload)
	}
}
