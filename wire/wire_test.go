package wire_test

import (
	"reflect"
	"testing"

	"github.com/openmcast/udpm/wire"
)

func TestShortHeaderRoundTrip(t *testing.T) {
	want := wire.ShortHeader{Seqno: 42}
	data, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != wire.ShortHeaderLen {
		t.Fatalf("unexpected encoded length: got %d, want %d", len(data), wire.ShortHeaderLen)
	}

	var got wire.ShortHeader
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decoded header does not match: got %+v, want %+v", got, want)
	}
}

func TestLongHeaderRoundTrip(t *testing.T) {
	want := wire.LongHeader{
		Seqno:          7,
		MsgSize:        1 << 20,
		FragmentOffset: 1400,
		FragmentNo:     1,
		FragmentsInMsg: 750,
	}
	data, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != wire.LongHeaderLen {
		t.Fatalf("unexpected encoded length: got %d, want %d", len(data), wire.LongHeaderLen)
	}

	var got wire.LongHeader
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decoded header does not match: got %+v, want %+v", got, want)
	}
}

func TestClassify(t *testing.T) {
	shortData, _ := wire.ShortHeader{}.MarshalBinary()
	longData, _ := wire.LongHeader{}.MarshalBinary()

	cases := []struct {
		name string
		data []byte
		want wire.Kind
	}{
		{"short", shortData, wire.KindShort},
		{"long", longData, wire.KindLong},
		{"bad magic", []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0}, wire.KindUnknown},
		{"too short", []byte{0, 0}, wire.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := wire.Classify(tc.data); got != tc.want {
				t.Errorf("Classify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateChannel(t *testing.T) {
	cases := []struct {
		name    string
		channel string
		wantErr bool
	}{
		{"ok", "T", false},
		{"ok max length", string(make([]byte, wire.ChannelMax)), false},
		{"empty", "", true},
		{"too long", string(make([]byte, wire.ChannelMax+1)), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := tc.channel
			if ch == string(make([]byte, wire.ChannelMax)) || ch == string(make([]byte, wire.ChannelMax+1)) {
				b := make([]byte, len(ch))
				for i := range b {
					b[i] = 'x'
				}
				ch = string(b)
			}
			err := wire.ValidateChannel(ch)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateChannel(%q) error = %v, wantErr %v", ch, err, tc.wantErr)
			}
		})
	}
}

func TestParseNulTerminatedChannel(t *testing.T) {
	data := append([]byte("hello"), 0, 'p', 'a', 'y', 'l', 'o', 'a', 'd')
	channel, consumed, err := wire.ParseNulTerminatedChannel(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if channel != "hello" {
		t.Errorf("channel = %q, want %q", channel, "hello")
	}
	if consumed != 6 {
		t.Errorf("consumed = %d, want 6", consumed)
	}

	if _, _, err := wire.ParseNulTerminatedChannel([]byte("no-terminator")); err == nil {
		t.Errorf("expected error for missing NUL terminator, got nil")
	}
}
