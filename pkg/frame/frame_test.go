package frame_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/omochice/framed-duplex/pkg/frame"
)

func TestEncode_Length(t *testing.T) {
	for _, size := range []int{0, 1, 255, 4096} {
		got := frame.Encode(make([]byte, size))
		if len(got) != size+frame.HeaderLen {
			t.Errorf("len(Encode(%d bytes)) = %d, want %d", size, len(got), size+frame.HeaderLen)
		}
	}
}

func TestEncode_Deterministic(t *testing.T) {
	msg := []byte("hello")
	if !bytes.Equal(frame.Encode(msg), frame.Encode(msg)) {
		t.Error("Encode() is not deterministic")
	}
	want := []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'}
	if got := frame.Encode(msg); !bytes.Equal(got, want) {
		t.Errorf("Encode() = %v, want %v", got, want)
	}
}

func TestDecoder_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  []byte
	}{
		{"empty", []byte{}},
		{"single byte", []byte{0x7f}},
		{"text", []byte("round trip")},
		{"binary", bytes.Repeat([]byte{0x00, 0xff}, 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := frame.NewDecoder(0)
			if err := dec.Write(frame.Encode(tt.msg)); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			got, ok, err := dec.Next()
			if err != nil || !ok {
				t.Fatalf("Next() = (%v, %v), want a message", ok, err)
			}
			if !bytes.Equal(got, tt.msg) {
				t.Errorf("Next() = %q, want %q", got, tt.msg)
			}
			if dec.Buffered() != 0 {
				t.Errorf("Buffered() = %d, want 0", dec.Buffered())
			}
		})
	}
}

func TestDecoder_FragmentedFeed(t *testing.T) {
	msgs := [][]byte{[]byte("first"), {}, []byte("third message")}
	var stream []byte
	for _, m := range msgs {
		stream = frame.AppendEncode(stream, m)
	}

	for _, chunk := range []int{1, 2, 3, 7, len(stream)} {
		dec := frame.NewDecoder(0)
		var got [][]byte
		for off := 0; off < len(stream); off += chunk {
			end := min(off+chunk, len(stream))
			for msg, err := range dec.Feed(stream[off:end]) {
				if err != nil {
					t.Fatalf("chunk=%d: Feed() error = %v", chunk, err)
				}
				got = append(got, msg)
			}
		}
		if len(got) != len(msgs) {
			t.Fatalf("chunk=%d: decoded %d messages, want %d", chunk, len(got), len(msgs))
		}
		for i := range msgs {
			if !bytes.Equal(got[i], msgs[i]) {
				t.Errorf("chunk=%d: message %d = %q, want %q", chunk, i, got[i], msgs[i])
			}
		}
		if err := dec.Close(); err != nil {
			t.Errorf("chunk=%d: Close() error = %v", chunk, err)
		}
	}
}

func TestDecoder_FeedStopsEarly(t *testing.T) {
	dec := frame.NewDecoder(0)
	stream := frame.AppendEncode(frame.Encode([]byte("a")), []byte("b"))
	for range dec.Feed(stream) {
		break
	}
	msg, ok, err := dec.Next()
	if err != nil || !ok || string(msg) != "b" {
		t.Errorf("Next() = (%q, %v, %v), want (\"b\", true, nil)", msg, ok, err)
	}
}

func TestDecoder_FrameTooLarge(t *testing.T) {
	dec := frame.NewDecoder(16)
	hdr := binary.BigEndian.AppendUint32(nil, 17)

	err := dec.Write(hdr)
	if !errors.Is(err, frame.ErrFrameTooLarge) {
		t.Fatalf("Write() error = %v, want ErrFrameTooLarge", err)
	}
	if _, _, err := dec.Next(); !errors.Is(err, frame.ErrFrameTooLarge) {
		t.Errorf("Next() after failure error = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecoder_FrameTooLargeAfterValidFrame(t *testing.T) {
	dec := frame.NewDecoder(8)
	stream := frame.Encode([]byte("ok"))
	stream = binary.BigEndian.AppendUint32(stream, 1<<20)

	if err := dec.Write(stream); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	msg, ok, err := dec.Next()
	if err != nil || !ok || string(msg) != "ok" {
		t.Fatalf("Next() = (%q, %v, %v), want (\"ok\", true, nil)", msg, ok, err)
	}
	if _, _, err := dec.Next(); !errors.Is(err, frame.ErrFrameTooLarge) {
		t.Errorf("Next() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecoder_CloseTruncated(t *testing.T) {
	dec := frame.NewDecoder(0)
	full := frame.Encode([]byte("cut short"))
	if err := dec.Write(full[:6]); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !dec.Partial() {
		t.Error("Partial() = false, want true")
	}
	if err := dec.Close(); !errors.Is(err, frame.ErrTruncated) {
		t.Errorf("Close() error = %v, want ErrTruncated", err)
	}
}

func TestDecoder_PartialIgnoresCompleteFrames(t *testing.T) {
	dec := frame.NewDecoder(0)
	stream := frame.AppendEncode(frame.Encode([]byte("one")), []byte("two"))
	if err := dec.Write(stream); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if dec.Partial() {
		t.Error("Partial() = true with only complete frames buffered")
	}
	if err := dec.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}

	if err := dec.Write([]byte{0, 0}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !dec.Partial() {
		t.Error("Partial() = false with a started header buffered")
	}
}
