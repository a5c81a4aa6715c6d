// Package frame implements the length-prefixed wire framing used by duplex
// connections.
//
// Wire format: [length:u32 BE][payload]. A zero-length payload is a valid
// frame. The format carries no magic or version; changing it breaks every
// peer.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
)

const (
	// HeaderLen is the fixed framing overhead per message.
	HeaderLen = 4
	// DefaultMaxPayload bounds a single decoded message.
	DefaultMaxPayload uint32 = 16 * 1024 * 1024 // 16 MB
)

var (
	ErrFrameTooLarge = errors.New("frame: declared payload too large")
	ErrTruncated     = errors.New("frame: truncated frame at end of input")
)

// Encode returns the wire representation of msg.
func Encode(msg []byte) []byte {
	return AppendEncode(make([]byte, 0, HeaderLen+len(msg)), msg)
}

// AppendEncode appends the wire representation of msg to dst.
func AppendEncode(dst, msg []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(msg)))
	return append(dst, msg...)
}

// Decoder turns a raw byte stream back into messages. Partial frames are kept
// until the rest of their bytes arrive. A Decoder is not safe for concurrent
// use.
type Decoder struct {
	maxPayload uint32
	buf        []byte
	err        error
}

// NewDecoder returns a Decoder rejecting frames above maxPayload. Zero means
// DefaultMaxPayload.
func NewDecoder(maxPayload uint32) *Decoder {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Decoder{maxPayload: maxPayload}
}

// Write buffers p. It fails once the buffered stream declares an oversized
// frame; the decoder stays failed afterwards.
func (d *Decoder) Write(p []byte) error {
	if d.err != nil {
		return d.err
	}
	d.buf = append(d.buf, p...)
	return d.check()
}

// Next pops the next complete message. ok is false when more bytes are
// needed.
func (d *Decoder) Next() (msg []byte, ok bool, err error) {
	if d.err != nil {
		return nil, false, d.err
	}
	if len(d.buf) < HeaderLen {
		return nil, false, nil
	}
	n := binary.BigEndian.Uint32(d.buf[:HeaderLen])
	end := HeaderLen + int(n)
	if len(d.buf) < end {
		return nil, false, nil
	}
	msg = make([]byte, n)
	copy(msg, d.buf[HeaderLen:end])
	d.buf = d.buf[end:]
	if len(d.buf) == 0 {
		d.buf = nil
	}
	// An oversized follower surfaces on the next call.
	_ = d.check()
	return msg, true, nil
}

// Feed buffers p and yields every message it completes. Iteration stops at
// the first error.
func (d *Decoder) Feed(p []byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if err := d.Write(p); err != nil {
			yield(nil, err)
			return
		}
		for {
			msg, ok, err := d.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(msg, nil) {
				return
			}
		}
	}
}

// Buffered reports how many undecoded bytes are held.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Partial reports whether the buffered bytes end inside a frame, that is a
// frame has started but not completed.
func (d *Decoder) Partial() bool {
	off := 0
	for len(d.buf)-off >= HeaderLen {
		n := int(binary.BigEndian.Uint32(d.buf[off : off+HeaderLen]))
		if len(d.buf)-off-HeaderLen < n {
			return true
		}
		off += HeaderLen + n
	}
	return off != len(d.buf)
}

// Close reports ErrTruncated if the input ended inside a frame. Complete
// frames still buffered are not an error.
func (d *Decoder) Close() error {
	if d.err != nil {
		return d.err
	}
	if d.Partial() {
		return fmt.Errorf("%w: %d bytes pending", ErrTruncated, len(d.buf))
	}
	return nil
}

func (d *Decoder) check() error {
	if len(d.buf) < HeaderLen {
		return nil
	}
	if n := binary.BigEndian.Uint32(d.buf[:HeaderLen]); n > d.maxPayload {
		d.err = fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, n, d.maxPayload)
		d.buf = nil
		return d.err
	}
	return nil
}
