// Package codec implements the compact binary primitives the wire and
// rendezvous protocols are built from: little-endian fixed-width integers,
// and length-prefixed strings/sequences/bytes. It has no notion of
// message framing or compression -- those live one layer up, in wire and
// rendezvous.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer accumulates a compact-encoded message body.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteBytes writes a uint32 length prefix followed by the raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString writes a uint32 length prefix followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// Reader decodes a compact-encoded message body produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// ErrTruncated is wrapped into every decode failure caused by running off
// the end of the buffer: a message too short to hold what its own fields
// promise.
var ErrTruncated = fmt.Errorf("codec: truncated message")

func (r *Reader) need(n int) error {
	if len(r.buf)-r.pos < n {
		return ErrTruncated
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Done reports whether the whole buffer has been consumed -- used to
// detect trailing garbage after a decoded message (also a decode error).
func (r *Reader) Done() bool {
	return r.pos == len(r.buf)
}

// ReadAll reads every byte available from rd. It is the framing primitive
// that lets the substream's own EOF supply the length, with no in-band
// length header.
func ReadAll(rd io.Reader) ([]byte, error) {
	return io.ReadAll(rd)
}
