// Package transporttest provides an in-memory transport.Conn for testing
// sender and receiver state machines without a real QUIC socket.
package transporttest

import (
	"context"
	"io"

	"github.com/kbrandt/quicsend/transport"
)

// NewPipePair returns two transport.Conn endpoints wired together: a uni
// stream opened on one side is delivered, as a single EOF-terminated
// frame, to the next AcceptUniStream call on the other.
func NewPipePair() (transport.Conn, transport.Conn) {
	a := make(chan []byte, 64)
	b := make(chan []byte, 64)
	return &pipeConn{out: a, in: b}, &pipeConn{out: b, in: a}
}

type pipeConn struct {
	out chan []byte
	in  chan []byte
}

func (c *pipeConn) OpenUniStream(ctx context.Context) (io.WriteCloser, error) {
	return &pipeWriter{c: c}, nil
}

func (c *pipeConn) AcceptUniStream(ctx context.Context) (io.Reader, error) {
	select {
	case buf, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return &sliceReader{buf: buf}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *pipeConn) Kind() transport.Kind { return transport.KindDirect }

func (c *pipeConn) CloseWithDrain(context.Context) error { return nil }

type pipeWriter struct {
	c   *pipeConn
	buf []byte
}

func (w *pipeWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *pipeWriter) Close() error {
	w.c.out <- w.buf
	return nil
}

type sliceReader struct {
	buf []byte
	pos int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n, nil
}
