// Package snappy implements the snappy compressor of the wire protocol, which
// compresses whole messages in the snappy block format.
package snappy

import (
	"bytes"
	"io"
	"sync"

	"github.com/golang/snappy"
)

// Codec is the implementation of a compress.Codec which supports creating
// readers and writers for messages compressed with snappy.
type Codec struct{}

// Code implements the compress.Codec interface.
func (c *Codec) Code() int8 { return 1 }

// Name implements the compress.Codec interface.
func (c *Codec) Name() string { return "snappy" }

// NewReader implements the compress.Codec interface.
func (c *Codec) NewReader(r io.Reader) io.ReadCloser {
	return &reader{src: r, buf: bufferPool.Get().(*bytes.Buffer)}
}

// NewWriter implements the compress.Codec interface.
func (c *Codec) NewWriter(w io.Writer) io.WriteCloser {
	return &writer{dst: w, buf: bufferPool.Get().(*bytes.Buffer)}
}

var bufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

func releaseBuffer(b *bytes.Buffer) {
	b.Reset()
	bufferPool.Put(b)
}

// The block format needs the whole input, the reader decodes it on the first
// call to Read.
type reader struct {
	src     io.Reader
	buf     *bytes.Buffer
	decoded *bytes.Reader
	err     error
}

func (r *reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.decoded == nil {
		if _, err := r.buf.ReadFrom(r.src); err != nil {
			r.err = err
			return 0, err
		}
		b, err := snappy.Decode(nil, r.buf.Bytes())
		if err != nil {
			r.err = err
			return 0, err
		}
		r.decoded = bytes.NewReader(b)
	}
	return r.decoded.Read(p)
}

func (r *reader) Close() error {
	if r.buf != nil {
		releaseBuffer(r.buf)
		r.buf = nil
	}
	r.err = io.ErrClosedPipe
	return nil
}

type writer struct {
	dst io.Writer
	buf *bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) {
	if w.buf == nil {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *writer) Close() (err error) {
	if b := w.buf; b != nil {
		w.buf = nil
		_, err = w.dst.Write(snappy.Encode(nil, b.Bytes()))
		releaseBuffer(b)
	}
	return
}
