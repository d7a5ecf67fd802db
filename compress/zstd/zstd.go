// Package zstd implements the zstd compressor of the wire protocol.
//
// OP_COMPRESSED carries whole messages, so the codec encodes and decodes
// single frames with the stateless EncodeAll and DecodeAll APIs instead of
// streaming. One encoder and one decoder are shared by all readers and writers
// of a codec.
package zstd

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DefaultMaxMemory is the largest decompressed message accepted by codecs
// which do not set MaxMemory. It matches the message size limit of servers.
const DefaultMaxMemory = 48000000

// Codec is the implementation of a compress.Codec which supports creating
// readers and writers for messages compressed with zstd.
type Codec struct {
	// The compression level configured on writers created by the codec.
	//
	// Default to 3.
	Level int

	// Frames which declare or decode to more than this many bytes are
	// rejected.
	//
	// Default to DefaultMaxMemory.
	MaxMemory uint64

	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

// Code implements the compress.Codec interface.
func (c *Codec) Code() int8 { return 3 }

// Name implements the compress.Codec interface.
func (c *Codec) Name() string { return "zstd" }

// NewReader implements the compress.Codec interface.
func (c *Codec) NewReader(r io.Reader) io.ReadCloser {
	return &reader{c: c, src: r, buf: bufferPool.Get().(*bytes.Buffer)}
}

// NewWriter implements the compress.Codec interface.
func (c *Codec) NewWriter(w io.Writer) io.WriteCloser {
	return &writer{c: c, dst: w, buf: bufferPool.Get().(*bytes.Buffer)}
}

func (c *Codec) level() int {
	if c.Level != 0 {
		return c.Level
	}
	return 3
}

func (c *Codec) maxMemory() uint64 {
	if c.MaxMemory != 0 {
		return c.MaxMemory
	}
	return DefaultMaxMemory
}

// init creates the encoder and decoder on first use. Neither is given a
// stream, so they do not start background goroutines.
func (c *Codec) init() error {
	c.once.Do(func() {
		c.enc, c.err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level())),
			zstd.WithEncoderConcurrency(1),
		)
		if c.err != nil {
			return
		}
		c.dec, c.err = zstd.NewReader(nil,
			zstd.WithDecoderMaxMemory(c.maxMemory()),
		)
	})
	return c.err
}

var bufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

func releaseBuffer(b *bytes.Buffer) {
	b.Reset()
	bufferPool.Put(b)
}

type reader struct {
	c       *Codec
	src     io.Reader
	buf     *bytes.Buffer
	decoded *bytes.Reader
	err     error
}

// Read implements the io.Reader interface. The frame is decoded on the first
// call.
func (r *reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.decoded == nil {
		if r.err = r.decode(); r.err != nil {
			return 0, r.err
		}
	}
	return r.decoded.Read(p)
}

func (r *reader) decode() error {
	if err := r.c.init(); err != nil {
		return err
	}
	if _, err := r.buf.ReadFrom(r.src); err != nil {
		return err
	}
	b, err := r.c.dec.DecodeAll(r.buf.Bytes(), nil)
	if err != nil {
		return err
	}
	r.decoded = bytes.NewReader(b)
	return nil
}

// Close implements the io.Closer interface.
func (r *reader) Close() error {
	if r.buf != nil {
		releaseBuffer(r.buf)
		r.buf = nil
	}
	r.decoded = nil
	r.err = io.ErrClosedPipe
	return nil
}

type writer struct {
	c   *Codec
	dst io.Writer
	buf *bytes.Buffer
}

// Write implements the io.Writer interface.
func (w *writer) Write(p []byte) (int, error) {
	if w.buf == nil {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

// Close implements the io.Closer interface, it writes the compressed frame to
// the underlying writer.
func (w *writer) Close() error {
	b := w.buf
	if b == nil {
		return nil
	}
	w.buf = nil
	defer releaseBuffer(b)
	if err := w.c.init(); err != nil {
		return err
	}
	_, err := w.dst.Write(w.c.enc.EncodeAll(b.Bytes(), nil))
	return err
}
