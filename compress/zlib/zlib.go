// Package zlib implements the zlib compressor of the wire protocol.
package zlib

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

const (
	// DefaultCompressionLevel is the compression level used when none is set
	// on the codec.
	DefaultCompressionLevel = 6
)

// Codec is the implementation of a compress.Codec which supports creating
// readers and writers for messages compressed with zlib.
type Codec struct {
	// The compression level to configure on writers created by this codec.
	// Acceptable values are defined in the standard zlib package.
	//
	// Default to 6.
	Level int

	writerPool sync.Pool
}

// Code implements the compress.Codec interface.
func (c *Codec) Code() int8 { return 2 }

// Name implements the compress.Codec interface.
func (c *Codec) Name() string { return "zlib" }

func (c *Codec) level() int {
	if c.Level != 0 {
		return c.Level
	}
	return DefaultCompressionLevel
}

// NewReader implements the compress.Codec interface.
func (c *Codec) NewReader(r io.Reader) io.ReadCloser {
	z, err := zlib.NewReader(r)
	if err != nil {
		return &errorReader{err: err}
	}
	return z
}

// NewWriter implements the compress.Codec interface.
func (c *Codec) NewWriter(w io.Writer) io.WriteCloser {
	x := c.writerPool.Get()
	z, _ := x.(*zlib.Writer)
	if z == nil {
		var err error
		z, err = zlib.NewWriterLevel(w, c.level())
		if err != nil {
			return &errorWriter{err: err}
		}
	} else {
		z.Reset(w)
	}
	return &writer{c, z}
}

type writer struct {
	c *Codec
	*zlib.Writer
}

func (w *writer) Close() (err error) {
	if z := w.Writer; z != nil {
		w.Writer = nil
		err = z.Close()
		z.Reset(nil)
		w.c.writerPool.Put(z)
	}
	return
}

type errorReader struct{ err error }

func (r *errorReader) Read([]byte) (int, error) { return 0, r.err }

func (r *errorReader) Close() error { return nil }

type errorWriter struct{ err error }

func (w *errorWriter) Write([]byte) (int, error) { return 0, w.err }

func (w *errorWriter) Close() error { return w.err }
