package compress

import (
	"io"

	"github.com/segmentio/mongo-go/compress/snappy"
	"github.com/segmentio/mongo-go/compress/zlib"
	"github.com/segmentio/mongo-go/compress/zstd"
)

// Compression represents the compression applied to the messages exchanged
// with a server, the values are the compressor ids of OP_COMPRESSED messages.
type Compression int8

const (
	None   Compression = 0
	Snappy Compression = 1
	Zlib   Compression = 2
	Zstd   Compression = 3
)

func (c Compression) Codec() Codec {
	if i := int(c); i >= 0 && i < len(Codecs) {
		return Codecs[i]
	}
	return nil
}

func (c Compression) String() string {
	if codec := c.Codec(); codec != nil {
		return codec.Name()
	}
	return "uncompressed"
}

// Lookup returns the compression with the given name, as advertised in the
// compression field of the hello command.
func Lookup(name string) (Compression, bool) {
	for i, c := range Codecs {
		if c != nil && c.Name() == name {
			return Compression(i), true
		}
	}
	return None, false
}

// Codec represents a compression codec to encode and decode the messages.
// See : https://github.com/mongodb/specifications/blob/master/source/compression/OP_COMPRESSED.md
//
// A Codec must be safe for concurrent access by multiple go routines.
type Codec interface {
	// Code returns the compressor id of the codec.
	Code() int8

	// Human-readable name for the codec.
	Name() string

	// Constructs a new reader which decompresses data from r.
	NewReader(r io.Reader) io.ReadCloser

	// Constructs a new writer which writes compressed data to w.
	NewWriter(w io.Writer) io.WriteCloser
}

var (
	// The global snappy codec installed on the Codecs table.
	SnappyCodec snappy.Codec

	// The global zlib codec installed on the Codecs table.
	ZlibCodec zlib.Codec

	// The global zstd codec installed on the Codecs table.
	ZstdCodec zstd.Codec

	// The global table of compression codecs supported by the wire protocol.
	Codecs = [...]Codec{
		Snappy: &SnappyCodec,
		Zlib:   &ZlibCodec,
		Zstd:   &ZstdCodec,
	}
)
