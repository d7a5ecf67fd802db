// Package protocol implements the framing of commands exchanged with MongoDB
// servers: OP_MSG messages carrying a single command document, optionally
// wrapped in OP_COMPRESSED.
package protocol

import (
	"bytes"
	"io"

	"github.com/segmentio/mongo-go/compress"
	"github.com/segmentio/mongo-go/internal/secret"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-driver/x/mongo/driver/wiremessage"
)

const (
	// MaxMessageSize is the default maximum size of messages accepted from
	// servers.
	MaxMessageSize = 48000000

	headerSize = 16
)

// Message is a command or a reply exchanged with a server.
type Message struct {
	RequestID  int32
	ResponseTo int32

	// Document is the body of the message.
	Document bsoncore.Document

	// Compression is the compressor applied to the message on the wire.
	Compression compress.Compression
}

// uncompressible lists the commands which must never be compressed, they
// either establish the connection or carry credentials.
var uncompressible = map[string]struct{}{
	"hello":           {},
	"isMaster":        {},
	"ismaster":        {},
	"saslStart":       {},
	"saslContinue":    {},
	"getnonce":        {},
	"authenticate":    {},
	"createUser":      {},
	"updateUser":      {},
	"copydbSaslStart": {},
	"copydbgetnonce":  {},
	"copydb":          {},
}

// Compressible reports whether the command in doc may be sent compressed.
func Compressible(doc bsoncore.Document) bool {
	elem, err := doc.IndexErr(0)
	if err != nil {
		return false
	}
	_, found := uncompressible[elem.Key()]
	return !found
}

// Sensitive reports whether the command in doc carries credentials. The
// buffers holding copies of such commands are erased once written.
func Sensitive(doc bsoncore.Document) bool {
	switch CommandName(doc) {
	case "saslStart", "saslContinue":
		return true
	default:
		return false
	}
}

// WriteMessage writes msg to w as an OP_MSG, wrapped in an OP_COMPRESSED when
// msg.Compression is set.
func WriteMessage(w io.Writer, msg Message) error {
	body := make([]byte, 0, 5+len(msg.Document))
	body = wiremessage.AppendMsgFlags(body, 0)
	body = wiremessage.AppendMsgSectionType(body, wiremessage.SingleDocument)
	body = append(body, msg.Document...)

	if Sensitive(msg.Document) {
		defer secret.Erase(body)
	}

	var b []byte
	var err error

	if codec := msg.Compression.Codec(); codec != nil {
		b, err = appendCompressed(nil, msg, codec, body)
		if err != nil {
			return err
		}
	} else {
		var idx int32
		idx, b = wiremessage.AppendHeaderStart(make([]byte, 0, headerSize+len(body)), msg.RequestID, msg.ResponseTo, wiremessage.OpMsg)
		b = append(b, body...)
		b = bsoncore.UpdateLength(b, idx, int32(len(b)-int(idx)))
		if Sensitive(msg.Document) {
			defer secret.Erase(b)
		}
	}

	_, err = w.Write(b)
	return err
}

func appendCompressed(dst []byte, msg Message, codec compress.Codec, body []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := codec.NewWriter(buf)
	if _, err := zw.Write(body); err != nil {
		zw.Close()
		return dst, err
	}
	if err := zw.Close(); err != nil {
		return dst, err
	}

	idx, dst := wiremessage.AppendHeaderStart(dst, msg.RequestID, msg.ResponseTo, wiremessage.OpCompressed)
	dst = wiremessage.AppendCompressedOriginalOpCode(dst, wiremessage.OpMsg)
	dst = wiremessage.AppendCompressedUncompressedSize(dst, int32(len(body)))
	dst = wiremessage.AppendCompressedCompressorID(dst, wiremessage.CompressorID(codec.Code()))
	dst = append(dst, buf.Bytes()...)
	dst = bsoncore.UpdateLength(dst, idx, int32(len(dst)-int(idx)))
	return dst, nil
}

// ReadMessage reads an OP_MSG or OP_COMPRESSED message from r. Messages larger
// than MaxMessageSize are rejected.
func ReadMessage(r io.Reader) (Message, error) {
	return readMessage(r, MaxMessageSize)
}

func readMessage(r io.Reader, maxSize int32) (Message, error) {
	var msg Message
	var header [headerSize]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		return msg, err
	}

	length, requestID, responseTo, opcode, _, ok := wiremessage.ReadHeader(header[:])
	if !ok {
		return msg, ErrTruncated
	}
	if length < headerSize {
		return msg, errorf("invalid message length: %d", length)
	}
	if length > maxSize {
		return msg, ErrTooLarge
	}

	body := make([]byte, length-headerSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return msg, err
	}

	msg.RequestID = requestID
	msg.ResponseTo = responseTo

	if opcode == wiremessage.OpCompressed {
		var err error
		if opcode, body, msg.Compression, err = decompress(body, maxSize); err != nil {
			return msg, err
		}
	}

	if opcode != wiremessage.OpMsg {
		return msg, errorf("%s: opcode %s", ErrUnsupported, opcode)
	}

	doc, err := readMsgBody(body)
	if err != nil {
		return msg, err
	}
	msg.Document = doc
	return msg, nil
}

func decompress(src []byte, maxSize int32) (wiremessage.OpCode, []byte, compress.Compression, error) {
	opcode, rem, ok := wiremessage.ReadCompressedOriginalOpCode(src)
	if !ok {
		return 0, nil, compress.None, ErrTruncated
	}
	size, rem, ok := wiremessage.ReadCompressedUncompressedSize(rem)
	if !ok {
		return 0, nil, compress.None, ErrTruncated
	}
	id, rem, ok := wiremessage.ReadCompressedCompressorID(rem)
	if !ok {
		return 0, nil, compress.None, ErrTruncated
	}
	if size < 0 || size > maxSize {
		return 0, nil, compress.None, ErrTooLarge
	}

	c := compress.Compression(id)
	if c == compress.None {
		return opcode, rem, c, nil
	}
	codec := c.Codec()
	if codec == nil {
		return 0, nil, c, errorf("%s: compressor id %d", ErrUnsupported, id)
	}

	zr := codec.NewReader(bytes.NewReader(rem))
	defer zr.Close()

	body := make([]byte, size)
	if _, err := io.ReadFull(zr, body); err != nil {
		return 0, nil, c, ErrCorrupted
	}
	return opcode, body, c, nil
}

func readMsgBody(src []byte) (bsoncore.Document, error) {
	flags, rem, ok := wiremessage.ReadMsgFlags(src)
	if !ok {
		return nil, ErrTruncated
	}
	if flags&wiremessage.ChecksumPresent != 0 {
		if len(rem) < 4 {
			return nil, ErrTruncated
		}
		rem = rem[:len(rem)-4]
	}

	var doc bsoncore.Document
	for len(rem) > 0 {
		stype, next, ok := wiremessage.ReadMsgSectionType(rem)
		if !ok {
			return nil, ErrTruncated
		}
		switch stype {
		case wiremessage.SingleDocument:
			var d bsoncore.Document
			if d, next, ok = wiremessage.ReadMsgSectionSingleDocument(next); !ok {
				return nil, ErrCorrupted
			}
			if doc != nil {
				return nil, errorf("%s: more than one body section", ErrCorrupted)
			}
			doc = d
		case wiremessage.DocumentSequence:
			if _, _, next, ok = wiremessage.ReadMsgSectionDocumentSequence(next); !ok {
				return nil, ErrCorrupted
			}
		default:
			return nil, errorf("%s: section type %d", ErrUnsupported, stype)
		}
		rem = next
	}

	if doc == nil {
		return nil, errorf("%s: no body section", ErrCorrupted)
	}
	if err := doc.Validate(); err != nil {
		return nil, ErrCorrupted
	}
	return doc, nil
}
