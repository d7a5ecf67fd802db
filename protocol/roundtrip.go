package protocol

import (
	"fmt"
	"io"

	"github.com/segmentio/mongo-go/compress"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// RoundTrip sends a command to a server and returns its reply.
//
// The function expects that there were no other concurrent requests served by
// the connection wrapped by rw. The command is compressed with c unless it is
// one of the commands that must be sent uncompressed.
func RoundTrip(rw io.ReadWriter, requestID int32, cmd bsoncore.Document, c compress.Compression) (bsoncore.Document, error) {
	if !Compressible(cmd) {
		c = compress.None
	}
	if err := WriteMessage(rw, Message{RequestID: requestID, Document: cmd, Compression: c}); err != nil {
		return nil, err
	}
	res, err := ReadMessage(rw)
	if err != nil {
		return nil, err
	}
	if res.ResponseTo != requestID {
		return nil, fmt.Errorf("request id mismatch (expected=%d, found=%d)", requestID, res.ResponseTo)
	}
	return res.Document, nil
}
