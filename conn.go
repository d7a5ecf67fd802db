package mongo

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/mongo-go/compress"
	"github.com/segmentio/mongo-go/internal/secret"
	"github.com/segmentio/mongo-go/protocol"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Conn represents a connection to a MongoDB server.
//
// Instances of Conn are safe to use concurrently from multiple goroutines,
// commands are serialized.
type Conn struct {
	conn net.Conn
	rbuf *bufio.Reader

	mutex       sync.Mutex
	requestID   int32
	compression compress.Compression
	hello       bsoncore.Document
}

// NewConn returns a new connection wrapping conn. No handshake is performed,
// use a Dialer to obtain connections ready to run commands.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn: conn,
		rbuf: bufio.NewReader(conn),
	}
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Compression returns the compressor negotiated with the server.
func (c *Conn) Compression() compress.Compression {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.compression
}

// Hello returns the reply of the server to the handshake of the connection.
func (c *Conn) Hello() bsoncore.Document {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.hello
}

// RoundTrip sends cmd to the server, adding the $db field, and returns the
// reply without inspecting it. The deadline of ctx applies to the exchange.
//
// RoundTrip satisfies the RoundTripper interface.
func (c *Conn) RoundTrip(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	defer c.conn.SetDeadline(time.Time{})

	// Cancelling ctx unblocks the pending read or write, the connection is
	// left in an undefined state and should be closed.
	stop := context.AfterFunc(ctx, func() { c.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	msg := appendDB(cmd, db)
	defer eraseIfSensitive(msg)

	reply, err := protocol.RoundTrip(connReadWriter{c.rbuf, c.conn}, c.nextRequestID(), msg, c.compression)
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return reply, err
}

// RunCommand is like RoundTrip but returns a *protocol.CommandError when the
// server reports that the command failed.
func (c *Conn) RunCommand(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error) {
	reply, err := c.RoundTrip(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	if err := protocol.CheckReply(reply); err != nil {
		return reply, err
	}
	return reply, nil
}

// connReadWriter reads through the buffer of a connection and writes
// directly to it.
type connReadWriter struct {
	r *bufio.Reader
	w net.Conn
}

func (rw connReadWriter) Read(b []byte) (int, error)  { return rw.r.Read(b) }
func (rw connReadWriter) Write(b []byte) (int, error) { return rw.w.Write(b) }

func (c *Conn) nextRequestID() int32 {
	return atomic.AddInt32(&c.requestID, 1)
}

// appendDB returns a copy of cmd with the $db field appended.
func appendDB(cmd bsoncore.Document, db string) bsoncore.Document {
	elems := cmd
	if len(elems) >= 5 {
		// Strip the length prefix and the terminator.
		elems = elems[4 : len(elems)-1]
	}
	idx, doc := bsoncore.AppendDocumentStart(make([]byte, 0, len(cmd)+len(db)+16))
	doc = append(doc, elems...)
	doc = bsoncore.AppendStringElement(doc, "$db", db)
	doc, _ = bsoncore.AppendDocumentEnd(doc, idx)
	return doc
}

// eraseIfSensitive zeroes the copies of commands carrying credentials.
func eraseIfSensitive(doc bsoncore.Document) {
	if protocol.Sensitive(doc) {
		secret.Erase(doc)
	}
}
