// Package testing provides a scripted MongoDB server for tests exercising the
// handshake and authentication of connections.
package testing

import (
	"net"
	"sync"

	"github.com/segmentio/mongo-go/compress"
	"github.com/segmentio/mongo-go/protocol"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// HandlerFunc produces the reply to a command received by a Server. The hello
// command is answered by the server itself.
type HandlerFunc func(cmd bsoncore.Document) bsoncore.Document

// Command is a command received by a Server.
type Command struct {
	Name        string
	Document    bsoncore.Document
	Compression compress.Compression
}

// Server is a MongoDB server answering commands with a HandlerFunc.
type Server struct {
	// Compressors lists the compressors the server accepts.
	Compressors []string

	// Handler answers commands, DefaultHandler is used when nil.
	Handler HandlerFunc

	listener net.Listener
	wg       sync.WaitGroup

	mutex    sync.Mutex
	conns    map[net.Conn]struct{}
	commands []Command
}

// Listen starts accepting connections on a random local port.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	s.listener = l
	s.conns = make(map[net.Conn]struct{})
	s.wg.Add(1)
	go s.serve()
	return nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the server and closes all its connections.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.mutex.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mutex.Unlock()
	s.wg.Wait()
	return err
}

// Commands returns the commands received so far, hello commands included.
func (s *Server) Commands() []Command {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Command(nil), s.commands...)
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		c, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mutex.Lock()
		s.conns[c] = struct{}{}
		s.mutex.Unlock()
		s.wg.Add(1)
		go s.handle(c)
	}
}

func (s *Server) handle(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mutex.Lock()
		delete(s.conns, c)
		s.mutex.Unlock()
		c.Close()
	}()

	compression := compress.None
	for {
		msg, err := protocol.ReadMessage(c)
		if err != nil {
			return
		}

		name := protocol.CommandName(msg.Document)
		s.record(Command{Name: name, Document: msg.Document, Compression: msg.Compression})

		var reply bsoncore.Document
		switch name {
		case "hello", "isMaster", "ismaster":
			reply, compression = s.hello(msg.Document)
		default:
			handler := s.Handler
			if handler == nil {
				handler = DefaultHandler
			}
			reply = handler(msg.Document)
		}

		out := compression
		if !protocol.Compressible(msg.Document) {
			out = compress.None
		}
		if err := protocol.WriteMessage(c, protocol.Message{
			ResponseTo:  msg.RequestID,
			Document:    reply,
			Compression: out,
		}); err != nil {
			return
		}
	}
}

func (s *Server) record(cmd Command) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.commands = append(s.commands, cmd)
}

func (s *Server) hello(cmd bsoncore.Document) (bsoncore.Document, compress.Compression) {
	accepted := make(map[string]bool, len(s.Compressors))
	for _, name := range s.Compressors {
		accepted[name] = true
	}

	var agreed []string
	if names, ok := cmd.Lookup("compression").ArrayOK(); ok {
		values, _ := names.Values()
		for _, v := range values {
			if name, ok := v.StringValueOK(); ok && accepted[name] {
				agreed = append(agreed, name)
			}
		}
	}

	b := bsoncore.NewDocumentBuilder().
		AppendBoolean("helloOk", true).
		AppendBoolean("isWritablePrimary", true).
		AppendInt32("maxWireVersion", 21).
		AppendInt32("minWireVersion", 0)

	compression := compress.None
	if len(agreed) != 0 {
		names := bsoncore.NewArrayBuilder()
		for _, name := range agreed {
			names.AppendString(name)
		}
		b.AppendArray("compression", names.Build())
		compression, _ = compress.Lookup(agreed[0])
	}

	return b.AppendDouble("ok", 1).Build(), compression
}

// DefaultHandler accepts any saslStart command and replies ok to all other
// commands.
func DefaultHandler(cmd bsoncore.Document) bsoncore.Document {
	if protocol.CommandName(cmd) == "saslStart" {
		return SaslReply(1)
	}
	return OK()
}

// SaslReply returns a successful one-step saslStart reply.
func SaslReply(conversationID int32) bsoncore.Document {
	return bsoncore.NewDocumentBuilder().
		AppendInt32("conversationId", conversationID).
		AppendBoolean("done", true).
		AppendBinary("payload", 0, []byte{}).
		AppendDouble("ok", 1).
		Build()
}

// OK returns the {ok: 1} reply.
func OK() bsoncore.Document {
	return bsoncore.NewDocumentBuilder().AppendDouble("ok", 1).Build()
}

// Failure returns a reply for a failed command.
func Failure(code int32, codeName, errmsg string) bsoncore.Document {
	return bsoncore.NewDocumentBuilder().
		AppendDouble("ok", 0).
		AppendString("errmsg", errmsg).
		AppendInt32("code", code).
		AppendString("codeName", codeName).
		Build()
}
