package mongo

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/segmentio/mongo-go/compress"
	"github.com/segmentio/mongo-go/protocol"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// The Dialer type mirrors the net.Dialer API but is designed to open MongoDB
// connections instead of raw network connections. Connections returned by a
// Dialer have completed the handshake and, when an Authenticator is set, are
// authenticated.
type Dialer struct {
	// Timeout is the maximum amount of time a dial will wait for a connect to
	// complete, including the handshake and authentication. If Deadline is
	// also set, it may fail earlier.
	//
	// The default is no timeout.
	Timeout time.Duration

	// Deadline is the absolute point in time after which dials will fail.
	// If Timeout is set, it may fail earlier.
	// Zero means no deadline, or dependent on the operating system as with the
	// Timeout option.
	Deadline time.Time

	// LocalAddr is the local address to use when dialing an address.
	// The address must be of a compatible type for the network being dialed.
	// If nil, a local address is automatically chosen.
	LocalAddr net.Addr

	// KeepAlive specifies the keep-alive period for an active network
	// connection.
	// If zero, keep-alives are not enabled. Network protocols that do not
	// support keep-alives ignore this field.
	KeepAlive time.Duration

	// Resolver optionally specifies an alternate resolver to use.
	Resolver *net.Resolver

	// DialFunc optionally replaces the function used to open network
	// connections, the fields above are ignored when it is set.
	DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

	// TLS enables Dialer to open secure connections.  If nil, standard net.Conn
	// will be used.
	TLS *tls.Config

	// AppName is the application name sent in the handshake, it must not
	// exceed 128 bytes.
	AppName string

	// Compressors lists the compressors offered to the server, by order of
	// preference.
	Compressors []compress.Compression

	// Handshake holds the client metadata sent to servers. If nil, the dialer
	// creates one on first use.
	Handshake *Handshake

	// Authenticator authenticates the connections. If nil, connections are
	// not authenticated.
	Authenticator *Authenticator

	// If not nil, specifies a logger used to report connection events.
	Logger Logger

	// ErrorLogger is the logger used to report errors.
	ErrorLogger Logger

	once      sync.Once
	handshake *Handshake
}

// DefaultDialer is the default dialer used when none is specified.
var DefaultDialer = &Dialer{
	Timeout: 10 * time.Second,
}

// Dial connects to the address on the named network.
func (d *Dialer) Dial(network string, address string) (*Conn, error) {
	return d.DialContext(context.Background(), network, address)
}

// DialContext connects to the address on the named network using the provided
// context.
//
// The provided Context must be non-nil. If the context expires before the
// connection is complete, an error is returned. Once successfully connected,
// any expiration of the context will not affect the connection.
func (d *Dialer) DialContext(ctx context.Context, network string, address string) (*Conn, error) {
	var connectDeadline time.Time

	if d.Timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
		connectDeadline = time.Now().Add(d.Timeout)
	}

	if !d.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, d.Deadline)
		defer cancel()
		if connectDeadline.IsZero() || d.Deadline.Before(connectDeadline) {
			connectDeadline = d.Deadline
		}
	}

	dial := d.DialFunc
	if dial == nil {
		dialer := &net.Dialer{
			LocalAddr: d.LocalAddr,
			KeepAlive: d.KeepAlive,
			Resolver:  d.Resolver,
		}
		dial = dialer.DialContext
	}

	c, err := dial(ctx, network, address)
	if err != nil {
		return nil, err
	}

	if d.TLS != nil {
		c, err = d.connectTLS(ctx, c, address)
		if err != nil {
			return nil, err
		}
	}

	conn := NewConn(c)

	if err := d.hello(ctx, conn); err != nil {
		logf(d.ErrorLogger, "mongo: handshake with %s failed: %v", address, err)
		return nil, appendError(err, conn.Close())
	}

	if d.Authenticator != nil {
		server := Server{Addr: address, ConnectDeadline: connectDeadline}
		if err := d.Authenticator.Authenticate(ctx, conn, server); err != nil {
			return nil, appendError(err, conn.Close())
		}
	}

	logf(d.Logger, "mongo: connected to %s (compression: %s)", address, conn.compression)
	return conn, nil
}

func (d *Dialer) connectTLS(ctx context.Context, conn net.Conn, address string) (*tls.Conn, error) {
	config := d.TLS
	if config.ServerName == "" {
		host, _, _ := net.SplitHostPort(address)
		config = config.Clone()
		config.ServerName = host
	}
	tlsConn := tls.Client(conn, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func (d *Dialer) getHandshake() *Handshake {
	if d.Handshake != nil {
		return d.Handshake
	}
	d.once.Do(func() { d.handshake = NewHandshake() })
	return d.handshake
}

// hello sends the handshake command and negotiates the compressor.
func (d *Dialer) hello(ctx context.Context, conn *Conn) error {
	client, err := d.getHandshake().Document(d.AppName)
	if err != nil {
		return err
	}

	b := bsoncore.NewDocumentBuilder().
		AppendInt32("hello", 1).
		AppendBoolean("helloOk", true).
		AppendDocument("client", client)

	if len(d.Compressors) != 0 {
		names := bsoncore.NewArrayBuilder()
		for _, c := range d.Compressors {
			names.AppendString(c.String())
		}
		b.AppendArray("compression", names.Build())
	}

	reply, err := conn.RunCommand(ctx, "admin", b.Build())
	if err != nil {
		return err
	}

	compression, err := negotiateCompression(reply, d.Compressors)
	if err != nil {
		return err
	}

	conn.mutex.Lock()
	conn.hello = reply
	conn.compression = compression
	conn.mutex.Unlock()
	return nil
}

// negotiateCompression picks the first compressor of the client list which
// the server also reported in its hello reply.
func negotiateCompression(reply bsoncore.Document, offered []compress.Compression) (compress.Compression, error) {
	v, err := reply.LookupErr("compression")
	if err != nil {
		return compress.None, nil
	}
	if v.Type != bsontype.Array {
		return compress.None, fmt.Errorf("%w: compression field of hello reply is a %s", protocol.ErrCorrupted, v.Type)
	}

	values, err := v.Array().Values()
	if err != nil {
		return compress.None, err
	}

	supported := make(map[string]bool, len(values))
	for _, v := range values {
		if s, ok := v.StringValueOK(); ok {
			supported[s] = true
		}
	}

	for _, c := range offered {
		if supported[c.String()] {
			return c, nil
		}
	}
	return compress.None, nil
}
