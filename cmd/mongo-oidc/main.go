package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/conf"
	events "github.com/segmentio/events/v2"
	_ "github.com/segmentio/events/v2/ecslogs"
	_ "github.com/segmentio/events/v2/log"
	_ "github.com/segmentio/events/v2/sigevents"
	_ "github.com/segmentio/events/v2/text"
	mongo "github.com/segmentio/mongo-go"
	"github.com/segmentio/mongo-go/compress"
	"github.com/segmentio/mongo-go/oidc/tokenfile"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

var version = ""

func main() {
	var err error
	var ld = conf.Loader{
		Name: "mongo-oidc",
		Args: os.Args[1:],
		Commands: []conf.Command{
			{Name: "ping", Help: "Authenticate to a server with an OIDC token and run ping"},
			{Name: "handshake", Help: "Show the handshake document sent to servers"},
			{Name: "help", Help: "Show the mongo-oidc help"},
			{Name: "version", Help: "Show the mongo-oidc version"},
		},
	}

	switch cmd, args := conf.LoadWith(nil, ld); cmd {
	case "ping":
		err = ping(args)
	case "handshake":
		err = handshake(args)
	case "help":
		ld.PrintHelp(nil)
	case "version":
		fmt.Println(version)
	default:
		panic("unreachable")
	}

	if err != nil {
		events.Log("%{error}s", err)
		os.Exit(1)
	}
}

func ping(args []string) (err error) {
	config := struct {
		Debug       bool          `conf:"debug"       help:"Enable debug logs"`
		Address     string        `conf:"address"     help:"Address of the MongoDB server"`
		AppName     string        `conf:"app-name"    help:"Application name sent in the handshake"`
		TokenFile   string        `conf:"token-file"  help:"Path of the OIDC token, defaults to $OIDC_TOKEN_FILE"`
		Timeout     time.Duration `conf:"timeout"     help:"Timeout of the connection and authentication"`
		TLS         bool          `conf:"tls"         help:"Connect with TLS"`
		Compressors []string      `conf:"compressors" help:"Compressors offered to the server"`
		Count       int           `conf:"count"       help:"Number of ping commands to run"`
	}{
		Address: "localhost:27017",
		AppName: "mongo-oidc",
		Timeout: 10 * time.Second,
		Count:   1,
	}

	conf.LoadWith(&config, conf.Loader{
		Name: "mongo-oidc ping",
		Args: args,
	})

	events.DefaultLogger.EnableDebug = config.Debug
	events.DefaultLogger.EnableSource = config.Debug

	defer func() {
		if v := recover(); v != nil {
			err = convertPanicToError(v)
		}
	}()

	compressors := make([]compress.Compression, 0, len(config.Compressors))
	for _, name := range config.Compressors {
		c, ok := compress.Lookup(name)
		if !ok {
			return errors.Errorf("unsupported compressor: %s", name)
		}
		compressors = append(compressors, c)
	}

	authenticator := mongo.NewAuthenticator(&tokenfile.Callback{Path: config.TokenFile})
	authenticator.ErrorLogger = mongo.LoggerFunc(events.Log)
	if config.Debug {
		authenticator.Logger = mongo.LoggerFunc(events.Debug)
	}
	defer authenticator.Close()

	dialer := &mongo.Dialer{
		Timeout:       config.Timeout,
		AppName:       config.AppName,
		Compressors:   compressors,
		Authenticator: authenticator,
		ErrorLogger:   mongo.LoggerFunc(events.Log),
	}
	if config.TLS {
		dialer.TLS = &tls.Config{}
	}
	if config.Debug {
		dialer.Logger = mongo.LoggerFunc(events.Debug)
	}

	sigchan, stop := signals(os.Interrupt)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sigchan:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", config.Address)
	}
	defer conn.Close()

	fmt.Printf("connected to %s (compression: %s)\n", conn.RemoteAddr(), conn.Compression())
	if expiry := authenticator.Expiry(); !expiry.IsZero() {
		fmt.Printf("token expires at %s\n", expiry.Format(time.RFC3339))
	}

	cmd := bsoncore.NewDocumentBuilder().AppendInt32("ping", 1).Build()
	for i := 0; i < config.Count; i++ {
		start := time.Now()
		if _, err := conn.RunCommand(ctx, "admin", cmd); err != nil {
			return errors.Wrap(err, "ping failed")
		}
		fmt.Printf("ping %d: %s\n", i+1, time.Since(start))
	}

	stats := authenticator.Stats()
	events.Debug("authentication stats: attempts=%d successes=%d callback=%s roundtrip=%s",
		stats.Attempts, stats.Successes, stats.CallbackTime.Avg, stats.RoundTripTime.Avg)
	return nil
}

func handshake(args []string) error {
	config := struct {
		AppName string `conf:"app-name" help:"Application name sent in the handshake"`
	}{
		AppName: "mongo-oidc",
	}

	conf.LoadWith(&config, conf.Loader{
		Name: "mongo-oidc handshake",
		Args: args,
	})

	h := mongo.NewHandshake()
	doc, err := h.Document(config.AppName)
	if err != nil {
		return errors.Wrap(err, "failed to build handshake document")
	}

	fmt.Println(h.BuildOnce())
	fmt.Println(doc.String())
	fmt.Printf("%d bytes\n", len(doc))
	return nil
}

func signals(signals ...os.Signal) (<-chan os.Signal, func()) {
	sigchan := make(chan os.Signal, 1)
	sigrecv := events.Signal(sigchan)
	signal.Notify(sigchan, signals...)
	return sigrecv, func() { signal.Stop(sigchan) }
}

func convertPanicToError(v interface{}) error {
	switch x := v.(type) {
	case error:
		return x
	case string:
		return errors.New(x)
	default:
		return fmt.Errorf("%v", x)
	}
}
