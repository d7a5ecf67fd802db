package mongo_test

import (
	"context"
	"fmt"
	"os"
	"time"

	mongo "github.com/segmentio/mongo-go"
	"github.com/segmentio/mongo-go/compress"
)

func ExampleDialer() {
	authenticator := mongo.NewAuthenticator(mongo.OIDCCallbackFunc(
		func(ctx context.Context, params *mongo.CallbackParams) (*mongo.Credential, error) {
			token, err := os.ReadFile("/var/run/secrets/tokens/mongodb")
			if err != nil {
				return nil, err
			}
			return &mongo.Credential{AccessToken: token, ExpiresIn: time.Hour}, nil
		},
	))
	defer authenticator.Close()

	dialer := &mongo.Dialer{
		Timeout:       10 * time.Second,
		AppName:       "billing",
		Compressors:   []compress.Compression{compress.Zstd, compress.Snappy},
		Authenticator: authenticator,
	}

	conn, err := dialer.DialContext(context.Background(), "tcp", "localhost:27017")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer conn.Close()

	fmt.Println("authenticated with", conn.RemoteAddr())
}
