// Package tokenfile implements an OIDC callback reading the access token from
// a file, which is how Kubernetes and most workload identity systems project
// tokens into containers.
package tokenfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	mongo "github.com/segmentio/mongo-go"
)

// EnvVar is the environment variable holding the path of the token file when
// Callback.Path is empty.
const EnvVar = "OIDC_TOKEN_FILE"

// Callback reads the token each time it is invoked, so rotated tokens are
// picked up on the next authentication.
type Callback struct {
	// Path of the token file. Defaults to the value of OIDC_TOKEN_FILE.
	Path string

	// ExpiresIn is reported as the lifetime of tokens. Zero lets the client
	// use the exp claim of the token.
	ExpiresIn time.Duration
}

// Token satisfies the mongo.OIDCCallback interface.
func (c *Callback) Token(ctx context.Context, _ *mongo.CallbackParams) (*mongo.Credential, error) {
	path := c.Path
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return nil, fmt.Errorf("%s is not set", EnvVar)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	token := bytes.TrimSpace(b)
	if len(token) == 0 {
		return nil, fmt.Errorf("token file %s is empty", path)
	}

	return &mongo.Credential{AccessToken: token, ExpiresIn: c.ExpiresIn}, nil
}
