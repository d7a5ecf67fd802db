// Package gcp implements an OIDC callback fetching identity tokens of the
// default service account from the GCE metadata server.
package gcp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"cloud.google.com/go/compute/metadata"
	mongo "github.com/segmentio/mongo-go"
)

// Callback requests identity tokens for Audience. The lifetime of the tokens
// is read from their exp claim by the client.
type Callback struct {
	Audience string

	// HTTPClient is used to reach the metadata server. If nil, the default
	// client of the metadata package is used.
	HTTPClient *http.Client
}

// Token satisfies the mongo.OIDCCallback interface.
func (c *Callback) Token(ctx context.Context, _ *mongo.CallbackParams) (*mongo.Credential, error) {
	if c.Audience == "" {
		return nil, errors.New("no gcp token audience configured")
	}

	client := metadata.NewClient(c.HTTPClient)
	tok, err := client.GetWithContext(ctx, "instance/service-accounts/default/identity?audience="+url.QueryEscape(c.Audience))
	if err != nil {
		return nil, err
	}

	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, errors.New("metadata server returned an empty token")
	}
	return &mongo.Credential{AccessToken: []byte(tok)}, nil
}
