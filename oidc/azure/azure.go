// Package azure implements an OIDC callback obtaining tokens from Azure
// managed identities or any other azcore.TokenCredential.
package azure

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	mongo "github.com/segmentio/mongo-go"
)

// Callback requests a token for Resource from Credential.
type Callback struct {
	Credential azcore.TokenCredential

	// Resource is the application ID URI of the MongoDB deployment, for
	// example "api://mongodb". The ".default" scope of the resource is
	// requested.
	Resource string
}

// Token satisfies the mongo.OIDCCallback interface.
func (c *Callback) Token(ctx context.Context, _ *mongo.CallbackParams) (*mongo.Credential, error) {
	if c.Credential == nil {
		return nil, errors.New("no azure credential configured")
	}
	if c.Resource == "" {
		return nil, errors.New("no azure resource configured")
	}

	tok, err := c.Credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{scope(c.Resource)},
	})
	if err != nil {
		return nil, err
	}
	if tok.Token == "" {
		return nil, errors.New("azure credential returned an empty token")
	}

	var expiresIn time.Duration
	if !tok.ExpiresOn.IsZero() {
		expiresIn = max(time.Second, time.Until(tok.ExpiresOn))
	}

	return &mongo.Credential{AccessToken: []byte(tok.Token), ExpiresIn: expiresIn}, nil
}

func scope(resource string) string {
	return strings.TrimSuffix(resource, "/") + "/.default"
}
