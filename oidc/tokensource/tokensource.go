// Package tokensource adapts oauth2 token sources to OIDC callbacks.
package tokensource

import (
	"context"
	"errors"
	"time"

	mongo "github.com/segmentio/mongo-go"
	"golang.org/x/oauth2"
)

// Callback obtains tokens from an oauth2.TokenSource. When the token carries
// an OpenID Connect id_token extra it is sent instead of the access token.
type Callback struct {
	Source oauth2.TokenSource

	// AccessTokenOnly disables the id_token preference.
	AccessTokenOnly bool
}

// New returns a callback using src, wrapped in oauth2.ReuseTokenSource so the
// token is refreshed only when it expired.
func New(src oauth2.TokenSource) *Callback {
	return &Callback{Source: oauth2.ReuseTokenSource(nil, src)}
}

// Token satisfies the mongo.OIDCCallback interface.
func (c *Callback) Token(ctx context.Context, _ *mongo.CallbackParams) (*mongo.Credential, error) {
	if c.Source == nil {
		return nil, errors.New("no token source configured")
	}

	type result struct {
		tok *oauth2.Token
		err error
	}

	// oauth2.TokenSource does not take a context, the call is abandoned when
	// ctx expires.
	ch := make(chan result, 1)
	go func() {
		tok, err := c.Source.Token()
		ch <- result{tok, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}

	token := r.tok.AccessToken
	if !c.AccessTokenOnly {
		if id, ok := r.tok.Extra("id_token").(string); ok && id != "" {
			token = id
		}
	}
	if token == "" {
		return nil, errors.New("token source returned an empty token")
	}

	var expiresIn time.Duration
	if !r.tok.Expiry.IsZero() {
		expiresIn = max(time.Second, time.Until(r.tok.Expiry))
	}

	return &mongo.Credential{AccessToken: []byte(token), ExpiresIn: expiresIn}, nil
}
