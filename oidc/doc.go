// Package oidc groups the OIDC callbacks provided with this module. Each
// sub-package adapts a source of identity tokens to the mongo.OIDCCallback
// interface:
//
//	tokenfile    reads the token from a file written by the platform
//	tokensource  wraps an oauth2.TokenSource
//	azure        requests tokens from an azcore.TokenCredential
//	gcp          fetches identity tokens from the GCE metadata server
package oidc
