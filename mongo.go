// Package mongo implements the client side of MongoDB connection
// establishment: the handshake document identifying the client, and
// authentication with the MONGODB-OIDC mechanism using tokens produced by a
// user provided callback.
//
// Connections are opened by a Dialer, which runs the hello command and, when
// configured with an Authenticator, the one-step SASL conversation carrying
// the access token. Tokens are held in a single buffer per Authenticator and
// zeroed as soon as they are replaced or the Authenticator is closed.
package mongo
