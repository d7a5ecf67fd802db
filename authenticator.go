package mongo

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/mongo-go/internal/secret"
	"github.com/segmentio/mongo-go/sasl/oidc"
)

// Server describes the server a connection is being authenticated with.
type Server struct {
	// Address of the server, used in log messages.
	Addr string

	// ConnectDeadline is the time at which establishing the connection times
	// out. The zero value means no deadline.
	ConnectDeadline time.Time
}

// Authenticator authenticates connections with the MONGODB-OIDC mechanism.
//
// The access token obtained from the callback is stored in the authenticator
// and replaced on each authentication attempt; the previous token is erased
// from memory when it is replaced and when the authenticator is closed.
//
// An Authenticator is safe for concurrent use by multiple goroutines, it is
// usually shared by all connections of a client.
type Authenticator struct {
	// Callback is invoked to obtain an access token, it must be set.
	Callback OIDCCallback

	// If not nil, specifies a logger used to report successful
	// authentications.
	Logger Logger

	// ErrorLogger is the logger used to report authentication failures.
	ErrorLogger Logger

	once  sync.Once
	slot  credentialSlot
	stats authStats
}

// NewAuthenticator returns an Authenticator obtaining tokens from cb.
func NewAuthenticator(cb OIDCCallback) *Authenticator {
	return &Authenticator{Callback: cb}
}

func (a *Authenticator) init() {
	a.once.Do(func() {
		a.stats = makeAuthStats()
	})
}

// Authenticate runs one authentication attempt on the connection wrapped by
// rt: it invokes the callback to obtain a token, then sends it to the server
// in a one-step SASL conversation.
//
// The operation deadline is the deadline of ctx. The first failure is
// returned; the token stays stored even if the conversation fails.
func (a *Authenticator) Authenticate(ctx context.Context, rt RoundTripper, server Server) error {
	a.init()
	a.stats.attempts.observe(1)

	state, err := a.authenticate(ctx, rt, server)
	if err != nil {
		a.stats.observeError(err)
		logf(a.ErrorLogger, "mongo: authentication with %s failed: %v", server.Addr, err)
		return err
	}

	a.stats.successes.observe(1)
	logf(a.Logger, "mongo: authenticated with %s using %s (conversation %d)", server.Addr, state.Mechanism, state.ConversationID)
	return nil
}

func (a *Authenticator) authenticate(ctx context.Context, rt RoundTripper, server Server) (ConversationState, error) {
	if a.Callback == nil {
		return ConversationState{}, makeError(CallbackFailed, "no OIDC callback was configured", nil)
	}

	operationDeadline, _ := ctx.Deadline()
	timeout := callbackTimeout(time.Now(), server.ConnectDeadline, operationDeadline)

	// The conversation works on a private copy so the slot can be replaced or
	// erased by a concurrent attempt while the command is in flight.
	token, elapsed, err := a.slot.acquire(ctx, a.Callback, timeout)
	a.stats.callbackTime.observe(elapsed)
	if err != nil {
		return ConversationState{}, err
	}
	defer secret.Erase(token)

	start := time.Now()
	state, err := runOneStep(ctx, oidc.Mechanism{Token: token}, rt)
	a.stats.roundTripTime.observe(time.Since(start))
	return state, err
}

// Expiry returns the time at which the stored token expires, or the zero time
// if there is no token or its expiration is unknown.
func (a *Authenticator) Expiry() time.Time {
	return a.slot.expiry()
}

// Stats returns a snapshot of the authenticator stats since the last time the
// method was called, or since the authenticator was created if it is called
// for the first time.
func (a *Authenticator) Stats() AuthStats {
	a.init()
	return a.stats.snapshot()
}

// Close erases the stored token. The authenticator remains usable, the next
// attempt invokes the callback again.
func (a *Authenticator) Close() error {
	a.slot.erase()
	return nil
}
