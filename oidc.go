package mongo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/segmentio/mongo-go/internal/secret"
)

const (
	// CallbackVersion is the version of the callback API passed in
	// CallbackParams. Callbacks must tolerate versions they do not know of.
	CallbackVersion = 1

	// DefaultCallbackTimeout is the timeout given to OIDC callbacks when the
	// authentication attempt has neither a connect nor an operation deadline.
	DefaultCallbackTimeout = 1 * time.Minute
)

// CallbackParams carries the arguments passed to an OIDC callback.
type CallbackParams struct {
	// Version of the callback API, currently always 1.
	Version int64

	// Timeout is how long the callback has to produce a token. The context
	// given to the callback expires at the same time.
	Timeout time.Duration
}

// Credential is the result of a successful OIDC callback.
type Credential struct {
	// AccessToken is the bearer token sent to the server. Ownership of the
	// slice is transferred to the client when the callback returns: it is
	// erased when replaced by a newer token or when the client is closed, so
	// callbacks must not reuse it.
	AccessToken []byte

	// ExpiresIn is how long the token remains valid. When zero and the token
	// is a JWT, it is computed from the exp claim.
	ExpiresIn time.Duration
}

// OIDCCallback is implemented by the user provided code which exchanges an
// identity provider flow for an access token.
//
// The callback is invoked synchronously on the goroutine authenticating a
// connection, it cannot be interrupted and should honor the cancellation of
// ctx.
type OIDCCallback interface {
	Token(ctx context.Context, params *CallbackParams) (*Credential, error)
}

// OIDCCallbackFunc is an adapter to allow the use of ordinary functions as
// OIDC callbacks.
type OIDCCallbackFunc func(context.Context, *CallbackParams) (*Credential, error)

// Token calls f(ctx, params).
func (f OIDCCallbackFunc) Token(ctx context.Context, params *CallbackParams) (*Credential, error) {
	return f(ctx, params)
}

// callbackTimeout computes the timeout given to the callback from the time
// left until the connect and operation deadlines. A zero deadline means no
// deadline.
func callbackTimeout(now, connectDeadline, operationDeadline time.Time) time.Duration {
	var timeout time.Duration
	switch {
	case connectDeadline.IsZero() && operationDeadline.IsZero():
		return DefaultCallbackTimeout
	case connectDeadline.IsZero():
		timeout = operationDeadline.Sub(now)
	case operationDeadline.IsZero():
		timeout = connectDeadline.Sub(now)
	default:
		timeout = min(connectDeadline.Sub(now), operationDeadline.Sub(now))
	}
	return max(0, timeout)
}

// credentialSlot holds the access token of a client. It is the only place the
// token is stored, all reads and writes happen with the mutex held.
type credentialSlot struct {
	mutex     sync.Mutex
	token     []byte
	expiresIn time.Duration
	expiresAt time.Time
}

// acquire invokes the callback and, on success, replaces the stored token,
// erasing the previous one, and returns a private copy of the new token taken
// under the same lock. On failure the slot is left untouched.
//
// A callback which outlives its timeout is reported as CallbackTimeout, even
// when it honored the cancellation of its context and returned an error.
func (s *credentialSlot) acquire(ctx context.Context, cb OIDCCallback, timeout time.Duration) ([]byte, time.Duration, error) {
	params := &CallbackParams{Version: CallbackVersion, Timeout: timeout}
	cbctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	cred, err := cb.Token(cbctx, params)
	elapsed := time.Since(start)
	if elapsed > timeout || (err != nil && errors.Is(cbctx.Err(), context.DeadlineExceeded)) {
		if cred != nil {
			secret.Erase(cred.AccessToken)
		}
		return nil, elapsed, makeError(CallbackTimeout, "user provided OIDC callback returned after "+timeout.String(), err)
	}
	if err != nil {
		return nil, elapsed, makeError(CallbackFailed, "error from user provided OIDC callback", err)
	}
	if cred == nil || len(cred.AccessToken) == 0 {
		return nil, elapsed, makeError(CallbackFailed, "error from user provided OIDC callback", errEmptyAccessToken)
	}
	expiresIn := cred.ExpiresIn
	if expiresIn == 0 {
		expiresIn = jwtExpiresIn(cred.AccessToken, start)
	}
	return s.store(cred.AccessToken, expiresIn, start), elapsed, nil
}

// store replaces the token and returns a copy of it, the caller owns the copy
// and must erase it.
func (s *credentialSlot) store(token []byte, expiresIn time.Duration, now time.Time) []byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !sameBuffer(s.token, token) {
		secret.Erase(s.token)
	}
	s.token = token
	s.expiresIn = expiresIn
	if expiresIn > 0 {
		s.expiresAt = now.Add(expiresIn)
	} else {
		s.expiresAt = time.Time{}
	}
	return secret.Clone(token)
}

func (s *credentialSlot) expiry() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.expiresAt
}

func (s *credentialSlot) erase() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	secret.Erase(s.token)
	s.token = nil
	s.expiresIn = 0
	s.expiresAt = time.Time{}
}

// decodeSegment decodes a base64url JWT segment.
var decodeSegment = jwt.NewParser().DecodeSegment

// jwtExpiresIn returns the time left until the exp claim of token, or zero if
// the token is not a JWT or carries no expiration. The signature is not
// verified, the server does that, so only the claims segment is decoded and
// the decoded bytes are erased before returning.
func jwtExpiresIn(token []byte, now time.Time) time.Duration {
	i := bytes.IndexByte(token, '.')
	if i < 0 {
		return 0
	}
	j := bytes.IndexByte(token[i+1:], '.')
	if j < 0 {
		return 0
	}
	j += i + 1
	if bytes.IndexByte(token[j+1:], '.') >= 0 {
		return 0
	}
	payload, err := decodeSegment(secret.View(token[i+1 : j]))
	defer secret.Erase(payload)
	if err != nil {
		return 0
	}
	return claimsExpiresIn(payload, now)
}

func claimsExpiresIn(payload []byte, now time.Time) time.Duration {
	claims := jwt.RegisteredClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return 0
	}
	if claims.ExpiresAt == nil {
		return 0
	}
	return max(0, claims.ExpiresAt.Time.Sub(now).Truncate(time.Second))
}

func sameBuffer(a, b []byte) bool {
	return len(a) != 0 && len(b) != 0 && &a[0] == &b[0]
}

type constError string

func (e constError) Error() string { return string(e) }

const errEmptyAccessToken = constError("access token is empty")
