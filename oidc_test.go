package mongo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticCallback(token string, expiresIn time.Duration) OIDCCallback {
	return OIDCCallbackFunc(func(context.Context, *CallbackParams) (*Credential, error) {
		return &Credential{AccessToken: []byte(token), ExpiresIn: expiresIn}, nil
	})
}

// use calls f with the stored token while holding the mutex.
func (s *credentialSlot) use(f func(token []byte, expiresIn time.Duration)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	f(s.token, s.expiresIn)
}

func TestCallbackTimeout(t *testing.T) {
	now := time.Now()

	tests := []struct {
		scenario  string
		connect   time.Time
		operation time.Time
		timeout   time.Duration
	}{
		{
			scenario: "no deadlines uses the default timeout",
			timeout:  DefaultCallbackTimeout,
		},
		{
			scenario: "connect deadline only",
			connect:  now.Add(5 * time.Second),
			timeout:  5 * time.Second,
		},
		{
			scenario:  "operation deadline only",
			operation: now.Add(3 * time.Second),
			timeout:   3 * time.Second,
		},
		{
			scenario:  "earliest deadline wins",
			connect:   now.Add(5 * time.Second),
			operation: now.Add(2 * time.Second),
			timeout:   2 * time.Second,
		},
		{
			scenario:  "expired deadline gives a zero timeout",
			connect:   now.Add(-time.Second),
			operation: now.Add(time.Second),
			timeout:   0,
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			assert.Equal(t, test.timeout, callbackTimeout(now, test.connect, test.operation))
		})
	}
}

func TestCredentialSlotAcquire(t *testing.T) {
	var slot credentialSlot
	var params *CallbackParams

	cb := OIDCCallbackFunc(func(ctx context.Context, p *CallbackParams) (*Credential, error) {
		params = p
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return &Credential{AccessToken: []byte("abc123"), ExpiresIn: time.Hour}, nil
	})

	start := time.Now()
	_, _, err := slot.acquire(context.Background(), cb, 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, int64(CallbackVersion), params.Version)
	assert.Equal(t, 30*time.Second, params.Timeout)

	slot.use(func(token []byte, expiresIn time.Duration) {
		assert.Equal(t, "abc123", string(token))
		assert.Equal(t, time.Hour, expiresIn)
	})
	assert.WithinDuration(t, start.Add(time.Hour), slot.expiry(), time.Second)
}

func TestCredentialSlotErasesReplacedToken(t *testing.T) {
	var slot credentialSlot

	first := []byte("abc123")
	cb := OIDCCallbackFunc(func(context.Context, *CallbackParams) (*Credential, error) {
		return &Credential{AccessToken: first, ExpiresIn: time.Hour}, nil
	})
	_, _, err := slot.acquire(context.Background(), cb, time.Second)
	require.NoError(t, err)

	_, _, err = slot.acquire(context.Background(), staticCallback("def456", time.Hour), time.Second)
	require.NoError(t, err)

	assert.Equal(t, make([]byte, 6), first)
	slot.use(func(token []byte, _ time.Duration) {
		assert.Equal(t, "def456", string(token))
	})
}

func TestCredentialSlotKeepsReturnedBuffer(t *testing.T) {
	var slot credentialSlot

	token := []byte("abc123")
	cb := OIDCCallbackFunc(func(context.Context, *CallbackParams) (*Credential, error) {
		return &Credential{AccessToken: token}, nil
	})

	for i := 0; i < 2; i++ {
		_, _, err := slot.acquire(context.Background(), cb, time.Second)
		require.NoError(t, err)
	}

	assert.Equal(t, "abc123", string(token))
}

func TestCredentialSlotCallbackFailure(t *testing.T) {
	var slot credentialSlot

	_, _, err := slot.acquire(context.Background(), staticCallback("abc123", time.Hour), time.Second)
	require.NoError(t, err)
	expiry := slot.expiry()

	cause := errors.New("identity provider unavailable")
	tests := []struct {
		scenario string
		callback OIDCCallback
		cause    error
	}{
		{
			scenario: "callback error",
			callback: OIDCCallbackFunc(func(context.Context, *CallbackParams) (*Credential, error) {
				return nil, cause
			}),
			cause: cause,
		},
		{
			scenario: "nil credential",
			callback: OIDCCallbackFunc(func(context.Context, *CallbackParams) (*Credential, error) {
				return nil, nil
			}),
			cause: errEmptyAccessToken,
		},
		{
			scenario: "empty access token",
			callback: staticCallback("", time.Hour),
			cause:    errEmptyAccessToken,
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			_, _, err := slot.acquire(context.Background(), test.callback, time.Second)
			assert.ErrorIs(t, err, CallbackFailed)
			assert.ErrorIs(t, err, test.cause)

			slot.use(func(token []byte, _ time.Duration) {
				assert.Equal(t, "abc123", string(token))
			})
			assert.Equal(t, expiry, slot.expiry())
		})
	}
}

func TestCredentialSlotCallbackTimeout(t *testing.T) {
	var slot credentialSlot

	late := []byte("abc123")
	cb := OIDCCallbackFunc(func(context.Context, *CallbackParams) (*Credential, error) {
		time.Sleep(50 * time.Millisecond)
		return &Credential{AccessToken: late}, nil
	})

	_, _, err := slot.acquire(context.Background(), cb, 10*time.Millisecond)
	assert.ErrorIs(t, err, CallbackTimeout)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Timeout())

	assert.Equal(t, make([]byte, 6), late)
	slot.use(func(token []byte, _ time.Duration) {
		assert.Empty(t, token)
	})
}

func TestCredentialSlotCallbackHonorsDeadline(t *testing.T) {
	var slot credentialSlot

	cb := OIDCCallbackFunc(func(ctx context.Context, _ *CallbackParams) (*Credential, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, _, err := slot.acquire(context.Background(), cb, 10*time.Millisecond)
	assert.ErrorIs(t, err, CallbackTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, CallbackFailed)
}

func TestCredentialSlotCallbackCanceled(t *testing.T) {
	var slot credentialSlot

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cb := OIDCCallbackFunc(func(ctx context.Context, _ *CallbackParams) (*Credential, error) {
		return nil, ctx.Err()
	})

	_, _, err := slot.acquire(ctx, cb, time.Second)
	assert.ErrorIs(t, err, CallbackFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCredentialSlotJWTExpiry(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	var slot credentialSlot
	_, _, err = slot.acquire(context.Background(), staticCallback(signed, 0), time.Second)
	require.NoError(t, err)

	slot.use(func(_ []byte, expiresIn time.Duration) {
		assert.InDelta(t, float64(30*time.Minute), float64(expiresIn), float64(2*time.Second))
	})
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), slot.expiry(), 2*time.Second)
}

func TestJWTExpiresInErasesClaims(t *testing.T) {
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	var segments []string
	var decoded [][]byte
	defer func(f func(string) ([]byte, error)) { decodeSegment = f }(decodeSegment)
	decodeSegment = func(seg string) ([]byte, error) {
		b, err := jwt.NewParser().DecodeSegment(seg)
		segments = append(segments, seg)
		decoded = append(decoded, b)
		return b, err
	}

	expiresIn := jwtExpiresIn([]byte(signed), time.Now())
	assert.InDelta(t, float64(time.Hour), float64(expiresIn), float64(2*time.Second))

	require.Len(t, segments, 1)
	assert.Equal(t, strings.Split(signed, ".")[1], segments[0])
	require.Len(t, decoded, 1)
	assert.NotEmpty(t, decoded[0])
	assert.Equal(t, make([]byte, len(decoded[0])), decoded[0])
}

func TestJWTExpiresInMalformed(t *testing.T) {
	now := time.Now()

	tests := []struct {
		scenario string
		token    string
	}{
		{scenario: "opaque", token: "opaque"},
		{scenario: "two segments", token: "eyJhbGciOiJub25lIn0.eyJleHAiOjF9"},
		{scenario: "four segments", token: "a.b.c.d"},
		{scenario: "invalid base64", token: "a.!!!.c"},
		{scenario: "invalid json", token: "a.bm90IGpzb24.c"},
		{scenario: "no exp claim", token: "a.eyJzdWIiOiJ1c2VyIn0.c"},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			assert.Zero(t, jwtExpiresIn([]byte(test.token), now))
		})
	}
}

func TestCredentialSlotOpaqueTokenHasNoExpiry(t *testing.T) {
	var slot credentialSlot
	_, _, err := slot.acquire(context.Background(), staticCallback("opaque", 0), time.Second)
	require.NoError(t, err)
	assert.True(t, slot.expiry().IsZero())
}

func TestCredentialSlotConcurrentAcquire(t *testing.T) {
	var slot credentialSlot
	var wg sync.WaitGroup

	tokens := []string{"token-a", "token-b", "token-c", "token-d"}
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b, _, err := slot.acquire(context.Background(), staticCallback(token, time.Hour), time.Second)
				assert.NoError(t, err)
				assert.Equal(t, token, string(b))
				slot.use(func(b []byte, _ time.Duration) { assert.Len(t, b, 7) })
			}
		}(token)
	}
	wg.Wait()

	slot.use(func(token []byte, _ time.Duration) {
		assert.Contains(t, tokens, string(token))
	})
}

func TestCredentialSlotReturnsPrivateCopy(t *testing.T) {
	var slot credentialSlot

	token := []byte("abc123")
	cb := OIDCCallbackFunc(func(context.Context, *CallbackParams) (*Credential, error) {
		return &Credential{AccessToken: token, ExpiresIn: time.Hour}, nil
	})
	clone, _, err := slot.acquire(context.Background(), cb, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "abc123", string(clone))
	assert.False(t, sameBuffer(clone, token))

	slot.erase()
	assert.Equal(t, make([]byte, 6), token)
	assert.Equal(t, "abc123", string(clone))
}

func TestCredentialSlotErase(t *testing.T) {
	var slot credentialSlot

	token := []byte("abc123")
	cb := OIDCCallbackFunc(func(context.Context, *CallbackParams) (*Credential, error) {
		return &Credential{AccessToken: token, ExpiresIn: time.Hour}, nil
	})
	_, _, err := slot.acquire(context.Background(), cb, time.Second)
	require.NoError(t, err)

	slot.erase()
	assert.Equal(t, make([]byte, 6), token)
	assert.True(t, slot.expiry().IsZero())
}
