package tokenfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	mongo "github.com/segmentio/mongo-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

func writeToken(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestCallbackPath(t *testing.T) {
	cb := &Callback{Path: writeToken(t, "abc123\n"), ExpiresIn: time.Minute}

	cred, err := cb.Token(context.Background(), &mongo.CallbackParams{Version: mongo.CallbackVersion})
	require.NoError(t, err)
	assert.Equal(t, "abc123", string(cred.AccessToken))
	assert.Equal(t, time.Minute, cred.ExpiresIn)
}

func TestCallbackEnv(t *testing.T) {
	t.Setenv(EnvVar, writeToken(t, "def456"))

	cred, err := (&Callback{}).Token(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "def456", string(cred.AccessToken))
}

func TestCallbackErrors(t *testing.T) {
	t.Setenv(EnvVar, "")

	_, err := (&Callback{}).Token(context.Background(), nil)
	assert.ErrorContains(t, err, EnvVar)

	_, err = (&Callback{Path: filepath.Join(t.TempDir(), "missing")}).Token(context.Background(), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = (&Callback{Path: writeToken(t, " \n")}).Token(context.Background(), nil)
	assert.ErrorContains(t, err, "empty")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&Callback{Path: writeToken(t, "abc123")}).Token(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCallbackAuthenticate(t *testing.T) {
	a := mongo.NewAuthenticator(&Callback{Path: writeToken(t, "abc123")})
	defer a.Close()

	rt := mongo.RoundTripperFunc(func(context.Context, string, bsoncore.Document) (bsoncore.Document, error) {
		return bsoncore.NewDocumentBuilder().AppendInt32("conversationId", 1).Build(), nil
	})
	require.NoError(t, a.Authenticate(context.Background(), rt, mongo.Server{}))
	assert.Equal(t, int64(1), a.Stats().Successes)
}
