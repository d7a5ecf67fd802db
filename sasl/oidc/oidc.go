// Package oidc implements the MONGODB-OIDC SASL mechanism in its one-step
// variant, where the client sends a bearer token obtained out of band and the
// server answers with a single reply.
package oidc

import (
	"context"
	"errors"

	"github.com/segmentio/mongo-go/internal/secret"
	"github.com/segmentio/mongo-go/sasl"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Name is the identifier of the mechanism on the wire.
const Name = "MONGODB-OIDC"

// Mechanism implements the MONGODB-OIDC mechanism and passes the token.
//
// The mechanism does not copy the token, the caller retains ownership of it.
type Mechanism struct {
	Token []byte
}

func (Mechanism) Name() string {
	return Name
}

// Start returns the initial response carrying the token in a {jwt: <token>}
// document. The caller owns the returned buffer and should erase it once it
// has been sent.
func (m Mechanism) Start(ctx context.Context) (sasl.StateMachine, []byte, error) {
	if len(m.Token) == 0 {
		return nil, nil, errors.New("token must have a value")
	}
	// Sized up front so appending never reallocates and leaves a copy of the
	// token in a buffer that would not be erased.
	buf := make([]byte, 0, payloadSize(len(m.Token)))
	idx, doc := bsoncore.AppendDocumentStart(buf)
	doc = bsoncore.AppendStringElement(doc, "jwt", secret.View(m.Token))
	doc, err := bsoncore.AppendDocumentEnd(doc, idx)
	if err != nil {
		secret.Erase(doc)
		return nil, nil, err
	}
	return m, doc, nil
}

// Next completes the conversation, the one-step variant has no challenge to
// answer.
func (m Mechanism) Next(ctx context.Context, challenge []byte) (bool, []byte, error) {
	return true, nil, nil
}

// payloadSize is the encoded size of {jwt: <n bytes string>}: document length,
// element type, "jwt\x00", string length, string bytes with terminator, and
// the document terminator.
func payloadSize(n int) int {
	return 4 + 1 + 4 + 4 + n + 1 + 1
}

// ParsePayload extracts the token from an initial response produced by Start.
// The returned slice aliases payload.
func ParsePayload(payload []byte) ([]byte, error) {
	doc := bsoncore.Document(payload)
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	v, err := doc.LookupErr("jwt")
	if err != nil {
		return nil, errors.New("payload has no jwt field")
	}
	s, ok := v.StringValueOK()
	if !ok {
		return nil, errors.New("jwt field is not a string")
	}
	// The string value is a sub-slice of the document, return it without
	// copying.
	data := v.Data
	return data[4 : 4+len(s)], nil
}
