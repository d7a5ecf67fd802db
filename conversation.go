package mongo

import (
	"context"
	"fmt"

	"github.com/segmentio/mongo-go/internal/secret"
	"github.com/segmentio/mongo-go/sasl"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// externalDB is the database that authentication commands backed by an
// external identity provider run against.
const externalDB = "$external"

// RoundTripper is the interface of values that send a command to a server and
// return its reply.
//
// A RoundTripper is owned by a single authentication attempt for the duration
// of a conversation, it does not need to be safe for concurrent use.
type RoundTripper interface {
	RoundTrip(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error)
}

// RoundTripperFunc is an adapter to allow the use of ordinary functions as
// round trippers.
type RoundTripperFunc func(context.Context, string, bsoncore.Document) (bsoncore.Document, error)

// RoundTrip calls f(ctx, db, cmd).
func (f RoundTripperFunc) RoundTrip(ctx context.Context, db string, cmd bsoncore.Document) (bsoncore.Document, error) {
	return f(ctx, db, cmd)
}

// Step is the position of a SASL conversation.
type Step int

const (
	StepStart Step = iota
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepStart:
		return "start"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// ConversationState describes a SASL conversation with a server.
type ConversationState struct {
	ConversationID int32
	Mechanism      string
	Step           Step
}

// runOneStep sends the saslStart command carrying the initial response of the
// mechanism and validates the server reply. The command buffers are erased
// before returning.
func runOneStep(ctx context.Context, mechanism sasl.Mechanism, rt RoundTripper) (ConversationState, error) {
	state := ConversationState{
		Mechanism: mechanism.Name(),
		Step:      StepStart,
	}

	_, payload, err := mechanism.Start(ctx)
	if err != nil {
		return state, makeError(CallbackFailed, "failed to start "+state.Mechanism+" conversation", err)
	}
	defer secret.Erase(payload)

	cmd := saslStartCommand(state.Mechanism, payload)
	defer secret.Erase(cmd)

	reply, err := rt.RoundTrip(ctx, externalDB, cmd)
	if err != nil {
		return state, makeError(TransportFailure, "failed to run "+state.Mechanism+" one-step conversation command", err)
	}

	id, ok := conversationID(reply)
	if !ok || id == 0 {
		msg := "server reply did not contain conversationId"
		if errmsg, ok := reply.Lookup("errmsg").StringValueOK(); ok {
			msg += ": " + errmsg
		}
		return state, makeError(ProtocolViolation, msg, nil)
	}

	state.ConversationID = id
	state.Step = StepDone
	return state, nil
}

func saslStartCommand(mechanism string, payload []byte) bsoncore.Document {
	size := 64 + len(mechanism) + len(payload)
	idx, cmd := bsoncore.AppendDocumentStart(make([]byte, 0, size))
	cmd = bsoncore.AppendInt32Element(cmd, "saslStart", 1)
	cmd = bsoncore.AppendStringElement(cmd, "mechanism", mechanism)
	cmd = bsoncore.AppendBinaryElement(cmd, "payload", bsontype.BinaryGeneric, payload)
	cmd, _ = bsoncore.AppendDocumentEnd(cmd, idx)
	return cmd
}

// conversationID extracts the conversationId field of a reply, servers encode
// it as a 32 bits integer but any integral numeric type is accepted.
func conversationID(reply bsoncore.Document) (int32, bool) {
	if len(reply) == 0 {
		return 0, false
	}
	v, err := reply.LookupErr("conversationId")
	if err != nil {
		return 0, false
	}
	switch v.Type {
	case bsontype.Int32:
		return v.Int32(), true
	case bsontype.Int64:
		i := v.Int64()
		return int32(i), int64(int32(i)) == i
	case bsontype.Double:
		f := v.Double()
		return int32(f), float64(int32(f)) == f
	default:
		return 0, false
	}
}
