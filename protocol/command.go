package protocol

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// CommandError is returned when a server replies to a command with ok: 0.
type CommandError struct {
	Code     int32
	CodeName string
	Message  string
}

func (e *CommandError) Error() string {
	if e.CodeName != "" {
		return fmt.Sprintf("(%s) %s", e.CodeName, e.Message)
	}
	return e.Message
}

// CheckReply returns a *CommandError if the reply reports a failed command.
func CheckReply(reply bsoncore.Document) error {
	if OK(reply) {
		return nil
	}
	e := &CommandError{Message: "command failed"}
	if s, ok := reply.Lookup("errmsg").StringValueOK(); ok {
		e.Message = s
	}
	if s, ok := reply.Lookup("codeName").StringValueOK(); ok {
		e.CodeName = s
	}
	if v, err := reply.LookupErr("code"); err == nil {
		switch v.Type {
		case bsontype.Int32:
			e.Code = v.Int32()
		case bsontype.Int64:
			e.Code = int32(v.Int64())
		case bsontype.Double:
			e.Code = int32(v.Double())
		}
	}
	return e
}

// OK reports whether the ok field of reply is a numeric or boolean true.
func OK(reply bsoncore.Document) bool {
	v, err := reply.LookupErr("ok")
	if err != nil {
		return false
	}
	switch v.Type {
	case bsontype.Boolean:
		return v.Boolean()
	case bsontype.Int32:
		return v.Int32() == 1
	case bsontype.Int64:
		return v.Int64() == 1
	case bsontype.Double:
		return v.Double() == 1
	default:
		return false
	}
}

// CommandName returns the name of the command in doc, which is the key of its
// first element.
func CommandName(doc bsoncore.Document) string {
	elem, err := doc.IndexErr(0)
	if err != nil {
		return ""
	}
	return elem.Key()
}
