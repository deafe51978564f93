// Package protocol implements the framed request/response
// wire format and the as_bytes/from_bytes codec for every command payload.
package protocol

import (
	"github.com/FairForge/streamkeg/internal/wire"
)

// Code identifies a command's payload shape
type Code uint8

const (
	CodePing Code = iota + 1

	CodeCreateStream
	CodeDeleteStream
	CodeGetStream
	CodePurgeStream

	CodeCreateTopic
	CodeDeleteTopic
	CodeGetTopic
	CodePurgeTopic
	CodeCreatePartitions
	CodeDeletePartitions

	CodeSendMessages
	CodePollMessages

	CodeCreateConsumerGroup
	CodeDeleteConsumerGroup
	CodeJoinConsumerGroup
	CodeLeaveConsumerGroup
	CodePollConsumerGroup
	CodeHeartbeatConsumerGroup
	CodeStoreOffset
	CodeGetOffset

	CodeCreateUser
	CodeDeleteUser
	CodeLoginUser
	CodeChangePassword
)

// Request is a decoded incoming frame: total_length | code | token | payload.
// Token is the bearer token issued by CodeLoginUser; it is empty for
// connections that haven't authenticated, which is only valid when the
// broker is not configured with RequireAuth.
type Request struct {
	Code    Code
	Token   string
	Payload []byte
}

// EncodeRequest builds the wire frame for a request: total_length: u32 LE
// covering code+token+payload, then code: u8, then token as a `u32 length |
// utf8` field (a JWT routinely exceeds the 255-byte short-string limit),
// then payload.
func EncodeRequest(code Code, token string, payload []byte) []byte {
	body := append([]byte{byte(code)}, wire.AppendLongBytes(nil, []byte(token))...)
	body = append(body, payload...)
	dst := wire.AppendUint32(nil, uint32(len(body)))
	dst = append(dst, body...)
	return dst
}

// DecodeRequest parses a frame's body (everything after the 4-byte length
// prefix has already been read by the caller, i.e. b is code+token+payload).
func DecodeRequest(b []byte) (Request, error) {
	if len(b) < 1 {
		return Request{}, wire.New(wire.KindInvalidCommand, "empty request frame")
	}
	code := Code(b[0])
	token, rest, err := readLongBytesRest(b[1:])
	if err != nil {
		return Request{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	return Request{Code: code, Token: string(token), Payload: rest}, nil
}

// Response is a decoded outgoing frame: status | payload_length | payload.
type Response struct {
	Status  uint32
	Payload []byte
}

// EncodeResponse builds the wire frame for a response.
func EncodeResponse(status uint32, payload []byte) []byte {
	dst := wire.AppendUint32(nil, status)
	dst = wire.AppendUint32(dst, uint32(len(payload)))
	dst = append(dst, payload...)
	return dst
}

// EncodeOK builds a success (status=0) response frame.
func EncodeOK(payload []byte) []byte {
	return EncodeResponse(0, payload)
}

// EncodeError builds an error response frame carrying the Kind's wire code
// and the error message as payload.
func EncodeError(err error) []byte {
	kind := wire.KindOf(err)
	msg := err.Error()
	return EncodeResponse(kind.Code(), []byte(msg))
}

// DecodeResponse parses a full response frame (status+payload_length+payload
// already assembled from the transport).
func DecodeResponse(b []byte) (Response, error) {
	if len(b) < 8 {
		return Response{}, wire.New(wire.KindInvalidCommand, "response frame shorter than header")
	}
	status, err := wire.ReadUint32(b)
	if err != nil {
		return Response{}, err
	}
	payloadLen, err := wire.ReadUint32(b[4:])
	if err != nil {
		return Response{}, err
	}
	rest := b[8:]
	if uint32(len(rest)) < payloadLen {
		return Response{}, wire.New(wire.KindInvalidCommand, "response payload shorter than declared length")
	}
	if uint32(len(rest)) != payloadLen {
		return Response{}, wire.New(wire.KindInvalidCommand, "trailing bytes after response payload")
	}
	return Response{Status: status, Payload: rest}, nil
}
