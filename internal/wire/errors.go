// Package wire holds the primitives shared by every wire-level encoder in
// streamkeg: the dual numeric/named Identifier, little-endian integer and
// length-prefixed string helpers, and the broker-wide error taxonomy.
package wire

import "fmt"

// Kind enumerates the broker's error taxonomy. Every Error carries exactly
// one Kind so callers (the dispatcher, the CLI, the wire status code table)
// can switch on it without string matching.
type Kind int

// Kind 0 is reserved for "no error" on the wire (status = 0 means success);
// KindUnknown starts the taxonomy at 1 so a zero-value Kind is never
// mistaken for a real error.
const (
	KindUnknown Kind = iota + 1

	// Protocol
	KindInvalidCommand
	KindInvalidPayload
	KindInvalidIdentifier

	// Not found / conflict
	KindStreamNotFound
	KindTopicNotFound
	KindPartitionNotFound
	KindConsumerGroupNotFound
	KindStreamIDAlreadyExists
	KindStreamNameAlreadyExists
	KindTopicIDAlreadyExists
	KindTopicNameAlreadyExists
	KindConsumerGroupIDAlreadyExists
	KindConsumerGroupNameAlreadyExists

	// Validation
	KindInvalidStreamName
	KindInvalidTopicName
	KindInvalidTopicPartitions
	KindInvalidMessageExpiry
	KindInvalidMaxTopicSize
	KindInvalidReplicationFactor

	// State
	KindSegmentClosed
	KindOffsetOutOfRange
	KindNoMessages
	KindConsumerGroupMemberNotFound
	KindPartitionAlreadyAssigned

	// I/O
	KindIoError
	KindChecksumMismatch
	KindCorruptIndex

	// Auth
	KindUnauthenticated
	KindUnauthorized
	KindInvalidCredentials
)

var kindNames = map[Kind]string{
	KindUnknown:                      "Unknown",
	KindInvalidCommand:               "InvalidCommand",
	KindInvalidPayload:               "InvalidPayload",
	KindInvalidIdentifier:            "InvalidIdentifier",
	KindStreamNotFound:               "StreamNotFound",
	KindTopicNotFound:                "TopicNotFound",
	KindPartitionNotFound:            "PartitionNotFound",
	KindConsumerGroupNotFound:        "ConsumerGroupNotFound",
	KindStreamIDAlreadyExists:        "StreamIdAlreadyExists",
	KindStreamNameAlreadyExists:      "StreamNameAlreadyExists",
	KindTopicIDAlreadyExists:         "TopicIdAlreadyExists",
	KindTopicNameAlreadyExists:       "TopicNameAlreadyExists",
	KindConsumerGroupIDAlreadyExists: "ConsumerGroupIdAlreadyExists",
	KindConsumerGroupNameAlreadyExists: "ConsumerGroupNameAlreadyExists",
	KindInvalidStreamName:            "InvalidStreamName",
	KindInvalidTopicName:             "InvalidTopicName",
	KindInvalidTopicPartitions:       "InvalidTopicPartitions",
	KindInvalidMessageExpiry:         "InvalidMessageExpiry",
	KindInvalidMaxTopicSize:          "InvalidMaxTopicSize",
	KindInvalidReplicationFactor:     "InvalidReplicationFactor",
	KindSegmentClosed:                "SegmentClosed",
	KindOffsetOutOfRange:             "OffsetOutOfRange",
	KindNoMessages:                   "NoMessages",
	KindConsumerGroupMemberNotFound:  "ConsumerGroupMemberNotFound",
	KindPartitionAlreadyAssigned:     "PartitionAlreadyAssigned",
	KindIoError:                      "IoError",
	KindChecksumMismatch:             "ChecksumMismatch",
	KindCorruptIndex:                 "CorruptIndex",
	KindUnauthenticated:              "Unauthenticated",
	KindUnauthorized:                 "Unauthorized",
	KindInvalidCredentials:           "InvalidCredentials",
}

// Code returns the wire status code for a Kind. 0 is reserved for success;
// every error Kind maps to a small positive integer that is stable across
// releases because clients parse it.
func (k Kind) Code() uint32 {
	return uint32(k)
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Error is the concrete error type returned by every broker component. It
// carries a Kind for dispatch and a human-readable message for logs and CLI
// output.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New builds an *Error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind carried by err, or KindUnknown if err is nil or
// not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if err == nil {
		return KindUnknown
	}
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return KindUnknown
	}
	return e.Kind
}
