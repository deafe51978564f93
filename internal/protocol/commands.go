package protocol

import (
	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/wire"
)

// minimum identifier encoding is 1 (kind) + 1 (length) + 1 (shortest
// payload: a one-character name) = 3 bytes; a numeric identifier always
// carries a 4-byte payload, 6 bytes in all.
const minIdentifierSize = 3

func decodeIdentifierStrict(b []byte) (wire.Identifier, []byte, error) {
	id, n, err := wire.DecodeIdentifier(b)
	if err != nil {
		return wire.Identifier{}, nil, err
	}
	return id, b[n:], nil
}

// appendShortString wraps wire.AppendShortString for the as_bytes path,
// where a string longer than 255 bytes indicates a caller bug (names and
// consumer ids are validated at creation time), not a wire condition.
func appendShortString(dst []byte, s string) []byte {
	out, err := wire.AppendShortString(dst, s)
	if err != nil {
		panic(err)
	}
	return out
}

// readShortStringRest reads a short string and returns the unconsumed
// remainder of b, mirroring the (value, rest, err) shape used throughout
// this file's from_bytes functions.
func readShortStringRest(b []byte) (string, []byte, error) {
	s, n, err := wire.ReadShortString(b)
	if err != nil {
		return "", nil, err
	}
	return s, b[n:], nil
}

// readLongBytesRest reads a `u32 length | bytes` field and returns the
// unconsumed remainder of b.
func readLongBytesRest(b []byte) ([]byte, []byte, error) {
	v, n, err := wire.ReadLongBytes(b)
	if err != nil {
		return nil, nil, err
	}
	return v, b[n:], nil
}

// CreateStream is the payload for CodeCreateStream.
type CreateStream struct {
	StreamID uint32 // 0 means auto-assign
	Name     string
}

func (c CreateStream) AsBytes() []byte {
	dst := wire.AppendUint32(nil, c.StreamID)
	dst = appendShortString(dst, c.Name)
	return dst
}

func CreateStreamFromBytes(b []byte) (CreateStream, error) {
	if len(b) < 4+1 {
		return CreateStream{}, wire.New(wire.KindInvalidCommand, "CreateStream payload too short")
	}
	id, err := wire.ReadUint32(b)
	if err != nil {
		return CreateStream{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	name, rest, err := readShortStringRest(b[4:])
	if err != nil {
		return CreateStream{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 0 {
		return CreateStream{}, wire.New(wire.KindInvalidCommand, "trailing bytes in CreateStream payload")
	}
	return CreateStream{StreamID: id, Name: name}, nil
}

// StreamIdentifierCommand is the shared shape of DeleteStream, GetStream
// and PurgeStream: a single Identifier payload.
type StreamIdentifierCommand struct {
	StreamID wire.Identifier
}

func (c StreamIdentifierCommand) AsBytes() []byte {
	return c.StreamID.Encode(nil)
}

func StreamIdentifierCommandFromBytes(b []byte) (StreamIdentifierCommand, error) {
	if len(b) < minIdentifierSize {
		return StreamIdentifierCommand{}, wire.New(wire.KindInvalidCommand, "stream identifier payload too short")
	}
	id, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return StreamIdentifierCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 0 {
		return StreamIdentifierCommand{}, wire.New(wire.KindInvalidCommand, "trailing bytes after stream identifier")
	}
	return StreamIdentifierCommand{StreamID: id}, nil
}

// CreateTopic is the payload for CodeCreateTopic.
type CreateTopic struct {
	StreamID            wire.Identifier
	TopicID             uint32 // 0 means auto-assign
	Name                string
	PartitionsCount     uint32
	MessageExpirySecs   uint64 // 0 means unlimited
	MaxTopicSizeBytes   uint64 // 0 means unlimited
	ReplicationFactor   uint8
	CompressionAlgorithm string
}

func (c CreateTopic) AsBytes() []byte {
	dst := c.StreamID.Encode(nil)
	dst = wire.AppendUint32(dst, c.TopicID)
	dst = appendShortString(dst, c.Name)
	dst = wire.AppendUint32(dst, c.PartitionsCount)
	dst = wire.AppendUint64(dst, c.MessageExpirySecs)
	dst = wire.AppendUint64(dst, c.MaxTopicSizeBytes)
	dst = append(dst, c.ReplicationFactor)
	dst = appendShortString(dst, c.CompressionAlgorithm)
	return dst
}

func CreateTopicFromBytes(b []byte) (CreateTopic, error) {
	const minSize = minIdentifierSize + 4 + 1 + 4 + 8 + 8 + 1 + 1
	if len(b) < minSize {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "CreateTopic payload too short")
	}
	streamID, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) < 4 {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "CreateTopic payload truncated")
	}
	topicID, err := wire.ReadUint32(rest)
	if err != nil {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	rest = rest[4:]
	name, rest, err := readShortStringRest(rest)
	if err != nil {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) < 4+8+8+1 {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "CreateTopic payload truncated")
	}
	partitionsCount, err := wire.ReadUint32(rest)
	if err != nil {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	rest = rest[4:]
	expiry, err := wire.ReadUint64(rest)
	if err != nil {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	rest = rest[8:]
	maxSize, err := wire.ReadUint64(rest)
	if err != nil {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	rest = rest[8:]
	replication := rest[0]
	rest = rest[1:]
	compression, rest, err := readShortStringRest(rest)
	if err != nil {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 0 {
		return CreateTopic{}, wire.New(wire.KindInvalidCommand, "trailing bytes in CreateTopic payload")
	}
	return CreateTopic{
		StreamID: streamID, TopicID: topicID, Name: name,
		PartitionsCount: partitionsCount, MessageExpirySecs: expiry,
		MaxTopicSizeBytes: maxSize, ReplicationFactor: replication,
		CompressionAlgorithm: compression,
	}, nil
}

// DeleteTopic is the payload for CodeDeleteTopic: two Identifiers. The
// source this was distilled from checked for a minimum length of 10 bytes
// here, which is wrong: the tightest valid encoding of two identifiers is
// 3+3 = 6 bytes. The check below uses the correct minimum.
type DeleteTopic struct {
	StreamID wire.Identifier
	TopicID  wire.Identifier
}

func (c DeleteTopic) AsBytes() []byte {
	dst := c.StreamID.Encode(nil)
	dst = c.TopicID.Encode(dst)
	return dst
}

func DeleteTopicFromBytes(b []byte) (DeleteTopic, error) {
	const minSize = minIdentifierSize + minIdentifierSize
	if len(b) < minSize {
		return DeleteTopic{}, wire.New(wire.KindInvalidCommand, "DeleteTopic payload too short")
	}
	streamID, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return DeleteTopic{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	topicID, rest, err := decodeIdentifierStrict(rest)
	if err != nil {
		return DeleteTopic{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 0 {
		return DeleteTopic{}, wire.New(wire.KindInvalidCommand, "trailing bytes in DeleteTopic payload")
	}
	return DeleteTopic{StreamID: streamID, TopicID: topicID}, nil
}

// TopicIdentifierCommand is the shared shape of GetTopic and PurgeTopic:
// a stream Identifier and a topic Identifier.
type TopicIdentifierCommand struct {
	StreamID wire.Identifier
	TopicID  wire.Identifier
}

func (c TopicIdentifierCommand) AsBytes() []byte {
	dst := c.StreamID.Encode(nil)
	dst = c.TopicID.Encode(dst)
	return dst
}

func TopicIdentifierCommandFromBytes(b []byte) (TopicIdentifierCommand, error) {
	const minSize = minIdentifierSize + minIdentifierSize
	if len(b) < minSize {
		return TopicIdentifierCommand{}, wire.New(wire.KindInvalidCommand, "topic identifier payload too short")
	}
	streamID, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return TopicIdentifierCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	topicID, rest, err := decodeIdentifierStrict(rest)
	if err != nil {
		return TopicIdentifierCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 0 {
		return TopicIdentifierCommand{}, wire.New(wire.KindInvalidCommand, "trailing bytes after topic identifier")
	}
	return TopicIdentifierCommand{StreamID: streamID, TopicID: topicID}, nil
}

// PartitionsCommand is the shared shape of CreatePartitions and
// DeletePartitions.
type PartitionsCommand struct {
	StreamID wire.Identifier
	TopicID  wire.Identifier
	Count    uint32
}

func (c PartitionsCommand) AsBytes() []byte {
	dst := c.StreamID.Encode(nil)
	dst = c.TopicID.Encode(dst)
	dst = wire.AppendUint32(dst, c.Count)
	return dst
}

func PartitionsCommandFromBytes(b []byte) (PartitionsCommand, error) {
	const minSize = minIdentifierSize + minIdentifierSize + 4
	if len(b) < minSize {
		return PartitionsCommand{}, wire.New(wire.KindInvalidCommand, "partitions command payload too short")
	}
	streamID, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return PartitionsCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	topicID, rest, err := decodeIdentifierStrict(rest)
	if err != nil {
		return PartitionsCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 4 {
		return PartitionsCommand{}, wire.New(wire.KindInvalidCommand, "trailing bytes in partitions command payload")
	}
	count, err := wire.ReadUint32(rest)
	if err != nil {
		return PartitionsCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	return PartitionsCommand{StreamID: streamID, TopicID: topicID, Count: count}, nil
}

// SendMessages is the payload for CodeSendMessages.
type SendMessages struct {
	StreamID     wire.Identifier
	TopicID      wire.Identifier
	Partitioning topic.Partitioning
	Messages     []*message.Message
}

func (c SendMessages) AsBytes() []byte {
	dst := c.StreamID.Encode(nil)
	dst = c.TopicID.Encode(dst)
	dst = append(dst, byte(c.Partitioning.Strategy))
	switch c.Partitioning.Strategy {
	case topic.StrategyPartitionID:
		dst = wire.AppendUint32(dst, c.Partitioning.PartitionID)
	case topic.StrategyMessagesKey:
		dst = wire.AppendLongBytes(dst, c.Partitioning.Key)
	}
	dst = wire.AppendUint32(dst, uint32(len(c.Messages)))
	for _, m := range c.Messages {
		dst = m.Encode(dst)
	}
	return dst
}

func SendMessagesFromBytes(b []byte) (SendMessages, error) {
	const minSize = minIdentifierSize + minIdentifierSize + 1 + 4
	if len(b) < minSize {
		return SendMessages{}, wire.New(wire.KindInvalidCommand, "SendMessages payload too short")
	}
	streamID, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return SendMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	topicID, rest, err := decodeIdentifierStrict(rest)
	if err != nil {
		return SendMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) < 1 {
		return SendMessages{}, wire.New(wire.KindInvalidCommand, "SendMessages payload truncated")
	}
	strategy := topic.Strategy(rest[0])
	rest = rest[1:]

	p := topic.Partitioning{Strategy: strategy}
	switch strategy {
	case topic.StrategyPartitionID:
		if len(rest) < 4 {
			return SendMessages{}, wire.New(wire.KindInvalidCommand, "SendMessages partition id truncated")
		}
		v, err := wire.ReadUint32(rest)
		if err != nil {
			return SendMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
		}
		p.PartitionID = v
		rest = rest[4:]
	case topic.StrategyMessagesKey:
		key, tail, err := readLongBytesRest(rest)
		if err != nil {
			return SendMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
		}
		p.Key = key
		rest = tail
	}

	if len(rest) < 4 {
		return SendMessages{}, wire.New(wire.KindInvalidCommand, "SendMessages count truncated")
	}
	count, err := wire.ReadUint32(rest)
	if err != nil {
		return SendMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	rest = rest[4:]

	msgs := make([]*message.Message, 0, count)
	for i := uint32(0); i < count; i++ {
		m, n, err := message.Decode(rest)
		if err != nil && wire.KindOf(err) != wire.KindChecksumMismatch {
			return SendMessages{}, wire.New(wire.KindInvalidCommand, "decode message %d: %v", i, err)
		}
		msgs = append(msgs, m)
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return SendMessages{}, wire.New(wire.KindInvalidCommand, "trailing bytes in SendMessages payload")
	}
	return SendMessages{StreamID: streamID, TopicID: topicID, Partitioning: p, Messages: msgs}, nil
}

// PollMessages is the payload for CodePollMessages.
type PollMessages struct {
	StreamID    wire.Identifier
	TopicID     wire.Identifier
	PartitionID uint32
	Strategy    uint8 // 0=Offset 1=Timestamp 2=First 3=Last 4=Next
	Arg         uint64
	Count       uint32
	Consumer    string
	AutoCommit  bool
}

func (c PollMessages) AsBytes() []byte {
	dst := c.StreamID.Encode(nil)
	dst = c.TopicID.Encode(dst)
	dst = wire.AppendUint32(dst, c.PartitionID)
	dst = append(dst, c.Strategy)
	dst = wire.AppendUint64(dst, c.Arg)
	dst = wire.AppendUint32(dst, c.Count)
	dst = appendShortString(dst, c.Consumer)
	if c.AutoCommit {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	return dst
}

func PollMessagesFromBytes(b []byte) (PollMessages, error) {
	const minSize = minIdentifierSize + minIdentifierSize + 4 + 1 + 8 + 4 + 1 + 1
	if len(b) < minSize {
		return PollMessages{}, wire.New(wire.KindInvalidCommand, "PollMessages payload too short")
	}
	streamID, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return PollMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	topicID, rest, err := decodeIdentifierStrict(rest)
	if err != nil {
		return PollMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) < 4+1+8+4 {
		return PollMessages{}, wire.New(wire.KindInvalidCommand, "PollMessages payload truncated")
	}
	partitionID, err := wire.ReadUint32(rest)
	if err != nil {
		return PollMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	rest = rest[4:]
	strategy := rest[0]
	rest = rest[1:]
	arg, err := wire.ReadUint64(rest)
	if err != nil {
		return PollMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	rest = rest[8:]
	count, err := wire.ReadUint32(rest)
	if err != nil {
		return PollMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	rest = rest[4:]
	consumer, rest, err := readShortStringRest(rest)
	if err != nil {
		return PollMessages{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 1 {
		return PollMessages{}, wire.New(wire.KindInvalidCommand, "trailing bytes in PollMessages payload")
	}
	return PollMessages{
		StreamID: streamID, TopicID: topicID, PartitionID: partitionID,
		Strategy: strategy, Arg: arg, Count: count, Consumer: consumer,
		AutoCommit: rest[0] != 0,
	}, nil
}

// ConsumerGroupCommand is the shared shape of CreateConsumerGroup and
// DeleteConsumerGroup.
type ConsumerGroupCommand struct {
	StreamID wire.Identifier
	TopicID  wire.Identifier
	GroupID  uint32
	Name     string
}

func (c ConsumerGroupCommand) AsBytes() []byte {
	dst := c.StreamID.Encode(nil)
	dst = c.TopicID.Encode(dst)
	dst = wire.AppendUint32(dst, c.GroupID)
	dst = appendShortString(dst, c.Name)
	return dst
}

func ConsumerGroupCommandFromBytes(b []byte) (ConsumerGroupCommand, error) {
	const minSize = minIdentifierSize + minIdentifierSize + 4 + 1
	if len(b) < minSize {
		return ConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "consumer group command payload too short")
	}
	streamID, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return ConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	topicID, rest, err := decodeIdentifierStrict(rest)
	if err != nil {
		return ConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) < 4 {
		return ConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "consumer group command payload truncated")
	}
	groupID, err := wire.ReadUint32(rest)
	if err != nil {
		return ConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	rest = rest[4:]
	name, rest, err := readShortStringRest(rest)
	if err != nil {
		return ConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 0 {
		return ConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "trailing bytes in consumer group command payload")
	}
	return ConsumerGroupCommand{StreamID: streamID, TopicID: topicID, GroupID: groupID, Name: name}, nil
}

// MembershipCommand is the shared shape of JoinConsumerGroup and
// LeaveConsumerGroup.
type MembershipCommand struct {
	StreamID wire.Identifier
	TopicID  wire.Identifier
	GroupID  uint32
	MemberID uint32
}

func (c MembershipCommand) AsBytes() []byte {
	dst := c.StreamID.Encode(nil)
	dst = c.TopicID.Encode(dst)
	dst = wire.AppendUint32(dst, c.GroupID)
	dst = wire.AppendUint32(dst, c.MemberID)
	return dst
}

func MembershipCommandFromBytes(b []byte) (MembershipCommand, error) {
	const minSize = minIdentifierSize + minIdentifierSize + 4 + 4
	if len(b) < minSize {
		return MembershipCommand{}, wire.New(wire.KindInvalidCommand, "membership command payload too short")
	}
	streamID, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return MembershipCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	topicID, rest, err := decodeIdentifierStrict(rest)
	if err != nil {
		return MembershipCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 8 {
		return MembershipCommand{}, wire.New(wire.KindInvalidCommand, "trailing bytes in membership command payload")
	}
	groupID, err := wire.ReadUint32(rest)
	if err != nil {
		return MembershipCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	memberID, err := wire.ReadUint32(rest[4:])
	if err != nil {
		return MembershipCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	return MembershipCommand{StreamID: streamID, TopicID: topicID, GroupID: groupID, MemberID: memberID}, nil
}

// PollConsumerGroupCommand is the payload for CodePollConsumerGroup: a
// member asking to poll every partition currently assigned to it.
type PollConsumerGroupCommand struct {
	StreamID          wire.Identifier
	TopicID           wire.Identifier
	GroupID           uint32
	MemberID          uint32
	CountPerPartition uint32
}

func (c PollConsumerGroupCommand) AsBytes() []byte {
	dst := c.StreamID.Encode(nil)
	dst = c.TopicID.Encode(dst)
	dst = wire.AppendUint32(dst, c.GroupID)
	dst = wire.AppendUint32(dst, c.MemberID)
	dst = wire.AppendUint32(dst, c.CountPerPartition)
	return dst
}

func PollConsumerGroupCommandFromBytes(b []byte) (PollConsumerGroupCommand, error) {
	const minSize = minIdentifierSize + minIdentifierSize + 4 + 4 + 4
	if len(b) < minSize {
		return PollConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "poll consumer group command payload too short")
	}
	streamID, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return PollConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	topicID, rest, err := decodeIdentifierStrict(rest)
	if err != nil {
		return PollConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 12 {
		return PollConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "trailing bytes in poll consumer group command payload")
	}
	groupID, err := wire.ReadUint32(rest)
	if err != nil {
		return PollConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	memberID, err := wire.ReadUint32(rest[4:])
	if err != nil {
		return PollConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	count, err := wire.ReadUint32(rest[8:])
	if err != nil {
		return PollConsumerGroupCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	return PollConsumerGroupCommand{StreamID: streamID, TopicID: topicID, GroupID: groupID, MemberID: memberID, CountPerPartition: count}, nil
}

// OffsetCommand is the shared shape of StoreOffset and GetOffset.
type OffsetCommand struct {
	StreamID    wire.Identifier
	TopicID     wire.Identifier
	GroupID     uint32
	PartitionID uint32
	Offset      uint64 // unused (zero) for GetOffset
}

func (c OffsetCommand) AsBytes() []byte {
	dst := c.StreamID.Encode(nil)
	dst = c.TopicID.Encode(dst)
	dst = wire.AppendUint32(dst, c.GroupID)
	dst = wire.AppendUint32(dst, c.PartitionID)
	dst = wire.AppendUint64(dst, c.Offset)
	return dst
}

func OffsetCommandFromBytes(b []byte) (OffsetCommand, error) {
	const minSize = minIdentifierSize + minIdentifierSize + 4 + 4 + 8
	if len(b) < minSize {
		return OffsetCommand{}, wire.New(wire.KindInvalidCommand, "offset command payload too short")
	}
	streamID, rest, err := decodeIdentifierStrict(b)
	if err != nil {
		return OffsetCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	topicID, rest, err := decodeIdentifierStrict(rest)
	if err != nil {
		return OffsetCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 16 {
		return OffsetCommand{}, wire.New(wire.KindInvalidCommand, "trailing bytes in offset command payload")
	}
	groupID, err := wire.ReadUint32(rest)
	if err != nil {
		return OffsetCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	partitionID, err := wire.ReadUint32(rest[4:])
	if err != nil {
		return OffsetCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	offset, err := wire.ReadUint64(rest[8:])
	if err != nil {
		return OffsetCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	return OffsetCommand{StreamID: streamID, TopicID: topicID, GroupID: groupID, PartitionID: partitionID, Offset: offset}, nil
}

// CreateUser is the payload for CodeCreateUser.
type CreateUser struct {
	Username string
	Password string
	IsAdmin  bool
}

func (c CreateUser) AsBytes() []byte {
	dst := appendShortString(nil, c.Username)
	dst = appendShortString(dst, c.Password)
	if c.IsAdmin {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	return dst
}

func CreateUserFromBytes(b []byte) (CreateUser, error) {
	if len(b) < 1+1+1 {
		return CreateUser{}, wire.New(wire.KindInvalidCommand, "CreateUser payload too short")
	}
	username, rest, err := readShortStringRest(b)
	if err != nil {
		return CreateUser{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	password, rest, err := readShortStringRest(rest)
	if err != nil {
		return CreateUser{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 1 {
		return CreateUser{}, wire.New(wire.KindInvalidCommand, "trailing bytes in CreateUser payload")
	}
	return CreateUser{Username: username, Password: password, IsAdmin: rest[0] != 0}, nil
}

// UsernameCommand is the shared shape of DeleteUser and LoginUser's
// username-only half.
type UsernameCommand struct {
	Username string
}

func (c UsernameCommand) AsBytes() []byte {
	return appendShortString(nil, c.Username)
}

func UsernameCommandFromBytes(b []byte) (UsernameCommand, error) {
	if len(b) < 1 {
		return UsernameCommand{}, wire.New(wire.KindInvalidCommand, "username command payload too short")
	}
	username, rest, err := readShortStringRest(b)
	if err != nil {
		return UsernameCommand{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 0 {
		return UsernameCommand{}, wire.New(wire.KindInvalidCommand, "trailing bytes in username command payload")
	}
	return UsernameCommand{Username: username}, nil
}

// LoginUser is the payload for CodeLoginUser.
type LoginUser struct {
	Username string
	Password string
}

func (c LoginUser) AsBytes() []byte {
	dst := appendShortString(nil, c.Username)
	dst = appendShortString(dst, c.Password)
	return dst
}

func LoginUserFromBytes(b []byte) (LoginUser, error) {
	if len(b) < 1+1 {
		return LoginUser{}, wire.New(wire.KindInvalidCommand, "LoginUser payload too short")
	}
	username, rest, err := readShortStringRest(b)
	if err != nil {
		return LoginUser{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	password, rest, err := readShortStringRest(rest)
	if err != nil {
		return LoginUser{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 0 {
		return LoginUser{}, wire.New(wire.KindInvalidCommand, "trailing bytes in LoginUser payload")
	}
	return LoginUser{Username: username, Password: password}, nil
}

// ChangePassword is the payload for CodeChangePassword.
type ChangePassword struct {
	Username    string
	OldPassword string
	NewPassword string
}

func (c ChangePassword) AsBytes() []byte {
	dst := appendShortString(nil, c.Username)
	dst = appendShortString(dst, c.OldPassword)
	dst = appendShortString(dst, c.NewPassword)
	return dst
}

func ChangePasswordFromBytes(b []byte) (ChangePassword, error) {
	if len(b) < 1+1+1 {
		return ChangePassword{}, wire.New(wire.KindInvalidCommand, "ChangePassword payload too short")
	}
	username, rest, err := readShortStringRest(b)
	if err != nil {
		return ChangePassword{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	oldPassword, rest, err := readShortStringRest(rest)
	if err != nil {
		return ChangePassword{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	newPassword, rest, err := readShortStringRest(rest)
	if err != nil {
		return ChangePassword{}, wire.New(wire.KindInvalidCommand, "%v", err)
	}
	if len(rest) != 0 {
		return ChangePassword{}, wire.New(wire.KindInvalidCommand, "trailing bytes in ChangePassword payload")
	}
	return ChangePassword{Username: username, OldPassword: oldPassword, NewPassword: newPassword}, nil
}
