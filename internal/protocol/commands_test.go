package protocol

import (
	"testing"

	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStreamRoundTrip(t *testing.T) {
	cmd := CreateStream{StreamID: 7, Name: "alpha"}
	got, err := CreateStreamFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestCreateStreamTruncatedIsInvalidCommand(t *testing.T) {
	cmd := CreateStream{StreamID: 7, Name: "alpha"}
	b := cmd.AsBytes()
	_, err := CreateStreamFromBytes(b[:len(b)-2])
	require.Error(t, err)
	assert.Equal(t, wire.KindInvalidCommand, wire.KindOf(err))
}

func TestCreateStreamTrailingBytesIsInvalidCommand(t *testing.T) {
	cmd := CreateStream{StreamID: 7, Name: "alpha"}
	b := append(cmd.AsBytes(), 0xFF)
	_, err := CreateStreamFromBytes(b)
	require.Error(t, err)
}

func mustIdentifier(t *testing.T, s string) wire.Identifier {
	t.Helper()
	id, err := wire.ParseIdentifier(s)
	require.NoError(t, err)
	return id
}

// TestDeleteTopicMinimumLengthIsSixNotTen is the regression test for
// called-out bug: two minimal identifiers (one-character names) encode to
// 6 bytes total, and that must be accepted, not rejected by an
// over-strict 10-byte minimum.
func TestDeleteTopicMinimumLengthIsSixNotTen(t *testing.T) {
	cmd := DeleteTopic{StreamID: mustIdentifier(t, "a"), TopicID: mustIdentifier(t, "b")}
	b := cmd.AsBytes()
	assert.Equal(t, 6, len(b))

	got, err := DeleteTopicFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestDeleteTopicRoundTripWithNames(t *testing.T) {
	cmd := DeleteTopic{StreamID: mustIdentifier(t, "prod"), TopicID: mustIdentifier(t, "events")}
	got, err := DeleteTopicFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestCreateTopicRoundTrip(t *testing.T) {
	cmd := CreateTopic{
		StreamID: mustIdentifier(t, "prod"), TopicID: 1, Name: "events",
		PartitionsCount: 4, MessageExpirySecs: 3600, MaxTopicSizeBytes: 1 << 30,
		ReplicationFactor: 1, CompressionAlgorithm: "gzip",
	}
	got, err := CreateTopicFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestSendMessagesRoundTrip(t *testing.T) {
	cmd := SendMessages{
		StreamID: mustIdentifier(t, "1"), TopicID: mustIdentifier(t, "1"),
		Partitioning: topic.Partitioning{Strategy: topic.StrategyMessagesKey, Key: []byte("order-1")},
		Messages: []*message.Message{
			{Payload: []byte("a")},
			{Payload: []byte("b"), Headers: []message.Header{{Key: "k", Value: "v"}}},
		},
	}
	got, err := SendMessagesFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "a", string(got.Messages[0].Payload))
	assert.Equal(t, "b", string(got.Messages[1].Payload))
	assert.Equal(t, topic.StrategyMessagesKey, got.Partitioning.Strategy)
	assert.Equal(t, []byte("order-1"), got.Partitioning.Key)
}

func TestPollMessagesRoundTrip(t *testing.T) {
	cmd := PollMessages{
		StreamID: mustIdentifier(t, "1"), TopicID: mustIdentifier(t, "1"),
		PartitionID: 2, Strategy: 0, Arg: 10, Count: 50, Consumer: "c1", AutoCommit: true,
	}
	got, err := PollMessagesFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestMembershipCommandRoundTrip(t *testing.T) {
	cmd := MembershipCommand{StreamID: mustIdentifier(t, "1"), TopicID: mustIdentifier(t, "1"), GroupID: 5, MemberID: 9}
	got, err := MembershipCommandFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestOffsetCommandRoundTrip(t *testing.T) {
	cmd := OffsetCommand{StreamID: mustIdentifier(t, "1"), TopicID: mustIdentifier(t, "1"), GroupID: 5, PartitionID: 2, Offset: 77}
	got, err := OffsetCommandFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestCreateUserRoundTrip(t *testing.T) {
	cmd := CreateUser{Username: "alice", Password: "hunter2", IsAdmin: true}
	got, err := CreateUserFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestUsernameCommandRoundTrip(t *testing.T) {
	cmd := UsernameCommand{Username: "bob"}
	got, err := UsernameCommandFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestLoginUserRoundTrip(t *testing.T) {
	cmd := LoginUser{Username: "carol", Password: "pw"}
	got, err := LoginUserFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestChangePasswordRoundTrip(t *testing.T) {
	cmd := ChangePassword{Username: "dave", OldPassword: "old", NewPassword: "new"}
	got, err := ChangePasswordFromBytes(cmd.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestFrameEncodeDecodeRequest(t *testing.T) {
	payload := CreateStream{StreamID: 1, Name: "prod"}.AsBytes()
	frame := EncodeRequest(CodeCreateStream, "", payload)

	total, err := wire.ReadUint32(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(frame)-4), total)

	req, err := DecodeRequest(frame[4:])
	require.NoError(t, err)
	assert.Equal(t, CodeCreateStream, req.Code)
	assert.Equal(t, "", req.Token)
	assert.Equal(t, payload, req.Payload)
}

func TestFrameEncodeDecodeRequestWithToken(t *testing.T) {
	payload := CreateStream{StreamID: 1, Name: "prod"}.AsBytes()
	frame := EncodeRequest(CodeCreateStream, "a-bearer-token", payload)

	req, err := DecodeRequest(frame[4:])
	require.NoError(t, err)
	assert.Equal(t, "a-bearer-token", req.Token)
	assert.Equal(t, payload, req.Payload)
}

func TestFrameEncodeDecodeResponse(t *testing.T) {
	frame := EncodeOK([]byte("hello"))
	resp, err := DecodeResponse(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), resp.Status)
	assert.Equal(t, []byte("hello"), resp.Payload)
}

func TestFrameEncodeError(t *testing.T) {
	err := wire.New(wire.KindTopicNotFound, "topic 5 not found")
	frame := EncodeError(err)
	resp, decodeErr := DecodeResponse(frame)
	require.NoError(t, decodeErr)
	assert.Equal(t, wire.KindTopicNotFound.Code(), resp.Status)
}
