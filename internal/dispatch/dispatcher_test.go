package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/streamkeg/internal/cache"
	"github.com/FairForge/streamkeg/internal/config"
	"github.com/FairForge/streamkeg/internal/diskio"
	"github.com/FairForge/streamkeg/internal/group"
	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/protocol"
	"github.com/FairForge/streamkeg/internal/registry"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/users"
	"github.com/FairForge/streamkeg/internal/wire"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	reg, err := registry.Boot(t.TempDir(), diskio.New(2), cache.NewQuota(1<<20))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Data.SegmentMaxSizeBytes = 1 << 20

	return New(reg, group.NewManager(), users.NewManager([]byte("test-secret"), cfg.Auth.TokenTTL), nil, zap.NewNop(), cfg)
}

func mustDecodeResponse(t *testing.T, frame []byte) protocol.Response {
	t.Helper()
	resp, err := protocol.DecodeResponse(frame)
	require.NoError(t, err)
	return resp
}

func TestDispatchCreateStreamThenGetStream(t *testing.T) {
	d := newTestDispatcher(t)

	createPayload := protocol.CreateStream{StreamID: 0, Name: "prod"}.AsBytes()
	resp := mustDecodeResponse(t, d.Dispatch(protocol.Request{Code: protocol.CodeCreateStream, Payload: createPayload}))
	require.Equal(t, uint32(0), resp.Status)

	streamID, err := wire.ReadUint32(resp.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), streamID)

	getPayload := protocol.StreamIdentifierCommand{StreamID: wire.NumericID(streamID)}.AsBytes()
	getResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{Code: protocol.CodeGetStream, Payload: getPayload}))
	require.Equal(t, uint32(0), getResp.Status)
}

func TestDispatchUnknownStreamReturnsNotFoundStatus(t *testing.T) {
	d := newTestDispatcher(t)

	payload := protocol.StreamIdentifierCommand{StreamID: wire.NumericID(99)}.AsBytes()
	resp := mustDecodeResponse(t, d.Dispatch(protocol.Request{Code: protocol.CodeGetStream, Payload: payload}))
	assert.Equal(t, wire.KindStreamNotFound.Code(), resp.Status)
}

func TestDispatchCreateTopicSendAndPoll(t *testing.T) {
	d := newTestDispatcher(t)

	createStream := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code:    protocol.CodeCreateStream,
		Payload: protocol.CreateStream{Name: "prod"}.AsBytes(),
	}))
	streamID, err := wire.ReadUint32(createStream.Payload)
	require.NoError(t, err)

	createTopic := protocol.CreateTopic{
		StreamID: wire.NumericID(streamID), Name: "events", PartitionsCount: 2,
	}
	createTopicResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{Code: protocol.CodeCreateTopic, Payload: createTopic.AsBytes()}))
	require.Equal(t, uint32(0), createTopicResp.Status)
	topicID, err := wire.ReadUint32(createTopicResp.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), topicID)

	send := protocol.SendMessages{
		StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID),
		Partitioning: topic.Partitioning{Strategy: topic.StrategyPartitionID, PartitionID: 0},
		Messages:     []*message.Message{{Payload: []byte("hello")}},
	}
	sendResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{Code: protocol.CodeSendMessages, Payload: send.AsBytes()}))
	require.Equal(t, uint32(0), sendResp.Status)

	poll := protocol.PollMessages{
		StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID),
		PartitionID: 0, Strategy: 2, Count: 10, Consumer: "c1",
	}
	pollResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{Code: protocol.CodePollMessages, Payload: poll.AsBytes()}))
	require.Equal(t, uint32(0), pollResp.Status)

	count, err := wire.ReadUint32(pollResp.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count)
}

func TestDispatchConsumerGroupJoinAndStoreOffset(t *testing.T) {
	d := newTestDispatcher(t)

	streamResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{Code: protocol.CodeCreateStream, Payload: protocol.CreateStream{Name: "prod"}.AsBytes()}))
	streamID, _ := wire.ReadUint32(streamResp.Payload)

	topicResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodeCreateTopic,
		Payload: protocol.CreateTopic{
			StreamID: wire.NumericID(streamID), Name: "events", PartitionsCount: 2,
		}.AsBytes(),
	}))
	topicID, _ := wire.ReadUint32(topicResp.Payload)

	groupResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodeCreateConsumerGroup,
		Payload: protocol.ConsumerGroupCommand{
			StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID), Name: "workers",
		}.AsBytes(),
	}))
	require.Equal(t, uint32(0), groupResp.Status)
	groupID, _ := wire.ReadUint32(groupResp.Payload)

	joinResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodeJoinConsumerGroup,
		Payload: protocol.MembershipCommand{
			StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID), GroupID: groupID, MemberID: 1,
		}.AsBytes(),
	}))
	require.Equal(t, uint32(0), joinResp.Status)

	storeResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodeStoreOffset,
		Payload: protocol.OffsetCommand{
			StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID),
			GroupID: groupID, PartitionID: 0, Offset: 5,
		}.AsBytes(),
	}))
	require.Equal(t, uint32(0), storeResp.Status)

	getResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodeGetOffset,
		Payload: protocol.OffsetCommand{
			StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID),
			GroupID: groupID, PartitionID: 0,
		}.AsBytes(),
	}))
	require.Equal(t, uint32(0), getResp.Status)
	offset, err := wire.ReadUint64(getResp.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), offset)
}

func TestDispatchConsumerGroupPollAndHeartbeat(t *testing.T) {
	d := newTestDispatcher(t)

	streamResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{Code: protocol.CodeCreateStream, Payload: protocol.CreateStream{Name: "prod"}.AsBytes()}))
	streamID, _ := wire.ReadUint32(streamResp.Payload)

	topicResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodeCreateTopic,
		Payload: protocol.CreateTopic{
			StreamID: wire.NumericID(streamID), Name: "events", PartitionsCount: 2,
		}.AsBytes(),
	}))
	topicID, _ := wire.ReadUint32(topicResp.Payload)

	groupResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodeCreateConsumerGroup,
		Payload: protocol.ConsumerGroupCommand{
			StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID), Name: "workers",
		}.AsBytes(),
	}))
	groupID, _ := wire.ReadUint32(groupResp.Payload)

	joinResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodeJoinConsumerGroup,
		Payload: protocol.MembershipCommand{
			StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID), GroupID: groupID, MemberID: 1,
		}.AsBytes(),
	}))
	require.Equal(t, uint32(0), joinResp.Status)

	sendResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodeSendMessages,
		Payload: protocol.SendMessages{
			StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID),
			Partitioning: topic.Partitioning{Strategy: topic.StrategyPartitionID, PartitionID: 0},
			Messages:     []*message.Message{{Payload: []byte("hello")}},
		}.AsBytes(),
	}))
	require.Equal(t, uint32(0), sendResp.Status)

	pollResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodePollConsumerGroup,
		Payload: protocol.PollConsumerGroupCommand{
			StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID),
			GroupID: groupID, MemberID: 1, CountPerPartition: 10,
		}.AsBytes(),
	}))
	require.Equal(t, uint32(0), pollResp.Status)

	partitionCount, err := wire.ReadUint32(pollResp.Payload)
	require.NoError(t, err)
	require.Equal(t, uint32(1), partitionCount) // only the partition holding a message is reported

	partitionID, err := wire.ReadUint32(pollResp.Payload[4:])
	require.NoError(t, err)
	assert.Equal(t, uint32(0), partitionID)

	msgCount, err := wire.ReadUint32(pollResp.Payload[8:])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), msgCount)

	heartbeatResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code: protocol.CodeHeartbeatConsumerGroup,
		Payload: protocol.MembershipCommand{
			StreamID: wire.NumericID(streamID), TopicID: wire.NumericID(topicID), GroupID: groupID, MemberID: 1,
		}.AsBytes(),
	}))
	require.Equal(t, uint32(0), heartbeatResp.Status)
}

func TestDispatchUserCreateAndLogin(t *testing.T) {
	d := newTestDispatcher(t)

	createResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code:    protocol.CodeCreateUser,
		Payload: protocol.CreateUser{Username: "alice", Password: "hunter2"}.AsBytes(),
	}))
	require.Equal(t, uint32(0), createResp.Status)

	loginResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code:    protocol.CodeLoginUser,
		Payload: protocol.LoginUser{Username: "alice", Password: "hunter2"}.AsBytes(),
	}))
	require.Equal(t, uint32(0), loginResp.Status)
	assert.NotEmpty(t, loginResp.Payload)

	badLoginResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code:    protocol.CodeLoginUser,
		Payload: protocol.LoginUser{Username: "alice", Password: "wrong"}.AsBytes(),
	}))
	assert.Equal(t, wire.KindUnauthenticated.Code(), badLoginResp.Status)
}

func TestDispatchPingReturnsOK(t *testing.T) {
	d := newTestDispatcher(t)
	resp := mustDecodeResponse(t, d.Dispatch(protocol.Request{Code: protocol.CodePing}))
	assert.Equal(t, uint32(0), resp.Status)
}

func TestDispatchRequireAuthRejectsMissingToken(t *testing.T) {
	d := newTestDispatcher(t)
	d.requireAuth = true

	resp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code:    protocol.CodeCreateStream,
		Payload: protocol.CreateStream{Name: "prod"}.AsBytes(),
	}))
	assert.Equal(t, wire.KindUnauthenticated.Code(), resp.Status)

	ping := mustDecodeResponse(t, d.Dispatch(protocol.Request{Code: protocol.CodePing}))
	assert.Equal(t, uint32(0), ping.Status)
}

func TestDispatchRequireAuthRejectsNonAdminOnAdminCommand(t *testing.T) {
	d := newTestDispatcher(t)
	d.requireAuth = true

	createResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code:    protocol.CodeCreateUser,
		Payload: protocol.CreateUser{Username: "alice", Password: "hunter2"}.AsBytes(),
	}))
	require.Equal(t, uint32(0), createResp.Status)

	loginResp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code:    protocol.CodeLoginUser,
		Payload: protocol.LoginUser{Username: "alice", Password: "hunter2"}.AsBytes(),
	}))
	require.Equal(t, uint32(0), loginResp.Status)
	token, _, err := wire.ReadLongBytes(loginResp.Payload)
	require.NoError(t, err)

	resp := mustDecodeResponse(t, d.Dispatch(protocol.Request{
		Code:    protocol.CodeCreateStream,
		Token:   string(token),
		Payload: protocol.CreateStream{Name: "prod"}.AsBytes(),
	}))
	assert.Equal(t, wire.KindUnauthorized.Code(), resp.Status)
}
