// Package dispatch wires the wire protocol's command codes to the broker's
// domain packages: it validates a decoded request, resolves the streams
// and topics it names, authorizes the caller, and returns an encoded
// response frame.
package dispatch

import (
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/streamkeg/internal/config"
	"github.com/FairForge/streamkeg/internal/group"
	"github.com/FairForge/streamkeg/internal/metrics"
	"github.com/FairForge/streamkeg/internal/partition"
	"github.com/FairForge/streamkeg/internal/protocol"
	"github.com/FairForge/streamkeg/internal/registry"
	"github.com/FairForge/streamkeg/internal/segment"
	"github.com/FairForge/streamkeg/internal/stream"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/users"
	"github.com/FairForge/streamkeg/internal/wire"
)

// Dispatcher routes a decoded protocol.Request to the domain package that
// serves it and encodes its outcome as a protocol.Response frame.
type Dispatcher struct {
	registry    *registry.Registry
	groups      *group.Manager
	users       *users.Manager
	metrics     *metrics.Metrics
	logger      *zap.Logger
	defaults    config.TopicDefaults
	segCfg      segment.Config
	dataCfg     config.DataConfig
	requireAuth bool
}

// New builds a Dispatcher over an already-booted registry.
func New(reg *registry.Registry, groups *group.Manager, userMgr *users.Manager, m *metrics.Metrics, logger *zap.Logger, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		groups:   groups,
		users:    userMgr,
		metrics:  m,
		logger:   logger,
		defaults: cfg.Topic,
		segCfg: segment.Config{
			MaxSize:      cfg.Data.SegmentMaxSizeBytes,
			IndexStride:  cfg.Data.SegmentIndexStride,
			CacheIndexes: cfg.Data.SegmentCacheIndexes,
		},
		dataCfg:     cfg.Data,
		requireAuth: cfg.Auth.RequireAuth,
	}
}

// codesNotRequiringAuth may be called on a connection that hasn't
// authenticated yet: pinging, logging in and registering the first account.
var codesNotRequiringAuth = map[protocol.Code]bool{
	protocol.CodePing:       true,
	protocol.CodeLoginUser:  true,
	protocol.CodeCreateUser: true,
}

// adminOnlyCodes are the mutating commands that require the caller's
// account to carry the is_admin bit when RequireAuth is set.
var adminOnlyCodes = map[protocol.Code]bool{
	protocol.CodeCreateStream:        true,
	protocol.CodeDeleteStream:        true,
	protocol.CodePurgeStream:         true,
	protocol.CodeCreateTopic:         true,
	protocol.CodeDeleteTopic:         true,
	protocol.CodePurgeTopic:          true,
	protocol.CodeCreatePartitions:    true,
	protocol.CodeDeletePartitions:    true,
	protocol.CodeCreateUser:          true,
	protocol.CodeDeleteUser:          true,
	protocol.CodeCreateConsumerGroup: true,
	protocol.CodeDeleteConsumerGroup: true,
}

// Dispatch handles one decoded request end to end and returns the bytes to
// write back to the caller.
func (d *Dispatcher) Dispatch(req protocol.Request) []byte {
	start := time.Now()
	var resp []byte
	err := d.authorize(req)
	if err == nil {
		resp, err = d.route(req)
	}
	status := "ok"
	if err != nil {
		status = wire.KindOf(err).String()
		d.logger.Debug("command failed", zap.Uint8("code", uint8(req.Code)), zap.Error(err))
	}
	if d.metrics != nil {
		d.metrics.ObserveCommand(codeName(req.Code), status, time.Since(start).Seconds())
	}
	if err != nil {
		return protocol.EncodeError(err)
	}
	return protocol.EncodeOK(resp)
}

// authorize verifies req.Token when the broker requires authentication,
// returning nil when the command may proceed.
func (d *Dispatcher) authorize(req protocol.Request) error {
	if !d.requireAuth || codesNotRequiringAuth[req.Code] {
		return nil
	}
	claims, err := d.users.VerifyToken(req.Token)
	if err != nil {
		return wire.New(wire.KindUnauthenticated, "%v", err)
	}
	if adminOnlyCodes[req.Code] && !claims.IsAdmin {
		return wire.New(wire.KindUnauthorized, "command requires an admin account")
	}
	return nil
}

func (d *Dispatcher) route(req protocol.Request) ([]byte, error) {
	switch req.Code {
	case protocol.CodePing:
		return nil, nil

	case protocol.CodeCreateStream:
		return d.createStream(req.Payload)
	case protocol.CodeDeleteStream:
		return d.deleteStream(req.Payload)
	case protocol.CodeGetStream:
		return d.getStream(req.Payload)
	case protocol.CodePurgeStream:
		return d.purgeStream(req.Payload)

	case protocol.CodeCreateTopic:
		return d.createTopic(req.Payload)
	case protocol.CodeDeleteTopic:
		return d.deleteTopic(req.Payload)
	case protocol.CodeGetTopic:
		return d.getTopic(req.Payload)
	case protocol.CodePurgeTopic:
		return d.purgeTopic(req.Payload)
	case protocol.CodeCreatePartitions:
		return d.createPartitions(req.Payload)
	case protocol.CodeDeletePartitions:
		return d.deletePartitions(req.Payload)

	case protocol.CodeSendMessages:
		return d.sendMessages(req.Payload)
	case protocol.CodePollMessages:
		return d.pollMessages(req.Payload)

	case protocol.CodeCreateConsumerGroup:
		return d.createConsumerGroup(req.Payload)
	case protocol.CodeDeleteConsumerGroup:
		return d.deleteConsumerGroup(req.Payload)
	case protocol.CodeJoinConsumerGroup:
		return d.joinConsumerGroup(req.Payload)
	case protocol.CodeLeaveConsumerGroup:
		return d.leaveConsumerGroup(req.Payload)
	case protocol.CodePollConsumerGroup:
		return d.pollConsumerGroup(req.Payload)
	case protocol.CodeHeartbeatConsumerGroup:
		return d.heartbeatConsumerGroup(req.Payload)
	case protocol.CodeStoreOffset:
		return d.storeOffset(req.Payload)
	case protocol.CodeGetOffset:
		return d.getOffset(req.Payload)

	case protocol.CodeCreateUser:
		return d.createUser(req.Payload)
	case protocol.CodeDeleteUser:
		return d.deleteUser(req.Payload)
	case protocol.CodeLoginUser:
		return d.loginUser(req.Payload)
	case protocol.CodeChangePassword:
		return d.changePassword(req.Payload)

	default:
		return nil, wire.New(wire.KindInvalidCommand, "unknown command code %d", req.Code)
	}
}

func codeName(c protocol.Code) string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "unknown"
}

var codeNames = map[protocol.Code]string{
	protocol.CodePing:                   "ping",
	protocol.CodeCreateStream:           "create_stream",
	protocol.CodeDeleteStream:           "delete_stream",
	protocol.CodeGetStream:              "get_stream",
	protocol.CodePurgeStream:            "purge_stream",
	protocol.CodeCreateTopic:            "create_topic",
	protocol.CodeDeleteTopic:            "delete_topic",
	protocol.CodeGetTopic:               "get_topic",
	protocol.CodePurgeTopic:             "purge_topic",
	protocol.CodeCreatePartitions:       "create_partitions",
	protocol.CodeDeletePartitions:       "delete_partitions",
	protocol.CodeSendMessages:           "send_messages",
	protocol.CodePollMessages:           "poll_messages",
	protocol.CodeCreateConsumerGroup:    "create_consumer_group",
	protocol.CodeDeleteConsumerGroup:    "delete_consumer_group",
	protocol.CodeJoinConsumerGroup:      "join_consumer_group",
	protocol.CodeLeaveConsumerGroup:     "leave_consumer_group",
	protocol.CodePollConsumerGroup:      "poll_consumer_group",
	protocol.CodeHeartbeatConsumerGroup: "heartbeat_consumer_group",
	protocol.CodeStoreOffset:            "store_offset",
	protocol.CodeGetOffset:              "get_offset",
	protocol.CodeCreateUser:             "create_user",
	protocol.CodeDeleteUser:             "delete_user",
	protocol.CodeLoginUser:              "login_user",
	protocol.CodeChangePassword:         "change_password",
}

func (d *Dispatcher) resolveTopic(streamID, topicID wire.Identifier) (*stream.Stream, *topic.Topic, error) {
	s, t, ok := d.registry.ResolveTopic(streamID, topicID)
	if !ok {
		if s == nil {
			return nil, nil, wire.New(wire.KindStreamNotFound, "stream not found")
		}
		return nil, nil, wire.New(wire.KindTopicNotFound, "topic not found")
	}
	return s, t, nil
}

func (d *Dispatcher) partitionConfig() partition.Config {
	return partition.Config{
		Segment:                d.segCfg,
		MessagesRequiredToSave: d.dataCfg.MessagesRequiredToSave,
		EnforceFsync:           d.dataCfg.EnforceFsync,
		CacheCapacity:          d.dataCfg.CacheCapacityMessages,
		DedupEnabled:           d.defaults.DedupEnabled,
		DedupMaxEntries:        d.defaults.DedupMaxEntries,
		DedupExpiry:            d.defaults.DedupExpiry,
	}
}
