package dispatch

import (
	"sort"
	"time"

	"github.com/FairForge/streamkeg/internal/group"
	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/partition"
	"github.com/FairForge/streamkeg/internal/protocol"
	"github.com/FairForge/streamkeg/internal/stream"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/wire"
)

func (d *Dispatcher) createStream(payload []byte) ([]byte, error) {
	cmd, err := protocol.CreateStreamFromBytes(payload)
	if err != nil {
		return nil, err
	}
	s, err := d.registry.CreateStream(cmd.StreamID, cmd.Name)
	if err != nil {
		return nil, err
	}
	return encodeStreamDetails(s.GetDetails()), nil
}

func (d *Dispatcher) deleteStream(payload []byte) ([]byte, error) {
	cmd, err := protocol.StreamIdentifierCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	s, ok := d.registry.ResolveStream(cmd.StreamID)
	if !ok {
		return nil, wire.New(wire.KindStreamNotFound, "stream not found")
	}
	return nil, d.registry.DeleteStream(s.ID)
}

func (d *Dispatcher) getStream(payload []byte) ([]byte, error) {
	cmd, err := protocol.StreamIdentifierCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	s, ok := d.registry.ResolveStream(cmd.StreamID)
	if !ok {
		return nil, wire.New(wire.KindStreamNotFound, "stream not found")
	}
	return encodeStreamDetails(s.GetDetails()), nil
}

func (d *Dispatcher) purgeStream(payload []byte) ([]byte, error) {
	cmd, err := protocol.StreamIdentifierCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	s, ok := d.registry.ResolveStream(cmd.StreamID)
	if !ok {
		return nil, wire.New(wire.KindStreamNotFound, "stream not found")
	}
	return nil, s.Purge()
}

func (d *Dispatcher) createTopic(payload []byte) ([]byte, error) {
	cmd, err := protocol.CreateTopicFromBytes(payload)
	if err != nil {
		return nil, err
	}
	s, ok := d.registry.ResolveStream(cmd.StreamID)
	if !ok {
		return nil, wire.New(wire.KindStreamNotFound, "stream not found")
	}

	alg := cmd.CompressionAlgorithm
	if alg == "" {
		alg = d.defaults.CompressionAlgorithm
	}
	compression, err := topic.ParseCompression(alg)
	if err != nil {
		return nil, err
	}
	brokerDefault, err := topic.ParseCompression(d.defaults.CompressionAlgorithm)
	if err != nil {
		return nil, err
	}
	if err := topic.ValidateCompressionChoice(compression, brokerDefault, d.defaults.AllowCompressionOverride); err != nil {
		return nil, err
	}

	cfg := topic.Config{
		ReplicationFactor:   cmd.ReplicationFactor,
		CompressionDefault:  compression,
		CompressionOverride: d.defaults.AllowCompressionOverride,
		Partition:           d.partitionConfig(),
	}
	if cmd.MessageExpirySecs > 0 {
		expiry := time.Duration(cmd.MessageExpirySecs) * time.Second
		cfg.MessageExpiry = &expiry
	}
	if cmd.MaxTopicSizeBytes > 0 {
		size := cmd.MaxTopicSizeBytes
		cfg.MaxTopicSize = &size
	}

	t, err := s.CreateTopic(cmd.TopicID, cmd.Name, cfg)
	if err != nil {
		return nil, err
	}
	if err := t.CreatePartitions(cmd.PartitionsCount); err != nil {
		return nil, err
	}
	return encodeTopicDetails(t.GetDetails()), nil
}

func (d *Dispatcher) deleteTopic(payload []byte) ([]byte, error) {
	cmd, err := protocol.DeleteTopicFromBytes(payload)
	if err != nil {
		return nil, err
	}
	s, t, err := d.resolveTopic(cmd.StreamID, cmd.TopicID)
	if err != nil {
		return nil, err
	}
	return nil, s.DeleteTopic(t.ID)
}

func (d *Dispatcher) getTopic(payload []byte) ([]byte, error) {
	cmd, err := protocol.TopicIdentifierCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, t, err := d.resolveTopic(cmd.StreamID, cmd.TopicID)
	if err != nil {
		return nil, err
	}
	return encodeTopicDetails(t.GetDetails()), nil
}

func (d *Dispatcher) purgeTopic(payload []byte) ([]byte, error) {
	cmd, err := protocol.TopicIdentifierCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, t, err := d.resolveTopic(cmd.StreamID, cmd.TopicID)
	if err != nil {
		return nil, err
	}
	return nil, t.Purge()
}

func (d *Dispatcher) createPartitions(payload []byte) ([]byte, error) {
	cmd, err := protocol.PartitionsCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, t, err := d.resolveTopic(cmd.StreamID, cmd.TopicID)
	if err != nil {
		return nil, err
	}
	return nil, t.CreatePartitions(cmd.Count)
}

func (d *Dispatcher) deletePartitions(payload []byte) ([]byte, error) {
	cmd, err := protocol.PartitionsCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, t, err := d.resolveTopic(cmd.StreamID, cmd.TopicID)
	if err != nil {
		return nil, err
	}
	return nil, t.DeletePartitions(cmd.Count)
}

func (d *Dispatcher) sendMessages(payload []byte) ([]byte, error) {
	cmd, err := protocol.SendMessagesFromBytes(payload)
	if err != nil {
		return nil, err
	}
	s, t, err := d.resolveTopic(cmd.StreamID, cmd.TopicID)
	if err != nil {
		return nil, err
	}
	partitionIdx, first, last, err := t.Send(cmd.Messages, cmd.Partitioning)
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.MessagesSent.WithLabelValues(s.Name, t.Name).Add(float64(len(cmd.Messages)))
	}
	dst := wire.AppendUint32(nil, partitionIdx)
	dst = wire.AppendUint64(dst, first)
	dst = wire.AppendUint64(dst, last)
	return dst, nil
}

func (d *Dispatcher) pollMessages(payload []byte) ([]byte, error) {
	cmd, err := protocol.PollMessagesFromBytes(payload)
	if err != nil {
		return nil, err
	}
	s, t, err := d.resolveTopic(cmd.StreamID, cmd.TopicID)
	if err != nil {
		return nil, err
	}

	req := partition.PollRequest{
		Strategy:   partition.Strategy(cmd.Strategy),
		Offset:     cmd.Arg,
		Timestamp:  cmd.Arg,
		Count:      int(cmd.Count),
		Consumer:   cmd.Consumer,
		AutoCommit: cmd.AutoCommit,
	}
	msgs, err := t.Poll(cmd.PartitionID, req)
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.MessagesPolled.WithLabelValues(s.Name, t.Name).Add(float64(len(msgs)))
	}
	return encodeMessages(msgs), nil
}

func (d *Dispatcher) createConsumerGroup(payload []byte) ([]byte, error) {
	cmd, err := protocol.ConsumerGroupCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, t, err := d.resolveTopic(cmd.StreamID, cmd.TopicID)
	if err != nil {
		return nil, err
	}
	g, err := d.groups.CreateGroup(t, cmd.GroupID, cmd.Name)
	if err != nil {
		return nil, err
	}
	return wire.AppendUint32(nil, g.ID), nil
}

func (d *Dispatcher) deleteConsumerGroup(payload []byte) ([]byte, error) {
	cmd, err := protocol.ConsumerGroupCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, t, err := d.resolveTopic(cmd.StreamID, cmd.TopicID)
	if err != nil {
		return nil, err
	}
	return nil, d.groups.DeleteGroup(t.ID, cmd.GroupID)
}

func (d *Dispatcher) resolveGroup(streamID, topicID wire.Identifier, groupID uint32) (*topic.Topic, *group.Group, error) {
	_, t, err := d.resolveTopic(streamID, topicID)
	if err != nil {
		return nil, nil, err
	}
	g, ok := d.groups.Get(t.ID, groupID)
	if !ok {
		return nil, nil, wire.New(wire.KindConsumerGroupNotFound, "consumer group %d not found", groupID)
	}
	return t, g, nil
}

func (d *Dispatcher) joinConsumerGroup(payload []byte) ([]byte, error) {
	cmd, err := protocol.MembershipCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, g, err := d.resolveGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	g.Join(cmd.MemberID)
	return nil, nil
}

func (d *Dispatcher) leaveConsumerGroup(payload []byte) ([]byte, error) {
	cmd, err := protocol.MembershipCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, g, err := d.resolveGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	g.Leave(cmd.MemberID)
	return nil, nil
}

func (d *Dispatcher) pollConsumerGroup(payload []byte) ([]byte, error) {
	cmd, err := protocol.PollConsumerGroupCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	s, _, err := d.resolveTopic(cmd.StreamID, cmd.TopicID)
	if err != nil {
		return nil, err
	}
	_, g, err := d.resolveGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	byPartition, err := g.Poll(cmd.MemberID, int(cmd.CountPerPartition))
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		total := 0
		for _, msgs := range byPartition {
			total += len(msgs)
		}
		d.metrics.MessagesPolled.WithLabelValues(s.Name, g.Topic.Name).Add(float64(total))
	}
	return encodeGroupPoll(byPartition), nil
}

func (d *Dispatcher) heartbeatConsumerGroup(payload []byte) ([]byte, error) {
	cmd, err := protocol.MembershipCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, g, err := d.resolveGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	return nil, g.Heartbeat(cmd.MemberID)
}

func (d *Dispatcher) storeOffset(payload []byte) ([]byte, error) {
	cmd, err := protocol.OffsetCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, g, err := d.resolveGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	return nil, g.StoreOffset(cmd.PartitionID, cmd.Offset)
}

func (d *Dispatcher) getOffset(payload []byte) ([]byte, error) {
	cmd, err := protocol.OffsetCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	_, g, err := d.resolveGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	offset, ok, err := g.GetOffset(cmd.PartitionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wire.New(wire.KindOffsetOutOfRange, "no offset stored for partition %d", cmd.PartitionID)
	}
	return wire.AppendUint64(nil, offset), nil
}

func (d *Dispatcher) createUser(payload []byte) ([]byte, error) {
	cmd, err := protocol.CreateUserFromBytes(payload)
	if err != nil {
		return nil, err
	}
	u, err := d.users.CreateUser(cmd.Username, cmd.Password, cmd.IsAdmin)
	if err != nil {
		return nil, err
	}
	return appendShortString(nil, u.Username), nil
}

func (d *Dispatcher) deleteUser(payload []byte) ([]byte, error) {
	cmd, err := protocol.UsernameCommandFromBytes(payload)
	if err != nil {
		return nil, err
	}
	return nil, d.users.DeleteUser(cmd.Username)
}

func (d *Dispatcher) loginUser(payload []byte) ([]byte, error) {
	cmd, err := protocol.LoginUserFromBytes(payload)
	if err != nil {
		return nil, err
	}
	token, err := d.users.Authenticate(cmd.Username, cmd.Password)
	if err != nil {
		return nil, err
	}
	// A signed JWT routinely exceeds the 255-byte short-string limit, so it
	// travels as a long-bytes field like a message payload.
	return wire.AppendLongBytes(nil, []byte(token)), nil
}

func (d *Dispatcher) changePassword(payload []byte) ([]byte, error) {
	cmd, err := protocol.ChangePasswordFromBytes(payload)
	if err != nil {
		return nil, err
	}
	return nil, d.users.ChangePassword(cmd.Username, cmd.OldPassword, cmd.NewPassword)
}

// encodeStreamDetails renders a stream.Details snapshot: id, name, topic
// count.
func encodeStreamDetails(d stream.Details) []byte {
	dst := wire.AppendUint32(nil, d.ID)
	dst = appendShortString(dst, d.Name)
	dst = wire.AppendUint32(dst, uint32(d.TopicCount))
	return dst
}

// encodeTopicDetails renders a topic.Details snapshot: id, name,
// partitions count, messages, size in bytes.
func encodeTopicDetails(d topic.Details) []byte {
	dst := wire.AppendUint32(nil, d.ID)
	dst = appendShortString(dst, d.Name)
	dst = wire.AppendUint32(dst, d.PartitionsCount)
	dst = wire.AppendUint64(dst, d.Messages)
	dst = wire.AppendUint64(dst, d.SizeBytes)
	return dst
}

func encodeMessages(msgs []*message.Message) []byte {
	dst := wire.AppendUint32(nil, uint32(len(msgs)))
	for _, m := range msgs {
		dst = m.Encode(dst)
	}
	return dst
}

// encodeGroupPoll renders a group poll's per-partition results as
// partition_count, then partition_id | message_count | messages for each
// partition in ascending partition_id order.
func encodeGroupPoll(byPartition map[uint32][]*message.Message) []byte {
	ids := make([]uint32, 0, len(byPartition))
	for id := range byPartition {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	dst := wire.AppendUint32(nil, uint32(len(ids)))
	for _, id := range ids {
		dst = wire.AppendUint32(dst, id)
		dst = append(dst, encodeMessages(byPartition[id])...)
	}
	return dst
}

func appendShortString(dst []byte, s string) []byte {
	out, err := wire.AppendShortString(dst, s)
	if err != nil {
		panic(err)
	}
	return out
}
