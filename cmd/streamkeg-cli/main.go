// cmd/streamkeg-cli/main.go
package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/FairForge/streamkeg/internal/message"
	"github.com/FairForge/streamkeg/internal/protocol"
	"github.com/FairForge/streamkeg/internal/topic"
	"github.com/FairForge/streamkeg/internal/wire"
)

func main() {
	if len(os.Args) < 3 {
		printUsage()
		os.Exit(1)
	}

	addr := os.Getenv("STREAMKEG_ADDRESS")
	if addr == "" {
		addr = "127.0.0.1:9000"
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fatal("connect to %s: %v", addr, err)
	}
	defer func() { _ = conn.Close() }()

	resource, action, args := os.Args[1], os.Args[2], os.Args[3:]

	req, err := buildRequest(resource, action, args)
	if err != nil {
		fatal("%v", err)
	}

	req.Token = os.Getenv("STREAMKEG_TOKEN")
	if _, err := conn.Write(protocol.EncodeRequest(req.Code, req.Token, req.Payload)); err != nil {
		fatal("send request: %v", err)
	}

	resp, err := readResponse(conn)
	if err != nil {
		fatal("read response: %v", err)
	}
	printResponse(resource, action, resp)
}

func buildRequest(resource, action string, args []string) (protocol.Request, error) {
	switch resource {
	case "stream":
		return buildStreamRequest(action, args)
	case "topic":
		return buildTopicRequest(action, args)
	case "partition":
		return buildPartitionRequest(action, args)
	case "message":
		return buildMessageRequest(action, args)
	case "consumer-group":
		return buildConsumerGroupRequest(action, args)
	case "user":
		return buildUserRequest(action, args)
	default:
		return protocol.Request{}, fmt.Errorf("unknown resource %q", resource)
	}
}

func buildStreamRequest(action string, args []string) (protocol.Request, error) {
	switch action {
	case "create":
		if len(args) < 1 {
			return protocol.Request{}, fmt.Errorf("usage: stream create <name> [id]")
		}
		var id uint64
		if len(args) > 1 {
			id, _ = strconv.ParseUint(args[1], 10, 32)
		}
		payload := protocol.CreateStream{StreamID: uint32(id), Name: args[0]}.AsBytes()
		return protocol.Request{Code: protocol.CodeCreateStream, Payload: payload}, nil

	case "get", "delete", "purge":
		if len(args) < 1 {
			return protocol.Request{}, fmt.Errorf("usage: stream %s <id-or-name>", action)
		}
		id, err := wire.ParseIdentifier(args[0])
		if err != nil {
			return protocol.Request{}, err
		}
		payload := protocol.StreamIdentifierCommand{StreamID: id}.AsBytes()
		return protocol.Request{Code: codeForStreamAction(action), Payload: payload}, nil

	default:
		return protocol.Request{}, fmt.Errorf("unknown stream action %q", action)
	}
}

func codeForStreamAction(action string) protocol.Code {
	switch action {
	case "get":
		return protocol.CodeGetStream
	case "delete":
		return protocol.CodeDeleteStream
	case "purge":
		return protocol.CodePurgeStream
	}
	return 0
}

func buildTopicRequest(action string, args []string) (protocol.Request, error) {
	switch action {
	case "create":
		if len(args) < 3 {
			return protocol.Request{}, fmt.Errorf("usage: topic create <stream> <name> <partitions> [compression]")
		}
		streamID, err := wire.ParseIdentifier(args[0])
		if err != nil {
			return protocol.Request{}, err
		}
		partitions, _ := strconv.ParseUint(args[2], 10, 32)
		compression := "none"
		if len(args) > 3 {
			compression = args[3]
		}
		payload := protocol.CreateTopic{
			StreamID: streamID, Name: args[1], PartitionsCount: uint32(partitions),
			ReplicationFactor: 1, CompressionAlgorithm: compression,
		}.AsBytes()
		return protocol.Request{Code: protocol.CodeCreateTopic, Payload: payload}, nil

	case "get", "purge":
		if len(args) < 2 {
			return protocol.Request{}, fmt.Errorf("usage: topic %s <stream> <topic>", action)
		}
		streamID, topicID, err := parseTwoIdentifiers(args)
		if err != nil {
			return protocol.Request{}, err
		}
		payload := protocol.TopicIdentifierCommand{StreamID: streamID, TopicID: topicID}.AsBytes()
		return protocol.Request{Code: codeForTopicAction(action), Payload: payload}, nil

	case "delete":
		if len(args) < 2 {
			return protocol.Request{}, fmt.Errorf("usage: topic delete <stream> <topic>")
		}
		streamID, topicID, err := parseTwoIdentifiers(args)
		if err != nil {
			return protocol.Request{}, err
		}
		payload := protocol.DeleteTopic{StreamID: streamID, TopicID: topicID}.AsBytes()
		return protocol.Request{Code: protocol.CodeDeleteTopic, Payload: payload}, nil

	default:
		return protocol.Request{}, fmt.Errorf("unknown topic action %q", action)
	}
}

func codeForTopicAction(action string) protocol.Code {
	switch action {
	case "get":
		return protocol.CodeGetTopic
	case "purge":
		return protocol.CodePurgeTopic
	}
	return 0
}

func buildPartitionRequest(action string, args []string) (protocol.Request, error) {
	if len(args) < 3 {
		return protocol.Request{}, fmt.Errorf("usage: partition %s <stream> <topic> <count>", action)
	}
	streamID, topicID, err := parseTwoIdentifiers(args)
	if err != nil {
		return protocol.Request{}, err
	}
	count, _ := strconv.ParseUint(args[2], 10, 32)
	payload := protocol.PartitionsCommand{StreamID: streamID, TopicID: topicID, Count: uint32(count)}.AsBytes()

	switch action {
	case "create":
		return protocol.Request{Code: protocol.CodeCreatePartitions, Payload: payload}, nil
	case "delete":
		return protocol.Request{Code: protocol.CodeDeletePartitions, Payload: payload}, nil
	default:
		return protocol.Request{}, fmt.Errorf("unknown partition action %q", action)
	}
}

func buildMessageRequest(action string, args []string) (protocol.Request, error) {
	switch action {
	case "send":
		if len(args) < 4 {
			return protocol.Request{}, fmt.Errorf("usage: message send <stream> <topic> <partition-id> <payload>")
		}
		streamID, topicID, err := parseTwoIdentifiers(args)
		if err != nil {
			return protocol.Request{}, err
		}
		partitionID, _ := strconv.ParseUint(args[2], 10, 32)
		payload := protocol.SendMessages{
			StreamID: streamID, TopicID: topicID,
			Partitioning: topic.Partitioning{Strategy: topic.StrategyPartitionID, PartitionID: uint32(partitionID)},
			Messages:     []*message.Message{{Payload: []byte(args[3])}},
		}.AsBytes()
		return protocol.Request{Code: protocol.CodeSendMessages, Payload: payload}, nil

	case "poll":
		if len(args) < 4 {
			return protocol.Request{}, fmt.Errorf("usage: message poll <stream> <topic> <partition-id> <count> [consumer]")
		}
		streamID, topicID, err := parseTwoIdentifiers(args)
		if err != nil {
			return protocol.Request{}, err
		}
		partitionID, _ := strconv.ParseUint(args[2], 10, 32)
		count, _ := strconv.ParseUint(args[3], 10, 32)
		consumer := "cli"
		if len(args) > 4 {
			consumer = args[4]
		}
		payload := protocol.PollMessages{
			StreamID: streamID, TopicID: topicID, PartitionID: uint32(partitionID),
			Strategy: 3, Count: uint32(count), Consumer: consumer, AutoCommit: true,
		}.AsBytes()
		return protocol.Request{Code: protocol.CodePollMessages, Payload: payload}, nil

	default:
		return protocol.Request{}, fmt.Errorf("unknown message action %q", action)
	}
}

func buildConsumerGroupRequest(action string, args []string) (protocol.Request, error) {
	switch action {
	case "create", "delete":
		if len(args) < 3 {
			return protocol.Request{}, fmt.Errorf("usage: consumer-group %s <stream> <topic> <name>", action)
		}
		streamID, topicID, err := parseTwoIdentifiers(args)
		if err != nil {
			return protocol.Request{}, err
		}
		payload := protocol.ConsumerGroupCommand{StreamID: streamID, TopicID: topicID, Name: args[2]}.AsBytes()
		code := protocol.CodeCreateConsumerGroup
		if action == "delete" {
			code = protocol.CodeDeleteConsumerGroup
		}
		return protocol.Request{Code: code, Payload: payload}, nil

	case "join", "leave", "heartbeat":
		if len(args) < 4 {
			return protocol.Request{}, fmt.Errorf("usage: consumer-group %s <stream> <topic> <group-id> <member-id>", action)
		}
		streamID, topicID, err := parseTwoIdentifiers(args)
		if err != nil {
			return protocol.Request{}, err
		}
		groupID, _ := strconv.ParseUint(args[2], 10, 32)
		memberID, _ := strconv.ParseUint(args[3], 10, 32)
		payload := protocol.MembershipCommand{
			StreamID: streamID, TopicID: topicID, GroupID: uint32(groupID), MemberID: uint32(memberID),
		}.AsBytes()
		code := protocol.CodeJoinConsumerGroup
		switch action {
		case "leave":
			code = protocol.CodeLeaveConsumerGroup
		case "heartbeat":
			code = protocol.CodeHeartbeatConsumerGroup
		}
		return protocol.Request{Code: code, Payload: payload}, nil

	case "poll":
		if len(args) < 5 {
			return protocol.Request{}, fmt.Errorf("usage: consumer-group poll <stream> <topic> <group-id> <member-id> <count-per-partition>")
		}
		streamID, topicID, err := parseTwoIdentifiers(args)
		if err != nil {
			return protocol.Request{}, err
		}
		groupID, _ := strconv.ParseUint(args[2], 10, 32)
		memberID, _ := strconv.ParseUint(args[3], 10, 32)
		count, _ := strconv.ParseUint(args[4], 10, 32)
		payload := protocol.PollConsumerGroupCommand{
			StreamID: streamID, TopicID: topicID, GroupID: uint32(groupID),
			MemberID: uint32(memberID), CountPerPartition: uint32(count),
		}.AsBytes()
		return protocol.Request{Code: protocol.CodePollConsumerGroup, Payload: payload}, nil

	case "store-offset", "get-offset":
		if len(args) < 4 {
			return protocol.Request{}, fmt.Errorf("usage: consumer-group %s <stream> <topic> <group-id> <partition-id> [offset]", action)
		}
		streamID, topicID, err := parseTwoIdentifiers(args)
		if err != nil {
			return protocol.Request{}, err
		}
		groupID, _ := strconv.ParseUint(args[2], 10, 32)
		partitionID, _ := strconv.ParseUint(args[3], 10, 32)
		var offset uint64
		if len(args) > 4 {
			offset, _ = strconv.ParseUint(args[4], 10, 64)
		}
		payload := protocol.OffsetCommand{
			StreamID: streamID, TopicID: topicID, GroupID: uint32(groupID),
			PartitionID: uint32(partitionID), Offset: offset,
		}.AsBytes()
		code := protocol.CodeStoreOffset
		if action == "get-offset" {
			code = protocol.CodeGetOffset
		}
		return protocol.Request{Code: code, Payload: payload}, nil

	default:
		return protocol.Request{}, fmt.Errorf("unknown consumer-group action %q", action)
	}
}

func buildUserRequest(action string, args []string) (protocol.Request, error) {
	switch action {
	case "create":
		if len(args) < 2 {
			return protocol.Request{}, fmt.Errorf("usage: user create <username> <password> [admin]")
		}
		isAdmin := len(args) > 2 && args[2] == "admin"
		payload := protocol.CreateUser{Username: args[0], Password: args[1], IsAdmin: isAdmin}.AsBytes()
		return protocol.Request{Code: protocol.CodeCreateUser, Payload: payload}, nil

	case "delete":
		if len(args) < 1 {
			return protocol.Request{}, fmt.Errorf("usage: user delete <username>")
		}
		payload := protocol.UsernameCommand{Username: args[0]}.AsBytes()
		return protocol.Request{Code: protocol.CodeDeleteUser, Payload: payload}, nil

	case "login":
		if len(args) < 2 {
			return protocol.Request{}, fmt.Errorf("usage: user login <username> <password>")
		}
		payload := protocol.LoginUser{Username: args[0], Password: args[1]}.AsBytes()
		return protocol.Request{Code: protocol.CodeLoginUser, Payload: payload}, nil

	case "change-password":
		if len(args) < 3 {
			return protocol.Request{}, fmt.Errorf("usage: user change-password <username> <old> <new>")
		}
		payload := protocol.ChangePassword{Username: args[0], OldPassword: args[1], NewPassword: args[2]}.AsBytes()
		return protocol.Request{Code: protocol.CodeChangePassword, Payload: payload}, nil

	default:
		return protocol.Request{}, fmt.Errorf("unknown user action %q", action)
	}
}

func parseTwoIdentifiers(args []string) (wire.Identifier, wire.Identifier, error) {
	streamID, err := wire.ParseIdentifier(args[0])
	if err != nil {
		return wire.Identifier{}, wire.Identifier{}, err
	}
	topicID, err := wire.ParseIdentifier(args[1])
	if err != nil {
		return wire.Identifier{}, wire.Identifier{}, err
	}
	return streamID, topicID, nil
}

func readResponse(conn net.Conn) (protocol.Response, error) {
	var header [8]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return protocol.Response{}, err
	}
	payloadLen, err := wire.ReadUint32(header[4:])
	if err != nil {
		return protocol.Response{}, err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return protocol.Response{}, err
	}
	return protocol.DecodeResponse(append(header[:], payload...))
}

func printResponse(resource, action string, resp protocol.Response) {
	if resp.Status != 0 {
		fmt.Fprintf(os.Stderr, "%s %s failed: status %d: %s\n", resource, action, resp.Status, string(resp.Payload))
		os.Exit(1)
	}
	if len(resp.Payload) == 0 {
		fmt.Println("ok")
		return
	}
	if resource == "user" && action == "login" {
		token, _, err := wire.ReadLongBytes(resp.Payload)
		if err != nil {
			fatal("decode token: %v", err)
		}
		fmt.Println(string(token))
		return
	}
	fmt.Printf("ok: %x\n", resp.Payload)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`streamkeg-cli: talk to a streamkeg broker over STREAMKEG_ADDRESS (default 127.0.0.1:9000)

usage:
  streamkeg-cli stream    create|get|delete|purge  ...
  streamkeg-cli topic     create|get|delete|purge  ...
  streamkeg-cli partition create|delete            ...
  streamkeg-cli message   send|poll                ...
  streamkeg-cli consumer-group create|delete|join|leave|poll|heartbeat|store-offset|get-offset ...
  streamkeg-cli user      create|delete|login|change-password ...`)
}
