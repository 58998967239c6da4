/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/flowmq/flowmq/cmn/cos"
)

func strptr(s string) *string            { return &s }
func statusptr(u UserStatus) *UserStatus { return &u }

// sampleCommands covers every opcode with a representative valid payload;
// the roundtrip and truncation tests below iterate it, so adding a variant
// without adding a sample here fails TestEveryOpcodeSampled.
func sampleCommands() []Command {
	msgID := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	perms := Permissions{
		Global: PermManageStreams | PermReadStats,
		Streams: map[uint32]StreamPermissions{
			3: {ManageStream: true, Topics: map[uint32]TopicPermissions{1: PermSend | PermRead}},
		},
	}
	return []Command{
		Ping{},
		GetStats{},
		GetMe{},
		GetClient{ClientID: 12},
		GetClients{},

		LoginUser{Username: "root", Password: "secret"},
		LogoutUser{},
		GetUser{UserID: NumericIdentifier(4)},
		GetUsers{},
		CreateUser{Username: "alice", Password: "pw", Status: UserActive, Permissions: perms},
		DeleteUser{UserID: MustStringIdentifier("alice")},
		UpdateUser{UserID: NumericIdentifier(4), Username: strptr("bob"), Status: statusptr(UserInactive)},
		UpdatePermissions{UserID: NumericIdentifier(4), Permissions: perms},
		ChangePassword{UserID: NumericIdentifier(4), CurrentPassword: "pw", NewPassword: "pw2"},

		GetPersonalAccessTokens{},
		CreatePersonalAccessToken{Name: "ci-token", Expiry: 3600},
		DeletePersonalAccessToken{Name: "ci-token"},
		LoginWithPersonalAccessToken{Token: "eyJ.raw.token"},

		GetStream{StreamID: MustStringIdentifier("orders")},
		GetStreams{},
		CreateStream{StreamID: 9, Name: "orders"},
		DeleteStream{StreamID: NumericIdentifier(9)},
		UpdateStream{StreamID: NumericIdentifier(9), Name: "orders-v2"},
		PurgeStream{StreamID: NumericIdentifier(9)},

		GetTopic{StreamID: NumericIdentifier(1), TopicID: MustStringIdentifier("events")},
		GetTopics{StreamID: NumericIdentifier(1)},
		CreateTopic{
			StreamID: NumericIdentifier(1), TopicID: 2, Name: "events",
			PartitionsCount: 4, MessageExpiry: 86400, Compression: CompressionNone,
			MaxTopicSize: 1 << 30, ReplicationFactor: 1,
		},
		DeleteTopic{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2)},
		UpdateTopic{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), Name: "events-v2"},
		PurgeTopic{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2)},

		CreatePartitions{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), PartitionCount: 3},
		DeletePartitions{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), PartitionCount: 1},

		GetConsumerGroup{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), GroupID: NumericIdentifier(3)},
		GetConsumerGroups{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2)},
		CreateConsumerGroup{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), GroupID: 3, Name: "readers"},
		DeleteConsumerGroup{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), GroupID: NumericIdentifier(3)},
		JoinConsumerGroup{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), GroupID: NumericIdentifier(3)},
		LeaveConsumerGroup{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), GroupID: NumericIdentifier(3)},

		SendMessages{
			StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2),
			Partitioning: Partitioning{Kind: PartitioningMessagesKey, Key: []byte("k1")},
			Messages: []AppendableMessage{
				{ID: msgID, Headers: []byte("h=1"), Payload: []byte("hello")},
				{ID: [16]byte{}, Payload: []byte("world")},
			},
		},
		PollMessages{
			Consumer: Consumer{Kind: ConsumerDirect, ID: 0},
			StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2),
			PartitionID: 1,
			Strategy:    PollingStrategy{Kind: PollOffset, Value: 100},
			Count:       10, AutoCommit: true,
		},
		GetConsumerOffset{
			Consumer: Consumer{Kind: ConsumerGroup, ID: 3},
			StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), PartitionID: 1,
		},
		StoreConsumerOffset{
			Consumer: Consumer{Kind: ConsumerDirect, ID: 0},
			StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), PartitionID: 1, Offset: 42,
		},
	}
}

func TestEveryOpcodeSampled(t *testing.T) {
	seen := make(map[OpCode]bool)
	for _, cmd := range sampleCommands() {
		if seen[cmd.OpCode()] {
			t.Fatalf("opcode %s sampled twice", cmd.OpCode())
		}
		seen[cmd.OpCode()] = true
	}
	for op := range decoders {
		if !seen[op] {
			t.Fatalf("opcode %s has a decoder but no sample", op)
		}
	}
	if len(seen) != len(decoders) {
		t.Fatalf("%d samples vs %d registered decoders", len(seen), len(decoders))
	}
}

func TestCommandRoundtrip(t *testing.T) {
	for _, cmd := range sampleCommands() {
		enc := cmd.Encode()
		dec, err := Decode(cmd.OpCode(), enc)
		if err != nil {
			t.Fatalf("%s: decode(encode): %v", cmd.OpCode(), err)
		}
		if !reflect.DeepEqual(dec, cmd) {
			t.Fatalf("%s: roundtrip mismatch:\n got %#v\nwant %#v", cmd.OpCode(), dec, cmd)
		}
	}
}

// Truncating any encoded command by one byte must fail with InvalidCommand,
// never panic or silently truncate.
func TestCommandTruncatedByOne(t *testing.T) {
	for _, cmd := range sampleCommands() {
		enc := cmd.Encode()
		if len(enc) == 0 {
			continue
		}
		_, err := Decode(cmd.OpCode(), enc[:len(enc)-1])
		if err == nil {
			t.Fatalf("%s: truncated payload accepted", cmd.OpCode())
		}
		if !cos.IsKind(err, cos.KindInvalidCommand) {
			t.Fatalf("%s: truncated payload: got %v, want InvalidCommand", cmd.OpCode(), err)
		}
	}
}

// Truncating at every prefix length must also never panic.
func TestCommandEveryPrefixSafe(t *testing.T) {
	for _, cmd := range sampleCommands() {
		enc := cmd.Encode()
		for i := 0; i < len(enc); i++ {
			_, _ = Decode(cmd.OpCode(), enc[:i]) //nolint:errcheck // errors expected, panics not
		}
	}
}

func TestEmptyPayloadCommandsRejectBytes(t *testing.T) {
	for _, cmd := range []Command{GetClients{}, Ping{}, LogoutUser{}, GetStats{}, GetMe{}, GetStreams{}, GetUsers{}, GetPersonalAccessTokens{}} {
		if _, err := Decode(cmd.OpCode(), []byte{}); err != nil {
			t.Fatalf("%s: empty payload rejected: %v", cmd.OpCode(), err)
		}
		if _, err := Decode(cmd.OpCode(), []byte{0x00}); !cos.IsKind(err, cos.KindInvalidCommand) {
			t.Fatalf("%s: non-empty payload: got %v, want InvalidCommand", cmd.OpCode(), err)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	if _, err := Decode(OpCode(0xdeadbeef), nil); !cos.IsKind(err, cos.KindInvalidCommand) {
		t.Fatalf("unknown opcode: got %v, want InvalidCommand", err)
	}
}

// Worked example from the protocol: three numeric identifiers concatenated
// in declaration order, 18 bytes total.
func TestGetConsumerGroupKnownBytes(t *testing.T) {
	cmd := GetConsumerGroup{
		StreamID: NumericIdentifier(1),
		TopicID:  NumericIdentifier(2),
		GroupID:  NumericIdentifier(3),
	}
	want := []byte{
		0x01, 0x04, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x02, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x03, 0x00, 0x00, 0x00,
	}
	got := cmd.Encode()
	if !bytes.Equal(got, want) {
		t.Fatalf("encoding:\n got % x\nwant % x", got, want)
	}
	dec, err := Decode(OpGetConsumerGroup, got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(dec, cmd) {
		t.Fatalf("roundtrip mismatch: %#v", dec)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	tests := []Command{
		CreateStream{StreamID: 1, Name: ""},
		CreateTopic{StreamID: NumericIdentifier(1), Name: "t", PartitionsCount: 1, Compression: CompressionKind(99), ReplicationFactor: 1},
		CreateUser{Username: "", Password: "pw", Status: UserActive},
		CreateUser{Username: "u", Password: "", Status: UserActive},
		SendMessages{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), Partitioning: Partitioning{Kind: PartitioningBalanced}},
		PollMessages{Consumer: Consumer{Kind: ConsumerDirect}, StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), Strategy: PollingStrategy{Kind: PollFirst}, Count: 0},
		CreatePartitions{StreamID: NumericIdentifier(1), TopicID: NumericIdentifier(2), PartitionCount: 0},
	}
	for _, cmd := range tests {
		if err := cmd.Validate(); !cos.IsKind(err, cos.KindInvalidCommand) {
			t.Fatalf("%s: Validate() = %v, want InvalidCommand", cmd.OpCode(), err)
		}
	}
}

func TestPartitioningRoundtrip(t *testing.T) {
	for _, p := range []Partitioning{
		{Kind: PartitioningBalanced},
		{Kind: PartitioningPartitionID, PartitionID: 7},
		{Kind: PartitioningMessagesKey, Key: []byte{0xff}},
		{Kind: PartitioningMessagesKey, Key: bytes.Repeat([]byte{0xab}, 255)},
	} {
		buf := make([]byte, p.size())
		n := p.encodeInto(buf)
		dec, consumed, err := decodePartitioning(buf[:n])
		if err != nil {
			t.Fatalf("partitioning kind %d: %v", p.Kind, err)
		}
		if consumed != n || !reflect.DeepEqual(dec, p) {
			t.Fatalf("partitioning kind %d: roundtrip mismatch", p.Kind)
		}
	}
	if _, _, err := decodePartitioning([]byte{byte(PartitioningMessagesKey), 0}); err == nil {
		t.Fatal("zero-length messages key accepted")
	}
}
