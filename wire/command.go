package wire

import (
	"encoding/binary"

	"github.com/flowmq/flowmq/cmn/cos"
)

// OpCode is the stable, dense opcode assigned to each Command variant
// (protocol §4.3: "opcode table maps each number to exactly one variant").
type OpCode uint32

const (
	OpPing OpCode = iota + 1
	OpGetStats
	OpGetMe
	OpGetClient
	OpGetClients

	OpLoginUser
	OpLogoutUser
	OpGetUser
	OpGetUsers
	OpCreateUser
	OpDeleteUser
	OpUpdateUser
	OpUpdatePermissions
	OpChangePassword

	OpGetPersonalAccessTokens
	OpCreatePersonalAccessToken
	OpDeletePersonalAccessToken
	OpLoginWithPersonalAccessToken

	OpGetStream
	OpGetStreams
	OpCreateStream
	OpDeleteStream
	OpUpdateStream
	OpPurgeStream

	OpGetTopic
	OpGetTopics
	OpCreateTopic
	OpDeleteTopic
	OpUpdateTopic
	OpPurgeTopic

	OpCreatePartitions
	OpDeletePartitions

	OpGetConsumerGroup
	OpGetConsumerGroups
	OpCreateConsumerGroup
	OpDeleteConsumerGroup
	OpJoinConsumerGroup
	OpLeaveConsumerGroup

	OpSendMessages
	OpPollMessages
	OpGetConsumerOffset
	OpStoreConsumerOffset
)

var opNames = map[OpCode]string{
	OpPing: "Ping", OpGetStats: "GetStats", OpGetMe: "GetMe",
	OpGetClient: "GetClient", OpGetClients: "GetClients",
	OpLoginUser: "LoginUser", OpLogoutUser: "LogoutUser",
	OpGetUser: "GetUser", OpGetUsers: "GetUsers",
	OpCreateUser: "CreateUser", OpDeleteUser: "DeleteUser",
	OpUpdateUser: "UpdateUser", OpUpdatePermissions: "UpdatePermissions",
	OpChangePassword:               "ChangePassword",
	OpGetPersonalAccessTokens:      "GetPersonalAccessTokens",
	OpCreatePersonalAccessToken:    "CreatePersonalAccessToken",
	OpDeletePersonalAccessToken:    "DeletePersonalAccessToken",
	OpLoginWithPersonalAccessToken: "LoginWithPersonalAccessToken",
	OpGetStream:                    "GetStream", OpGetStreams: "GetStreams",
	OpCreateStream: "CreateStream", OpDeleteStream: "DeleteStream",
	OpUpdateStream: "UpdateStream", OpPurgeStream: "PurgeStream",
	OpGetTopic: "GetTopic", OpGetTopics: "GetTopics",
	OpCreateTopic: "CreateTopic", OpDeleteTopic: "DeleteTopic",
	OpUpdateTopic: "UpdateTopic", OpPurgeTopic: "PurgeTopic",
	OpCreatePartitions: "CreatePartitions", OpDeletePartitions: "DeletePartitions",
	OpGetConsumerGroup: "GetConsumerGroup", OpGetConsumerGroups: "GetConsumerGroups",
	OpCreateConsumerGroup: "CreateConsumerGroup", OpDeleteConsumerGroup: "DeleteConsumerGroup",
	OpJoinConsumerGroup: "JoinConsumerGroup", OpLeaveConsumerGroup: "LeaveConsumerGroup",
	OpSendMessages: "SendMessages", OpPollMessages: "PollMessages",
	OpGetConsumerOffset: "GetConsumerOffset", OpStoreConsumerOffset: "StoreConsumerOffset",
}

func (op OpCode) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return "Unknown"
}

// Origin distinguishes a command that arrived straight from a client
// connection from one a shard forwarded to another shard on the client's
// behalf (protocol §4.3). Every variant in this package reports
// OriginDirect, and the shard executor does not consult Origin: every frame
// it receives is checked against the session snapshot it carries.
type Origin uint8

const (
	OriginDirect Origin = iota
	OriginInternal
)

// Command is the closed set of wire operations. Every variant in this
// package implements it; the set is sealed by construction (only this
// package's Decode can produce one), which is what makes the shard
// executor's dispatch in package shard exhaustively checkable.
type Command interface {
	OpCode() OpCode
	Origin() Origin
	Encode() []byte
	Validate() error
}

// Decode turns a raw opcode and payload into a typed Command, delegating to
// the per-variant decoder. Unknown opcodes and malformed payloads both
// fail with KindInvalidCommand; the connection is expected to stay open
// (protocol §7).
func Decode(op OpCode, payload []byte) (Command, error) {
	dec, ok := decoders[op]
	if !ok {
		return nil, errInvalidCommand("unknown opcode %d", op)
	}
	cmd, err := dec(payload)
	if err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

type decodeFunc func([]byte) (Command, error)

// decoders is populated by each payload file's init(), one entry per opcode;
// this keeps the opcode<->decoder wiring next to the payload it decodes
// instead of in one long switch statement living far from the type it
// constructs.
var decoders = map[OpCode]decodeFunc{}

func register(op OpCode, fn decodeFunc) {
	if _, dup := decoders[op]; dup {
		panic("wire: duplicate opcode registration for " + op.String())
	}
	decoders[op] = fn
}

//
// shared payload-encoding helpers
//

func errInvalidCommand(format string, args ...any) error {
	return cos.NewError(cos.KindInvalidCommand, format, args...)
}

// putString writes length:u8 || utf8, per protocol §4.2.
func putString(dst []byte, s string) int {
	dst[0] = byte(len(s))
	copy(dst[1:], s)
	return 1 + len(s)
}

func stringSize(s string) int { return 1 + len(s) }

// takeString reads length:u8 || utf8 from the front of buf and returns the
// decoded string plus bytes consumed.
func takeString(buf []byte) (string, int, error) {
	if len(buf) < 1 {
		return "", 0, errInvalidCommand("string: missing length byte")
	}
	n := int(buf[0])
	if len(buf) < 1+n {
		return "", 0, errInvalidCommand("string: buffer too short for declared length %d", n)
	}
	return string(buf[1 : 1+n]), 1 + n, nil
}

func requireEmpty(buf []byte, name string) error {
	if len(buf) != 0 {
		return errInvalidCommand("%s: expected empty payload, got %d bytes", name, len(buf))
	}
	return nil
}

func requireMinLen(buf []byte, n int, name string) error {
	if len(buf) < n {
		return errInvalidCommand("%s: payload too short, need >= %d bytes, got %d", name, n, len(buf))
	}
	return nil
}

func putU32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func takeU32(buf []byte) uint32   { return binary.LittleEndian.Uint32(buf) }
func putU64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }
func takeU64(buf []byte) uint64   { return binary.LittleEndian.Uint64(buf) }
