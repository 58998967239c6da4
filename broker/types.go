// Package broker implements the domain operations façade: the
// in-memory stream -> topic -> partition -> consumer-group tree a shard
// owns, and the methods the shard executor calls against it
// (create_stream, append_messages, poll_messages, join_consumer_group, ...).
// Nothing here talks to the network or the wire codec; it is driven
// entirely by typed Go values the shard executor extracts from a decoded
// wire.Command.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package broker

import (
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/flowmq/flowmq/wire"
)

// Message is one stored record: assigned offset, server timestamp, the
// caller-chosen id, optional headers, and payload.
type Message struct {
	Offset    uint64
	Timestamp int64
	ID        [16]byte
	Headers   []byte
	Payload   []byte
}

// Partition is an append-only, strictly offset-ordered sequence of messages,
// realized in memory here and mirrored to the storage collaborator.
// A production build would keep only a hot window in memory and read cold
// segments back from Storage; this revision keeps the full in-memory slice,
// which is sufficient for the domain semantics specified and is what the
// test-facing Storage.Read contract exercises.
//
// seen is the per-partition message-id deduplication filter: an appended
// message with a non-zero id that the filter already holds fails the whole
// batch with AlreadyExists. An all-zero id opts the message out of dedup.
type Partition struct {
	ID       uint32
	Messages []Message
	seen     *cuckoo.Filter
}

func (p *Partition) nextOffset() uint64 {
	if len(p.Messages) == 0 {
		return 0
	}
	return p.Messages[len(p.Messages)-1].Offset + 1
}

// ConsumerGroup tracks membership and the current partition assignment for
// a named set of cooperating consumers (protocol §4.7: range-by-member-id).
type ConsumerGroup struct {
	ID         uint32
	Name       string
	Members    []uint32            // sorted ascending member (client) ids
	Assignment map[uint32][]uint32 // member id -> owned partition ids
	Offsets    map[uint32]uint64   // partition id -> last committed offset (group-scoped)
}

// TopicConfig carries the creation-time knobs of a topic. ReplicationFactor
// must be 1 on this single-node broker; MessageExpiry and MaxTopicSize are
// stored with the topic and reported back, zero meaning "never" /
// "unbounded". No retention pass enforces either limit.
type TopicConfig struct {
	PartitionsCount   uint32
	MessageExpiry     uint64 // seconds; 0 = never
	Compression       wire.CompressionKind
	MaxTopicSize      uint64 // bytes; 0 = unbounded
	ReplicationFactor uint8
}

// Topic is a named set of partitions, whose count can grow or shrink after
// creation, plus zero or more consumer groups.
type Topic struct {
	ID             uint32
	Name           string
	MessageExpiry  uint64
	Compression    wire.CompressionKind
	MaxTopicSize   uint64
	Partitions     map[uint32]*Partition
	ConsumerGroups map[uint32]*ConsumerGroup
	nextGroupID    uint32
	nextPartID     uint32
	roundRobin     uint32 // PartitioningBalanced cursor
}

// Stream is a named collection of topics; the unit of shard ownership
// (protocol §3: "A resource ... is owned by exactly one shard").
type Stream struct {
	ID      uint32
	Name    string
	Topics  map[uint32]*Topic
	nextTID uint32
}

// ClientRecord is the per-connection record surfaced by GetClient(s)/GetMe.
type ClientRecord struct {
	ClientID    uint32
	Address     string
	ConnectedAt time.Time
	UserID      uint64
	HasUser     bool
}

// UserStatus mirrors wire.UserStatus; kept as a distinct domain type so the
// façade never imports wire codec concerns for its own invariants, only the
// shared Identifier/Permissions value types it must accept at its boundary.
type UserStatus = wire.UserStatus

const (
	UserActive   = wire.UserActive
	UserInactive = wire.UserInactive
)

// User is a broker account, held only on the control shard.
type User struct {
	ID           uint32
	Username     string
	PasswordHash []byte
	Status       UserStatus
	Permissions  wire.Permissions
}

// PersonalAccessToken is a revocable, named credential for a User. The raw
// token is returned once at creation and never stored; TokenHash is the
// SHA-256 of the whole raw token string, used to support
// revocation by name without needing the original bytes back.
type PersonalAccessToken struct {
	UserID    uint32
	Name      string
	TokenHash [32]byte
	ExpiresAt *time.Time
}

func (p *PersonalAccessToken) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// Stats is the aggregate counter snapshot behind GetStats.
type Stats struct {
	StreamsCount    uint32
	TopicsCount     uint32
	PartitionsCount uint32
	MessagesSent    uint64
	MessagesPolled  uint64
	ClientsCount    uint32
	Uptime          time.Duration
}
