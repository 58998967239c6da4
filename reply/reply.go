// Package reply implements the reply encoder: turning domain results
// (package broker's Stream/Topic/ConsumerGroup/User/PersonalAccessToken/
// ClientRecord/Stats/Message values) into the binary body of a
// ShardResponse.BinaryResponse, per protocol §4.8 ("entity header followed by
// variable fields; lists are count:u32_le || items"). This package is pure:
// no I/O, no locking, just byte layout — handlers produce typed results,
// this mapper serializes them at the wire edge.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package reply

import (
	"encoding/binary"

	"github.com/flowmq/flowmq/broker"
	"github.com/flowmq/flowmq/wire"
)

// Empty is the zero-length body returned for acknowledge-only mutations
// (protocol §4.6: "Commands that return no payload still return an empty
// BinaryResponse").
var Empty = []byte{}

func putU32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func putU64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }

func putString(dst []byte, s string) int {
	dst[0] = byte(len(s))
	copy(dst[1:], s)
	return 1 + len(s)
}

func stringSize(s string) int { return 1 + len(s) }

//
// Streams
//

func streamSize(s *broker.Stream) int { return 4 + stringSize(s.Name) + 4 }

func encodeStreamInto(dst []byte, s *broker.Stream) int {
	off := 0
	putU32(dst[off:], s.ID)
	off += 4
	off += putString(dst[off:], s.Name)
	putU32(dst[off:], uint32(len(s.Topics)))
	off += 4
	return off
}

func Stream(s *broker.Stream) []byte {
	buf := make([]byte, streamSize(s))
	n := encodeStreamInto(buf, s)
	return buf[:n]
}

func Streams(list []*broker.Stream) []byte {
	size := 4
	for _, s := range list {
		size += streamSize(s)
	}
	buf := make([]byte, size)
	putU32(buf, uint32(len(list)))
	off := 4
	for _, s := range list {
		off += encodeStreamInto(buf[off:], s)
	}
	return buf[:off]
}

//
// Topics
//

func topicSize(t *broker.Topic) int { return 4 + stringSize(t.Name) + 4 + 8 + 1 + 8 }

func encodeTopicInto(dst []byte, t *broker.Topic) int {
	off := 0
	putU32(dst[off:], t.ID)
	off += 4
	off += putString(dst[off:], t.Name)
	putU32(dst[off:], uint32(len(t.Partitions)))
	off += 4
	putU64(dst[off:], t.MessageExpiry)
	off += 8
	dst[off] = byte(t.Compression)
	off++
	putU64(dst[off:], t.MaxTopicSize)
	off += 8
	return off
}

func Topic(t *broker.Topic) []byte {
	buf := make([]byte, topicSize(t))
	n := encodeTopicInto(buf, t)
	return buf[:n]
}

func Topics(list []*broker.Topic) []byte {
	size := 4
	for _, t := range list {
		size += topicSize(t)
	}
	buf := make([]byte, size)
	putU32(buf, uint32(len(list)))
	off := 4
	for _, t := range list {
		off += encodeTopicInto(buf[off:], t)
	}
	return buf[:off]
}

//
// Consumer groups
//

func groupSize(g *broker.ConsumerGroup) int { return 4 + stringSize(g.Name) + 4 + 4 }

func encodeGroupInto(dst []byte, g *broker.ConsumerGroup) int {
	off := 0
	putU32(dst[off:], g.ID)
	off += 4
	off += putString(dst[off:], g.Name)
	putU32(dst[off:], uint32(len(g.Members)))
	off += 4
	var assigned uint32
	for _, parts := range g.Assignment {
		assigned += uint32(len(parts))
	}
	putU32(dst[off:], assigned)
	off += 4
	return off
}

// ConsumerGroup encodes the group header used by GetConsumerGroup; members
// and their per-member assignment are surfaced as two count fields rather
// than full lists, matching the minimal "header followed by variable fields"
// contract — a richer client-facing member/assignment dump is a mapper
// concern the protocol leaves open (§6: "Mapper ... pure", no exact schema
// pinned beyond the two worked command-encoding examples in §8).
func ConsumerGroup(g *broker.ConsumerGroup) []byte {
	buf := make([]byte, groupSize(g))
	n := encodeGroupInto(buf, g)
	return buf[:n]
}

func ConsumerGroups(list []*broker.ConsumerGroup) []byte {
	size := 4
	for _, g := range list {
		size += groupSize(g)
	}
	buf := make([]byte, size)
	putU32(buf, uint32(len(list)))
	off := 4
	for _, g := range list {
		off += encodeGroupInto(buf[off:], g)
	}
	return buf[:off]
}

//
// Users
//

func userSize(u *broker.User) int { return 4 + stringSize(u.Username) + 1 }

func encodeUserInto(dst []byte, u *broker.User) int {
	off := 0
	putU32(dst[off:], u.ID)
	off += 4
	off += putString(dst[off:], u.Username)
	dst[off] = byte(u.Status)
	off++
	return off
}

func User(u *broker.User) []byte {
	buf := make([]byte, userSize(u))
	n := encodeUserInto(buf, u)
	return buf[:n]
}

func Users(list []*broker.User) []byte {
	size := 4
	for _, u := range list {
		size += userSize(u)
	}
	buf := make([]byte, size)
	putU32(buf, uint32(len(list)))
	off := 4
	for _, u := range list {
		off += encodeUserInto(buf[off:], u)
	}
	return buf[:off]
}

// UserWithPermissions extends User with the full permission set, used for
// GetUser (a single user's own detail view) but not GetUsers (a roster,
// kept lean per protocol §4.8's "lists are count || items" without forcing
// every list element to carry its full permission set).
func UserWithPermissions(u *broker.User) []byte {
	base := User(u)
	perms := wire.EncodePermissions(u.Permissions)
	buf := make([]byte, len(base)+len(perms))
	copy(buf, base)
	copy(buf[len(base):], perms)
	return buf
}

//
// Personal access tokens
//

func patSize(p *broker.PersonalAccessToken) int { return stringSize(p.Name) + 4 }

func encodePATInto(dst []byte, p *broker.PersonalAccessToken) int {
	off := putString(dst, p.Name)
	var expiry uint32
	if p.ExpiresAt != nil {
		expiry = uint32(p.ExpiresAt.Unix())
	}
	putU32(dst[off:], expiry)
	off += 4
	return off
}

func PersonalAccessTokens(list []*broker.PersonalAccessToken) []byte {
	size := 4
	for _, p := range list {
		size += patSize(p)
	}
	buf := make([]byte, size)
	putU32(buf, uint32(len(list)))
	off := 4
	for _, p := range list {
		off += encodePATInto(buf[off:], p)
	}
	return buf[:off]
}

// CreatedPersonalAccessToken is the one-time reply carrying the raw token
// value; nothing else in the protocol ever re-surfaces it (protocol §3:
// "the raw token returned to the client on creation is never stored").
func CreatedPersonalAccessToken(raw string) []byte {
	buf := make([]byte, stringSize(raw))
	putString(buf, raw)
	return buf
}

//
// Clients
//

func clientSize(c *broker.ClientRecord) int { return 4 + stringSize(c.Address) + 1 + 8 }

func encodeClientInto(dst []byte, c *broker.ClientRecord) int {
	off := 0
	putU32(dst[off:], c.ClientID)
	off += 4
	off += putString(dst[off:], c.Address)
	if c.HasUser {
		dst[off] = 1
	} else {
		dst[off] = 0
	}
	off++
	putU64(dst[off:], c.UserID)
	off += 8
	return off
}

func Client(c *broker.ClientRecord) []byte {
	buf := make([]byte, clientSize(c))
	n := encodeClientInto(buf, c)
	return buf[:n]
}

func Clients(list []*broker.ClientRecord) []byte {
	size := 4
	for _, c := range list {
		size += clientSize(c)
	}
	buf := make([]byte, size)
	putU32(buf, uint32(len(list)))
	off := 4
	for _, c := range list {
		off += encodeClientInto(buf[off:], c)
	}
	return buf[:off]
}

//
// Stats
//

func Stats(s broker.Stats) []byte {
	buf := make([]byte, 4+4+4+8+8+4+8)
	off := 0
	putU32(buf[off:], s.StreamsCount)
	off += 4
	putU32(buf[off:], s.TopicsCount)
	off += 4
	putU32(buf[off:], s.PartitionsCount)
	off += 4
	putU64(buf[off:], s.MessagesSent)
	off += 8
	putU64(buf[off:], s.MessagesPolled)
	off += 8
	putU32(buf[off:], s.ClientsCount)
	off += 4
	putU64(buf[off:], uint64(s.Uptime.Seconds()))
	off += 8
	return buf[:off]
}

//
// Polled messages
//

func messageSize(m broker.Message) int {
	return 8 + 8 + 16 + 4 + len(m.Headers) + 4 + len(m.Payload)
}

func encodeMessageInto(dst []byte, m broker.Message) int {
	off := 0
	putU64(dst[off:], m.Offset)
	off += 8
	putU64(dst[off:], uint64(m.Timestamp))
	off += 8
	off += copy(dst[off:], m.ID[:])
	putU32(dst[off:], uint32(len(m.Headers)))
	off += 4
	off += copy(dst[off:], m.Headers)
	putU32(dst[off:], uint32(len(m.Payload)))
	off += 4
	off += copy(dst[off:], m.Payload)
	return off
}

// Messages encodes a poll_messages result batch.
func Messages(list []broker.Message) []byte {
	size := 4
	for _, m := range list {
		size += messageSize(m)
	}
	buf := make([]byte, size)
	putU32(buf, uint32(len(list)))
	off := 4
	for _, m := range list {
		off += encodeMessageInto(buf[off:], m)
	}
	return buf[:off]
}

//
// Offsets
//

func ConsumerOffset(offset uint64, ok bool) []byte {
	buf := make([]byte, 1+8)
	if ok {
		buf[0] = 1
	}
	putU64(buf[1:], offset)
	return buf
}

// MergeCountPrefixed folds several count:u32_le || items bodies into one,
// summing the counts and concatenating the items. Used by the listener to
// scatter-gather list commands (GetStreams) whose result set is spread
// across every shard's index.
func MergeCountPrefixed(bodies [][]byte) []byte {
	size := 4
	for _, b := range bodies {
		if len(b) > 4 {
			size += len(b) - 4
		}
	}
	buf := make([]byte, size)
	var total uint32
	off := 4
	for _, b := range bodies {
		if len(b) < 4 {
			continue
		}
		total += binary.LittleEndian.Uint32(b)
		off += copy(buf[off:], b[4:])
	}
	putU32(buf, total)
	return buf[:off]
}

//
// Login
//

// LoginIdentity is the reply to LoginUser/LoginWithPersonalAccessToken: the
// resolved user id and permission set the session adopts.
func LoginIdentity(userID uint32, perms wire.Permissions) []byte {
	permsBytes := wire.EncodePermissions(perms)
	buf := make([]byte, 4+len(permsBytes))
	putU32(buf, userID)
	copy(buf[4:], permsBytes)
	return buf
}
