/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package broker

import (
	"context"
	"testing"

	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/wire"
)

func msgWithID(n byte, payload string) wire.AppendableMessage {
	var id [16]byte
	id[0] = 0xf0
	id[15] = n
	return wire.AppendableMessage{ID: id, Payload: []byte(payload)}
}

func setupTopic(t *testing.T, b *Broker, partitions uint32) (wire.Identifier, wire.Identifier) {
	t.Helper()
	ctx := context.Background()
	if _, err := b.CreateStream(ctx, 0, "s"); err != nil {
		t.Fatal(err)
	}
	sid := wire.NumericIdentifier(1)
	if _, err := b.CreateTopic(sid, 0, "t", defaultTopicConfig(partitions)); err != nil {
		t.Fatal(err)
	}
	return sid, wire.NumericIdentifier(1)
}

// Balanced partitioning round-robins across partitions; per-partition offsets
// stay contiguous from zero.
func TestAppendBalancedRoundRobin(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sid, tid := setupTopic(t, b, 4)

	var seq byte
	for i := 0; i < 100; i++ {
		seq++
		err := b.AppendMessages(ctx, sid, tid, wire.Partitioning{Kind: wire.PartitioningBalanced},
			[]wire.AppendableMessage{msgWithID(seq, "m")})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	topic, _ := b.GetTopic(sid, tid)
	for _, pid := range topic.SortedPartitionIDs() {
		part := topic.Partitions[pid]
		if len(part.Messages) != 25 {
			t.Fatalf("partition %d has %d messages, want 25", pid, len(part.Messages))
		}
		for i, m := range part.Messages {
			if m.Offset != uint64(i) {
				t.Fatalf("partition %d message %d has offset %d", pid, i, m.Offset)
			}
		}
	}
}

func TestAppendBatchOffsetsContiguous(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sid, tid := setupTopic(t, b, 1)

	batch := []wire.AppendableMessage{msgWithID(1, "a"), msgWithID(2, "b"), msgWithID(3, "c")}
	if err := b.AppendMessages(ctx, sid, tid, wire.Partitioning{Kind: wire.PartitioningPartitionID, PartitionID: 1}, batch); err != nil {
		t.Fatal(err)
	}
	batch2 := []wire.AppendableMessage{msgWithID(4, "d"), msgWithID(5, "e")}
	if err := b.AppendMessages(ctx, sid, tid, wire.Partitioning{Kind: wire.PartitioningPartitionID, PartitionID: 1}, batch2); err != nil {
		t.Fatal(err)
	}

	topic, _ := b.GetTopic(sid, tid)
	part := topic.Partitions[1]
	if len(part.Messages) != 5 {
		t.Fatalf("%d messages, want 5", len(part.Messages))
	}
	for i, m := range part.Messages {
		if m.Offset != uint64(i) {
			t.Fatalf("message %d has offset %d, want %d (no gaps)", i, m.Offset, i)
		}
	}
}

func TestAppendMessagesKeyDeterministic(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sid, tid := setupTopic(t, b, 4)

	key := wire.Partitioning{Kind: wire.PartitioningMessagesKey, Key: []byte("user-17")}
	var seq byte
	for i := 0; i < 10; i++ {
		seq++
		if err := b.AppendMessages(ctx, sid, tid, key, []wire.AppendableMessage{msgWithID(seq, "m")}); err != nil {
			t.Fatal(err)
		}
	}
	topic, _ := b.GetTopic(sid, tid)
	nonEmpty := 0
	for _, pid := range topic.SortedPartitionIDs() {
		if n := len(topic.Partitions[pid].Messages); n > 0 {
			nonEmpty++
			if n != 10 {
				t.Fatalf("keyed partition has %d messages, want all 10", n)
			}
		}
	}
	if nonEmpty != 1 {
		t.Fatalf("same key landed on %d partitions", nonEmpty)
	}
}

func TestAppendUnknownPartition(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sid, tid := setupTopic(t, b, 2)
	err := b.AppendMessages(ctx, sid, tid, wire.Partitioning{Kind: wire.PartitioningPartitionID, PartitionID: 99},
		[]wire.AppendableMessage{msgWithID(1, "m")})
	if !cos.IsKind(err, cos.KindNotFound) {
		t.Fatalf("got %v, want NotFound", err)
	}
}

func TestAppendRejectsDuplicateIDs(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sid, tid := setupTopic(t, b, 1)
	direct := wire.Partitioning{Kind: wire.PartitioningPartitionID, PartitionID: 1}

	if err := b.AppendMessages(ctx, sid, tid, direct, []wire.AppendableMessage{msgWithID(1, "a")}); err != nil {
		t.Fatal(err)
	}
	// same id again: whole batch rejected, nothing appended
	err := b.AppendMessages(ctx, sid, tid, direct, []wire.AppendableMessage{msgWithID(2, "b"), msgWithID(1, "dup")})
	if !cos.IsKind(err, cos.KindAlreadyExists) {
		t.Fatalf("got %v, want AlreadyExists", err)
	}
	// duplicate within one batch
	err = b.AppendMessages(ctx, sid, tid, direct, []wire.AppendableMessage{msgWithID(3, "c"), msgWithID(3, "c")})
	if !cos.IsKind(err, cos.KindAlreadyExists) {
		t.Fatalf("in-batch dup: got %v, want AlreadyExists", err)
	}
	topic, _ := b.GetTopic(sid, tid)
	if n := len(topic.Partitions[1].Messages); n != 1 {
		t.Fatalf("partition has %d messages after rejected batches, want 1", n)
	}

	// the all-zero id opts out of dedup
	zero := wire.AppendableMessage{Payload: []byte("z")}
	if err := b.AppendMessages(ctx, sid, tid, direct, []wire.AppendableMessage{zero, zero}); err != nil {
		t.Fatalf("zero-id messages rejected: %v", err)
	}
}

func TestPollStrategies(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sid, tid := setupTopic(t, b, 1)
	direct := wire.Partitioning{Kind: wire.PartitioningPartitionID, PartitionID: 1}
	var seq byte
	for i := 0; i < 10; i++ {
		seq++
		if err := b.AppendMessages(ctx, sid, tid, direct, []wire.AppendableMessage{msgWithID(seq, "m")}); err != nil {
			t.Fatal(err)
		}
	}
	consumer := wire.Consumer{Kind: wire.ConsumerDirect, ID: 0}
	const clientID = 7

	poll := func(strategy wire.PollingStrategy, count uint32, autoCommit bool) []Message {
		t.Helper()
		msgs, err := b.PollMessages(ctx, consumer, clientID, sid, tid, PollArgs{
			PartitionID: 1, Strategy: strategy, Count: count, AutoCommit: autoCommit,
		})
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		return msgs
	}

	if msgs := poll(wire.PollingStrategy{Kind: wire.PollFirst}, 3, false); len(msgs) != 3 || msgs[0].Offset != 0 {
		t.Fatalf("First: got %d messages, first offset %d", len(msgs), msgs[0].Offset)
	}
	if msgs := poll(wire.PollingStrategy{Kind: wire.PollOffset, Value: 6}, 100, false); len(msgs) != 4 || msgs[0].Offset != 6 {
		t.Fatalf("Offset(6): got %d messages starting at %d", len(msgs), msgs[0].Offset)
	}
	if msgs := poll(wire.PollingStrategy{Kind: wire.PollLast}, 5, false); len(msgs) != 1 || msgs[0].Offset != 9 {
		t.Fatalf("Last: got %d messages, offset %d", len(msgs), msgs[0].Offset)
	}

	// Next with no stored offset starts from the beginning; with auto-commit
	// it advances so consecutive polls page through without overlap.
	if msgs := poll(wire.PollingStrategy{Kind: wire.PollNext}, 4, true); len(msgs) != 4 || msgs[0].Offset != 0 {
		t.Fatalf("Next #1: got %d messages starting at %d", len(msgs), msgs[0].Offset)
	}
	if msgs := poll(wire.PollingStrategy{Kind: wire.PollNext}, 4, true); len(msgs) != 4 || msgs[0].Offset != 4 {
		t.Fatalf("Next #2: got %d messages starting at %d", len(msgs), msgs[0].Offset)
	}
	if msgs := poll(wire.PollingStrategy{Kind: wire.PollNext}, 4, true); len(msgs) != 2 || msgs[0].Offset != 8 {
		t.Fatalf("Next #3: got %d messages starting at %d", len(msgs), msgs[0].Offset)
	}

	offset, ok, err := b.GetConsumerOffset(ctx, consumer, clientID, sid, tid, 1)
	if err != nil || !ok {
		t.Fatalf("get offset: %v ok=%v", err, ok)
	}
	if offset != 10 {
		t.Fatalf("stored offset = %d, want 10 (last returned + 1)", offset)
	}
}

func TestStoreAndGetConsumerOffset(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sid, tid := setupTopic(t, b, 1)
	consumer := wire.Consumer{Kind: wire.ConsumerDirect, ID: 0}

	_, ok, err := b.GetConsumerOffset(ctx, consumer, 3, sid, tid, 1)
	if err != nil || ok {
		t.Fatalf("fresh consumer: err=%v ok=%v", err, ok)
	}
	if err := b.StoreConsumerOffset(ctx, consumer, 3, sid, tid, 1, 41); err != nil {
		t.Fatal(err)
	}
	offset, ok, err := b.GetConsumerOffset(ctx, consumer, 3, sid, tid, 1)
	if err != nil || !ok || offset != 41 {
		t.Fatalf("got offset=%d ok=%v err=%v", offset, ok, err)
	}
	// offsets are per client: another client sees none
	if _, ok, _ := b.GetConsumerOffset(ctx, consumer, 4, sid, tid, 1); ok {
		t.Fatal("offset leaked across clients")
	}
}

// A group member may only poll partitions its assignment includes.
func TestGroupScopedPollAuthorization(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	sid, tid := setupTopic(t, b, 2)
	if _, err := b.CreateConsumerGroup(sid, tid, 0, "g"); err != nil {
		t.Fatal(err)
	}
	gid := wire.NumericIdentifier(1)
	if err := b.JoinConsumerGroup(sid, tid, gid, 10); err != nil {
		t.Fatal(err)
	}
	if err := b.JoinConsumerGroup(sid, tid, gid, 20); err != nil {
		t.Fatal(err)
	}
	// member 10 owns partition 1, member 20 owns partition 2
	group := wire.Consumer{Kind: wire.ConsumerGroup, ID: 1}
	if _, err := b.PollMessages(ctx, group, 10, sid, tid, PollArgs{PartitionID: 1, Strategy: wire.PollingStrategy{Kind: wire.PollFirst}, Count: 1}); err != nil {
		t.Fatalf("assigned partition: %v", err)
	}
	_, err := b.PollMessages(ctx, group, 10, sid, tid, PollArgs{PartitionID: 2, Strategy: wire.PollingStrategy{Kind: wire.PollFirst}, Count: 1})
	if !cos.IsKind(err, cos.KindUnauthorized) {
		t.Fatalf("unassigned partition: got %v, want Unauthorized", err)
	}
}
