/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package broker

import (
	"context"
	"testing"

	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/metrics"
	"github.com/flowmq/flowmq/session"
	"github.com/flowmq/flowmq/storage"
	"github.com/flowmq/flowmq/wire"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	st, err := storage.OpenBunt(":memory:")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(0, st, metrics.New(), session.NewRegistry())
}

func defaultTopicConfig(partitions uint32) TopicConfig {
	return TopicConfig{
		PartitionsCount:   partitions,
		Compression:       wire.CompressionNone,
		ReplicationFactor: 1,
	}
}

func TestCreateStreamAssignsIDsAndDetectsCollisions(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	s, err := b.CreateStream(ctx, 0, "s")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID != 1 {
		t.Fatalf("first auto-assigned stream id = %d, want 1", s.ID)
	}
	if _, err := b.CreateStream(ctx, 0, "s"); !cos.IsKind(err, cos.KindAlreadyExists) {
		t.Fatalf("duplicate name: got %v, want AlreadyExists", err)
	}
	if _, err := b.CreateStream(ctx, 1, "other"); !cos.IsKind(err, cos.KindAlreadyExists) {
		t.Fatalf("duplicate id: got %v, want AlreadyExists", err)
	}

	s2, err := b.CreateStream(ctx, 0, "s2")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if s2.ID != 2 {
		t.Fatalf("second auto-assigned stream id = %d, want 2", s2.ID)
	}
}

func TestDeleteStreamIdempotence(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	if _, err := b.CreateStream(ctx, 0, "s"); err != nil {
		t.Fatal(err)
	}
	if err := b.DeleteStream(ctx, wire.NumericIdentifier(1)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// deleting again reports NotFound and leaves the index unchanged
	if err := b.DeleteStream(ctx, wire.NumericIdentifier(1)); !cos.IsKind(err, cos.KindNotFound) {
		t.Fatalf("second delete: got %v, want NotFound", err)
	}
	if got := len(b.GetStreams()); got != 0 {
		t.Fatalf("index has %d streams after double delete", got)
	}
}

func TestStreamLookupByNameAndRename(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	if _, err := b.CreateStream(ctx, 0, "orders"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.GetStream(wire.MustStringIdentifier("orders")); err != nil {
		t.Fatalf("lookup by name: %v", err)
	}
	if _, err := b.UpdateStream(wire.NumericIdentifier(1), "orders-v2"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := b.GetStream(wire.MustStringIdentifier("orders")); !cos.IsKind(err, cos.KindNotFound) {
		t.Fatalf("stale name still resolves: %v", err)
	}
	if _, err := b.GetStream(wire.MustStringIdentifier("orders-v2")); err != nil {
		t.Fatalf("new name: %v", err)
	}
}

func TestCreateTopicValidation(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	if _, err := b.CreateStream(ctx, 0, "s"); err != nil {
		t.Fatal(err)
	}
	sid := wire.NumericIdentifier(1)

	cfg := defaultTopicConfig(0)
	if _, err := b.CreateTopic(sid, 0, "t", cfg); !cos.IsKind(err, cos.KindInvalidConfiguration) {
		t.Fatalf("partitions_count=0: got %v, want InvalidConfiguration", err)
	}
	cfg = defaultTopicConfig(2)
	cfg.ReplicationFactor = 2
	if _, err := b.CreateTopic(sid, 0, "t", cfg); !cos.IsKind(err, cos.KindInvalidConfiguration) {
		t.Fatalf("replication_factor=2: got %v, want InvalidConfiguration", err)
	}

	topic, err := b.CreateTopic(sid, 0, "t", defaultTopicConfig(3))
	if err != nil {
		t.Fatalf("valid create: %v", err)
	}
	if topic.ID != 1 || len(topic.Partitions) != 3 {
		t.Fatalf("topic = id %d, %d partitions", topic.ID, len(topic.Partitions))
	}
	if _, err := b.CreateTopic(sid, 0, "t", defaultTopicConfig(1)); !cos.IsKind(err, cos.KindAlreadyExists) {
		t.Fatalf("duplicate topic name: got %v, want AlreadyExists", err)
	}
}

func TestCreateDeletePartitions(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	if _, err := b.CreateStream(ctx, 0, "s"); err != nil {
		t.Fatal(err)
	}
	sid, tid := wire.NumericIdentifier(1), wire.NumericIdentifier(1)
	if _, err := b.CreateTopic(sid, 0, "t", defaultTopicConfig(2)); err != nil {
		t.Fatal(err)
	}
	if err := b.CreatePartitions(sid, tid, 3); err != nil {
		t.Fatal(err)
	}
	topic, _ := b.GetTopic(sid, tid)
	if got := topic.SortedPartitionIDs(); len(got) != 5 || got[4] != 5 {
		t.Fatalf("partitions after create = %v", got)
	}
	if err := b.DeletePartitions(sid, tid, 2); err != nil {
		t.Fatal(err)
	}
	if got := topic.SortedPartitionIDs(); len(got) != 3 || got[2] != 3 {
		t.Fatalf("partitions after delete = %v", got)
	}
	if err := b.DeletePartitions(sid, tid, 99); !cos.IsKind(err, cos.KindInvalidConfiguration) {
		t.Fatalf("over-delete: got %v, want InvalidConfiguration", err)
	}
}
