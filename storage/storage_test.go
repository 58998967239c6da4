/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package storage

import (
	"bytes"
	"context"
	"testing"
)

func openTest(t *testing.T) *BuntStorage {
	t.Helper()
	s, err := OpenBunt(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(offset uint64, payload string) Record {
	var id [16]byte
	id[0] = byte(offset + 1)
	return Record{Offset: offset, Timestamp: int64(offset) * 1000, ID: id, Payload: []byte(payload)}
}

func TestAppendReadRoundtrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	key := PartitionKey{StreamID: 1, TopicID: 2, PartitionID: 3}

	batch := []Record{rec(0, "a"), rec(1, "b"), rec(2, "c")}
	batch[1].Headers = []byte("k=v")
	if err := s.Append(ctx, key, batch); err != nil {
		t.Fatal(err)
	}

	got, err := s.Read(ctx, key, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("read %d records, want 3", len(got))
	}
	for i, r := range got {
		if r.Offset != batch[i].Offset || r.Timestamp != batch[i].Timestamp ||
			r.ID != batch[i].ID || !bytes.Equal(r.Payload, batch[i].Payload) ||
			!bytes.Equal(r.Headers, batch[i].Headers) {
			t.Fatalf("record %d mismatch: %+v vs %+v", i, r, batch[i])
		}
	}
}

func TestReadFromOffsetAndCount(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	key := PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 1}
	var batch []Record
	for i := uint64(0); i < 10; i++ {
		batch = append(batch, rec(i, "m"))
	}
	if err := s.Append(ctx, key, batch); err != nil {
		t.Fatal(err)
	}

	got, err := s.Read(ctx, key, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Offset != 4 || got[2].Offset != 6 {
		t.Fatalf("Read(4,3) = offsets %v", offsetsOf(got))
	}
	// count is an upper bound
	got, err = s.Read(ctx, key, 8, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Read(8,100) returned %d", len(got))
	}
}

// Reads must not bleed into a neighboring partition's key range.
func TestReadIsPartitionScoped(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	a := PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 1}
	b := PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 2}
	if err := s.Append(ctx, a, []Record{rec(0, "a")}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, b, []Record{rec(0, "b"), rec(1, "b")}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Read(ctx, a, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("partition 1 read returned %d records", len(got))
	}
}

func TestOffsetStore(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	scope := OffsetScope{ConsumerID: 5, PartitionKey: PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 1}}

	if _, ok, err := s.LoadOffset(ctx, scope); err != nil || ok {
		t.Fatalf("fresh scope: ok=%v err=%v", ok, err)
	}
	if err := s.StoreOffset(ctx, scope, 17); err != nil {
		t.Fatal(err)
	}
	// idempotent overwrite
	if err := s.StoreOffset(ctx, scope, 18); err != nil {
		t.Fatal(err)
	}
	off, ok, err := s.LoadOffset(ctx, scope)
	if err != nil || !ok || off != 18 {
		t.Fatalf("load: off=%d ok=%v err=%v", off, ok, err)
	}

	// group-scoped and direct-scoped offsets do not collide
	gscope := scope
	gscope.ConsumerIsGroup = true
	if _, ok, _ := s.LoadOffset(ctx, gscope); ok {
		t.Fatal("group scope sees direct offset")
	}
}

func TestDeleteStreamDirReclaims(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.CreateStreamDir(ctx, 1); err != nil {
		t.Fatal(err)
	}
	key := PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 1}
	if err := s.Append(ctx, key, []Record{rec(0, "x")}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteStreamDir(ctx, 1); err != nil {
		t.Fatal(err)
	}
	got, err := s.Read(ctx, key, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("%d records survived stream reclaim", len(got))
	}
	// idempotent: deleting again is fine
	if err := s.DeleteStreamDir(ctx, 1); err != nil {
		t.Fatal(err)
	}
}

func offsetsOf(rs []Record) []uint64 {
	out := make([]uint64, len(rs))
	for i, r := range rs {
		out[i] = r.Offset
	}
	return out
}
