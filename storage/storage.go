// Package storage implements the broker's storage collaborator:
// per-partition append/read and consumer-offset persistence. The on-disk
// segment format is deliberately not part of the wire contract; this
// package supplies the minimal real implementation needed to run the
// domain façade end to end, backed by an embedded buntdb database.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/buntdb"

	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/cmn/nlog"
)

// Record is one appended or read raw message record; the broker
// package's Message type is marshaled to/from this shape at the storage
// boundary so this package has no dependency on package broker.
type Record struct {
	Offset    uint64
	Timestamp int64
	ID        [16]byte
	Headers   []byte
	Payload   []byte
}

// PartitionKey names a partition for storage addressing purposes.
type PartitionKey struct {
	StreamID, TopicID, PartitionID uint32
}

func (k PartitionKey) dirKey() string {
	return fmt.Sprintf("part/%d/%d/%d", k.StreamID, k.TopicID, k.PartitionID)
}

// OffsetScope names a (consumer, partition) pair for offset storage.
type OffsetScope struct {
	ConsumerIsGroup bool
	ConsumerID      uint32
	PartitionKey
}

func (s OffsetScope) key() string {
	kind := "c"
	if s.ConsumerIsGroup {
		kind = "g"
	}
	return fmt.Sprintf("off/%s%d/%d/%d/%d", kind, s.ConsumerID, s.StreamID, s.TopicID, s.PartitionID)
}

// Storage is the §6 collaborator interface: every method is async-shaped
// (ctx first), fallible, and idempotent except Append, which the domain
// façade never retries (protocol §5).
type Storage interface {
	CreateStreamDir(ctx context.Context, streamID uint32) error
	DeleteStreamDir(ctx context.Context, streamID uint32) error
	Append(ctx context.Context, key PartitionKey, batch []Record) error
	Read(ctx context.Context, key PartitionKey, from uint64, count int) ([]Record, error)
	StoreOffset(ctx context.Context, scope OffsetScope, offset uint64) error
	LoadOffset(ctx context.Context, scope OffsetScope) (uint64, bool, error)
	Close() error
}

// BuntStorage is the concrete Storage backed by a single buntdb database:
// stream directories are represented as key prefixes (no real filesystem
// directory is required for the single-node, in-memory-segment revision
// this broker ships), and offsets/messages are both buntdb rows. Per-
// partition writes are serialized by a per-key mutex, matching the §5
// contract "the storage collaborator is addressed per-partition and is
// single-writer per partition".
type BuntStorage struct {
	db *buntdb.DB

	mu       sync.Mutex
	partLock map[string]*sync.Mutex
}

func OpenBunt(path string) (*BuntStorage, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cos.NewError(cos.KindStorageFailure, "open buntdb at %q: %v", path, err)
	}
	return &BuntStorage{db: db, partLock: make(map[string]*sync.Mutex)}, nil
}

func (s *BuntStorage) Close() error { return s.db.Close() }

func (s *BuntStorage) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.partLock[key]
	if !ok {
		l = &sync.Mutex{}
		s.partLock[key] = l
	}
	return l
}

func (s *BuntStorage) CreateStreamDir(_ context.Context, streamID uint32) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(fmt.Sprintf("stream/%d", streamID), "1", nil)
		return err
	})
	if err != nil {
		return cos.NewError(cos.KindStorageFailure, "create stream dir %d: %v", streamID, err)
	}
	return nil
}

func (s *BuntStorage) DeleteStreamDir(_ context.Context, streamID uint32) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		prefix := fmt.Sprintf("part/%d/", streamID)
		var toDelete []string
		if derr := tx.AscendKeys(prefix+"*", func(k, _ string) bool {
			toDelete = append(toDelete, k)
			return true
		}); derr != nil {
			return derr
		}
		for _, k := range toDelete {
			if _, err := tx.Delete(k); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		_, err := tx.Delete(fmt.Sprintf("stream/%d", streamID))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return cos.NewError(cos.KindStorageFailure, "delete stream dir %d: %v", streamID, err)
	}
	return nil
}

// encRecord/decRecord are a small fixed binary layout, deliberately distinct
// from the wire package's AppendableMessage codec (protocol §1: on-disk
// format is out of scope to specify precisely; this is an implementation
// detail private to this package).
func encRecord(r Record) []byte {
	buf := make([]byte, 8+8+16+4+len(r.Headers)+4+len(r.Payload))
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], r.Offset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.Timestamp))
	off += 8
	off += copy(buf[off:], r.ID[:])
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Headers)))
	off += 4
	off += copy(buf[off:], r.Headers)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Payload)))
	off += 4
	off += copy(buf[off:], r.Payload)
	return buf[:off]
}

func decRecord(buf []byte) (Record, error) {
	if len(buf) < 8+8+16+4 {
		return Record{}, errors.New("storage: truncated record")
	}
	var r Record
	off := 0
	r.Offset = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	r.Timestamp = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	copy(r.ID[:], buf[off:off+16])
	off += 16
	hlen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+hlen+4 {
		return Record{}, errors.New("storage: truncated record headers")
	}
	if hlen > 0 {
		r.Headers = append([]byte(nil), buf[off:off+hlen]...)
	}
	off += hlen
	plen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+plen {
		return Record{}, errors.New("storage: truncated record payload")
	}
	r.Payload = append([]byte(nil), buf[off:off+plen]...)
	return r, nil
}

// Append persists a batch under one partition key, one row per message keyed
// by its offset so Read can range-scan. Not idempotent: calling it twice
// with the same offsets overwrites, which is why the façade never retries it.
func (s *BuntStorage) Append(_ context.Context, key PartitionKey, batch []Record) error {
	l := s.lockFor(key.dirKey())
	l.Lock()
	defer l.Unlock()
	err := s.db.Update(func(tx *buntdb.Tx) error {
		for _, r := range batch {
			k := fmt.Sprintf("%s/%020d", key.dirKey(), r.Offset)
			v := string(encRecord(r))
			if _, _, err := tx.Set(k, v, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		nlog.Errorf("storage: append to %s failed: %v", key.dirKey(), err)
		return cos.NewError(cos.KindStorageFailure, "append to partition %+v: %v", key, err)
	}
	return nil
}

func (s *BuntStorage) Read(_ context.Context, key PartitionKey, from uint64, count int) ([]Record, error) {
	var out []Record
	prefix := key.dirKey() + "/"
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", fmt.Sprintf("%s%020d", prefix, from), func(k, v string) bool {
			if len(k) < len(prefix) || k[:len(prefix)] != prefix {
				return false
			}
			r, derr := decRecord([]byte(v))
			if derr != nil {
				nlog.Warningf("storage: skipping corrupt record at %s: %v", k, derr)
				return true
			}
			out = append(out, r)
			return len(out) < count
		})
	})
	if err != nil {
		return nil, cos.NewError(cos.KindStorageFailure, "read partition %+v: %v", key, err)
	}
	return out, nil
}

func (s *BuntStorage) StoreOffset(_ context.Context, scope OffsetScope, offset uint64) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(scope.key(), fmt.Sprintf("%d", offset), nil)
		return err
	})
	if err != nil {
		return cos.NewError(cos.KindStorageFailure, "store offset %+v: %v", scope, err)
	}
	return nil
}

func (s *BuntStorage) LoadOffset(_ context.Context, scope OffsetScope) (uint64, bool, error) {
	var val string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(scope.key())
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, cos.NewError(cos.KindStorageFailure, "load offset %+v: %v", scope, err)
	}
	var offset uint64
	if _, err := fmt.Sscanf(val, "%d", &offset); err != nil {
		return 0, false, cos.NewError(cos.KindStorageFailure, "load offset %+v: corrupt value %q", scope, val)
	}
	return offset, true, nil
}
