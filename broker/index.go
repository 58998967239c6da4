package broker

import (
	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/wire"
)

// Index is the shard-local stream tree (protocol §3: "the shard-local
// in-memory index"). Exactly one goroutine — the owning shard's executor
// loop — ever touches an Index, so it carries no lock of its own (protocol
// §5: "the stream/topic/partition index is owned exclusively by its shard;
// no lock is required").
type Index struct {
	streams    map[uint32]*Stream
	streamName map[string]uint32
	nextID     uint32
}

func NewIndex() *Index {
	return &Index{
		streams:    make(map[uint32]*Stream),
		streamName: make(map[string]uint32),
	}
}

func (ix *Index) resolveStream(id wire.Identifier) (*Stream, error) {
	var (
		s  *Stream
		ok bool
	)
	if id.Kind == wire.IdentifierNumeric {
		s, ok = ix.streams[id.Num]
	} else {
		var num uint32
		num, ok = ix.streamName[id.Str]
		if ok {
			s, ok = ix.streams[num]
		}
	}
	if !ok {
		return nil, cos.NewError(cos.KindNotFound, "stream %s not found", id)
	}
	return s, nil
}

func (ix *Index) resolveTopic(streamID, topicID wire.Identifier) (*Stream, *Topic, error) {
	s, err := ix.resolveStream(streamID)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.resolveTopic(topicID)
	if err != nil {
		return nil, nil, err
	}
	return s, t, nil
}

func (s *Stream) resolveTopic(id wire.Identifier) (*Topic, error) {
	if id.Kind == wire.IdentifierNumeric {
		if t, ok := s.Topics[id.Num]; ok {
			return t, nil
		}
		return nil, cos.NewError(cos.KindNotFound, "topic %s not found in stream %d", id, s.ID)
	}
	for _, t := range s.Topics {
		if t.Name == id.Str {
			return t, nil
		}
	}
	return nil, cos.NewError(cos.KindNotFound, "topic %s not found in stream %d", id, s.ID)
}

func (t *Topic) resolveGroup(id wire.Identifier) (*ConsumerGroup, error) {
	if id.Kind == wire.IdentifierNumeric {
		if g, ok := t.ConsumerGroups[id.Num]; ok {
			return g, nil
		}
		return nil, cos.NewError(cos.KindNotFound, "consumer group %s not found", id)
	}
	for _, g := range t.ConsumerGroups {
		if g.Name == id.Str {
			return g, nil
		}
	}
	return nil, cos.NewError(cos.KindNotFound, "consumer group %s not found", id)
}

// CreateStream allocates a new Stream; id == 0 means "assign the next
// available id" (protocol §4.7). Fails AlreadyExists on numeric-id or name
// collision.
func (ix *Index) CreateStream(id uint32, name string) (*Stream, error) {
	if _, ok := ix.streamName[name]; ok {
		return nil, cos.NewError(cos.KindAlreadyExists, "stream named %q already exists", name)
	}
	if id == 0 {
		ix.nextID++
		id = ix.nextID
	} else if id > ix.nextID {
		ix.nextID = id
	}
	if _, ok := ix.streams[id]; ok {
		return nil, cos.NewError(cos.KindAlreadyExists, "stream id %d already exists", id)
	}
	s := &Stream{ID: id, Name: name, Topics: make(map[uint32]*Topic)}
	ix.streams[id] = s
	ix.streamName[name] = id
	return s, nil
}

func (ix *Index) DeleteStream(id wire.Identifier) error {
	s, err := ix.resolveStream(id)
	if err != nil {
		return err
	}
	delete(ix.streams, s.ID)
	delete(ix.streamName, s.Name)
	return nil
}

func (ix *Index) UpdateStream(id wire.Identifier, name string) (*Stream, error) {
	s, err := ix.resolveStream(id)
	if err != nil {
		return nil, err
	}
	if name != s.Name {
		if _, ok := ix.streamName[name]; ok {
			return nil, cos.NewError(cos.KindAlreadyExists, "stream named %q already exists", name)
		}
		delete(ix.streamName, s.Name)
		s.Name = name
		ix.streamName[name] = s.ID
	}
	return s, nil
}

func (ix *Index) GetStream(id wire.Identifier) (*Stream, error) { return ix.resolveStream(id) }

func (ix *Index) Streams() []*Stream {
	out := make([]*Stream, 0, len(ix.streams))
	for _, s := range ix.streams {
		out = append(out, s)
	}
	return out
}

// CreateTopic provisions a topic under stream, with id==0 meaning "assign
// next available" (protocol §4.7). cfg.PartitionsCount must be >= 1 and
// cfg.ReplicationFactor must be 1 on this single-node broker.
func (s *Stream) CreateTopic(id uint32, name string, cfg TopicConfig) (*Topic, error) {
	if cfg.PartitionsCount == 0 {
		return nil, cos.NewError(cos.KindInvalidConfiguration, "CreateTopic: partitions_count must be >= 1")
	}
	if cfg.ReplicationFactor != 1 {
		return nil, cos.NewError(cos.KindInvalidConfiguration, "CreateTopic: replication_factor must be 1 on a single-node broker")
	}
	for _, t := range s.Topics {
		if t.Name == name {
			return nil, cos.NewError(cos.KindAlreadyExists, "topic named %q already exists in stream %d", name, s.ID)
		}
	}
	if id == 0 {
		s.nextTID++
		id = s.nextTID
	} else if id > s.nextTID {
		s.nextTID = id
	}
	if _, ok := s.Topics[id]; ok {
		return nil, cos.NewError(cos.KindAlreadyExists, "topic id %d already exists in stream %d", id, s.ID)
	}
	t := &Topic{
		ID:             id,
		Name:           name,
		MessageExpiry:  cfg.MessageExpiry,
		Compression:    cfg.Compression,
		MaxTopicSize:   cfg.MaxTopicSize,
		Partitions:     make(map[uint32]*Partition, cfg.PartitionsCount),
		ConsumerGroups: make(map[uint32]*ConsumerGroup),
	}
	for i := uint32(1); i <= cfg.PartitionsCount; i++ {
		t.Partitions[i] = &Partition{ID: i}
	}
	t.nextPartID = cfg.PartitionsCount
	s.Topics[id] = t
	return t, nil
}

func (s *Stream) DeleteTopic(id wire.Identifier) error {
	t, err := s.resolveTopic(id)
	if err != nil {
		return err
	}
	delete(s.Topics, t.ID)
	return nil
}

func (s *Stream) UpdateTopic(id wire.Identifier, name string) (*Topic, error) {
	t, err := s.resolveTopic(id)
	if err != nil {
		return nil, err
	}
	for _, other := range s.Topics {
		if other.ID != t.ID && other.Name == name {
			return nil, cos.NewError(cos.KindAlreadyExists, "topic named %q already exists in stream %d", name, s.ID)
		}
	}
	t.Name = name
	return t, nil
}

func (t *Topic) Purge() {
	for _, p := range t.Partitions {
		p.Messages = nil
	}
}

// CreatePartitions appends count new, empty partitions with consecutive ids.
func (t *Topic) CreatePartitions(count uint32) error {
	if count == 0 {
		return cos.NewError(cos.KindInvalidConfiguration, "CreatePartitions: count must be >= 1")
	}
	for i := uint32(0); i < count; i++ {
		t.nextPartID++
		t.Partitions[t.nextPartID] = &Partition{ID: t.nextPartID}
	}
	return nil
}

// DeletePartitions removes the count highest-numbered partitions.
func (t *Topic) DeletePartitions(count uint32) error {
	if count == 0 {
		return cos.NewError(cos.KindInvalidConfiguration, "DeletePartitions: count must be >= 1")
	}
	if count > uint32(len(t.Partitions)) {
		return cos.NewError(cos.KindInvalidConfiguration, "DeletePartitions: count %d exceeds partition count %d", count, len(t.Partitions))
	}
	for i := uint32(0); i < count; i++ {
		delete(t.Partitions, t.nextPartID)
		t.nextPartID--
	}
	return nil
}

func (t *Topic) SortedPartitionIDs() []uint32 {
	ids := make([]uint32, 0, len(t.Partitions))
	for id := range t.Partitions {
		ids = append(ids, id)
	}
	sortU32(ids)
	return ids
}

func sortU32(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
