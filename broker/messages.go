package broker

import (
	"context"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/cmn/mono"
	"github.com/flowmq/flowmq/storage"
	"github.com/flowmq/flowmq/wire"
)

// AppendMessages resolves a target partition for partitioning, assigns
// contiguous offsets to msgs in order, and durably appends them. The
// in-memory mutation happens first and is rolled back if storage fails
// (protocol §4.6: "call storage after a successful index mutation and
// compensate on storage failure").
func (b *Broker) AppendMessages(ctx context.Context, streamID, topicID wire.Identifier, partitioning wire.Partitioning, msgs []wire.AppendableMessage) error {
	s, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return err
	}
	part, err := t.resolvePartition(partitioning)
	if err != nil {
		return err
	}
	if err := part.checkDuplicates(msgs); err != nil {
		return err
	}

	begin := mono.NanoTime()
	start := part.nextOffset()
	appended := make([]Message, len(msgs))
	records := make([]storage.Record, len(msgs))
	now := mono.NanoTime()
	for i, m := range msgs {
		msg := Message{Offset: start + uint64(i), Timestamp: now, ID: m.ID, Headers: m.Headers, Payload: m.Payload}
		appended[i] = msg
		records[i] = storage.Record{Offset: msg.Offset, Timestamp: msg.Timestamp, ID: msg.ID, Headers: msg.Headers, Payload: msg.Payload}
	}
	part.Messages = append(part.Messages, appended...)

	key := storage.PartitionKey{StreamID: s.ID, TopicID: t.ID, PartitionID: part.ID}
	if err := b.Storage.Append(ctx, key, records); err != nil {
		part.Messages = part.Messages[:len(part.Messages)-len(appended)]
		return err
	}
	part.rememberIDs(msgs)
	b.Metrics.MessagesSent.Add(float64(len(msgs)))
	b.Metrics.AppendLatency.Observe(float64(mono.NanoTime()-begin) / 1e9)
	return nil
}

const dedupCapacity = 1 << 16

var zeroMsgID [16]byte

// checkDuplicates fails the whole batch if any non-zero message id was seen
// before on this partition, or repeats within the batch itself — the batch
// either appends entirely or not at all (protocol §4.7).
func (p *Partition) checkDuplicates(msgs []wire.AppendableMessage) error {
	if p.seen == nil {
		p.seen = cuckoo.NewFilter(dedupCapacity)
	}
	inBatch := make(map[[16]byte]struct{}, len(msgs))
	for _, m := range msgs {
		if m.ID == zeroMsgID {
			continue
		}
		if _, dup := inBatch[m.ID]; dup {
			return cos.NewError(cos.KindAlreadyExists, "duplicate message id %x within batch", m.ID)
		}
		inBatch[m.ID] = struct{}{}
		if p.seen.Lookup(m.ID[:]) {
			return cos.NewError(cos.KindAlreadyExists, "message id %x already appended to partition %d", m.ID, p.ID)
		}
	}
	return nil
}

// rememberIDs records a successfully appended batch's ids; called only after
// the storage ack so a rolled-back batch never poisons the filter.
func (p *Partition) rememberIDs(msgs []wire.AppendableMessage) {
	for _, m := range msgs {
		if m.ID != zeroMsgID {
			p.seen.Insert(m.ID[:])
		}
	}
}

// PollMessages retrieves up to args.Count messages from partitionID
// starting per args.Strategy. If args.AutoCommit, the resolved consumer's
// offset is advanced to last_returned_offset+1 before returning (protocol
// §4.7).
type PollArgs struct {
	PartitionID uint32
	Strategy    wire.PollingStrategy
	Count       uint32
	AutoCommit  bool
}

func (b *Broker) PollMessages(ctx context.Context, consumer wire.Consumer, clientID uint32, streamID, topicID wire.Identifier, args PollArgs) ([]Message, error) {
	s, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return nil, err
	}
	partitionID := args.PartitionID
	if consumer.Kind == wire.ConsumerGroup {
		g, err := t.resolveGroup(wire.NumericIdentifier(consumer.ID))
		if err != nil {
			return nil, err
		}
		if !g.Owns(clientID, partitionID) {
			return nil, cos.NewError(cos.KindUnauthorized, "client %d is not assigned partition %d in group %d", clientID, partitionID, consumer.ID)
		}
	}
	part, ok := t.Partitions[partitionID]
	if !ok {
		return nil, cos.NewError(cos.KindNotFound, "partition %d not found in topic %d", partitionID, t.ID)
	}

	from, err := b.resolveStart(ctx, part, consumer, clientID, s.ID, t.ID, args.Strategy)
	if err != nil {
		return nil, err
	}

	msgs := selectFromMemory(part, from, int(args.Count))
	if len(msgs) == 0 {
		records, err := b.Storage.Read(ctx, storage.PartitionKey{StreamID: s.ID, TopicID: t.ID, PartitionID: part.ID}, from, int(args.Count))
		if err != nil {
			return nil, err
		}
		msgs = make([]Message, len(records))
		for i, r := range records {
			msgs[i] = Message{Offset: r.Offset, Timestamp: r.Timestamp, ID: r.ID, Headers: r.Headers, Payload: r.Payload}
		}
	}

	b.Metrics.MessagesPolled.Add(float64(len(msgs)))
	if args.AutoCommit && len(msgs) > 0 {
		last := msgs[len(msgs)-1].Offset
		if err := b.storeOffset(ctx, consumer, clientID, s.ID, t.ID, partitionID, last+1); err != nil {
			return msgs, err
		}
	}
	return msgs, nil
}

func selectFromMemory(part *Partition, from uint64, count int) []Message {
	var out []Message
	for _, m := range part.Messages {
		if m.Offset < from {
			continue
		}
		out = append(out, m)
		if len(out) >= count {
			break
		}
	}
	return out
}

func (b *Broker) resolveStart(ctx context.Context, part *Partition, consumer wire.Consumer, clientID, streamID, topicID uint32, strategy wire.PollingStrategy) (uint64, error) {
	switch strategy.Kind {
	case wire.PollOffset:
		return strategy.Value, nil
	case wire.PollFirst:
		return 0, nil
	case wire.PollLast:
		if len(part.Messages) == 0 {
			return 0, nil
		}
		return part.Messages[len(part.Messages)-1].Offset, nil
	case wire.PollNext:
		// the stored offset is "next offset to read": auto-commit stores
		// last_returned+1, and clients storing manually follow the same
		// convention, so Next resumes exactly at the stored value
		offset, ok, err := b.loadOffset(ctx, consumer, clientID, streamID, topicID, part.ID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		return offset, nil
	case wire.PollTimestamp:
		for _, m := range part.Messages {
			if m.Timestamp >= int64(strategy.Value) {
				return m.Offset, nil
			}
		}
		return part.nextOffset(), nil
	default:
		return 0, cos.NewError(cos.KindInvalidCommand, "unknown polling strategy kind %d", strategy.Kind)
	}
}

func consumerScope(consumer wire.Consumer, clientID, streamID, topicID, partitionID uint32) storage.OffsetScope {
	isGroup := consumer.Kind == wire.ConsumerGroup
	id := clientID
	if isGroup {
		id = consumer.ID
	}
	return storage.OffsetScope{
		ConsumerIsGroup: isGroup,
		ConsumerID:      id,
		PartitionKey:    storage.PartitionKey{StreamID: streamID, TopicID: topicID, PartitionID: partitionID},
	}
}

func (b *Broker) loadOffset(ctx context.Context, consumer wire.Consumer, clientID, streamID, topicID, partitionID uint32) (uint64, bool, error) {
	return b.Storage.LoadOffset(ctx, consumerScope(consumer, clientID, streamID, topicID, partitionID))
}

func (b *Broker) storeOffset(ctx context.Context, consumer wire.Consumer, clientID, streamID, topicID, partitionID uint32, offset uint64) error {
	scope := consumerScope(consumer, clientID, streamID, topicID, partitionID)
	if consumer.Kind == wire.ConsumerGroup {
		if t, err := b.Index.resolveStream(wire.NumericIdentifier(streamID)); err == nil {
			if topic, err := t.resolveTopic(wire.NumericIdentifier(topicID)); err == nil {
				if g, err := topic.resolveGroup(wire.NumericIdentifier(consumer.ID)); err == nil {
					g.Offsets[partitionID] = offset
				}
			}
		}
	}
	return b.Storage.StoreOffset(ctx, scope, offset)
}

// GetConsumerOffset and StoreConsumerOffset are the two directly-dispatched
// operations behind wire.GetConsumerOffset/StoreConsumerOffset.
func (b *Broker) GetConsumerOffset(ctx context.Context, consumer wire.Consumer, clientID uint32, streamID, topicID wire.Identifier, partitionID uint32) (uint64, bool, error) {
	s, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return 0, false, err
	}
	if consumer.Kind == wire.ConsumerGroup {
		g, err := t.resolveGroup(wire.NumericIdentifier(consumer.ID))
		if err != nil {
			return 0, false, err
		}
		if !g.Owns(clientID, partitionID) {
			return 0, false, cos.NewError(cos.KindUnauthorized, "client %d is not assigned partition %d in group %d", clientID, partitionID, consumer.ID)
		}
	}
	return b.loadOffset(ctx, consumer, clientID, s.ID, t.ID, partitionID)
}

func (b *Broker) StoreConsumerOffset(ctx context.Context, consumer wire.Consumer, clientID uint32, streamID, topicID wire.Identifier, partitionID uint32, offset uint64) error {
	s, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return err
	}
	if consumer.Kind == wire.ConsumerGroup {
		g, err := t.resolveGroup(wire.NumericIdentifier(consumer.ID))
		if err != nil {
			return err
		}
		if !g.Owns(clientID, partitionID) {
			return cos.NewError(cos.KindUnauthorized, "client %d is not assigned partition %d in group %d", clientID, partitionID, consumer.ID)
		}
	}
	return b.storeOffset(ctx, consumer, clientID, s.ID, t.ID, partitionID, offset)
}
