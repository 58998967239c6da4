package broker

import (
	"context"
	"time"

	"github.com/flowmq/flowmq/cmn/nlog"
	"github.com/flowmq/flowmq/metrics"
	"github.com/flowmq/flowmq/session"
	"github.com/flowmq/flowmq/storage"
	"github.com/flowmq/flowmq/wire"
)

// Broker is the per-shard façade the shard executor calls into: one Index
// per shard (the stream/topic/partition tree it owns), plus the handful of
// broker-wide collaborators every shard shares by reference rather than by
// message passing, because they are already internally synchronized
// (Storage is single-writer-per-partition by key; Metrics and the client
// Registry are lock- or atomic-protected) — protocol §5 only forbids shared
// *index* state across shards, not shared leaf collaborators.
//
// Users and PATs are populated only on the control shard (shard 0); other
// shards hold nil here and every control-plane command is routed to shard 0
// before it ever reaches a façade method (protocol §4.5, §5).
type Broker struct {
	ShardID int
	Started time.Time

	Index   *Index
	Storage storage.Storage
	Metrics *metrics.Metrics
	Clients *session.Registry

	Users *UserTable
	PATs  *PATTable
}

func New(shardID int, st storage.Storage, m *metrics.Metrics, clients *session.Registry) *Broker {
	return &Broker{
		ShardID: shardID,
		Started: time.Now(),
		Index:   NewIndex(),
		Storage: st,
		Metrics: m,
		Clients: clients,
	}
}

// MakeControl wires in the user/PAT tables; called once, on shard 0, at
// startup.
func (b *Broker) MakeControl(signingKey []byte) {
	b.Users = NewUserTable()
	b.PATs = NewPATTable(signingKey)
}

func (b *Broker) IsControl() bool { return b.Users != nil }

//
// Stream operations
//

func (b *Broker) CreateStream(ctx context.Context, id uint32, name string) (*Stream, error) {
	s, err := b.Index.CreateStream(id, name)
	if err != nil {
		return nil, err
	}
	if err := b.Storage.CreateStreamDir(ctx, s.ID); err != nil {
		_ = b.Index.DeleteStream(wire.NumericIdentifier(s.ID))
		return nil, err
	}
	nlog.Infof("shard %d: created stream %d (%s)", b.ShardID, s.ID, s.Name)
	return s, nil
}

func (b *Broker) DeleteStream(ctx context.Context, id wire.Identifier) error {
	s, err := b.Index.GetStream(id)
	if err != nil {
		return err
	}
	if err := b.Index.DeleteStream(id); err != nil {
		return err
	}
	if err := b.Storage.DeleteStreamDir(ctx, s.ID); err != nil {
		nlog.Warningf("shard %d: stream %d index removed but storage reclaim failed: %v", b.ShardID, s.ID, err)
		return err
	}
	nlog.Infof("shard %d: deleted stream %d", b.ShardID, s.ID)
	return nil
}

func (b *Broker) UpdateStream(id wire.Identifier, name string) (*Stream, error) {
	return b.Index.UpdateStream(id, name)
}

func (b *Broker) PurgeStream(id wire.Identifier) error {
	s, err := b.Index.GetStream(id)
	if err != nil {
		return err
	}
	for _, t := range s.Topics {
		t.Purge()
	}
	nlog.Infof("shard %d: purged stream %d", b.ShardID, s.ID)
	return nil
}

func (b *Broker) GetStream(id wire.Identifier) (*Stream, error) { return b.Index.GetStream(id) }
func (b *Broker) GetStreams() []*Stream                         { return b.Index.Streams() }

//
// Topic operations
//

func (b *Broker) CreateTopic(streamID wire.Identifier, id uint32, name string, cfg TopicConfig) (*Topic, error) {
	s, err := b.Index.GetStream(streamID)
	if err != nil {
		return nil, err
	}
	t, err := s.CreateTopic(id, name, cfg)
	if err != nil {
		return nil, err
	}
	nlog.Infof("shard %d: created topic %d (%s) in stream %d with %d partitions", b.ShardID, t.ID, t.Name, s.ID, cfg.PartitionsCount)
	return t, nil
}

func (b *Broker) DeleteTopic(streamID, topicID wire.Identifier) error {
	s, err := b.Index.GetStream(streamID)
	if err != nil {
		return err
	}
	return s.DeleteTopic(topicID)
}

func (b *Broker) UpdateTopic(streamID, topicID wire.Identifier, name string) (*Topic, error) {
	s, err := b.Index.GetStream(streamID)
	if err != nil {
		return nil, err
	}
	return s.UpdateTopic(topicID, name)
}

func (b *Broker) PurgeTopic(streamID, topicID wire.Identifier) error {
	_, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return err
	}
	t.Purge()
	return nil
}

func (b *Broker) GetTopic(streamID, topicID wire.Identifier) (*Topic, error) {
	_, t, err := b.Index.resolveTopic(streamID, topicID)
	return t, err
}

func (b *Broker) GetTopics(streamID wire.Identifier) ([]*Topic, error) {
	s, err := b.Index.GetStream(streamID)
	if err != nil {
		return nil, err
	}
	out := make([]*Topic, 0, len(s.Topics))
	for _, t := range s.Topics {
		out = append(out, t)
	}
	return out, nil
}

func (b *Broker) CreatePartitions(streamID, topicID wire.Identifier, count uint32) error {
	_, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return err
	}
	return t.CreatePartitions(count)
}

func (b *Broker) DeletePartitions(streamID, topicID wire.Identifier, count uint32) error {
	_, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return err
	}
	return t.DeletePartitions(count)
}

//
// Consumer-group operations
//

func (b *Broker) CreateConsumerGroup(streamID, topicID wire.Identifier, id uint32, name string) (*ConsumerGroup, error) {
	_, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return nil, err
	}
	return t.CreateConsumerGroup(id, name)
}

func (b *Broker) DeleteConsumerGroup(streamID, topicID, groupID wire.Identifier) error {
	_, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return err
	}
	g, err := t.resolveGroup(groupID)
	if err != nil {
		return err
	}
	delete(t.ConsumerGroups, g.ID)
	return nil
}

func (b *Broker) GetConsumerGroup(streamID, topicID, groupID wire.Identifier) (*ConsumerGroup, error) {
	_, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return nil, err
	}
	return t.resolveGroup(groupID)
}

func (b *Broker) GetConsumerGroups(streamID, topicID wire.Identifier) ([]*ConsumerGroup, error) {
	_, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return nil, err
	}
	out := make([]*ConsumerGroup, 0, len(t.ConsumerGroups))
	for _, g := range t.ConsumerGroups {
		out = append(out, g)
	}
	return out, nil
}

func (b *Broker) JoinConsumerGroup(streamID, topicID, groupID wire.Identifier, memberID uint32) error {
	_, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return err
	}
	g, err := t.resolveGroup(groupID)
	if err != nil {
		return err
	}
	g.Join(memberID, t.SortedPartitionIDs())
	return nil
}

func (b *Broker) LeaveConsumerGroup(streamID, topicID, groupID wire.Identifier, memberID uint32) error {
	_, t, err := b.Index.resolveTopic(streamID, topicID)
	if err != nil {
		return err
	}
	g, err := t.resolveGroup(groupID)
	if err != nil {
		return err
	}
	g.Leave(memberID, t.SortedPartitionIDs())
	return nil
}

//
// Stats
//

func (b *Broker) Stats() Stats {
	var topics, partitions uint32
	for _, s := range b.Index.streams {
		topics += uint32(len(s.Topics))
		for _, t := range s.Topics {
			partitions += uint32(len(t.Partitions))
		}
	}
	clients := uint32(0)
	if b.Clients != nil {
		clients = uint32(b.Clients.Len())
	}
	return Stats{
		StreamsCount:    uint32(len(b.Index.streams)),
		TopicsCount:     topics,
		PartitionsCount: partitions,
		MessagesSent:    uint64(counterValue(b.Metrics.MessagesSent)),
		MessagesPolled:  uint64(counterValue(b.Metrics.MessagesPolled)),
		ClientsCount:    clients,
		Uptime:          time.Since(b.Started),
	}
}
