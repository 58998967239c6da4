package broker

import (
	"github.com/OneOfOne/xxhash"
	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/wire"
)

// resolvePartition implements the client-supplied Partitioning hint
// (protocol §4.7): Balanced round-robins across a topic's partitions,
// PartitionId targets one directly, MessagesKey hashes the key mod the
// partition count. SDK-side partitioner helpers can precompute the same
// decision client-side, but the broker always resolves Balanced and
// MessagesKey itself for any caller that doesn't.
func (t *Topic) resolvePartition(p wire.Partitioning) (*Partition, error) {
	ids := t.SortedPartitionIDs()
	if len(ids) == 0 {
		return nil, cos.NewError(cos.KindInvalidConfiguration, "topic %d has no partitions", t.ID)
	}
	switch p.Kind {
	case wire.PartitioningBalanced:
		idx := t.roundRobin % uint32(len(ids))
		t.roundRobin++
		return t.Partitions[ids[idx]], nil
	case wire.PartitioningPartitionID:
		part, ok := t.Partitions[p.PartitionID]
		if !ok {
			return nil, cos.NewError(cos.KindNotFound, "partition %d not found in topic %d", p.PartitionID, t.ID)
		}
		return part, nil
	case wire.PartitioningMessagesKey:
		digest := xxhash.Checksum64(p.Key)
		idx := digest % uint64(len(ids))
		return t.Partitions[ids[idx]], nil
	default:
		return nil, cos.NewError(cos.KindInvalidCommand, "unknown partitioning kind %d", p.Kind)
	}
}
