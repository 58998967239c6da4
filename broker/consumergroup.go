package broker

import "github.com/flowmq/flowmq/cmn/cos"

// CreateConsumerGroup provisions a group on t; id==0 assigns the next id.
func (t *Topic) CreateConsumerGroup(id uint32, name string) (*ConsumerGroup, error) {
	for _, g := range t.ConsumerGroups {
		if g.Name == name {
			return nil, cos.NewError(cos.KindAlreadyExists, "consumer group named %q already exists", name)
		}
	}
	if id == 0 {
		t.nextGroupID++
		id = t.nextGroupID
	} else if id > t.nextGroupID {
		t.nextGroupID = id
	}
	if _, ok := t.ConsumerGroups[id]; ok {
		return nil, cos.NewError(cos.KindAlreadyExists, "consumer group id %d already exists", id)
	}
	g := &ConsumerGroup{
		ID:         id,
		Name:       name,
		Assignment: make(map[uint32][]uint32),
		Offsets:    make(map[uint32]uint64),
	}
	t.ConsumerGroups[id] = g
	return g, nil
}

// Join adds memberID to g's membership and recomputes the assignment
// (protocol §4.7, §9: "range-by-member-id": partitions sorted ascending,
// split as evenly as possible across sorted member ids, earlier members
// taking the larger remainder).
func (g *ConsumerGroup) Join(memberID uint32, partitionIDs []uint32) {
	for _, m := range g.Members {
		if m == memberID {
			return // already a member; idempotent
		}
	}
	g.Members = append(g.Members, memberID)
	sortU32(g.Members)
	g.reassign(partitionIDs)
}

// Leave removes memberID and recomputes the assignment. Idempotent: leaving
// a non-member is a no-op.
func (g *ConsumerGroup) Leave(memberID uint32, partitionIDs []uint32) {
	idx := -1
	for i, m := range g.Members {
		if m == memberID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	g.Members = append(g.Members[:idx], g.Members[idx+1:]...)
	g.reassign(partitionIDs)
}

// reassign implements range-by-member-id: the sorted partition ids are cut
// into len(Members) contiguous ranges, earlier (lower id) members getting
// one extra partition when the split is uneven. This keeps assignment
// deterministic given only (members, partitionIDs), with no history needed,
// which is why Join/Leave can just call it fresh rather than patch deltas.
func (g *ConsumerGroup) reassign(partitionIDs []uint32) {
	g.Assignment = make(map[uint32][]uint32, len(g.Members))
	if len(g.Members) == 0 {
		return
	}
	ids := append([]uint32(nil), partitionIDs...)
	sortU32(ids)
	n := len(ids)
	m := len(g.Members)
	base := n / m
	rem := n % m
	idx := 0
	for i, member := range g.Members {
		size := base
		if i < rem {
			size++
		}
		g.Assignment[member] = append([]uint32(nil), ids[idx:idx+size]...)
		idx += size
	}
}

// AssignedPartition returns the partition id memberID currently owns within
// g, used to resolve a group-scoped poll/offset request to a concrete
// partition (protocol §4.7: "the executor resolves the caller's assigned
// partition via the group's assignment map").
func (g *ConsumerGroup) AssignedPartition(memberID uint32) (uint32, bool) {
	parts, ok := g.Assignment[memberID]
	if !ok || len(parts) == 0 {
		return 0, false
	}
	// a member may own more than one partition when members < partitions;
	// callers that need a single target (poll/offset ops) pass a partition
	// id explicitly and this only verifies membership via Owns.
	return parts[0], true
}

// Owns reports whether memberID's current assignment includes partitionID;
// used to authorize a group-scoped poll/offset request against a specific
// partition. A member touching a partition outside its assignment gets
// Unauthorized.
func (g *ConsumerGroup) Owns(memberID, partitionID uint32) bool {
	for _, p := range g.Assignment[memberID] {
		if p == partitionID {
			return true
		}
	}
	return false
}
