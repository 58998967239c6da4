package wire

// GlobalPermissions are broker-wide capability flags checked by handlers
// that are not scoped to a single stream/topic (protocol §4.4: "create_stream
// requires the global 'streams:manage' permission").
type GlobalPermissions uint8

const (
	PermManageStreams GlobalPermissions = 1 << iota
	PermManageUsers
	PermManagePAT
	PermReadStats
)

func (g GlobalPermissions) Has(p GlobalPermissions) bool { return g&p != 0 }

// TopicPermissions are the per-topic capability flags referenced by
// append_messages ("send") and poll_messages ("read") in protocol §4.4.
type TopicPermissions uint8

const (
	PermSend TopicPermissions = 1 << iota
	PermRead
	PermManageTopic
)

func (t TopicPermissions) Has(p TopicPermissions) bool { return t&p != 0 }

// StreamPermissions scopes ManageStream (create/delete topics) and a
// per-topic override map; a zero topic id (Topics[0]) means "every topic in
// this stream not otherwise listed".
type StreamPermissions struct {
	ManageStream bool
	Topics       map[uint32]TopicPermissions
}

// Permissions is the full permission set attached to a User or a
// PersonalAccessToken.
type Permissions struct {
	Global  GlobalPermissions
	Streams map[uint32]StreamPermissions
}

// topicPerms resolves the effective per-topic flags. Stream id 0 and topic
// id 0 are wildcards ("every stream/topic not otherwise listed"); real
// resource ids start at 1, so the zero key is free to carry that meaning.
func (p Permissions) topicPerms(streamID, topicID uint32) (TopicPermissions, bool) {
	sp, ok := p.Streams[streamID]
	if !ok {
		if sp, ok = p.Streams[0]; !ok {
			return 0, false
		}
	}
	if tp, ok := sp.Topics[topicID]; ok {
		return tp, true
	}
	if tp, ok := sp.Topics[0]; ok {
		return tp, true
	}
	return 0, false
}

func (p Permissions) CanManageStream(streamID uint32) bool {
	if p.Global.Has(PermManageStreams) {
		return true
	}
	sp, ok := p.Streams[streamID]
	if !ok {
		sp, ok = p.Streams[0]
	}
	return ok && sp.ManageStream
}

func (p Permissions) CanSend(streamID, topicID uint32) bool {
	tp, ok := p.topicPerms(streamID, topicID)
	return ok && tp.Has(PermSend)
}

func (p Permissions) CanRead(streamID, topicID uint32) bool {
	tp, ok := p.topicPerms(streamID, topicID)
	return ok && tp.Has(PermRead)
}

// EncodePermissions and DecodePermissions expose the wire form of Permissions
// to the reply encoder, which embeds a user's full permission set in
// GetUser/GetUsers replies using the same layout CreateUser/UpdatePermissions
// use on the command side.
func EncodePermissions(p Permissions) []byte {
	buf := make([]byte, p.size())
	n := p.encodeInto(buf)
	return buf[:n]
}

func DecodePermissions(buf []byte) (Permissions, int, error) { return decodePermissions(buf) }

func (p Permissions) size() int {
	n := 1 + 4 // global + stream count
	for _, sp := range p.Streams {
		n += 4 + 1 + 4 // stream id + manage flag + topic count
		n += 5 * len(sp.Topics)
	}
	return n
}

func (p Permissions) encodeInto(dst []byte) int {
	off := 0
	dst[off] = byte(p.Global)
	off++
	putU32(dst[off:], uint32(len(p.Streams)))
	off += 4
	// deterministic order for test reproducibility
	ids := make([]uint32, 0, len(p.Streams))
	for id := range p.Streams {
		ids = append(ids, id)
	}
	sortU32(ids)
	for _, id := range ids {
		sp := p.Streams[id]
		putU32(dst[off:], id)
		off += 4
		if sp.ManageStream {
			dst[off] = 1
		} else {
			dst[off] = 0
		}
		off++
		putU32(dst[off:], uint32(len(sp.Topics)))
		off += 4
		tids := make([]uint32, 0, len(sp.Topics))
		for tid := range sp.Topics {
			tids = append(tids, tid)
		}
		sortU32(tids)
		for _, tid := range tids {
			putU32(dst[off:], tid)
			off += 4
			dst[off] = byte(sp.Topics[tid])
			off++
		}
	}
	return off
}

func decodePermissions(buf []byte) (Permissions, int, error) {
	if err := requireMinLen(buf, 5, "Permissions"); err != nil {
		return Permissions{}, 0, err
	}
	p := Permissions{Global: GlobalPermissions(buf[0])}
	off := 1
	streamCount := int(takeU32(buf[off:]))
	off += 4
	if streamCount > 0 {
		p.Streams = make(map[uint32]StreamPermissions, streamCount)
	}
	for i := 0; i < streamCount; i++ {
		if err := requireMinLen(buf[off:], 9, "Permissions.stream"); err != nil {
			return Permissions{}, 0, err
		}
		streamID := takeU32(buf[off:])
		off += 4
		manage := buf[off] != 0
		off++
		topicCount := int(takeU32(buf[off:]))
		off += 4
		sp := StreamPermissions{ManageStream: manage}
		if topicCount > 0 {
			sp.Topics = make(map[uint32]TopicPermissions, topicCount)
		}
		for j := 0; j < topicCount; j++ {
			if err := requireMinLen(buf[off:], 5, "Permissions.topic"); err != nil {
				return Permissions{}, 0, err
			}
			topicID := takeU32(buf[off:])
			off += 4
			sp.Topics[topicID] = TopicPermissions(buf[off])
			off++
		}
		p.Streams[streamID] = sp
	}
	return p, off, nil
}

// sortU32 is a tiny insertion sort: permission maps are small (a handful of
// streams/topics per user), so this avoids pulling in sort.Slice's
// reflection-based comparator for a handful of elements.
func sortU32(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
