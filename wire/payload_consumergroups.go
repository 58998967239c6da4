package wire

// GetConsumerGroup retrieves a single consumer group's metadata, including
// its current member-to-partition assignment.
type GetConsumerGroup struct {
	StreamID Identifier
	TopicID  Identifier
	GroupID  Identifier
}

func (GetConsumerGroup) OpCode() OpCode  { return OpGetConsumerGroup }
func (GetConsumerGroup) Origin() Origin  { return OriginDirect }
func (GetConsumerGroup) Validate() error { return nil }
func (g GetConsumerGroup) Encode() []byte {
	buf := make([]byte, g.StreamID.Size()+g.TopicID.Size()+g.GroupID.Size())
	off := copy(buf, g.StreamID.Encode())
	off += copy(buf[off:], g.TopicID.Encode())
	off += copy(buf[off:], g.GroupID.Encode())
	return buf[:off]
}

func init() {
	register(OpGetConsumerGroup, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "GetConsumerGroup"); err != nil {
			return nil, err
		}
		streamID, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		topicID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		groupID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "GetConsumerGroup"); err != nil {
			return nil, err
		}
		return GetConsumerGroup{StreamID: streamID, TopicID: topicID, GroupID: groupID}, nil
	})
}

// GetConsumerGroups lists every consumer group defined on a topic.
type GetConsumerGroups struct {
	StreamID Identifier
	TopicID  Identifier
}

func (GetConsumerGroups) OpCode() OpCode  { return OpGetConsumerGroups }
func (GetConsumerGroups) Origin() Origin  { return OriginDirect }
func (GetConsumerGroups) Validate() error { return nil }
func (g GetConsumerGroups) Encode() []byte {
	buf := make([]byte, g.StreamID.Size()+g.TopicID.Size())
	off := copy(buf, g.StreamID.Encode())
	off += copy(buf[off:], g.TopicID.Encode())
	return buf[:off]
}

func init() {
	register(OpGetConsumerGroups, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "GetConsumerGroups"); err != nil {
			return nil, err
		}
		streamID, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		topicID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "GetConsumerGroups"); err != nil {
			return nil, err
		}
		return GetConsumerGroups{StreamID: streamID, TopicID: topicID}, nil
	})
}

// CreateConsumerGroup provisions a new consumer group on a topic; a zero
// GroupID means "assign the next available id".
type CreateConsumerGroup struct {
	StreamID Identifier
	TopicID  Identifier
	GroupID  uint32
	Name     string
}

func (CreateConsumerGroup) OpCode() OpCode { return OpCreateConsumerGroup }
func (CreateConsumerGroup) Origin() Origin { return OriginDirect }
func (c CreateConsumerGroup) Validate() error {
	if len(c.Name) == 0 || len(c.Name) > 255 {
		return errInvalidCommand("CreateConsumerGroup: name length %d out of range", len(c.Name))
	}
	return nil
}
func (c CreateConsumerGroup) Encode() []byte {
	buf := make([]byte, c.StreamID.Size()+c.TopicID.Size()+4+stringSize(c.Name))
	off := copy(buf, c.StreamID.Encode())
	off += copy(buf[off:], c.TopicID.Encode())
	putU32(buf[off:], c.GroupID)
	off += 4
	off += putString(buf[off:], c.Name)
	return buf[:off]
}

func init() {
	register(OpCreateConsumerGroup, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "CreateConsumerGroup"); err != nil {
			return nil, err
		}
		streamID, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		topicID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireMinLen(b[off:], 4, "CreateConsumerGroup"); err != nil {
			return nil, err
		}
		groupID := takeU32(b[off:])
		off += 4
		name, n, err := takeString(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "CreateConsumerGroup"); err != nil {
			return nil, err
		}
		return CreateConsumerGroup{StreamID: streamID, TopicID: topicID, GroupID: groupID, Name: name}, nil
	})
}

// DeleteConsumerGroup removes a consumer group and its member assignments.
type DeleteConsumerGroup struct {
	StreamID Identifier
	TopicID  Identifier
	GroupID  Identifier
}

func (DeleteConsumerGroup) OpCode() OpCode  { return OpDeleteConsumerGroup }
func (DeleteConsumerGroup) Origin() Origin  { return OriginDirect }
func (DeleteConsumerGroup) Validate() error { return nil }
func (d DeleteConsumerGroup) Encode() []byte {
	buf := make([]byte, d.StreamID.Size()+d.TopicID.Size()+d.GroupID.Size())
	off := copy(buf, d.StreamID.Encode())
	off += copy(buf[off:], d.TopicID.Encode())
	off += copy(buf[off:], d.GroupID.Encode())
	return buf[:off]
}

func init() {
	register(OpDeleteConsumerGroup, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "DeleteConsumerGroup"); err != nil {
			return nil, err
		}
		streamID, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		topicID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		groupID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "DeleteConsumerGroup"); err != nil {
			return nil, err
		}
		return DeleteConsumerGroup{StreamID: streamID, TopicID: topicID, GroupID: groupID}, nil
	})
}

// JoinConsumerGroup adds the calling client as a member, triggering
// reassignment of partitions across the group's members.
type JoinConsumerGroup struct {
	StreamID Identifier
	TopicID  Identifier
	GroupID  Identifier
}

func (JoinConsumerGroup) OpCode() OpCode  { return OpJoinConsumerGroup }
func (JoinConsumerGroup) Origin() Origin  { return OriginDirect }
func (JoinConsumerGroup) Validate() error { return nil }
func (j JoinConsumerGroup) Encode() []byte {
	buf := make([]byte, j.StreamID.Size()+j.TopicID.Size()+j.GroupID.Size())
	off := copy(buf, j.StreamID.Encode())
	off += copy(buf[off:], j.TopicID.Encode())
	off += copy(buf[off:], j.GroupID.Encode())
	return buf[:off]
}

func init() {
	register(OpJoinConsumerGroup, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "JoinConsumerGroup"); err != nil {
			return nil, err
		}
		streamID, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		topicID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		groupID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "JoinConsumerGroup"); err != nil {
			return nil, err
		}
		return JoinConsumerGroup{StreamID: streamID, TopicID: topicID, GroupID: groupID}, nil
	})
}

// LeaveConsumerGroup removes the calling client as a member, triggering
// reassignment of its partitions to the remaining members.
type LeaveConsumerGroup struct {
	StreamID Identifier
	TopicID  Identifier
	GroupID  Identifier
}

func (LeaveConsumerGroup) OpCode() OpCode  { return OpLeaveConsumerGroup }
func (LeaveConsumerGroup) Origin() Origin  { return OriginDirect }
func (LeaveConsumerGroup) Validate() error { return nil }
func (l LeaveConsumerGroup) Encode() []byte {
	buf := make([]byte, l.StreamID.Size()+l.TopicID.Size()+l.GroupID.Size())
	off := copy(buf, l.StreamID.Encode())
	off += copy(buf[off:], l.TopicID.Encode())
	off += copy(buf[off:], l.GroupID.Encode())
	return buf[:off]
}

func init() {
	register(OpLeaveConsumerGroup, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "LeaveConsumerGroup"); err != nil {
			return nil, err
		}
		streamID, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		topicID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		groupID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "LeaveConsumerGroup"); err != nil {
			return nil, err
		}
		return LeaveConsumerGroup{StreamID: streamID, TopicID: topicID, GroupID: groupID}, nil
	})
}
