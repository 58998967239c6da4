package wire

// GetTopic retrieves a single topic's metadata within a stream.
type GetTopic struct {
	StreamID Identifier
	TopicID  Identifier
}

func (GetTopic) OpCode() OpCode  { return OpGetTopic }
func (GetTopic) Origin() Origin  { return OriginDirect }
func (GetTopic) Validate() error { return nil }
func (g GetTopic) Encode() []byte {
	buf := make([]byte, g.StreamID.Size()+g.TopicID.Size())
	off := copy(buf, g.StreamID.Encode())
	off += copy(buf[off:], g.TopicID.Encode())
	return buf[:off]
}

func init() {
	register(OpGetTopic, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "GetTopic"); err != nil {
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
		if err := requireEmpty(b[off:], "GetTopic"); err != nil {
			return nil, err
		}
		return GetTopic{StreamID: streamID, TopicID: topicID}, nil
	})
}

// GetTopics lists every topic within a stream.
type GetTopics struct {
	StreamID Identifier
}

func (GetTopics) OpCode() OpCode   { return OpGetTopics }
func (GetTopics) Origin() Origin   { return OriginDirect }
func (GetTopics) Validate() error  { return nil }
func (g GetTopics) Encode() []byte { return g.StreamID.Encode() }

func init() {
	register(OpGetTopics, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "GetTopics"); err != nil {
			return nil, err
		}
		streamID, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		if err := requireEmpty(b[n:], "GetTopics"); err != nil {
			return nil, err
		}
		return GetTopics{StreamID: streamID}, nil
	})
}

// CompressionKind selects the at-rest compression applied to a topic's
// stored payloads.
type CompressionKind uint8

const (
	CompressionNone CompressionKind = iota + 1
	CompressionGzip
)

// CreateTopic provisions a new topic with a fixed partition count. A zero
// MessageExpiry means "never expire"; a zero MaxTopicSize means "unbounded".
// ReplicationFactor other than 1 is rejected by the domain layer on this
// single-node broker, not by the codec — the wire form itself is
// deployment-agnostic.
type CreateTopic struct {
	StreamID          Identifier
	TopicID           uint32
	Name              string
	PartitionsCount   uint32
	MessageExpiry     uint64 // seconds; 0 = never
	Compression       CompressionKind
	MaxTopicSize      uint64 // bytes; 0 = unbounded
	ReplicationFactor uint8
}

func (CreateTopic) OpCode() OpCode { return OpCreateTopic }
func (CreateTopic) Origin() Origin { return OriginDirect }
func (c CreateTopic) Validate() error {
	if len(c.Name) == 0 || len(c.Name) > 255 {
		return errInvalidCommand("CreateTopic: name length %d out of range", len(c.Name))
	}
	if c.Compression != CompressionNone && c.Compression != CompressionGzip {
		return errInvalidCommand("CreateTopic: unknown compression kind %d", c.Compression)
	}
	return nil
}
func (c CreateTopic) Encode() []byte {
	buf := make([]byte, c.StreamID.Size()+4+stringSize(c.Name)+4+8+1+8+1)
	off := copy(buf, c.StreamID.Encode())
	putU32(buf[off:], c.TopicID)
	off += 4
	off += putString(buf[off:], c.Name)
	putU32(buf[off:], c.PartitionsCount)
	off += 4
	putU64(buf[off:], c.MessageExpiry)
	off += 8
	buf[off] = byte(c.Compression)
	off++
	putU64(buf[off:], c.MaxTopicSize)
	off += 8
	buf[off] = c.ReplicationFactor
	off++
	return buf[:off]
}

func init() {
	register(OpCreateTopic, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "CreateTopic"); err != nil {
			return nil, err
		}
		streamID, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		if err := requireMinLen(b[off:], 4, "CreateTopic"); err != nil {
			return nil, err
		}
		topicID := takeU32(b[off:])
		off += 4
		name, n, err := takeString(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireMinLen(b[off:], 4+8+1+8+1, "CreateTopic"); err != nil {
			return nil, err
		}
		partitionsCount := takeU32(b[off:])
		off += 4
		messageExpiry := takeU64(b[off:])
		off += 8
		compression := CompressionKind(b[off])
		off++
		maxTopicSize := takeU64(b[off:])
		off += 8
		replicationFactor := b[off]
		off++
		if err := requireEmpty(b[off:], "CreateTopic"); err != nil {
			return nil, err
		}
		return CreateTopic{
			StreamID: streamID, TopicID: topicID, Name: name,
			PartitionsCount: partitionsCount, MessageExpiry: messageExpiry,
			Compression: compression, MaxTopicSize: maxTopicSize,
			ReplicationFactor: replicationFactor,
		}, nil
	})
}

// DeleteTopic removes a topic and every partition beneath it.
type DeleteTopic struct {
	StreamID Identifier
	TopicID  Identifier
}

func (DeleteTopic) OpCode() OpCode  { return OpDeleteTopic }
func (DeleteTopic) Origin() Origin  { return OriginDirect }
func (DeleteTopic) Validate() error { return nil }
func (d DeleteTopic) Encode() []byte {
	buf := make([]byte, d.StreamID.Size()+d.TopicID.Size())
	off := copy(buf, d.StreamID.Encode())
	off += copy(buf[off:], d.TopicID.Encode())
	return buf[:off]
}

func init() {
	register(OpDeleteTopic, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "DeleteTopic"); err != nil {
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
		if err := requireEmpty(b[off:], "DeleteTopic"); err != nil {
			return nil, err
		}
		return DeleteTopic{StreamID: streamID, TopicID: topicID}, nil
	})
}

// UpdateTopic renames a topic.
type UpdateTopic struct {
	StreamID Identifier
	TopicID  Identifier
	Name     string
}

func (UpdateTopic) OpCode() OpCode { return OpUpdateTopic }
func (UpdateTopic) Origin() Origin { return OriginDirect }
func (u UpdateTopic) Validate() error {
	if len(u.Name) == 0 || len(u.Name) > 255 {
		return errInvalidCommand("UpdateTopic: name length %d out of range", len(u.Name))
	}
	return nil
}
func (u UpdateTopic) Encode() []byte {
	buf := make([]byte, u.StreamID.Size()+u.TopicID.Size()+stringSize(u.Name))
	off := copy(buf, u.StreamID.Encode())
	off += copy(buf[off:], u.TopicID.Encode())
	off += putString(buf[off:], u.Name)
	return buf[:off]
}

func init() {
	register(OpUpdateTopic, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "UpdateTopic"); err != nil {
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
		name, n, err := takeString(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "UpdateTopic"); err != nil {
			return nil, err
		}
		return UpdateTopic{StreamID: streamID, TopicID: topicID, Name: name}, nil
	})
}

// PurgeTopic deletes all messages in a topic but keeps its partition
// structure intact.
type PurgeTopic struct {
	StreamID Identifier
	TopicID  Identifier
}

func (PurgeTopic) OpCode() OpCode  { return OpPurgeTopic }
func (PurgeTopic) Origin() Origin  { return OriginDirect }
func (PurgeTopic) Validate() error { return nil }
func (p PurgeTopic) Encode() []byte {
	buf := make([]byte, p.StreamID.Size()+p.TopicID.Size())
	off := copy(buf, p.StreamID.Encode())
	off += copy(buf[off:], p.TopicID.Encode())
	return buf[:off]
}

func init() {
	register(OpPurgeTopic, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "PurgeTopic"); err != nil {
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
		if err := requireEmpty(b[off:], "PurgeTopic"); err != nil {
			return nil, err
		}
		return PurgeTopic{StreamID: streamID, TopicID: topicID}, nil
	})
}
