package wire

// PartitioningKind selects how append_messages resolves a target partition
// (protocol §3: Balanced | PartitionId(u32) | MessagesKey(bytes 1-255)).
type PartitioningKind uint8

const (
	PartitioningBalanced PartitioningKind = iota + 1
	PartitioningPartitionID
	PartitioningMessagesKey
)

// Partitioning is the send-messages partition hint; exactly one of
// PartitionID / Key is meaningful, selected by Kind.
type Partitioning struct {
	Kind       PartitioningKind
	PartitionID uint32
	Key        []byte
}

func (p Partitioning) size() int {
	switch p.Kind {
	case PartitioningBalanced:
		return 1
	case PartitioningPartitionID:
		return 1 + 4
	case PartitioningMessagesKey:
		return 1 + 1 + len(p.Key)
	default:
		return 1
	}
}

func (p Partitioning) encodeInto(dst []byte) int {
	dst[0] = byte(p.Kind)
	switch p.Kind {
	case PartitioningBalanced:
		return 1
	case PartitioningPartitionID:
		putU32(dst[1:], p.PartitionID)
		return 1 + 4
	case PartitioningMessagesKey:
		dst[1] = byte(len(p.Key))
		copy(dst[2:], p.Key)
		return 1 + 1 + len(p.Key)
	default:
		return 1
	}
}

func decodePartitioning(buf []byte) (Partitioning, int, error) {
	if err := requireMinLen(buf, 1, "Partitioning"); err != nil {
		return Partitioning{}, 0, err
	}
	kind := PartitioningKind(buf[0])
	switch kind {
	case PartitioningBalanced:
		return Partitioning{Kind: kind}, 1, nil
	case PartitioningPartitionID:
		if err := requireMinLen(buf[1:], 4, "Partitioning.PartitionId"); err != nil {
			return Partitioning{}, 0, err
		}
		return Partitioning{Kind: kind, PartitionID: takeU32(buf[1:])}, 1 + 4, nil
	case PartitioningMessagesKey:
		if err := requireMinLen(buf[1:], 1, "Partitioning.MessagesKey"); err != nil {
			return Partitioning{}, 0, err
		}
		n := int(buf[1])
		if n == 0 || n > 255 {
			return Partitioning{}, 0, errInvalidCommand("Partitioning.MessagesKey: length %d out of range", n)
		}
		if err := requireMinLen(buf[2:], n, "Partitioning.MessagesKey"); err != nil {
			return Partitioning{}, 0, err
		}
		key := make([]byte, n)
		copy(key, buf[2:2+n])
		return Partitioning{Kind: kind, Key: key}, 2 + n, nil
	default:
		return Partitioning{}, 0, errInvalidCommand("Partitioning: unknown kind %d", buf[0])
	}
}

// AppendableMessage is one element of a send-messages batch: a caller-chosen
// 128-bit id (16 raw bytes, not hex), optional headers blob, and payload.
type AppendableMessage struct {
	ID      [16]byte
	Headers []byte // nil/empty means absent
	Payload []byte
}

func (m AppendableMessage) size() int {
	return 16 + 4 + len(m.Headers) + 4 + len(m.Payload)
}

func (m AppendableMessage) encodeInto(dst []byte) int {
	off := copy(dst, m.ID[:])
	putU32(dst[off:], uint32(len(m.Headers)))
	off += 4
	off += copy(dst[off:], m.Headers)
	putU32(dst[off:], uint32(len(m.Payload)))
	off += 4
	off += copy(dst[off:], m.Payload)
	return off
}

func decodeAppendableMessage(buf []byte) (AppendableMessage, int, error) {
	if err := requireMinLen(buf, 16+4, "AppendableMessage"); err != nil {
		return AppendableMessage{}, 0, err
	}
	var m AppendableMessage
	copy(m.ID[:], buf[:16])
	off := 16
	hlen := int(takeU32(buf[off:]))
	off += 4
	if err := requireMinLen(buf[off:], hlen+4, "AppendableMessage.Headers"); err != nil {
		return AppendableMessage{}, 0, err
	}
	if hlen > 0 {
		m.Headers = append([]byte(nil), buf[off:off+hlen]...)
	}
	off += hlen
	plen := int(takeU32(buf[off:]))
	off += 4
	if err := requireMinLen(buf[off:], plen, "AppendableMessage.Payload"); err != nil {
		return AppendableMessage{}, 0, err
	}
	m.Payload = append([]byte(nil), buf[off:off+plen]...)
	off += plen
	return m, off, nil
}

// SendMessages appends a batch of messages to a topic under one partitioning
// decision; the entire batch either appends or fails (protocol §4.7).
type SendMessages struct {
	StreamID     Identifier
	TopicID      Identifier
	Partitioning Partitioning
	Messages     []AppendableMessage
}

func (SendMessages) OpCode() OpCode { return OpSendMessages }
func (SendMessages) Origin() Origin { return OriginDirect }
func (s SendMessages) Validate() error {
	if len(s.Messages) == 0 {
		return errInvalidCommand("SendMessages: batch must not be empty")
	}
	return nil
}
func (s SendMessages) Encode() []byte {
	size := s.StreamID.Size() + s.TopicID.Size() + s.Partitioning.size() + 4
	for _, m := range s.Messages {
		size += m.size()
	}
	buf := make([]byte, size)
	off := copy(buf, s.StreamID.Encode())
	off += copy(buf[off:], s.TopicID.Encode())
	off += s.Partitioning.encodeInto(buf[off:])
	putU32(buf[off:], uint32(len(s.Messages)))
	off += 4
	for _, m := range s.Messages {
		off += m.encodeInto(buf[off:])
	}
	return buf[:off]
}

func init() {
	register(OpSendMessages, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "SendMessages"); err != nil {
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
		partitioning, n, err := decodePartitioning(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireMinLen(b[off:], 4, "SendMessages"); err != nil {
			return nil, err
		}
		count := int(takeU32(b[off:]))
		off += 4
		messages := make([]AppendableMessage, 0, count)
		for i := 0; i < count; i++ {
			m, n, err := decodeAppendableMessage(b[off:])
			if err != nil {
				return nil, err
			}
			off += n
			messages = append(messages, m)
		}
		if err := requireEmpty(b[off:], "SendMessages"); err != nil {
			return nil, err
		}
		return SendMessages{StreamID: streamID, TopicID: topicID, Partitioning: partitioning, Messages: messages}, nil
	})
}

// PollingStrategyKind selects where in a partition a poll begins reading.
type PollingStrategyKind uint8

const (
	PollOffset PollingStrategyKind = iota + 1
	PollTimestamp
	PollFirst
	PollLast
	PollNext
)

// PollingStrategy; Value is meaningful only for PollOffset/PollTimestamp.
type PollingStrategy struct {
	Kind  PollingStrategyKind
	Value uint64
}

func (s PollingStrategy) size() int {
	switch s.Kind {
	case PollOffset, PollTimestamp:
		return 1 + 8
	default:
		return 1
	}
}

func (s PollingStrategy) encodeInto(dst []byte) int {
	dst[0] = byte(s.Kind)
	switch s.Kind {
	case PollOffset, PollTimestamp:
		putU64(dst[1:], s.Value)
		return 1 + 8
	default:
		return 1
	}
}

func decodePollingStrategy(buf []byte) (PollingStrategy, int, error) {
	if err := requireMinLen(buf, 1, "PollingStrategy"); err != nil {
		return PollingStrategy{}, 0, err
	}
	kind := PollingStrategyKind(buf[0])
	switch kind {
	case PollOffset, PollTimestamp:
		if err := requireMinLen(buf[1:], 8, "PollingStrategy.Value"); err != nil {
			return PollingStrategy{}, 0, err
		}
		return PollingStrategy{Kind: kind, Value: takeU64(buf[1:])}, 1 + 8, nil
	case PollFirst, PollLast, PollNext:
		return PollingStrategy{Kind: kind}, 1, nil
	default:
		return PollingStrategy{}, 0, errInvalidCommand("PollingStrategy: unknown kind %d", buf[0])
	}
}

// ConsumerKind distinguishes a direct client consumer from a consumer-group
// member (protocol §4.7: offsets are tracked per (consumer, partition)).
type ConsumerKind uint8

const (
	ConsumerDirect ConsumerKind = iota + 1
	ConsumerGroup
)

// Consumer identifies who is polling or storing an offset.
type Consumer struct {
	Kind ConsumerKind
	ID   uint32
}

func (c Consumer) size() int { return 1 + 4 }
func (c Consumer) encodeInto(dst []byte) int {
	dst[0] = byte(c.Kind)
	putU32(dst[1:], c.ID)
	return 1 + 4
}
func decodeConsumer(buf []byte) (Consumer, int, error) {
	if err := requireMinLen(buf, 5, "Consumer"); err != nil {
		return Consumer{}, 0, err
	}
	kind := ConsumerKind(buf[0])
	if kind != ConsumerDirect && kind != ConsumerGroup {
		return Consumer{}, 0, errInvalidCommand("Consumer: unknown kind %d", buf[0])
	}
	return Consumer{Kind: kind, ID: takeU32(buf[1:])}, 5, nil
}

// PollMessages retrieves a bounded batch of messages from a partition.
type PollMessages struct {
	Consumer   Consumer
	StreamID   Identifier
	TopicID    Identifier
	PartitionID uint32
	Strategy   PollingStrategy
	Count      uint32
	AutoCommit bool
}

func (PollMessages) OpCode() OpCode { return OpPollMessages }
func (PollMessages) Origin() Origin { return OriginDirect }
func (p PollMessages) Validate() error {
	if p.Count == 0 {
		return errInvalidCommand("PollMessages: count must be >= 1")
	}
	return nil
}
func (p PollMessages) Encode() []byte {
	size := p.Consumer.size() + p.StreamID.Size() + p.TopicID.Size() + 4 + p.Strategy.size() + 4 + 1
	buf := make([]byte, size)
	off := p.Consumer.encodeInto(buf)
	off += copy(buf[off:], p.StreamID.Encode())
	off += copy(buf[off:], p.TopicID.Encode())
	putU32(buf[off:], p.PartitionID)
	off += 4
	off += p.Strategy.encodeInto(buf[off:])
	putU32(buf[off:], p.Count)
	off += 4
	if p.AutoCommit {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
	off++
	return buf[:off]
}

func init() {
	register(OpPollMessages, func(b []byte) (Command, error) {
		consumer, n, err := decodeConsumer(b)
		if err != nil {
			return nil, err
		}
		off := n
		if err := requireMinLen(b[off:], 3, "PollMessages"); err != nil {
			return nil, err
		}
		streamID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		topicID, n, err := DecodeIdentifier(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireMinLen(b[off:], 4, "PollMessages"); err != nil {
			return nil, err
		}
		partitionID := takeU32(b[off:])
		off += 4
		strategy, n, err := decodePollingStrategy(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireMinLen(b[off:], 5, "PollMessages"); err != nil {
			return nil, err
		}
		count := takeU32(b[off:])
		off += 4
		autoCommit := b[off] != 0
		off++
		if err := requireEmpty(b[off:], "PollMessages"); err != nil {
			return nil, err
		}
		return PollMessages{
			Consumer: consumer, StreamID: streamID, TopicID: topicID,
			PartitionID: partitionID, Strategy: strategy, Count: count, AutoCommit: autoCommit,
		}, nil
	})
}
