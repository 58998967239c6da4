package wire

// GetConsumerOffset retrieves the last stored offset for a (consumer,
// partition) pair.
type GetConsumerOffset struct {
	Consumer    Consumer
	StreamID    Identifier
	TopicID     Identifier
	PartitionID uint32
}

func (GetConsumerOffset) OpCode() OpCode  { return OpGetConsumerOffset }
func (GetConsumerOffset) Origin() Origin  { return OriginDirect }
func (GetConsumerOffset) Validate() error { return nil }
func (g GetConsumerOffset) Encode() []byte {
	buf := make([]byte, g.Consumer.size()+g.StreamID.Size()+g.TopicID.Size()+4)
	off := g.Consumer.encodeInto(buf)
	off += copy(buf[off:], g.StreamID.Encode())
	off += copy(buf[off:], g.TopicID.Encode())
	putU32(buf[off:], g.PartitionID)
	off += 4
	return buf[:off]
}

func init() {
	register(OpGetConsumerOffset, func(b []byte) (Command, error) {
		consumer, n, err := decodeConsumer(b)
		if err != nil {
			return nil, err
		}
		off := n
		if err := requireMinLen(b[off:], 3, "GetConsumerOffset"); err != nil {
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
		if err := requireMinLen(b[off:], 4, "GetConsumerOffset"); err != nil {
			return nil, err
		}
		partitionID := takeU32(b[off:])
		off += 4
		if err := requireEmpty(b[off:], "GetConsumerOffset"); err != nil {
			return nil, err
		}
		return GetConsumerOffset{Consumer: consumer, StreamID: streamID, TopicID: topicID, PartitionID: partitionID}, nil
	})
}

// StoreConsumerOffset persists the caller's read progress for a (consumer,
// partition) pair; not retried by the broker on failure (protocol §5).
type StoreConsumerOffset struct {
	Consumer    Consumer
	StreamID    Identifier
	TopicID     Identifier
	PartitionID uint32
	Offset      uint64
}

func (StoreConsumerOffset) OpCode() OpCode  { return OpStoreConsumerOffset }
func (StoreConsumerOffset) Origin() Origin  { return OriginDirect }
func (StoreConsumerOffset) Validate() error { return nil }
func (s StoreConsumerOffset) Encode() []byte {
	buf := make([]byte, s.Consumer.size()+s.StreamID.Size()+s.TopicID.Size()+4+8)
	off := s.Consumer.encodeInto(buf)
	off += copy(buf[off:], s.StreamID.Encode())
	off += copy(buf[off:], s.TopicID.Encode())
	putU32(buf[off:], s.PartitionID)
	off += 4
	putU64(buf[off:], s.Offset)
	off += 8
	return buf[:off]
}

func init() {
	register(OpStoreConsumerOffset, func(b []byte) (Command, error) {
		consumer, n, err := decodeConsumer(b)
		if err != nil {
			return nil, err
		}
		off := n
		if err := requireMinLen(b[off:], 3, "StoreConsumerOffset"); err != nil {
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
		if err := requireMinLen(b[off:], 12, "StoreConsumerOffset"); err != nil {
			return nil, err
		}
		partitionID := takeU32(b[off:])
		off += 4
		offset := takeU64(b[off:])
		off += 8
		if err := requireEmpty(b[off:], "StoreConsumerOffset"); err != nil {
			return nil, err
		}
		return StoreConsumerOffset{Consumer: consumer, StreamID: streamID, TopicID: topicID, PartitionID: partitionID, Offset: offset}, nil
	})
}
