package wire

// CreatePartitions appends additional partitions to an existing topic.
type CreatePartitions struct {
	StreamID       Identifier
	TopicID        Identifier
	PartitionCount uint32
}

func (CreatePartitions) OpCode() OpCode { return OpCreatePartitions }
func (CreatePartitions) Origin() Origin { return OriginDirect }
func (c CreatePartitions) Validate() error {
	if c.PartitionCount == 0 {
		return errInvalidCommand("CreatePartitions: count must be >= 1")
	}
	return nil
}
func (c CreatePartitions) Encode() []byte {
	buf := make([]byte, c.StreamID.Size()+c.TopicID.Size()+4)
	off := copy(buf, c.StreamID.Encode())
	off += copy(buf[off:], c.TopicID.Encode())
	putU32(buf[off:], c.PartitionCount)
	off += 4
	return buf[:off]
}

func init() {
	register(OpCreatePartitions, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "CreatePartitions"); err != nil {
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
		if err := requireMinLen(b[off:], 4, "CreatePartitions"); err != nil {
			return nil, err
		}
		count := takeU32(b[off:])
		off += 4
		if err := requireEmpty(b[off:], "CreatePartitions"); err != nil {
			return nil, err
		}
		return CreatePartitions{StreamID: streamID, TopicID: topicID, PartitionCount: count}, nil
	})
}

// DeletePartitions removes the highest-numbered partitions from a topic.
type DeletePartitions struct {
	StreamID       Identifier
	TopicID        Identifier
	PartitionCount uint32
}

func (DeletePartitions) OpCode() OpCode { return OpDeletePartitions }
func (DeletePartitions) Origin() Origin { return OriginDirect }
func (d DeletePartitions) Validate() error {
	if d.PartitionCount == 0 {
		return errInvalidCommand("DeletePartitions: count must be >= 1")
	}
	return nil
}
func (d DeletePartitions) Encode() []byte {
	buf := make([]byte, d.StreamID.Size()+d.TopicID.Size()+4)
	off := copy(buf, d.StreamID.Encode())
	off += copy(buf[off:], d.TopicID.Encode())
	putU32(buf[off:], d.PartitionCount)
	off += 4
	return buf[:off]
}

func init() {
	register(OpDeletePartitions, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "DeletePartitions"); err != nil {
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
		if err := requireMinLen(b[off:], 4, "DeletePartitions"); err != nil {
			return nil, err
		}
		count := takeU32(b[off:])
		off += 4
		if err := requireEmpty(b[off:], "DeletePartitions"); err != nil {
			return nil, err
		}
		return DeletePartitions{StreamID: streamID, TopicID: topicID, PartitionCount: count}, nil
	})
}
