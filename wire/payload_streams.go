package wire

// GetStream retrieves a single stream's metadata.
type GetStream struct {
	StreamID Identifier
}

func (GetStream) OpCode() OpCode   { return OpGetStream }
func (GetStream) Origin() Origin   { return OriginDirect }
func (GetStream) Validate() error  { return nil }
func (g GetStream) Encode() []byte { return g.StreamID.Encode() }

func init() {
	register(OpGetStream, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "GetStream"); err != nil {
			return nil, err
		}
		id, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		if err := requireEmpty(b[n:], "GetStream"); err != nil {
			return nil, err
		}
		return GetStream{StreamID: id}, nil
	})
}

// GetStreams lists every stream; no payload.
type GetStreams struct{}

func (GetStreams) OpCode() OpCode  { return OpGetStreams }
func (GetStreams) Origin() Origin  { return OriginDirect }
func (GetStreams) Validate() error { return nil }
func (GetStreams) Encode() []byte  { return []byte{} }

func init() {
	register(OpGetStreams, func(b []byte) (Command, error) {
		if err := requireEmpty(b, "GetStreams"); err != nil {
			return nil, err
		}
		return GetStreams{}, nil
	})
}

// CreateStream provisions a new stream, optionally under a caller-supplied
// numeric id; a zero StreamID means "assign the next available id".
type CreateStream struct {
	StreamID uint32
	Name     string
}

func (CreateStream) OpCode() OpCode { return OpCreateStream }
func (CreateStream) Origin() Origin { return OriginDirect }
func (c CreateStream) Validate() error {
	if len(c.Name) == 0 || len(c.Name) > 255 {
		return errInvalidCommand("CreateStream: name length %d out of range", len(c.Name))
	}
	return nil
}
func (c CreateStream) Encode() []byte {
	buf := make([]byte, 4+stringSize(c.Name))
	putU32(buf, c.StreamID)
	off := 4
	off += putString(buf[off:], c.Name)
	return buf[:off]
}

func init() {
	register(OpCreateStream, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 4, "CreateStream"); err != nil {
			return nil, err
		}
		id := takeU32(b)
		off := 4
		name, n, err := takeString(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "CreateStream"); err != nil {
			return nil, err
		}
		return CreateStream{StreamID: id, Name: name}, nil
	})
}

// DeleteStream removes a stream and every topic/partition beneath it.
type DeleteStream struct {
	StreamID Identifier
}

func (DeleteStream) OpCode() OpCode   { return OpDeleteStream }
func (DeleteStream) Origin() Origin   { return OriginDirect }
func (DeleteStream) Validate() error  { return nil }
func (d DeleteStream) Encode() []byte { return d.StreamID.Encode() }

func init() {
	register(OpDeleteStream, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "DeleteStream"); err != nil {
			return nil, err
		}
		id, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		if err := requireEmpty(b[n:], "DeleteStream"); err != nil {
			return nil, err
		}
		return DeleteStream{StreamID: id}, nil
	})
}

// UpdateStream renames an existing stream.
type UpdateStream struct {
	StreamID Identifier
	Name     string
}

func (UpdateStream) OpCode() OpCode { return OpUpdateStream }
func (UpdateStream) Origin() Origin { return OriginDirect }
func (u UpdateStream) Validate() error {
	if len(u.Name) == 0 || len(u.Name) > 255 {
		return errInvalidCommand("UpdateStream: name length %d out of range", len(u.Name))
	}
	return nil
}
func (u UpdateStream) Encode() []byte {
	buf := make([]byte, u.StreamID.Size()+stringSize(u.Name))
	off := copy(buf, u.StreamID.Encode())
	off += putString(buf[off:], u.Name)
	return buf[:off]
}

func init() {
	register(OpUpdateStream, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "UpdateStream"); err != nil {
			return nil, err
		}
		id, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		name, n, err := takeString(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "UpdateStream"); err != nil {
			return nil, err
		}
		return UpdateStream{StreamID: id, Name: name}, nil
	})
}

// PurgeStream deletes all messages in a stream but keeps its topic/partition
// structure intact.
type PurgeStream struct {
	StreamID Identifier
}

func (PurgeStream) OpCode() OpCode  { return OpPurgeStream }
func (PurgeStream) Origin() Origin  { return OriginDirect }
func (PurgeStream) Validate() error { return nil }
func (p PurgeStream) Encode() []byte {
	return p.StreamID.Encode()
}

func init() {
	register(OpPurgeStream, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "PurgeStream"); err != nil {
			return nil, err
		}
		id, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		if err := requireEmpty(b[n:], "PurgeStream"); err != nil {
			return nil, err
		}
		return PurgeStream{StreamID: id}, nil
	})
}
