package wire

// Ping carries no payload; used as a liveness check and as one of the
// commands permitted before authentication (protocol §4.4).
type Ping struct{}

func (Ping) OpCode() OpCode  { return OpPing }
func (Ping) Origin() Origin  { return OriginDirect }
func (Ping) Validate() error { return nil }
func (Ping) Encode() []byte  { return []byte{} }

func init() {
	register(OpPing, func(b []byte) (Command, error) {
		if err := requireEmpty(b, "Ping"); err != nil {
			return nil, err
		}
		return Ping{}, nil
	})
}

// GetStats retrieves broker-wide aggregate counters; no payload.
type GetStats struct{}

func (GetStats) OpCode() OpCode  { return OpGetStats }
func (GetStats) Origin() Origin  { return OriginDirect }
func (GetStats) Validate() error { return nil }
func (GetStats) Encode() []byte  { return []byte{} }

func init() {
	register(OpGetStats, func(b []byte) (Command, error) {
		if err := requireEmpty(b, "GetStats"); err != nil {
			return nil, err
		}
		return GetStats{}, nil
	})
}

// GetMe retrieves the calling connection's own client record; no payload.
type GetMe struct{}

func (GetMe) OpCode() OpCode  { return OpGetMe }
func (GetMe) Origin() Origin  { return OriginDirect }
func (GetMe) Validate() error { return nil }
func (GetMe) Encode() []byte  { return []byte{} }

func init() {
	register(OpGetMe, func(b []byte) (Command, error) {
		if err := requireEmpty(b, "GetMe"); err != nil {
			return nil, err
		}
		return GetMe{}, nil
	})
}

// GetClient retrieves another connection's client record by numeric client id.
type GetClient struct {
	ClientID uint32
}

func (GetClient) OpCode() OpCode  { return OpGetClient }
func (GetClient) Origin() Origin  { return OriginDirect }
func (GetClient) Validate() error { return nil }
func (c GetClient) Encode() []byte {
	buf := make([]byte, 4)
	putU32(buf, c.ClientID)
	return buf
}

func init() {
	register(OpGetClient, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 4, "GetClient"); err != nil {
			return nil, err
		}
		if len(b) != 4 {
			return nil, errInvalidCommand("GetClient: expected exactly 4 bytes, got %d", len(b))
		}
		return GetClient{ClientID: takeU32(b)}, nil
	})
}

// GetClients lists every connected client; no payload.
type GetClients struct{}

func (GetClients) OpCode() OpCode  { return OpGetClients }
func (GetClients) Origin() Origin  { return OriginDirect }
func (GetClients) Validate() error { return nil }
func (GetClients) Encode() []byte  { return []byte{} }

func init() {
	register(OpGetClients, func(b []byte) (Command, error) {
		if err := requireEmpty(b, "GetClients"); err != nil {
			return nil, err
		}
		return GetClients{}, nil
	})
}
