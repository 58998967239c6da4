package wire

// CreatePersonalAccessToken mints a new token for the calling session's user;
// the raw token value is returned once in the reply and never stored.
type CreatePersonalAccessToken struct {
	Name   string
	Expiry uint32 // seconds from creation; 0 = never expires
}

func (CreatePersonalAccessToken) OpCode() OpCode { return OpCreatePersonalAccessToken }
func (CreatePersonalAccessToken) Origin() Origin { return OriginDirect }
func (c CreatePersonalAccessToken) Validate() error {
	if len(c.Name) == 0 || len(c.Name) > 255 {
		return errInvalidCommand("CreatePersonalAccessToken: name length %d out of range", len(c.Name))
	}
	return nil
}
func (c CreatePersonalAccessToken) Encode() []byte {
	buf := make([]byte, stringSize(c.Name)+4)
	off := putString(buf, c.Name)
	putU32(buf[off:], c.Expiry)
	off += 4
	return buf[:off]
}

func init() {
	register(OpCreatePersonalAccessToken, func(b []byte) (Command, error) {
		name, n, err := takeString(b)
		if err != nil {
			return nil, err
		}
		off := n
		if err := requireMinLen(b[off:], 4, "CreatePersonalAccessToken"); err != nil {
			return nil, err
		}
		expiry := takeU32(b[off:])
		off += 4
		if err := requireEmpty(b[off:], "CreatePersonalAccessToken"); err != nil {
			return nil, err
		}
		return CreatePersonalAccessToken{Name: name, Expiry: expiry}, nil
	})
}

// DeletePersonalAccessToken revokes a token owned by the calling user, by name.
type DeletePersonalAccessToken struct {
	Name string
}

func (DeletePersonalAccessToken) OpCode() OpCode  { return OpDeletePersonalAccessToken }
func (DeletePersonalAccessToken) Origin() Origin  { return OriginDirect }
func (DeletePersonalAccessToken) Validate() error { return nil }
func (d DeletePersonalAccessToken) Encode() []byte {
	buf := make([]byte, stringSize(d.Name))
	putString(buf, d.Name)
	return buf
}

func init() {
	register(OpDeletePersonalAccessToken, func(b []byte) (Command, error) {
		name, n, err := takeString(b)
		if err != nil {
			return nil, err
		}
		if err := requireEmpty(b[n:], "DeletePersonalAccessToken"); err != nil {
			return nil, err
		}
		return DeletePersonalAccessToken{Name: name}, nil
	})
}

// GetPersonalAccessTokens lists the calling user's tokens (metadata only,
// never the raw secret); no payload.
type GetPersonalAccessTokens struct{}

func (GetPersonalAccessTokens) OpCode() OpCode  { return OpGetPersonalAccessTokens }
func (GetPersonalAccessTokens) Origin() Origin  { return OriginDirect }
func (GetPersonalAccessTokens) Validate() error { return nil }
func (GetPersonalAccessTokens) Encode() []byte  { return []byte{} }

func init() {
	register(OpGetPersonalAccessTokens, func(b []byte) (Command, error) {
		if err := requireEmpty(b, "GetPersonalAccessTokens"); err != nil {
			return nil, err
		}
		return GetPersonalAccessTokens{}, nil
	})
}

// LoginWithPersonalAccessToken authenticates using a raw PAT value in place
// of a username/password pair; permitted before authentication (protocol
// §4.4, same exception list as LoginUser).
type LoginWithPersonalAccessToken struct {
	Token string
}

func (LoginWithPersonalAccessToken) OpCode() OpCode  { return OpLoginWithPersonalAccessToken }
func (LoginWithPersonalAccessToken) Origin() Origin  { return OriginDirect }
func (LoginWithPersonalAccessToken) Validate() error { return nil }
func (l LoginWithPersonalAccessToken) Encode() []byte {
	buf := make([]byte, stringSize(l.Token))
	putString(buf, l.Token)
	return buf
}

func init() {
	register(OpLoginWithPersonalAccessToken, func(b []byte) (Command, error) {
		token, n, err := takeString(b)
		if err != nil {
			return nil, err
		}
		if err := requireEmpty(b[n:], "LoginWithPersonalAccessToken"); err != nil {
			return nil, err
		}
		return LoginWithPersonalAccessToken{Token: token}, nil
	})
}
