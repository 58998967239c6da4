package wire

// UserStatus is a small closed enum over uint8, like the protocol's other
// status/compression/strategy fields.
type UserStatus uint8

const (
	UserActive UserStatus = iota + 1
	UserInactive
)

// CreateUser provisions a new user account; global command, control shard.
type CreateUser struct {
	Username    string
	Password    string
	Status      UserStatus
	Permissions Permissions
}

func (CreateUser) OpCode() OpCode { return OpCreateUser }
func (CreateUser) Origin() Origin { return OriginDirect }
func (c CreateUser) Validate() error {
	if len(c.Username) == 0 || len(c.Username) > 255 {
		return errInvalidCommand("CreateUser: username length %d out of range", len(c.Username))
	}
	if len(c.Password) == 0 {
		return errInvalidCommand("CreateUser: password must not be empty")
	}
	return nil
}
func (c CreateUser) Encode() []byte {
	buf := make([]byte, stringSize(c.Username)+stringSize(c.Password)+1+c.Permissions.size())
	off := putString(buf, c.Username)
	off += putString(buf[off:], c.Password)
	buf[off] = byte(c.Status)
	off++
	off += c.Permissions.encodeInto(buf[off:])
	return buf[:off]
}

func init() {
	register(OpCreateUser, func(b []byte) (Command, error) {
		username, n, err := takeString(b)
		if err != nil {
			return nil, err
		}
		off := n
		password, n, err := takeString(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireMinLen(b[off:], 1, "CreateUser"); err != nil {
			return nil, err
		}
		status := UserStatus(b[off])
		off++
		perms, n, err := decodePermissions(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "CreateUser"); err != nil {
			return nil, err
		}
		return CreateUser{Username: username, Password: password, Status: status, Permissions: perms}, nil
	})
}

// DeleteUser removes a user by id; global command, control shard.
type DeleteUser struct {
	UserID Identifier
}

func (DeleteUser) OpCode() OpCode  { return OpDeleteUser }
func (DeleteUser) Origin() Origin  { return OriginDirect }
func (DeleteUser) Validate() error { return nil }
func (d DeleteUser) Encode() []byte {
	return d.UserID.Encode()
}

func init() {
	register(OpDeleteUser, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "DeleteUser"); err != nil {
			return nil, err
		}
		id, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		if err := requireEmpty(b[n:], "DeleteUser"); err != nil {
			return nil, err
		}
		return DeleteUser{UserID: id}, nil
	})
}

// GetUser retrieves a single user's record.
type GetUser struct {
	UserID Identifier
}

func (GetUser) OpCode() OpCode  { return OpGetUser }
func (GetUser) Origin() Origin  { return OriginDirect }
func (GetUser) Validate() error { return nil }
func (g GetUser) Encode() []byte { return g.UserID.Encode() }

func init() {
	register(OpGetUser, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "GetUser"); err != nil {
			return nil, err
		}
		id, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		if err := requireEmpty(b[n:], "GetUser"); err != nil {
			return nil, err
		}
		return GetUser{UserID: id}, nil
	})
}

// GetUsers lists every user; no payload.
type GetUsers struct{}

func (GetUsers) OpCode() OpCode  { return OpGetUsers }
func (GetUsers) Origin() Origin  { return OriginDirect }
func (GetUsers) Validate() error { return nil }
func (GetUsers) Encode() []byte  { return []byte{} }

func init() {
	register(OpGetUsers, func(b []byte) (Command, error) {
		if err := requireEmpty(b, "GetUsers"); err != nil {
			return nil, err
		}
		return GetUsers{}, nil
	})
}

// UpdateUser changes the username and/or status; both fields are optional,
// each guarded by a presence byte (0 = absent, 1 = present).
type UpdateUser struct {
	UserID   Identifier
	Username *string
	Status   *UserStatus
}

func (UpdateUser) OpCode() OpCode  { return OpUpdateUser }
func (UpdateUser) Origin() Origin  { return OriginDirect }
func (UpdateUser) Validate() error { return nil }
func (u UpdateUser) Encode() []byte {
	size := u.UserID.Size() + 1
	if u.Username != nil {
		size += stringSize(*u.Username)
	}
	size += 1
	if u.Status != nil {
		size += 1
	}
	buf := make([]byte, size)
	off := copy(buf, u.UserID.Encode())
	if u.Username != nil {
		buf[off] = 1
		off++
		off += putString(buf[off:], *u.Username)
	} else {
		buf[off] = 0
		off++
	}
	if u.Status != nil {
		buf[off] = 1
		off++
		buf[off] = byte(*u.Status)
		off++
	} else {
		buf[off] = 0
		off++
	}
	return buf[:off]
}

func init() {
	register(OpUpdateUser, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "UpdateUser"); err != nil {
			return nil, err
		}
		id, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		cmd := UpdateUser{UserID: id}
		if err := requireMinLen(b[off:], 1, "UpdateUser"); err != nil {
			return nil, err
		}
		hasUsername := b[off] != 0
		off++
		if hasUsername {
			username, n, err := takeString(b[off:])
			if err != nil {
				return nil, err
			}
			off += n
			cmd.Username = &username
		}
		if err := requireMinLen(b[off:], 1, "UpdateUser"); err != nil {
			return nil, err
		}
		hasStatus := b[off] != 0
		off++
		if hasStatus {
			if err := requireMinLen(b[off:], 1, "UpdateUser"); err != nil {
				return nil, err
			}
			st := UserStatus(b[off])
			off++
			cmd.Status = &st
		}
		if err := requireEmpty(b[off:], "UpdateUser"); err != nil {
			return nil, err
		}
		return cmd, nil
	})
}

// UpdatePermissions replaces a user's full permission set.
type UpdatePermissions struct {
	UserID      Identifier
	Permissions Permissions
}

func (UpdatePermissions) OpCode() OpCode  { return OpUpdatePermissions }
func (UpdatePermissions) Origin() Origin  { return OriginDirect }
func (UpdatePermissions) Validate() error { return nil }
func (u UpdatePermissions) Encode() []byte {
	buf := make([]byte, u.UserID.Size()+u.Permissions.size())
	off := copy(buf, u.UserID.Encode())
	off += u.Permissions.encodeInto(buf[off:])
	return buf[:off]
}

func init() {
	register(OpUpdatePermissions, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "UpdatePermissions"); err != nil {
			return nil, err
		}
		id, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		perms, n, err := decodePermissions(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "UpdatePermissions"); err != nil {
			return nil, err
		}
		return UpdatePermissions{UserID: id, Permissions: perms}, nil
	})
}

// ChangePassword rotates a user's password, authenticated by the current one.
type ChangePassword struct {
	UserID          Identifier
	CurrentPassword string
	NewPassword     string
}

func (ChangePassword) OpCode() OpCode  { return OpChangePassword }
func (ChangePassword) Origin() Origin  { return OriginDirect }
func (ChangePassword) Validate() error { return nil }
func (c ChangePassword) Encode() []byte {
	buf := make([]byte, c.UserID.Size()+stringSize(c.CurrentPassword)+stringSize(c.NewPassword))
	off := copy(buf, c.UserID.Encode())
	off += putString(buf[off:], c.CurrentPassword)
	off += putString(buf[off:], c.NewPassword)
	return buf[:off]
}

func init() {
	register(OpChangePassword, func(b []byte) (Command, error) {
		if err := requireMinLen(b, 3, "ChangePassword"); err != nil {
			return nil, err
		}
		id, n, err := DecodeIdentifier(b)
		if err != nil {
			return nil, err
		}
		off := n
		cur, n, err := takeString(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		next, n, err := takeString(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "ChangePassword"); err != nil {
			return nil, err
		}
		return ChangePassword{UserID: id, CurrentPassword: cur, NewPassword: next}, nil
	})
}

// LoginUser authenticates with a username/password pair; permitted before
// authentication (protocol §4.4).
type LoginUser struct {
	Username string
	Password string
}

func (LoginUser) OpCode() OpCode  { return OpLoginUser }
func (LoginUser) Origin() Origin  { return OriginDirect }
func (LoginUser) Validate() error { return nil }
func (l LoginUser) Encode() []byte {
	buf := make([]byte, stringSize(l.Username)+stringSize(l.Password))
	off := putString(buf, l.Username)
	off += putString(buf[off:], l.Password)
	return buf[:off]
}

func init() {
	register(OpLoginUser, func(b []byte) (Command, error) {
		username, n, err := takeString(b)
		if err != nil {
			return nil, err
		}
		off := n
		password, n, err := takeString(b[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if err := requireEmpty(b[off:], "LoginUser"); err != nil {
			return nil, err
		}
		return LoginUser{Username: username, Password: password}, nil
	})
}

// LogoutUser clears the calling session's authentication; permitted before
// authentication is a no-op (protocol §4.4 exception list).
type LogoutUser struct{}

func (LogoutUser) OpCode() OpCode  { return OpLogoutUser }
func (LogoutUser) Origin() Origin  { return OriginDirect }
func (LogoutUser) Validate() error { return nil }
func (LogoutUser) Encode() []byte  { return []byte{} }

func init() {
	register(OpLogoutUser, func(b []byte) (Command, error) {
		if err := requireEmpty(b, "LogoutUser"); err != nil {
			return nil, err
		}
		return LogoutUser{}, nil
	})
}
