package broker

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/wire"
)

// UserTable lives only on the control shard (protocol §5: "The user and PAT
// tables live on the control shard; other shards query them via forwarded
// requests, never via shared memory"). It is deliberately a separate type
// from Index: users are not part of the stream/topic/partition tree.
type UserTable struct {
	byID   map[uint32]*User
	byName map[string]uint32
	nextID uint32
}

func NewUserTable() *UserTable {
	return &UserTable{byID: make(map[uint32]*User), byName: make(map[string]uint32)}
}

func hashPassword(password string) ([]byte, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, cos.NewError(cos.KindInternal, "hash password: %v", err)
	}
	return h, nil
}

func (ut *UserTable) Create(username, password string, status UserStatus, perms wire.Permissions) (*User, error) {
	if _, ok := ut.byName[username]; ok {
		return nil, cos.NewError(cos.KindAlreadyExists, "user %q already exists", username)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	ut.nextID++
	u := &User{ID: ut.nextID, Username: username, PasswordHash: hash, Status: status, Permissions: perms}
	ut.byID[u.ID] = u
	ut.byName[username] = u.ID
	return u, nil
}

func (ut *UserTable) resolve(id wire.Identifier) (*User, error) {
	var (
		u  *User
		ok bool
	)
	if id.Kind == wire.IdentifierNumeric {
		u, ok = ut.byID[id.Num]
	} else {
		var num uint32
		num, ok = ut.byName[id.Str]
		if ok {
			u, ok = ut.byID[num]
		}
	}
	if !ok {
		return nil, cos.NewError(cos.KindNotFound, "user %s not found", id)
	}
	return u, nil
}

func (ut *UserTable) Get(id wire.Identifier) (*User, error) { return ut.resolve(id) }

func (ut *UserTable) GetByUsername(username string) (*User, error) {
	return ut.resolve(wire.MustStringIdentifier(username))
}

func (ut *UserTable) All() []*User {
	out := make([]*User, 0, len(ut.byID))
	for _, u := range ut.byID {
		out = append(out, u)
	}
	return out
}

func (ut *UserTable) Delete(id wire.Identifier) error {
	u, err := ut.resolve(id)
	if err != nil {
		return err
	}
	delete(ut.byID, u.ID)
	delete(ut.byName, u.Username)
	return nil
}

func (ut *UserTable) Update(id wire.Identifier, username *string, status *UserStatus) (*User, error) {
	u, err := ut.resolve(id)
	if err != nil {
		return nil, err
	}
	if username != nil && *username != u.Username {
		if _, ok := ut.byName[*username]; ok {
			return nil, cos.NewError(cos.KindAlreadyExists, "user %q already exists", *username)
		}
		delete(ut.byName, u.Username)
		u.Username = *username
		ut.byName[u.Username] = u.ID
	}
	if status != nil {
		u.Status = *status
	}
	return u, nil
}

func (ut *UserTable) UpdatePermissions(id wire.Identifier, perms wire.Permissions) (*User, error) {
	u, err := ut.resolve(id)
	if err != nil {
		return nil, err
	}
	u.Permissions = perms
	return u, nil
}

func (ut *UserTable) ChangePassword(id wire.Identifier, current, next string) error {
	u, err := ut.resolve(id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(current)); err != nil {
		return cos.NewError(cos.KindUnauthorized, "current password does not match")
	}
	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// VerifyLogin checks username/password and returns the matching active User.
func (ut *UserTable) VerifyLogin(username, password string) (*User, error) {
	u, ok := ut.byName[username]
	if !ok {
		return nil, cos.NewError(cos.KindUnauthenticated, "invalid credentials")
	}
	user := ut.byID[u]
	if user.Status != UserActive {
		return nil, cos.NewError(cos.KindUnauthenticated, "user %q is not active", username)
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, cos.NewError(cos.KindUnauthenticated, "invalid credentials")
	}
	return user, nil
}
