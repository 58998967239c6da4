package broker

import (
	"crypto/sha256"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/flowmq/flowmq/cmn/cos"
)

// patClaims is the compact claim set signed into every issued PAT: user id,
// PAT name, and expiry, so LoginWithPersonalAccessToken can verify the
// signature without a storage round trip before falling back to the stored
// hash for revocability.
type patClaims struct {
	jwt.RegisteredClaims
	UserID uint32 `json:"uid"`
	Name   string `json:"name"`
}

// PATTable lives on the control shard alongside UserTable.
type PATTable struct {
	signingKey []byte
	byUser     map[uint32]map[string]*PersonalAccessToken
}

func NewPATTable(signingKey []byte) *PATTable {
	return &PATTable{signingKey: signingKey, byUser: make(map[uint32]map[string]*PersonalAccessToken)}
}

func tokenHash(raw string) [32]byte { return sha256.Sum256([]byte(raw)) }

// Create mints a new PAT for userID, signs it, and returns the raw token
// string (never stored — only its hash is).
func (pt *PATTable) Create(userID uint32, name string, expirySeconds uint32) (string, error) {
	if pt.byUser[userID] == nil {
		pt.byUser[userID] = make(map[string]*PersonalAccessToken)
	}
	if _, ok := pt.byUser[userID][name]; ok {
		return "", cos.NewError(cos.KindAlreadyExists, "personal access token %q already exists", name)
	}

	claims := patClaims{UserID: userID, Name: name}
	var expiresAt *time.Time
	if expirySeconds > 0 {
		t := time.Now().Add(time.Duration(expirySeconds) * time.Second)
		expiresAt = &t
		claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(t)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString(pt.signingKey)
	if err != nil {
		return "", cos.NewError(cos.KindInternal, "sign personal access token: %v", err)
	}

	pt.byUser[userID][name] = &PersonalAccessToken{
		UserID: userID, Name: name, TokenHash: tokenHash(raw), ExpiresAt: expiresAt,
	}
	return raw, nil
}

func (pt *PATTable) Delete(userID uint32, name string) error {
	toks := pt.byUser[userID]
	if toks == nil {
		return cos.NewError(cos.KindNotFound, "personal access token %q not found", name)
	}
	if _, ok := toks[name]; !ok {
		return cos.NewError(cos.KindNotFound, "personal access token %q not found", name)
	}
	delete(toks, name)
	return nil
}

func (pt *PATTable) List(userID uint32) []*PersonalAccessToken {
	toks := pt.byUser[userID]
	out := make([]*PersonalAccessToken, 0, len(toks))
	for _, t := range toks {
		out = append(out, t)
	}
	return out
}

// Verify checks a raw token's signature, resolves its claimed user, and
// cross-checks the stored hash so a deleted PAT stops working immediately
// even though its signature remains valid until expiry.
func (pt *PATTable) Verify(raw string) (userID uint32, err error) {
	var claims patClaims
	_, err = jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return pt.signingKey, nil
	})
	if err != nil {
		return 0, cos.NewError(cos.KindUnauthenticated, "invalid personal access token: %v", err)
	}
	toks := pt.byUser[claims.UserID]
	if toks == nil {
		return 0, cos.NewError(cos.KindUnauthenticated, "invalid personal access token")
	}
	stored, ok := toks[claims.Name]
	if !ok || stored.TokenHash != tokenHash(raw) {
		return 0, cos.NewError(cos.KindUnauthenticated, "invalid personal access token")
	}
	if stored.Expired(time.Now()) {
		return 0, cos.NewError(cos.KindUnauthenticated, "personal access token %q has expired", stored.Name)
	}
	return claims.UserID, nil
}
