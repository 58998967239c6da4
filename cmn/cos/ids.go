package cos

import (
	"crypto/rand"
	"encoding/hex"
	"unsafe"

	"github.com/teris-io/shortid"
)

var sid *shortid.Shortid

// InitShortID seeds the process-wide short-id generator; call once at
// startup with a source of entropy (e.g. the control shard's boot time).
func InitShortID(seed uint64) {
	sid = shortid.MustNew(1, shortid.DefaultABC, seed)
}

// GenShortID returns a short, human-typeable id; it is not suitable for
// anything requiring cryptographic unpredictability.
func GenShortID() string {
	if sid == nil {
		InitShortID(1)
	}
	id, err := sid.Generate()
	if err != nil {
		// shortid only fails on worker-id/epoch exhaustion, which does not
		// happen within a process lifetime; fall back rather than panic.
		return GenUUID()
	}
	return id
}

// GenUUID returns a 128-bit identifier read from crypto/rand, hex-encoded;
// GenShortID falls back to it.
func GenUUID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// UnsafeB is a zero-copy string->[]byte conversion. The returned slice must
// never be mutated: it aliases the string's backing array.
func UnsafeB(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// UnsafeS is a zero-copy []byte->string conversion, the inverse of UnsafeB.
func UnsafeS(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
