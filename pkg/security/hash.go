package security

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// HashVerificationCode returns a keyed BLAKE2b-256 digest of
// "<normalized email>:<code>".
func HashVerificationCode(pepper, email, code string) string {
	key := []byte(pepper)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// only reachable with an oversized key, which is folded above
		panic(err)
	}
	h.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	h.Write([]byte{':'})
	h.Write([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(h.Sum(nil))
}

// EqualHash compares two hex digests in constant time.
func EqualHash(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
