package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex sha256 of scope and payload, separated by a NUL
// byte so that no (scope, payload) pair collides with another by shifting
// bytes across the boundary.
func Fingerprint(scope string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
