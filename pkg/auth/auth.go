// Package auth handles the credential boundary of the Entropy server.
//
// The world core never sees raw passwords: it stores and compares one
// opaque token per player. This package produces that token — a BLAKE3
// digest of the password — and extracts credentials from HTTP Basic
// headers (username = decimal player id, password = raw password).
package auth

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"lukechampine.com/blake3"

	"github.com/entropy-world/entropy/pkg/world"
)

// Credential is an authenticated request's identity: the player id plus
// the opaque token the core compares for equality.
type Credential struct {
	PlayerID int32
	Token    string
}

// HashPassword digests a raw password into the stored credential token.
// Deterministic: equal passwords always produce equal tokens.
func HashPassword(password string) string {
	sum := blake3.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// FromBasic extracts a Credential from the request's Basic auth header.
// Missing header, non-numeric user, or an id outside int32 all fail with
// world.ErrAuthHeader.
func FromBasic(r *http.Request) (Credential, error) {
	user, password, ok := r.BasicAuth()
	if !ok {
		return Credential{}, world.ErrAuthHeader
	}
	id, err := strconv.ParseInt(user, 10, 32)
	if err != nil {
		return Credential{}, world.ErrAuthHeader
	}
	return Credential{PlayerID: int32(id), Token: HashPassword(password)}, nil
}
