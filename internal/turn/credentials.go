// Package turn mints ephemeral TURN credentials compatible with coturn's
// static-auth-secret mode (the long-term credential mechanism from the
// TURN REST API draft).
package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Credentials is a time-limited TURN username/password pair. The relay
// derives the same password from its shared secret, so nothing is stored
// server-side.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TTL      int64  `json:"ttl"`
}

// Minter issues credentials signed with the relay's shared secret.
type Minter struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewMinter creates a credential minter. ttl bounds how long issued
// credentials stay valid.
func NewMinter(secret string, ttl time.Duration) *Minter {
	return &Minter{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Mint issues credentials for the given user. The username encodes the
// expiry as "<unix-expiry>:<user-uuid>" and the password is the base64
// HMAC-SHA1 of that username under the shared secret, which is exactly
// what coturn recomputes to authenticate the allocation.
func (m *Minter) Mint(userID uuid.UUID) Credentials {
	expiry := m.now().Add(m.ttl).Unix()
	username := fmt.Sprintf("%d:%s", expiry, userID)

	mac := hmac.New(sha1.New, m.secret)
	mac.Write([]byte(username))

	return Credentials{
		Username: username,
		Password: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		TTL:      int64(m.ttl.Seconds()),
	}
}
