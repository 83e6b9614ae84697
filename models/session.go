package models

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Session carries the caller's bearer credential through to the portal
// backend. The portal never inspects or stores the token itself.
type Session struct {
	Token string
}

func SessionFromHeader(authorization string) Session {
	token := strings.TrimSpace(authorization)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return Session{Token: token}
}

func (s Session) Authenticated() bool { return s.Token != "" }

func (s Session) Authorization() string {
	if s.Token == "" {
		return ""
	}
	return "Bearer " + s.Token
}

// Subject is a stable, non-reversible key for the session, used for cache
// keys and notification channels.
func (s Session) Subject() string {
	if s.Token == "" {
		return "anonymous"
	}
	sum := blake2b.Sum256([]byte(s.Token))
	return hex.EncodeToString(sum[:12])
}
