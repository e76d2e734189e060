package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	id "gatepass/pkg/domain"
)

const (
	keyPrefix = "ack"
	macLen    = 16
)

var ErrInvalidKey = errors.New("invalid correlation key")

// Correlator mints and verifies acknowledgment keys of the form
// ack:<requester>:<request>[:<mac>]. With a secret configured every key
// carries a truncated HMAC-SHA256 and keys without a valid one are rejected.
// Keys stay well under the 64 byte button payload limit.
type Correlator struct {
	secret []byte
}

func NewCorrelator(secret string) *Correlator {
	c := &Correlator{}
	if secret != "" {
		c.secret = []byte(secret)
	}
	return c
}

// Key mints the acknowledgment key for a request.
func (c *Correlator) Key(requester id.RequesterID, request id.RequestID) string {
	base := keyPrefix + ":" + requester.String() + ":" + request.String()
	if c.secret == nil {
		return base
	}
	return base + ":" + c.mac(base)
}

// IsKey reports whether payload looks like an acknowledgment key, valid or not.
func IsKey(payload string) bool {
	return strings.HasPrefix(payload, keyPrefix+":")
}

// Parse recovers the pair a key was minted for.
func (c *Correlator) Parse(key string) (id.RequesterID, id.RequestID, error) {
	parts := strings.Split(key, ":")
	if parts[0] != keyPrefix {
		return 0, 0, ErrInvalidKey
	}
	switch {
	case c.secret == nil && len(parts) != 3:
		return 0, 0, ErrInvalidKey
	case c.secret != nil:
		if len(parts) != 4 {
			return 0, 0, ErrInvalidKey
		}
		base := strings.Join(parts[:3], ":")
		if !hmac.Equal([]byte(parts[3]), []byte(c.mac(base))) {
			return 0, 0, ErrInvalidKey
		}
	}

	requester, err := id.ParseRequesterID(parts[1])
	if err != nil || requester < 0 {
		return 0, 0, ErrInvalidKey
	}
	request, err := id.ParseRequestID(parts[2])
	if err != nil {
		return 0, 0, ErrInvalidKey
	}
	return requester, request, nil
}

func (c *Correlator) mac(base string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(base))
	return hex.EncodeToString(h.Sum(nil))[:macLen]
}
