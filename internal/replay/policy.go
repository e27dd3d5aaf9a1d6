// Package replay decides whether a verified sign-data result may be accepted
// by a relying party: its timestamp must be fresh and its signature unseen.
package replay

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	ErrStale  = errors.New("replay: timestamp too old")
	ErrFuture = errors.New("replay: timestamp in the future")
)

// Policy bounds how far a signed timestamp may be from the verifier's clock.
// A zero MaxAge disables the age check.
type Policy struct {
	MaxAge    time.Duration
	MaxFuture time.Duration
}

// Check reports whether ts (unix seconds) is acceptable at now.
func (p Policy) Check(now time.Time, ts int64) error {
	signed := time.Unix(ts, 0)
	if skew := signed.Sub(now); skew > p.MaxFuture {
		return fmt.Errorf("%w: %s ahead", ErrFuture, skew.Truncate(time.Second))
	}
	if p.MaxAge > 0 {
		if age := now.Sub(signed); age > p.MaxAge {
			return fmt.Errorf("%w: %s old", ErrStale, age.Truncate(time.Second))
		}
	}
	return nil
}

// TTL is how long a seen signature must be remembered so that it cannot be
// replayed while still fresh. The result is never below one second.
func (p Policy) TTL() time.Duration {
	ttl := p.MaxAge + p.MaxFuture
	if p.MaxAge == 0 {
		ttl = 24 * time.Hour
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// Key derives the replay key from decoded signature bytes, so every text
// spelling of one signature shares a slot.
func Key(signature []byte) string {
	h := sha256.Sum256(signature)
	return hex.EncodeToString(h[:])
}
