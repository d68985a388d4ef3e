package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"accounts/internal/model"
)

const (
	// DefaultResetTokenLifetime is how long a password reset token stays valid.
	DefaultResetTokenLifetime = 24 * time.Hour

	resetTokenKeySalt = "accounts.auth.ResetTokenGenerator"
	maxTimestampChars = 13
)

// resetTokenEpoch is the origin of token timestamps.
var resetTokenEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// ResetTokenConfig configures a ResetTokenGenerator. It is copied at
// construction and never changes afterwards.
type ResetTokenConfig struct {
	Secret string
	// Lifetime bounds the age of a token accepted by Verify.
	Lifetime time.Duration
	// Resolution quantizes the issue timestamp; tokens issued within the same
	// step for the same secret are identical. Defaults to one second.
	Resolution time.Duration
	Now        func() time.Time
}

// ResetTokenGenerator issues and checks stateless password reset tokens of
// the form "<base36 timestamp>-<digest>". Nothing is persisted: validity is
// recomputed from the secret and the embedded timestamp.
//
// The digest covers the timestamp only, not the user's password hash or other
// mutable state, so a token stays usable for its whole lifetime even if the
// account changes. The has_requested_password_reset flag is the only per-user gate.
type ResetTokenGenerator struct {
	key        []byte
	lifetime   time.Duration
	resolution int64
	now        func() time.Time
}

// NewResetTokenGenerator builds a generator from cfg, applying defaults.
func NewResetTokenGenerator(cfg ResetTokenConfig) *ResetTokenGenerator {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultResetTokenLifetime
	}
	resolution := int64(cfg.Resolution / time.Second)
	if resolution < 1 {
		resolution = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	key := sha256.Sum256([]byte(resetTokenKeySalt + cfg.Secret))
	return &ResetTokenGenerator{
		key:        key[:],
		lifetime:   cfg.Lifetime,
		resolution: resolution,
		now:        cfg.Now,
	}
}

// Lifetime returns the configured token lifetime.
func (g *ResetTokenGenerator) Lifetime() time.Duration {
	return g.lifetime
}

// Issue returns a reset token for user stamped with the current time.
func (g *ResetTokenGenerator) Issue(user *model.User) string {
	ts := g.seconds(g.now())
	ts -= ts % g.resolution
	return g.tokenAt(ts)
}

// Verify reports whether token was issued by this generator, is younger than
// the lifetime, and user has a pending reset request. It never fails loudly:
// every malformed, expired or forged token yields false.
func (g *ResetTokenGenerator) Verify(user *model.User, token string) bool {
	if user == nil || token == "" {
		return false
	}

	tsPart, digest, ok := strings.Cut(token, "-")
	if !ok || tsPart == "" || digest == "" || len(tsPart) > maxTimestampChars {
		return false
	}
	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil || ts < 0 {
		return false
	}

	if !hmac.Equal([]byte(g.tokenAt(ts)), []byte(token)) {
		return false
	}

	age := g.seconds(g.now()) - ts
	if age >= int64(g.lifetime/time.Second) {
		return false
	}

	return user.HasRequestedPasswordReset
}

func (g *ResetTokenGenerator) tokenAt(ts int64) string {
	mac := hmac.New(sha256.New, g.key)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	full := hex.EncodeToString(mac.Sum(nil))

	// Every second character keeps the token short.
	var b strings.Builder
	b.Grow(len(full) / 2)
	for i := 0; i < len(full); i += 2 {
		b.WriteByte(full[i])
	}
	return strconv.FormatInt(ts, 36) + "-" + b.String()
}

func (g *ResetTokenGenerator) seconds(t time.Time) int64 {
	return int64(t.Sub(resetTokenEpoch) / time.Second)
}
