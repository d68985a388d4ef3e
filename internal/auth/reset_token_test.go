package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"accounts/internal/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestGenerator(clock *fakeClock) *ResetTokenGenerator {
	return NewResetTokenGenerator(ResetTokenConfig{
		Secret:   "test-secret",
		Lifetime: 24 * time.Hour,
		Now:      clock.Now,
	})
}

func TestResetToken_VerifyWithinWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	gen := newTestGenerator(clock)
	user := &model.User{ID: 7, Email: "a@x.com", HasRequestedPasswordReset: true}

	token := gen.Issue(user)
	assert.True(t, gen.Verify(user, token))

	clock.t = clock.t.Add(23*time.Hour + 59*time.Minute)
	assert.True(t, gen.Verify(user, token))
}

func TestResetToken_Expired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	gen := newTestGenerator(clock)
	user := &model.User{HasRequestedPasswordReset: true}

	token := gen.Issue(user)
	clock.t = clock.t.Add(24 * time.Hour)
	assert.False(t, gen.Verify(user, token))

	clock.t = clock.t.Add(time.Hour)
	assert.False(t, gen.Verify(user, token))
}

func TestResetToken_RequiresPendingRequest(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	gen := newTestGenerator(clock)
	user := &model.User{HasRequestedPasswordReset: false}

	token := gen.Issue(user)
	assert.False(t, gen.Verify(user, token))

	user.HasRequestedPasswordReset = true
	assert.True(t, gen.Verify(user, token))
}

func TestResetToken_Tampered(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	gen := newTestGenerator(clock)
	user := &model.User{HasRequestedPasswordReset: true}
	token := gen.Issue(user)

	tsPart, digest, _ := strings.Cut(token, "-")
	flipped := []byte(digest)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	assert.False(t, gen.Verify(user, tsPart+"-"+string(flipped)))

	// A later timestamp with the original digest must not verify either.
	assert.False(t, gen.Verify(user, "zzzz-"+digest))

	other := NewResetTokenGenerator(ResetTokenConfig{Secret: "other-secret", Now: clock.Now})
	assert.False(t, other.Verify(user, token))
}

func TestResetToken_MalformedFailsClosed(t *testing.T) {
	gen := newTestGenerator(&fakeClock{t: time.Now()})
	user := &model.User{HasRequestedPasswordReset: true}

	for _, token := range []string{
		"",
		"abc",
		"-",
		"-abc",
		"abc-",
		"!!!-abcdef",
		"zzzzzzzzzzzzzzzzzz-abcdef",
		"-1-abc",
	} {
		assert.False(t, gen.Verify(user, token), "token %q", token)
	}
	assert.False(t, gen.Verify(nil, gen.Issue(user)))
}

func TestResetToken_Deterministic(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	gen := NewResetTokenGenerator(ResetTokenConfig{
		Secret:     "test-secret",
		Resolution: time.Minute,
		Now:        clock.Now,
	})
	user := &model.User{HasRequestedPasswordReset: true}

	first := gen.Issue(user)
	clock.t = clock.t.Add(30 * time.Second)
	assert.Equal(t, first, gen.Issue(user))

	clock.t = clock.t.Add(time.Minute)
	assert.NotEqual(t, first, gen.Issue(user))
	assert.True(t, gen.Verify(user, first))
}

func TestResetToken_Defaults(t *testing.T) {
	gen := NewResetTokenGenerator(ResetTokenConfig{Secret: "s"})
	assert.Equal(t, DefaultResetTokenLifetime, gen.Lifetime())
}
