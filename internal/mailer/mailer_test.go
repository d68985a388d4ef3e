package mailer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPSender_RequiresHostAndFrom(t *testing.T) {
	_, err := NewSMTPSender(Config{From: "noreply@example.com"})
	assert.Error(t, err)

	_, err = NewSMTPSender(Config{Host: "smtp.example.com"})
	assert.Error(t, err)

	s, err := NewSMTPSender(Config{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})
	require.NoError(t, err)
	assert.Len(t, s.clientOptions(), 2)
}

func TestSMTPSender_AuthOptions(t *testing.T) {
	s, err := NewSMTPSender(Config{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "noreply@example.com",
		Password: "secret",
		From:     "noreply@example.com",
		UseTLS:   true,
	})
	require.NoError(t, err)
	assert.Len(t, s.clientOptions(), 5)
}

func TestSMTPSender_UnreachableHost(t *testing.T) {
	s, err := NewSMTPSender(Config{Host: "127.0.0.1", Port: 1, From: "noreply@example.com"})
	require.NoError(t, err)

	err = s.Send(context.Background(), "subject", "a@x.com", "<p>hi</p>")
	assert.Error(t, err)
}

func TestNew_SelectsBackend(t *testing.T) {
	s, err := New("console", Config{})
	require.NoError(t, err)
	assert.IsType(t, LogSender{}, s)
	assert.NoError(t, s.Send(context.Background(), "s", "a@x.com", "body"))

	_, err = New("smtp", Config{})
	assert.Error(t, err)
}

func TestRenderPasswordReset(t *testing.T) {
	body, err := RenderPasswordReset(PasswordResetData{
		Email: "a@x.com",
		Link:  "http://localhost:8080/api/users/reset-password/MQ/abc-123",
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(body, "Hello a@x.com"))
	assert.True(t, strings.Contains(body, `href="http://localhost:8080/api/users/reset-password/MQ/abc-123"`))

	body, err = RenderPasswordReset(PasswordResetData{Name: "<Ann>", Email: "a@x.com"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(body, "Hello &lt;Ann&gt;"))
}
