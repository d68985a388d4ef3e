package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// PasswordResetSubject is the subject line of reset mails.
const PasswordResetSubject = "Reset Password"

// PasswordResetData feeds the reset mail template.
type PasswordResetData struct {
	Name  string
	Email string
	Link  string
}

// RenderPasswordReset renders the HTML body of a reset mail.
func RenderPasswordReset(data PasswordResetData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "password_reset_request.html", data); err != nil {
		return "", fmt.Errorf("render reset mail: %w", err)
	}
	return buf.String(), nil
}
