package service

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"

	apperrors "accounts/internal/errors"
	"accounts/internal/model"
)

const (
	// DefaultPasswordMinLength is the minimum number of characters in a password.
	DefaultPasswordMinLength = 8
	// DefaultMaxSimilarity is the similarity ratio at which a password is rejected
	// for resembling a user attribute.
	DefaultMaxSimilarity = 0.7

	passwordField = "password"
)

//go:embed common-passwords.txt.gz
var commonPasswordsGz []byte

var nonWord = regexp.MustCompile(`\W+`)

// PasswordValidator validates a candidate password against the password policy.
type PasswordValidator struct {
	minLength     int
	maxSimilarity float64
	common        map[string]struct{}
}

// NewPasswordValidator creates a validator with the given minimum length and
// the embedded common-password list.
func NewPasswordValidator(minLength int) (*PasswordValidator, error) {
	if minLength <= 0 {
		minLength = DefaultPasswordMinLength
	}
	common, err := loadCommonPasswords(commonPasswordsGz)
	if err != nil {
		return nil, err
	}
	return &PasswordValidator{
		minLength:     minLength,
		maxSimilarity: DefaultMaxSimilarity,
		common:        common,
	}, nil
}

// Validate runs every rule and returns all violations at once, or nil.
// user may be nil when no attributes are known yet.
func (v *PasswordValidator) Validate(password string, user *model.User) *apperrors.ValidationError {
	verr := &apperrors.ValidationError{}

	if utf8.RuneCountInString(password) < v.minLength {
		verr.Add(passwordField, fmt.Sprintf("This password is too short. It must contain at least %d characters.", v.minLength))
	}

	if user != nil {
		if v.tooSimilar(password, user.Email) {
			verr.Add(passwordField, "The password is too similar to the email address.")
		}
		if v.tooSimilar(password, user.Name) {
			verr.Add(passwordField, "The password is too similar to the name.")
		}
	}

	if _, ok := v.common[strings.ToLower(strings.TrimSpace(password))]; ok {
		verr.Add(passwordField, "This password is too common.")
	}

	if isNumeric(password) {
		verr.Add(passwordField, "This password is entirely numeric.")
	}

	if verr.Empty() {
		return nil
	}
	return verr
}

// tooSimilar compares password with the attribute and with each of its word parts.
func (v *PasswordValidator) tooSimilar(password, attribute string) bool {
	if attribute == "" {
		return false
	}
	value := strings.ToLower(attribute)
	parts := append(nonWord.Split(value, -1), value)
	pw := strings.ToLower(password)
	for _, part := range parts {
		if part == "" {
			continue
		}
		if quickRatio(pw, part) >= v.maxSimilarity {
			return true
		}
	}
	return false
}

// quickRatio is an upper bound on the similarity of a and b: twice the size of
// their character multiset intersection over their combined length.
func quickRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	avail := make(map[rune]int, len(rb))
	for _, r := range rb {
		avail[r]++
	}
	matches := 0
	for _, r := range ra {
		if avail[r] > 0 {
			avail[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func loadCommonPasswords(data []byte) (map[string]struct{}, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open common password list: %w", err)
	}
	defer zr.Close()

	set := make(map[string]struct{})
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line != "" {
			set[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read common password list: %w", err)
	}
	return set, nil
}
