package auth

import (
	"bufio"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// PasswordPolicy checks a candidate password against account attributes
// (keyed by field name, e.g. "email", "full_name") and returns every
// violated rule as a user-facing message. An empty result means accepted.
type PasswordPolicy interface {
	Validate(password string, attrs map[string]string) []string
}

//go:embed common_passwords.txt
var commonPasswordsList string

// bcrypt ignores input past this many bytes.
const maxPasswordBytes = 72

// DefaultPasswordPolicy applies attribute similarity, minimum length,
// common password and all-digits rules, plus the bcrypt input limit.
type DefaultPasswordPolicy struct {
	MinLength     int
	MaxSimilarity float64
	// Attributes maps attribute keys to the name used in messages.
	Attributes map[string]string
	common     map[string]struct{}
}

func NewDefaultPasswordPolicy() *DefaultPasswordPolicy {
	common := make(map[string]struct{})
	sc := bufio.NewScanner(strings.NewReader(commonPasswordsList))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			common[strings.ToLower(line)] = struct{}{}
		}
	}

	return &DefaultPasswordPolicy{
		MinLength:     8,
		MaxSimilarity: 0.7,
		Attributes: map[string]string{
			"email":     "email address",
			"full_name": "full name",
		},
		common: common,
	}
}

var nonWord = regexp.MustCompile(`\W+`)

func (p *DefaultPasswordPolicy) Validate(password string, attrs map[string]string) []string {
	var msgs []string

	if name, ok := p.similarAttribute(password, attrs); ok {
		msgs = append(msgs, fmt.Sprintf("The password is too similar to the %s.", name))
	}
	if len([]rune(password)) < p.MinLength {
		msgs = append(msgs, fmt.Sprintf("This password is too short. It must contain at least %d characters.", p.MinLength))
	}
	if len(password) > maxPasswordBytes {
		msgs = append(msgs, fmt.Sprintf("This password is too long. It must contain at most %d bytes.", maxPasswordBytes))
	}
	if _, ok := p.common[strings.ToLower(strings.TrimSpace(password))]; ok {
		msgs = append(msgs, "This password is too common.")
	}
	if isNumeric(password) {
		msgs = append(msgs, "This password is entirely numeric.")
	}

	return msgs
}

// similarAttribute compares the password with each attribute and with its
// word-split parts, returning the display name of the first close match.
func (p *DefaultPasswordPolicy) similarAttribute(password string, attrs map[string]string) (string, bool) {
	if p.MaxSimilarity <= 0 {
		return "", false
	}
	pw := strings.ToLower(password)

	for key, name := range p.Attributes {
		value := strings.ToLower(attrs[key])
		if value == "" {
			continue
		}
		parts := append(nonWord.Split(value, -1), value)
		for _, part := range parts {
			if part == "" || p.exceedsLengthRatio(pw, part) {
				continue
			}
			if quickRatio(pw, part) >= p.MaxSimilarity {
				return name, true
			}
		}
	}
	return "", false
}

// exceedsLengthRatio skips values so short relative to the password that
// they cannot reach MaxSimilarity.
func (p *DefaultPasswordPolicy) exceedsLengthRatio(password, value string) bool {
	pwLen, valLen := len([]rune(password)), len([]rune(value))
	bound := p.MaxSimilarity / 2 * float64(pwLen)
	return pwLen >= 10*valLen && float64(valLen) < bound
}

// quickRatio is an upper bound on the similarity of a and b: twice the
// size of their character multiset intersection over their total length.
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
