// Package isbn canonicalizes and validates ISBN-10 and ISBN-13 identifiers.
package isbn

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid matches every error returned by Normalize.
var ErrInvalid = errors.New("invalid ISBN")

// InvalidError reports a raw value that does not canonicalize to a valid ISBN.
type InvalidError struct {
	Raw string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("%s is not a valid ISBN", e.Raw)
}

func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalid
}

// Canonical keeps digits and X, dropping hyphens, whitespace and any other
// formatting. The result is not validated.
func Canonical(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == 'X' || r == 'x':
			sb.WriteByte('X')
		}
	}
	return sb.String()
}

// Normalize returns the canonical form of raw, or an *InvalidError when the
// canonical form fails the ISBN-10/13 checksum.
func Normalize(raw string) (string, error) {
	canonical := Canonical(raw)
	switch len(canonical) {
	case 10:
		if valid10(canonical) {
			return canonical, nil
		}
	case 13:
		if valid13(canonical) {
			return canonical, nil
		}
	}
	return "", &InvalidError{Raw: raw}
}

// Valid reports whether raw normalizes successfully.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

// Complete13 appends the check digit to a 12 digit ISBN-13 prefix.
func Complete13(first12 string) (string, error) {
	if len(first12) != 12 || !allDigits(first12) {
		return "", fmt.Errorf("isbn: %q is not a 12 digit prefix", first12)
	}
	sum := 0
	for i := 0; i < 12; i++ {
		d := int(first12[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return first12 + string(rune('0'+check)), nil
}

func valid10(s string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		var d int
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c == 'X' && i == 9:
			d = 10
		default:
			return false
		}
		sum += d * (10 - i)
	}
	return sum%11 == 0
}

func valid13(s string) bool {
	if !allDigits(s) {
		return false
	}
	if s[:3] != "978" && s[:3] != "979" {
		return false
	}
	sum := 0
	for i := 0; i < 13; i++ {
		d := int(s[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return sum%10 == 0
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
