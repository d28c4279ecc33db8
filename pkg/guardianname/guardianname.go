// Package guardianname splits the free-form guardian name captured by the
// registration form into the first/last pair the directory schema wants.
// Guardian names arrive as a single field and may be empty, single-word,
// or multi-part; the fallback rules below are deliberate, not incidental.
package guardianname

import (
	"strings"
	"unicode"
)

// Split returns (first, last) for a free-form full name.
//
// Rules, in order:
//  1. multi-part name: first word is the first name, the remainder joined
//     by spaces is the last name
//  2. single-word name: that word is the first name and childSurname is
//     the last name (the guardian usually shares the child's surname)
//  3. empty name: derive both parts from the email local part; if that
//     also fails, fall back to ("Guardian", childSurname or "Guardian")
func Split(fullName, childSurname, email string) (string, string) {
	parts := strings.Fields(fullName)
	switch {
	case len(parts) >= 2:
		return parts[0], strings.Join(parts[1:], " ")
	case len(parts) == 1:
		if childSurname != "" {
			return parts[0], childSurname
		}
		return parts[0], parts[0]
	}

	first, last := DeriveFromEmail(email)
	if first == "" {
		first = "Guardian"
	}
	if childSurname != "" {
		last = childSurname
	}
	if last == "" {
		last = "Guardian"
	}
	return first, last
}

// DeriveFromEmail guesses a name pair from the email local part, splitting
// on the usual separators. Returns ("", "") for an unusable local part.
func DeriveFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "", ""
	}

	first := capitalize(parts[0])
	last := ""
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
