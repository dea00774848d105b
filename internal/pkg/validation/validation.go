package validation

import (
	"regexp"
	"strings"
)

// Unit identifiers: IMEIs and vendor serials. Letters, digits and the
// separators vendors print on boxes.
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_./]{2,63}$`)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Agent ids as issued by the identity provider.
var handleRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_.]*$`)

func IsValidIdentifier(ident string) bool {
	return identifierRe.MatchString(ident)
}

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// IsValidHandle accepts either an email address or a bare agent id.
func IsValidHandle(handle string) bool {
	if strings.Contains(handle, "@") {
		return IsValidEmail(handle)
	}
	return handle != "" && handleRe.MatchString(handle)
}
