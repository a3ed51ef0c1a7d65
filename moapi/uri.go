package moapi

import (
	"regexp"
	"strconv"
	"strings"
)

// URI addresses one off-chain document, in the form "scheme://locator".
// The scheme is matched case-insensitively; the locator is opaque to this
// package and interpreted by whichever adapter owns the scheme.
type URI string

const schemeSeparator = "://"

var reScheme = regexp.MustCompile(`^[a-zA-Z][-a-zA-Z0-9+.]*$`)

// ParseURI validates that a string has the "scheme://locator" shape and
// returns it as a URI.
//
// Errors:
//
//    - moorage-error-invalid -- when the string has no scheme separator,
//      an unusable scheme, or an empty locator
func ParseURI(s string) (URI, error) {
	scheme, locator, found := strings.Cut(s, schemeSeparator)
	if !found {
		return "", ErrorInvalid("URI must contain a \"://\" scheme separator",
			[2]string{"uri", strconv.Quote(s)})
	}
	if !reScheme.MatchString(scheme) {
		return "", ErrorInvalid("URI scheme must start with a letter and contain only letters, digits, '+', '-', or '.'",
			[2]string{"uri", strconv.Quote(s)})
	}
	if locator == "" {
		return "", ErrorInvalid("URI locator may not be empty",
			[2]string{"uri", strconv.Quote(s)})
	}
	return URI(s), nil
}

// Scheme returns the lowercased scheme part of the URI,
// or an empty string if the URI is malformed.
func (u URI) Scheme() string {
	scheme, _, found := strings.Cut(string(u), schemeSeparator)
	if !found {
		return ""
	}
	return strings.ToLower(scheme)
}

// Locator returns everything after the scheme separator.
func (u URI) Locator() string {
	_, locator, _ := strings.Cut(string(u), schemeSeparator)
	return locator
}

func (u URI) String() string {
	return string(u)
}

