// Package domain holds the core types shared by every service.
package domain

import "strings"

// Source identifies a mail provider.
type Source string

const (
	SourceGmail   Source = "gmail"
	SourceOutlook Source = "outlook"
)

// Valid reports whether the source is one of the supported providers.
func (s Source) Valid() bool {
	return s == SourceGmail || s == SourceOutlook
}

// ContactID builds the normalized contact identifier "{source}:{email}".
// The email part is always lower-cased so the same correspondent never
// produces two keys.
func ContactID(source Source, email string) string {
	return string(source) + ":" + strings.ToLower(strings.TrimSpace(email))
}

// ParseAddress extracts a display name and bare email from a header value
// of the form `Name <email@example.com>` or a bare address.
func ParseAddress(addr string) (name, email string) {
	addr = strings.TrimSpace(addr)
	open := strings.LastIndex(addr, "<")
	close := strings.LastIndex(addr, ">")
	if open >= 0 && close > open {
		name = strings.Trim(strings.TrimSpace(addr[:open]), `"`)
		email = strings.TrimSpace(addr[open+1 : close])
		if name == "" {
			name = email
		}
		return name, email
	}
	return addr, addr
}
