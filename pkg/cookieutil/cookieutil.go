// Package cookieutil reads cookies out of a `document.cookie` style string.
package cookieutil

import (
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Get returns the decoded value of the first cookie called name in header,
// which is a semicolon separated list like `a=1; b=2`. Values are decoded the
// way decodeURIComponent does it ("+" stays "+"). A value that fails to decode,
// including escapes that do not form valid UTF-8, is returned as is.
func Get(header, name string) (string, bool) {
	if header == "" {
		return "", false
	}
	prefix := name + "="
	for _, entry := range strings.Split(header, ";") {
		entry = strings.TrimSpace(entry)
		if !strings.HasPrefix(entry, prefix) {
			continue
		}
		raw := entry[len(prefix):]
		decoded, err := url.PathUnescape(raw)
		if err != nil || !utf8.ValidString(decoded) {
			return raw, true
		}
		return decoded, true
	}
	return "", false
}

// Header renders cookies into the string Get reads, in the order given.
func Header(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
