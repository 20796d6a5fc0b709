package intercept

import (
	"regexp"
	"strings"
)

// specialChars are regex metacharacters that must be escaped when compiling
// a user-supplied glob into a regexp, mirroring
// _examples/original_source/src/highlevel/NetworkInterceptor.cpp's
// patternToRegex byte-by-byte translation.
const specialChars = `.+^$()[]{}|\`

// compileGlob turns a URL glob (`*` → any run of characters, `?` → any one
// character) into a case-insensitive, unanchored regexp: matching is a
// substring search over the URL, not a full match, per spec.md §4.9.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			if strings.ContainsRune(specialChars, r) {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	return regexp.Compile(b.String())
}
