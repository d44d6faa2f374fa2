package textutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SecureFileName reduces an uploaded file name to a safe ASCII form that can
// be joined onto a directory. The name is NFKD-normalized and non-ASCII runes
// are dropped. Path separators become spaces, whitespace runs collapse into a
// single underscore, and only letters, digits, '_', '.' and '-' survive.
// Leading and trailing dots and underscores are trimmed so the result is
// never hidden or a parent reference. An empty string means nothing usable
// was left.
func SecureFileName(name string) string {
	name = norm.NFKD.String(name)

	var ascii strings.Builder
	for _, r := range name {
		if r < 0x80 {
			ascii.WriteRune(r)
		}
	}
	cleaned := strings.NewReplacer("/", " ", "\\", " ").Replace(ascii.String())
	cleaned = strings.Join(strings.Fields(cleaned), "_")

	var b strings.Builder
	for _, r := range cleaned {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}
