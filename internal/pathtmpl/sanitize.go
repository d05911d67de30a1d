package pathtmpl

import (
	"regexp"
	"strings"

	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
)

var (
	whitespaceRun    = regexp.MustCompile(`[\s\p{Z}]+`)
	wikiLinkName     = regexp.MustCompile(`\[\[(?:.*/)?([^\]|]+)(?:\|[^\]]+)?\]\]`)
	nonAlphanumASCII = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
)

// Sanitize makes a value safe to use as one path segment. The rules are
// shared with the store's own path_pattern filling.
func Sanitize(value string) string {
	return store.SanitizeSegment(value)
}

// ProjectName unwraps a wiki-link such as [[folder/Name|Alias]] to Name.
// Plain strings are returned trimmed.
func ProjectName(s string) string {
	s = strings.TrimSpace(s)
	if m := wikiLinkName.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

func camelWords(s string) []string {
	return strings.Fields(nonAlphanumASCII.ReplaceAllString(s, " "))
}

func titleCamel(s string) string {
	var b strings.Builder
	for i, w := range camelWords(s) {
		w = strings.ToLower(w)
		if i == 0 {
			b.WriteString(w)
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]) + w[1:])
	}
	return b.String()
}

func titlePascal(s string) string {
	var b strings.Builder
	for _, w := range camelWords(s) {
		w = strings.ToLower(w)
		b.WriteString(strings.ToUpper(w[:1]) + w[1:])
	}
	return b.String()
}
