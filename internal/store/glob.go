package store

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// pathGlob is a compiled path pattern. `*`, `?` and classes stay inside
// one segment, `**` spans segments, and `**/` may also match no directory
// at all, so tasks/**/*.md matches tasks/a.md.
type pathGlob struct {
	alts []glob.Glob
}

func compileGlob(pattern string) (*pathGlob, error) {
	g := &pathGlob{}
	for _, p := range dirStarVariants(pattern) {
		c, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: glob %q: %v", ErrInvalid, pattern, err)
		}
		g.alts = append(g.alts, c)
	}
	return g, nil
}

func (g *pathGlob) Match(rel string) bool {
	for _, c := range g.alts {
		if c.Match(rel) {
			return true
		}
	}
	return false
}

// dirStarVariants expands every `**/` into "present" and "absent".
func dirStarVariants(pattern string) []string {
	i := strings.Index(pattern, "**/")
	if i < 0 {
		return []string{pattern}
	}
	head := pattern[:i]
	var out []string
	for _, rest := range dirStarVariants(pattern[i+3:]) {
		out = append(out, head+"**/"+rest, head+rest)
	}
	return out
}

// globMatch compiles pattern and matches rel against it. Invalid patterns
// match nothing.
func globMatch(pattern, rel string) bool {
	g, err := compileGlob(pattern)
	if err != nil {
		return false
	}
	return g.Match(rel)
}

// excludeGlobs compiles settings.exclude. A pattern also excludes
// everything below a directory it names.
func excludeGlobs(patterns []string) ([]*pathGlob, error) {
	var out []*pathGlob
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for _, variant := range []string{p, strings.TrimSuffix(p, "/") + "/**"} {
			g, err := compileGlob(variant)
			if err != nil {
				return nil, fmt.Errorf("settings.exclude: %w", err)
			}
			out = append(out, g)
		}
	}
	return out, nil
}
