package store

import (
	"context"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var wikiLinkPattern = regexp.MustCompile(`\[\[([^\]|#]+)(?:#[^\]|]*)?(?:\|[^\]]*)?\]\]`)

var markdown = goldmark.New()

// Backlinks lists documents whose body or frontmatter links to rel, either
// as a wiki-link or as a relative markdown link.
func (c *Collection) Backlinks(ctx context.Context, rel string) ([]string, error) {
	target, err := cleanRelPath(rel)
	if err != nil {
		return nil, err
	}
	var out []string
	err = c.walkDocuments(ctx, func(doc string) error {
		if doc == target {
			return nil
		}
		b, err := os.ReadFile(c.abs(doc))
		if err != nil {
			return nil
		}
		fm, body, err := parseFrontmatter(b)
		if err != nil {
			c.logger.Debug("skipping document", "path", doc, "error", err)
			return nil
		}
		for _, l := range documentLinks(fm, body) {
			if linkResolvesTo(doc, l, target) {
				out = append(out, doc)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type link struct {
	target string
	wiki   bool
}

func documentLinks(fm map[string]any, body string) []link {
	var out []link
	var visit func(v any)
	visit = func(v any) {
		switch x := v.(type) {
		case string:
			out = append(out, wikiLinks(x)...)
		case []any:
			for _, item := range x {
				visit(item)
			}
		case map[string]any:
			for _, item := range x {
				visit(item)
			}
		}
	}
	for _, v := range fm {
		visit(v)
	}
	out = append(out, wikiLinks(body)...)
	return append(out, markdownLinks(body)...)
}

func wikiLinks(s string) []link {
	var out []link
	for _, m := range wikiLinkPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, link{target: strings.TrimSpace(m[1]), wiki: true})
	}
	return out
}

func markdownLinks(body string) []link {
	src := []byte(body)
	doc := markdown.Parser().Parse(text.NewReader(src))
	var out []link
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if l, ok := n.(*ast.Link); ok {
			out = append(out, link{target: string(l.Destination)})
		}
		return ast.WalkContinue, nil
	})
	return out
}

// linkResolvesTo reports whether a link found in the document at from
// points at target. Wiki-links match by basename or by collection path;
// markdown links resolve relative to the linking document.
func linkResolvesTo(from string, l link, target string) bool {
	want := strings.ToLower(strings.TrimSuffix(target, path.Ext(target)))
	dest := l.target
	if !l.wiki {
		if strings.Contains(dest, "://") || strings.HasPrefix(dest, "mailto:") || strings.HasPrefix(dest, "#") {
			return false
		}
		if i := strings.IndexByte(dest, '#'); i >= 0 {
			dest = dest[:i]
		}
		if unescaped, err := url.PathUnescape(dest); err == nil {
			dest = unescaped
		}
	}
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return false
	}
	if strings.EqualFold(path.Ext(dest), ".md") {
		dest = strings.TrimSuffix(dest, path.Ext(dest))
	}
	dest = strings.ToLower(dest)

	if strings.HasPrefix(dest, "/") {
		return path.Clean(strings.TrimPrefix(dest, "/")) == want
	}
	if path.Clean(path.Join(path.Dir(from), dest)) == want {
		return true
	}
	if !l.wiki {
		return false
	}
	if strings.Contains(dest, "/") {
		return path.Clean(dest) == want
	}
	return dest == path.Base(want)
}
