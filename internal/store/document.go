package store

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is one document: its collection-relative path, its classified
// type (empty when no type claims it), frontmatter, and markdown body.
type Record struct {
	Path        string         `json:"path"`
	Type        string         `json:"type,omitempty"`
	Frontmatter map[string]any `json:"frontmatter"`
	Body        string         `json:"body,omitempty"`
}

// splitFrontmatter separates the YAML block from the body. Documents
// without a leading `---` line have no frontmatter.
func splitFrontmatter(b []byte) (string, string, error) {
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if !strings.HasPrefix(s, "---\n") {
		return "", s, nil
	}
	rest := s[len("---\n"):]
	if rest == "---" || strings.HasPrefix(rest, "---\n") {
		return "", trimBodyLead(strings.TrimPrefix(rest, "---")), nil
	}
	if idx := strings.Index(rest, "\n---\n"); idx >= 0 {
		return rest[:idx+1], trimBodyLead(rest[idx+len("\n---"):]), nil
	}
	if strings.HasSuffix(rest, "\n---") {
		return strings.TrimSuffix(rest, "---"), "", nil
	}
	return "", "", fmt.Errorf("%w: invalid frontmatter delimiters", ErrInvalid)
}

// trimBodyLead drops the closing delimiter's newline and the blank line
// written after it.
func trimBodyLead(s string) string {
	s = strings.TrimPrefix(s, "\n")
	return strings.TrimPrefix(s, "\n")
}

func parseFrontmatter(b []byte) (map[string]any, string, error) {
	raw, body, err := splitFrontmatter(b)
	if err != nil {
		return nil, "", err
	}
	fm := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return fm, body, nil
	}
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return nil, "", fmt.Errorf("%w: frontmatter: %v", ErrInvalid, err)
	}
	if fm == nil {
		fm = map[string]any{}
	}
	return fm, body, nil
}

// renderDocument writes frontmatter keys in declaration order, then the
// remaining keys alphabetically.
func renderDocument(fm map[string]any, body string, order []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	if len(fm) > 0 {
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range orderedKeys(fm, order) {
			var v yaml.Node
			if err := v.Encode(fm[k]); err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, &v)
		}
		var out bytes.Buffer
		enc := yaml.NewEncoder(&out)
		enc.SetIndent(2)
		if err := enc.Encode(node); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		buf.Write(out.Bytes())
	}
	buf.WriteString("---\n")
	if strings.TrimSpace(body) != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

func orderedKeys(fm map[string]any, order []string) []string {
	keys := make([]string, 0, len(fm))
	seen := map[string]bool{}
	for _, k := range order {
		if _, ok := fm[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range fm {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// scalarString renders strings, numbers and booleans; other values report
// false.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
