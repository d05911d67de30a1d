package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// TypeDef is a document type read from the frontmatter of a file in the
// types folder.
type TypeDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	PathPattern string `yaml:"path_pattern,omitempty"`
	Match       Match  `yaml:"match,omitempty"`
	Fields      Fields `yaml:"fields,omitempty"`

	glob *pathGlob
}

// Match holds the rules that classify a document as this type.
type Match struct {
	PathGlob string `yaml:"path_glob,omitempty"`
	Where    Where  `yaml:"where,omitempty"`
}

// FieldDef describes one frontmatter field.
type FieldDef struct {
	Type        string    `yaml:"type,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Required    bool      `yaml:"required,omitempty"`
	Default     any       `yaml:"default,omitempty"`
	Values      []string  `yaml:"values,omitempty"`
	Role        string    `yaml:"tn_role,omitempty"`
	Items       *FieldDef `yaml:"items,omitempty"`
}

// Fields is an ordered set of field definitions. Declaration order decides
// the key order of written frontmatter.
type Fields struct {
	order []string
	defs  map[string]FieldDef
}

func (f *Fields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("fields: expected a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var def FieldDef
		// Shorthand: `tags: list`.
		if v := node.Content[i+1]; v.Kind == yaml.ScalarNode {
			def.Type = v.Value
		} else if err := v.Decode(&def); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		f.Set(name, def)
	}
	return nil
}

// Set adds or replaces a field, keeping the original position on replace.
func (f *Fields) Set(name string, def FieldDef) {
	if f.defs == nil {
		f.defs = map[string]FieldDef{}
	}
	if _, ok := f.defs[name]; !ok {
		f.order = append(f.order, name)
	}
	f.defs[name] = def
}

func (f Fields) Get(name string) (FieldDef, bool) {
	def, ok := f.defs[name]
	return def, ok
}

func (f Fields) Has(name string) bool {
	_, ok := f.defs[name]
	return ok
}

// Names returns field names in declaration order.
func (f Fields) Names() []string {
	return append([]string(nil), f.order...)
}

func (f Fields) Len() int { return len(f.order) }

// Clause is one `match.where` entry: a bare value or an operator object
// such as {contains: task}.
type Clause struct {
	Field string
	Value any
}

// Where keeps `match.where` entries in the order they were written.
type Where []Clause

func (w *Where) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("where: expected a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var v any
		if err := node.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("where %q: %w", node.Content[i].Value, err)
		}
		*w = append(*w, Clause{Field: node.Content[i].Value, Value: v})
	}
	return nil
}

// Conditions converts the clauses into query conditions. Unknown operators
// are ignored.
func (w Where) Conditions() []Condition {
	var out []Condition
	for _, cl := range w {
		obj, ok := cl.Value.(map[string]any)
		if !ok {
			out = append(out, Condition{Field: cl.Field, Op: OpEq, Value: cl.Value})
			continue
		}
		for _, op := range []Op{OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpContains, OpExists} {
			if v, ok := obj[string(op)]; ok {
				out = append(out, Condition{Field: cl.Field, Op: op, Value: v})
			}
		}
	}
	return out
}

func (t *TypeDef) hasMatchRules() bool {
	return strings.TrimSpace(t.Match.PathGlob) != "" || len(t.Match.Where) > 0
}

// Matches reports whether a document at rel with frontmatter fm belongs to
// this type by its match rules. A type without rules matches nothing.
func (t *TypeDef) Matches(rel string, fm map[string]any) bool {
	if !t.hasMatchRules() {
		return false
	}
	if g := strings.TrimSpace(t.Match.PathGlob); g != "" {
		if t.glob == nil {
			compiled, err := compileGlob(g)
			if err != nil {
				return false
			}
			t.glob = compiled
		}
		if !t.glob.Match(rel) {
			return false
		}
	}
	for _, cond := range t.Match.Where.Conditions() {
		if !cond.matches(fm) {
			return false
		}
	}
	return true
}

// MissingRequired lists required fields that are absent or null in fm.
func (t *TypeDef) MissingRequired(fm map[string]any) []string {
	var missing []string
	for _, name := range t.Fields.order {
		if !t.Fields.defs[name].Required {
			continue
		}
		if v, ok := fm[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

var nativePlaceholder = regexp.MustCompile(`\{\{(\w+)\}\}|\{(\w+)\}`)

// nativePath fills the type's path_pattern from frontmatter fields only,
// each value sanitized to a single segment. It reports false when there is
// no pattern or a referenced field has no usable scalar value.
func (t *TypeDef) nativePath(fm map[string]any) (string, bool) {
	pattern := strings.TrimSpace(t.PathPattern)
	if pattern == "" {
		return "", false
	}
	ok := true
	out := nativePlaceholder.ReplaceAllStringFunc(pattern, func(m string) string {
		sub := nativePlaceholder.FindStringSubmatch(m)
		key := sub[1]
		if key == "" {
			key = sub[2]
		}
		s, found := scalarString(fm[key])
		if found {
			s = SanitizeSegment(s)
		}
		if s == "" {
			ok = false
			return ""
		}
		return s
	})
	if !ok {
		return "", false
	}
	if !strings.HasSuffix(strings.ToLower(out), ".md") {
		out += ".md"
	}
	return out, true
}

func readTypeFile(p string) (*TypeDef, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	raw, _, err := splitFrontmatter(b)
	if err != nil {
		return nil, err
	}
	var td TypeDef
	if err := yaml.Unmarshal([]byte(raw), &td); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if strings.TrimSpace(td.Name) == "" {
		td.Name = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	}
	if g := strings.TrimSpace(td.Match.PathGlob); g != "" {
		if td.glob, err = compileGlob(g); err != nil {
			return nil, fmt.Errorf("match.path_glob: %w", err)
		}
	}
	return &td, nil
}
