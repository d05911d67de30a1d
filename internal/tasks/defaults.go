package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirbrooks/mdbase-tasknotes/internal/fieldmap"
	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
)

// isoMillis is the timestamp layout for dateCreated and dateModified.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// ApplyFieldDefaults sets each schema default on fields that are absent.
func ApplyFieldDefaults(fm map[string]any, td *store.TypeDef) {
	if td == nil {
		return
	}
	for _, name := range td.Fields.Names() {
		def, _ := td.Fields.Get(name)
		if def.Default == nil {
			continue
		}
		if hasValue(fm, name) {
			continue
		}
		fm[name] = cloneDefault(def.Default)
	}
}

// ApplyTimestampDefaults stamps the mapped dateCreated and dateModified
// fields with now when the schema declares them and they are unset.
func ApplyTimestampDefaults(fm map[string]any, m fieldmap.Mapping, td *store.TypeDef, now time.Time) {
	if td == nil {
		return
	}
	stamp := now.UTC().Format(isoMillis)
	for _, r := range []fieldmap.Role{fieldmap.DateCreated, fieldmap.DateModified} {
		field := m.Field(r)
		if !td.Fields.Has(field) {
			continue
		}
		if v, ok := fm[field]; ok && v != nil {
			continue
		}
		fm[field] = stamp
	}
}

// ApplyMatchDefaults fills fields so a new document satisfies the type's
// match.where rules. Entries are applied in the order they were declared.
func ApplyMatchDefaults(fm map[string]any, td *store.TypeDef) {
	if td == nil {
		return
	}
	for _, cl := range td.Match.Where {
		if cl.Value == nil {
			continue
		}
		cond, isObject := cl.Value.(map[string]any)
		if !isObject {
			if !hasValue(fm, cl.Field) {
				fm[cl.Field] = cl.Value
			}
			continue
		}
		// A satisfied eq still lets contains and exists on the same clause
		// apply.
		if eq, ok := cond["eq"]; ok && !hasValue(fm, cl.Field) {
			fm[cl.Field] = eq
			continue
		}
		if expected, ok := cond["contains"]; ok {
			applyContains(fm, cl.Field, expected)
			continue
		}
		if exists, ok := cond["exists"].(bool); ok && exists && !hasValue(fm, cl.Field) {
			fm[cl.Field] = true
		}
	}
}

func applyContains(fm map[string]any, field string, expected any) {
	want := fmt.Sprint(expected)
	switch cur := fm[field].(type) {
	case []any:
		for _, item := range cur {
			if fmt.Sprint(item) == want {
				return
			}
		}
		fm[field] = append(cur, expected)
	case []string:
		out := make([]any, 0, len(cur)+1)
		for _, item := range cur {
			if item == want {
				return
			}
			out = append(out, item)
		}
		fm[field] = append(out, expected)
	case string:
		if !strings.Contains(cur, want) {
			fm[field] = strings.TrimSpace(cur + " " + want)
		}
	case nil:
		fm[field] = []any{expected}
	}
}

// cloneDefault copies list and map defaults so later edits to the new
// document never reach the type definition.
func cloneDefault(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneDefault(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = cloneDefault(item)
		}
		return out
	}
	return v
}

func hasValue(fm map[string]any, field string) bool {
	v, ok := fm[field]
	return ok && v != nil
}
