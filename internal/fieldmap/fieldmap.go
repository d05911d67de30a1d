// Package fieldmap translates between task roles and the frontmatter field
// names a collection's task type actually uses.
package fieldmap

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/amirbrooks/mdbase-tasknotes/internal/store"
)

// Role is a semantic slot a task field can fill.
type Role string

const (
	Title            Role = "title"
	Status           Role = "status"
	Priority         Role = "priority"
	Due              Role = "due"
	Scheduled        Role = "scheduled"
	CompletedDate    Role = "completedDate"
	Tags             Role = "tags"
	Contexts         Role = "contexts"
	Projects         Role = "projects"
	TimeEstimate     Role = "timeEstimate"
	DateCreated      Role = "dateCreated"
	DateModified     Role = "dateModified"
	Recurrence       Role = "recurrence"
	RecurrenceAnchor Role = "recurrenceAnchor"
	TimeEntries      Role = "timeEntries"
)

// TaskType is the schema type the mapping is built from.
const TaskType = "task"

var roles = []Role{
	Title, Status, Priority, Due, Scheduled, CompletedDate, Tags, Contexts,
	Projects, TimeEstimate, DateCreated, DateModified, Recurrence,
	RecurrenceAnchor, TimeEntries,
}

// Roles returns every role in declaration order.
func Roles() []Role {
	return append([]Role(nil), roles...)
}

// ParseRole reports whether s names a known role.
func ParseRole(s string) (Role, bool) {
	for _, r := range roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Mapping binds every role to a field name. The field-to-role direction is
// partial: only fields that exist in the schema (or were annotated) map
// back to a role.
type Mapping struct {
	roleToField map[Role]string
	fieldToRole map[string]Role

	// Warnings collects duplicate role claims seen while building.
	Warnings []string
}

// Field returns the field name bound to r. A zero Mapping behaves as the
// identity.
func (m Mapping) Field(r Role) string {
	if f, ok := m.roleToField[r]; ok && f != "" {
		return f
	}
	return string(r)
}

// Role returns the role a field is bound to.
func (m Mapping) Role(field string) (Role, bool) {
	r, ok := m.fieldToRole[field]
	return r, ok
}

// Resolve is Field as a free function.
func Resolve(m Mapping, r Role) string {
	return m.Field(r)
}

// Default is the identity mapping in both directions.
func Default() Mapping {
	m := Mapping{
		roleToField: make(map[Role]string, len(roles)),
		fieldToRole: make(map[string]Role, len(roles)),
	}
	for _, r := range roles {
		m.roleToField[r] = string(r)
		m.fieldToRole[string(r)] = r
	}
	return m
}

// Build derives a mapping from field definitions. Explicit tn_role
// annotations win, first claim per role; unclaimed roles fall back to a
// field of the same name.
func Build(fields store.Fields) Mapping {
	m := Mapping{
		roleToField: make(map[Role]string, len(roles)),
		fieldToRole: map[string]Role{},
	}
	for _, name := range fields.Names() {
		def, _ := fields.Get(name)
		if def.Role == "" {
			continue
		}
		r, ok := ParseRole(def.Role)
		if !ok {
			continue
		}
		if prev, taken := m.roleToField[r]; taken {
			m.Warnings = append(m.Warnings, fmt.Sprintf(
				"Duplicate tn_role %q on field %q (already claimed by %q); ignoring.", r, name, prev))
			continue
		}
		m.roleToField[r] = name
		m.fieldToRole[name] = r
	}
	for _, r := range roles {
		if _, ok := m.roleToField[r]; ok {
			continue
		}
		m.roleToField[r] = string(r)
		if _, claimed := m.fieldToRole[string(r)]; !claimed && fields.Has(string(r)) {
			m.fieldToRole[string(r)] = r
		}
	}
	return m
}

// Normalize rewrites schema field names to role names. Keys that map to no
// role pass through unchanged.
func Normalize(raw map[string]any, m Mapping) map[string]any {
	out := make(map[string]any, len(raw))
	for _, k := range sortedKeys(raw) {
		if r, ok := m.Role(k); ok {
			out[string(r)] = raw[k]
			continue
		}
		if _, set := out[k]; !set {
			out[k] = raw[k]
		}
	}
	return out
}

// Denormalize rewrites role names to schema field names. Keys that are not
// roles pass through unchanged.
func Denormalize(roleData map[string]any, m Mapping) map[string]any {
	out := make(map[string]any, len(roleData))
	for _, k := range sortedKeys(roleData) {
		if r, ok := ParseRole(k); ok {
			out[m.Field(r)] = roleData[k]
			continue
		}
		if _, set := out[k]; !set {
			out[k] = roleData[k]
		}
	}
	return out
}

// ForCollection builds the mapping from the collection's task type, or
// returns Default when the type is missing.
func ForCollection(c *store.Collection, logger *slog.Logger) Mapping {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	td, ok := c.Type(TaskType)
	if !ok {
		logger.Debug("no task type, using identity field mapping", "root", c.Root)
		return Default()
	}
	m := Build(td.Fields)
	for _, w := range m.Warnings {
		logger.Warn(w)
	}
	return m
}

// Load opens the collection at root and builds its mapping. Any failure
// yields Default.
func Load(root string, logger *slog.Logger) Mapping {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c, err := store.Open(root)
	if err != nil {
		logger.Debug("field mapping unavailable, using identity", "root", root, "error", err)
		return Default()
	}
	return ForCollection(c, logger)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
