// Package nlp turns a line of task text into a draft of role-keyed fields.
//
// Recognized tokens: #tag, @context, +project or +[[Project]], !priority,
// priority words (urgent, high, low), due dates (today, tomorrow, weekday
// names, next week, YYYY-MM-DD, due:<date>), scheduled:<date>, estimates
// (~30m, ~1h30m), recurrence (every day, daily, weekly, every monday) and
// status:<value>. Text after " -- " becomes the body; remaining words form
// the title.
package nlp

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amirbrooks/mdbase-tasknotes/internal/fieldmap"
)

const dateLayout = "2006-01-02"

// Draft is the structured result of parsing task text.
type Draft struct {
	Title        string
	Status       string
	Priority     string
	Due          string
	Scheduled    string
	Tags         []string
	Contexts     []string
	Projects     []string
	TimeEstimate int
	Recurrence   string
	Body         string
}

// Frontmatter returns the draft keyed by role name. Empty fields are
// omitted so schema defaults can apply.
func (d Draft) Frontmatter() map[string]any {
	fm := map[string]any{}
	set := func(r fieldmap.Role, v string) {
		if v != "" {
			fm[string(r)] = v
		}
	}
	list := func(r fieldmap.Role, vs []string) {
		if len(vs) == 0 {
			return
		}
		items := make([]any, len(vs))
		for i, v := range vs {
			items[i] = v
		}
		fm[string(r)] = items
	}
	set(fieldmap.Title, d.Title)
	set(fieldmap.Status, d.Status)
	set(fieldmap.Priority, d.Priority)
	set(fieldmap.Due, d.Due)
	set(fieldmap.Scheduled, d.Scheduled)
	list(fieldmap.Tags, d.Tags)
	list(fieldmap.Contexts, d.Contexts)
	list(fieldmap.Projects, d.Projects)
	if d.TimeEstimate > 0 {
		fm[string(fieldmap.TimeEstimate)] = d.TimeEstimate
	}
	set(fieldmap.Recurrence, d.Recurrence)
	return fm
}

var (
	isoDate      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	estimate     = regexp.MustCompile(`^~(?:(\d+)h)?(?:(\d+)m(?:in)?)?$`)
	wikiProject  = regexp.MustCompile(`^\+\[\[([^\]]+)\]\]$`)
	trailingPunc = ",.;"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var recurrenceUnits = map[string]string{
	"day": "FREQ=DAILY", "daily": "FREQ=DAILY",
	"week": "FREQ=WEEKLY", "weekly": "FREQ=WEEKLY",
	"month": "FREQ=MONTHLY", "monthly": "FREQ=MONTHLY",
	"year": "FREQ=YEARLY", "yearly": "FREQ=YEARLY",
	"weekday": "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR",
}

var rruleDays = map[time.Weekday]string{
	time.Sunday: "SU", time.Monday: "MO", time.Tuesday: "TU", time.Wednesday: "WE",
	time.Thursday: "TH", time.Friday: "FR", time.Saturday: "SA",
}

// Parse reads text relative to now. It never fails; unrecognized words
// stay in the title.
func Parse(text string, now time.Time) Draft {
	var d Draft
	head, body, _ := strings.Cut(text, " -- ")
	d.Body = strings.TrimSpace(body)

	words := strings.Fields(head)
	var title []string
	for i := 0; i < len(words); i++ {
		w := words[i]
		lower := strings.ToLower(strings.TrimRight(w, trailingPunc))
		next := ""
		if i+1 < len(words) {
			next = strings.ToLower(strings.TrimRight(words[i+1], trailingPunc))
		}

		switch {
		case len(w) > 1 && w[0] == '#':
			if tag := cleanToken(w[1:]); tag != "" {
				d.Tags = appendUnique(d.Tags, tag)
				continue
			}
		case len(w) > 1 && w[0] == '@':
			if ctx := cleanToken(w[1:]); ctx != "" {
				d.Contexts = appendUnique(d.Contexts, ctx)
				continue
			}
		case len(w) > 1 && w[0] == '+':
			if strings.HasPrefix(w, "+[[") && !strings.Contains(w, "]]") {
				// Multi-word link: +[[Home Life]].
				for j := i + 1; j < len(words); j++ {
					if strings.Contains(words[j], "]]") {
						w = strings.Join(words[i:j+1], " ")
						i = j
						break
					}
				}
			}
			if m := wikiProject.FindStringSubmatch(w); m != nil {
				d.Projects = appendUnique(d.Projects, "[["+m[1]+"]]")
				continue
			}
			if p := cleanToken(w[1:]); p != "" {
				d.Projects = appendUnique(d.Projects, "[["+p+"]]")
				continue
			}
		case len(w) > 1 && w[0] == '!':
			if p := normalizePriority(w[1:]); p != "" {
				d.Priority = p
				continue
			}
		case len(w) > 1 && w[0] == '~':
			if mins := parseEstimate(w); mins > 0 {
				d.TimeEstimate = mins
				continue
			}
		case strings.HasPrefix(lower, "due:"):
			if date, ok := parseDate(strings.TrimPrefix(lower, "due:"), now); ok {
				d.Due = date
				continue
			}
		case strings.HasPrefix(lower, "scheduled:"):
			if date, ok := parseDate(strings.TrimPrefix(lower, "scheduled:"), now); ok {
				d.Scheduled = date
				continue
			}
		case strings.HasPrefix(lower, "status:"):
			if s := strings.TrimPrefix(lower, "status:"); s != "" {
				d.Status = s
				continue
			}
		case lower == "urgent" || lower == "high" || lower == "low":
			// "high priority" consumes both words; a bare "high" only
			// counts at the end of the text.
			if next == "priority" {
				d.Priority = lower
				i++
				continue
			}
			if lower == "urgent" || i == len(words)-1 {
				d.Priority = lower
				continue
			}
		case lower == "every":
			if rule, ok := recurrence(next); ok {
				d.Recurrence = rule
				i++
				continue
			}
		case lower == "daily" || lower == "weekly" || lower == "monthly" || lower == "yearly":
			d.Recurrence = recurrenceUnits[lower]
			continue
		case lower == "next" && next == "week":
			d.Due = now.AddDate(0, 0, 7).Format(dateLayout)
			i++
			continue
		case lower == "on" || lower == "by" || lower == "due":
			if date, ok := parseDate(next, now); ok {
				d.Due = date
				i++
				continue
			}
		default:
			if date, ok := parseDate(lower, now); ok {
				d.Due = date
				continue
			}
		}
		title = append(title, w)
	}
	d.Title = strings.TrimSpace(strings.Join(title, " "))
	return d
}

// parseDate understands today, tomorrow, yesterday, weekday names (the next
// occurrence, never today) and ISO dates.
func parseDate(s string, now time.Time) (string, bool) {
	switch s {
	case "":
		return "", false
	case "today":
		return now.Format(dateLayout), true
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(dateLayout), true
	case "yesterday":
		return now.AddDate(0, 0, -1).Format(dateLayout), true
	}
	if wd, ok := weekdays[s]; ok {
		delta := (int(wd) - int(now.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return now.AddDate(0, 0, delta).Format(dateLayout), true
	}
	if isoDate.MatchString(s) {
		if _, err := time.Parse(dateLayout, s); err == nil {
			return s, true
		}
	}
	return "", false
}

func recurrence(unit string) (string, bool) {
	if rule, ok := recurrenceUnits[unit]; ok {
		return rule, true
	}
	if wd, ok := weekdays[unit]; ok {
		return "FREQ=WEEKLY;BYDAY=" + rruleDays[wd], true
	}
	return "", false
}

func parseEstimate(w string) int {
	m := estimate.FindStringSubmatch(strings.ToLower(w))
	if m == nil {
		return 0
	}
	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	return hours*60 + mins
}

func normalizePriority(p string) string {
	switch strings.TrimSpace(strings.ToLower(p)) {
	case "low", "l":
		return "low"
	case "normal", "n", "med", "medium":
		return "normal"
	case "high", "h":
		return "high"
	case "urgent", "u", "!":
		return "urgent"
	}
	return ""
}

// cleanToken keeps tag characters: letters, digits, '-', '_' and '/'.
func cleanToken(s string) string {
	s = strings.TrimRight(s, trailingPunc)
	for _, r := range s {
		if !isTagRune(r) {
			return ""
		}
	}
	return s
}

func isTagRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '/':
		return true
	case r > 0x7f:
		return true
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return list
		}
	}
	return append(list, v)
}
