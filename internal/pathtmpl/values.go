package pathtmpl

import (
	"crypto/rand"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/amirbrooks/mdbase-tasknotes/internal/fieldmap"
)

// Values is the immutable set of placeholder values for one render.
type Values struct {
	m map[string]string
}

// Lookup returns the value for a placeholder name.
func (v Values) Lookup(name string) (string, bool) {
	s, ok := v.m[name]
	return s, ok
}

// Names returns all placeholder names, sorted.
func (v Values) Names() []string {
	names := make([]string, 0, len(v.m))
	for k := range v.m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// With returns a copy of v with name set to value.
func (v Values) With(name, value string) Values {
	m := make(map[string]string, len(v.m)+1)
	for k, s := range v.m {
		m[k] = s
	}
	m[name] = value
	return Values{m: m}
}

// BuildValues computes every placeholder from task frontmatter (schema
// field names), the field mapping, and the instant now. Date and time
// placeholders use now's location.
func BuildValues(fm map[string]any, m fieldmap.Mapping, now time.Time) Values {
	field := func(r fieldmap.Role) any {
		v := fm[m.Field(r)]
		if s, ok := v.(string); v == nil || ok && strings.TrimSpace(s) == "" {
			if alt, ok := fm[string(r)]; ok && alt != nil {
				return alt
			}
		}
		return v
	}
	v := map[string]string{}

	title := Sanitize(readString(field(fieldmap.Title)))
	if title == "" {
		title = "task"
	}
	priority := readString(field(fieldmap.Priority))
	if priority == "" {
		priority = "normal"
	}
	priority = Sanitize(priority)
	status := readString(field(fieldmap.Status))
	if status == "" {
		status = "open"
	}
	status = Sanitize(status)

	contexts := sanitizeAll(readStringList(field(fieldmap.Contexts)))
	var projects []string
	for _, p := range readStringList(field(fieldmap.Projects)) {
		projects = append(projects, ProjectName(p))
	}
	projects = sanitizeAll(projects)
	tags := sanitizeAll(readStringList(field(fieldmap.Tags)))
	hashtags := make([]string, len(tags))
	for i, t := range tags {
		hashtags[i] = "#" + t
	}

	v["title"] = title
	v["priority"] = priority
	v["status"] = status
	v["dueDate"] = Sanitize(readString(field(fieldmap.Due)))
	v["scheduledDate"] = Sanitize(readString(field(fieldmap.Scheduled)))
	v["context"] = first(contexts)
	v["contexts"] = strings.Join(contexts, "/")
	v["project"] = first(projects)
	v["projects"] = strings.Join(projects, "/")
	v["tags"] = strings.Join(tags, ", ")
	v["hashtags"] = strings.Join(hashtags, " ")
	v["timeEstimate"] = ""
	if est := field(fieldmap.TimeEstimate); est != nil {
		v["timeEstimate"], _ = formatScalar(est)
	}
	v["details"] = ""
	v["parentNote"] = ""

	v["date"] = now.Format("2006-01-02")
	v["time"] = now.Format("150405")
	v["timestamp"] = now.Format("2006-01-02-150405")
	v["dateTime"] = now.Format("2006-01-02-1504")
	v["year"] = now.Format("2006")
	v["month"] = now.Format("01")
	v["day"] = now.Format("02")
	v["hour"] = now.Format("15")
	v["minute"] = now.Format("04")
	v["second"] = now.Format("05")
	v["shortDate"] = now.Format("060102")
	v["shortYear"] = now.Format("06")
	v["monthName"] = now.Format("January")
	v["monthNameShort"] = now.Format("Jan")
	v["dayName"] = now.Format("Monday")
	v["dayNameShort"] = now.Format("Mon")
	v["week"] = fmt.Sprintf("%02d", weekOfYear(now))
	v["quarter"] = strconv.Itoa((int(now.Month())-1)/3 + 1)
	v["time12"] = Sanitize(now.Format("03:04 PM"))
	v["time24"] = Sanitize(now.Format("15:04"))
	v["hourPadded"] = now.Format("15")
	v["hour12"] = now.Format("03")
	v["ampm"] = now.Format("PM")
	v["unix"] = strconv.FormatInt(now.Unix(), 10)
	v["unixMs"] = strconv.FormatInt(now.UnixMilli(), 10)
	v["milliseconds"] = fmt.Sprintf("%03d", now.Nanosecond()/int(time.Millisecond))
	v["ms"] = v["milliseconds"]
	v["timezone"] = Sanitize(now.Format("-07:00"))
	v["timezoneShort"] = now.Format("-0700")
	v["utcOffset"] = v["timezone"]
	v["utcOffsetShort"] = v["timezoneShort"]
	v["utcZ"] = "Z"
	v["priorityShort"] = strings.ToUpper(firstRune(priority))
	v["statusShort"] = strings.ToUpper(firstRune(status))
	v["titleLower"] = strings.ToLower(title)
	v["titleUpper"] = strings.ToUpper(title)
	v["titleSnake"] = whitespaceRun.ReplaceAllString(strings.ToLower(title), "_")
	v["titleKebab"] = whitespaceRun.ReplaceAllString(strings.ToLower(title), "-")
	v["titleCamel"] = titleCamel(title)
	v["titlePascal"] = titlePascal(title)
	v["zettel"] = zettel(now)
	v["nano"] = nonce(now)

	v[m.Field(fieldmap.Title)] = v["title"]
	v[m.Field(fieldmap.Priority)] = v["priority"]
	v[m.Field(fieldmap.Status)] = v["status"]
	v[m.Field(fieldmap.Due)] = v["dueDate"]
	v[m.Field(fieldmap.Scheduled)] = v["scheduledDate"]

	keys := make([]string, 0, len(fm))
	for k := range fm {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, set := v[k]; set {
			continue
		}
		if s, ok := formatScalar(fm[k]); ok {
			v[k] = Sanitize(s)
		}
	}
	return Values{m: v}
}

// weekOfYear numbers weeks starting on Sunday; week 1 is the week that
// contains January 1st, so late-December days can fall in week 1.
func weekOfYear(t time.Time) int {
	day := civilNoon(t)
	next := startOfWeek(civilNoon(time.Date(t.Year()+1, 1, 1, 0, 0, 0, 0, t.Location())))
	if !day.Before(next) {
		return 1
	}
	first := startOfWeek(civilNoon(time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())))
	days := int(day.Sub(first).Round(24*time.Hour) / (24 * time.Hour))
	return days/7 + 1
}

func civilNoon(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, t.Location())
}

func startOfWeek(noon time.Time) time.Time {
	return noon.AddDate(0, 0, -int(noon.Weekday()))
}

// zettel is yyMMdd followed by the seconds since local midnight in base 36.
func zettel(t time.Time) string {
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return t.Format("060102") + strconv.FormatInt(int64(secs), 36)
}

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

// nonce is the epoch millisecond followed by eight random base-32 digits.
func nonce(t time.Time) string {
	id, err := ulid.New(ulid.Timestamp(t), randReader{})
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return strconv.FormatInt(t.UnixMilli(), 10) + strings.ToLower(id.String()[10:18])
}

func readString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func readStringList(v any) []string {
	var out []string
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			if s := readString(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range x {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func sanitizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = Sanitize(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func formatScalar(v any) (string, bool) {
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
	}
	return "", false
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
