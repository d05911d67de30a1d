package store

import (
	"regexp"
	"strings"
)

var (
	segmentSpace     = regexp.MustCompile(`[\s\p{Z}]+`)
	segmentForbidden = regexp.MustCompile(`[<>:"/\\|?*#\[\]]`)
	segmentControl   = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
	segmentEdgeDots  = regexp.MustCompile(`^\.+|\.+$`)
)

// SanitizeSegment makes a value safe to use as one path segment: whitespace
// is collapsed, reserved and control characters are removed, and leading or
// trailing dots are dropped.
func SanitizeSegment(value string) string {
	s := strings.TrimSpace(value)
	s = segmentSpace.ReplaceAllString(s, " ")
	s = segmentForbidden.ReplaceAllString(s, "")
	s = segmentControl.ReplaceAllString(s, "")
	s = segmentEdgeDots.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
