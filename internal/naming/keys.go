package naming

import (
	"strings"
)

// keySeparator never appears inside a canonical key, so joined keys cannot collide.
const keySeparator = ":"

// CourseFullKey derives the owner-scoped unique key of a course.
// Two owners creating courses with the same name get distinct keys.
func CourseFullKey(ownerKey, courseKey string) string {
	return ownerKey + keySeparator + courseKey
}

// RecordKey derives the composite key of an attendance record.
func RecordKey(ownerKey, courseKey, labelKey string) string {
	return CourseFullKey(ownerKey, courseKey) + keySeparator + labelKey
}

// SplitCourseFullKey is the inverse of CourseFullKey.
func SplitCourseFullKey(fullKey string) (ownerKey, courseKey string, ok bool) {
	ownerKey, courseKey, ok = strings.Cut(fullKey, keySeparator)
	if !ok || !IsKey(ownerKey) || !IsKey(courseKey) {
		return "", "", false
	}
	return ownerKey, courseKey, true
}

// IsKey reports whether s is a non-empty canonical key.
func IsKey(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isASCIIAlnum(r) {
			return false
		}
	}
	return true
}

// SplitMembers splits a comma-separated roster into canonical member keys.
// Blank entries are dropped and duplicates keep their first position.
func SplitMembers(raw string) []string {
	return DedupeKeys(strings.Split(raw, ","))
}

// DedupeKeys canonicalizes names into keys, dropping empty and repeated ones.
func DedupeKeys(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	keys := make([]string, 0, len(names))
	for _, name := range names {
		key := Key(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
