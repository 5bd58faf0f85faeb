package policy

import (
	"strconv"
	"strings"
	"time"
)

var weekdayIndex = map[string]time.Weekday{
	"Sun": time.Sunday, "Mon": time.Monday, "Tue": time.Tuesday,
	"Wed": time.Wednesday, "Thu": time.Thursday, "Fri": time.Friday,
	"Sat": time.Saturday,
}

// weekdayOrder gives each weekday a position for resolving inclusive
// ranges like "Fri-Mon" that wrap across the week boundary.
var weekdayOrder = []time.Weekday{
	time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
	time.Thursday, time.Friday, time.Saturday,
}

// MatchesWindows reports whether now (interpreted in loc) falls inside at
// least one of the given window specs. Malformed specs are treated as
// non-matching (fail closed).
func MatchesWindows(windows []string, now time.Time, loc *time.Location) bool {
	local := now.In(loc)
	for _, w := range windows {
		if matchesWindow(w, local) {
			return true
		}
	}
	return false
}

func matchesWindow(spec string, now time.Time) bool {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return false
	}
	parts := strings.SplitN(spec, " ", 2)
	daySpec := parts[0]

	if !dayMatches(daySpec, now.Weekday()) {
		return false
	}
	if len(parts) == 1 {
		// Whole-day spec: day match is sufficient.
		return true
	}

	hourRange := strings.TrimSpace(parts[1])
	startMin, endMin, ok := parseHourRange(hourRange)
	if !ok {
		return false
	}
	nowMin := now.Hour()*60 + now.Minute()
	return startMin <= nowMin && nowMin <= endMin
}

func dayMatches(daySpec string, today time.Weekday) bool {
	if idx := strings.Index(daySpec, "-"); idx >= 0 {
		startName, endName := daySpec[:idx], daySpec[idx+1:]
		start, ok1 := weekdayIndex[startName]
		end, ok2 := weekdayIndex[endName]
		if !ok1 || !ok2 {
			return false
		}
		return weekdayInRange(today, start, end)
	}
	day, ok := weekdayIndex[daySpec]
	if !ok {
		return false
	}
	return day == today
}

// weekdayInRange checks inclusive membership of today in [start, end],
// walking weekdayOrder so a range like "Fri-Mon" wraps across the week.
func weekdayInRange(today, start, end time.Weekday) bool {
	startPos := int(start)
	for i := 0; i < 7; i++ {
		pos := (startPos + i) % 7
		if weekdayOrder[pos] == today {
			return true
		}
		if weekdayOrder[pos] == end {
			break
		}
	}
	return false
}

// parseHourRange parses "HH:MM-HH:MM" into inclusive minute-of-day bounds.
func parseHourRange(s string) (start, end int, ok bool) {
	idx := strings.Index(s, "-")
	if idx < 0 {
		return 0, 0, false
	}
	start, ok1 := parseHHMM(s[:idx])
	end, ok2 := parseHHMM(s[idx+1:])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return start, end, true
}

func parseHHMM(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// ResolveLocation loads the named timezone, defaulting to UTC when tz is
// empty or unresolvable (fail closed: callers should still fail-closed the
// window match, but a bad tz name alone should not crash the decision).
func ResolveLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
