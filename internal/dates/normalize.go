// Package dates resolves spoken day expressions ("next Tuesday", "Aug 18th",
// "8/18") into calendar days that never precede a reference day.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISOLayout is the wire format for calendar days stored on a dialogue state.
const ISOLayout = "2006-01-02"

var (
	todayPattern    = regexp.MustCompile(`\btoday\b`)
	tomorrowPattern = regexp.MustCompile(`\btomorrow\b`)
	weekdayPattern  = regexp.MustCompile(`\b(?:(next|this|coming)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)s?\b`)
	monthDayPattern = regexp.MustCompile(`\b(` + monthAlternation + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	dayMonthPattern = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthAlternation + `)\b`)
	numericPattern  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
	isoPattern      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

const monthAlternation = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january":   time.January,
	"jan":       time.January,
	"february":  time.February,
	"feb":       time.February,
	"march":     time.March,
	"mar":       time.March,
	"april":     time.April,
	"apr":       time.April,
	"may":       time.May,
	"june":      time.June,
	"jun":       time.June,
	"july":      time.July,
	"jul":       time.July,
	"august":    time.August,
	"aug":       time.August,
	"september": time.September,
	"sept":      time.September,
	"sep":       time.September,
	"october":   time.October,
	"oct":       time.October,
	"november":  time.November,
	"nov":       time.November,
	"december":  time.December,
	"dec":       time.December,
}

// Normalize maps a free-text day expression onto a calendar day relative to
// ref. The result is midnight in ref's location and is never before ref's day.
// Resolution order: today, tomorrow, weekday name, month name with day,
// numeric m/d[/y]. Unresolvable or malformed input reports false.
func Normalize(text string, ref time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return time.Time{}, false
	}
	today := StartOfDay(ref)

	if todayPattern.MatchString(s) {
		return today, true
	}
	if tomorrowPattern.MatchString(s) {
		return today.AddDate(0, 0, 1), true
	}
	if m := weekdayPattern.FindStringSubmatch(s); m != nil {
		return resolveWeekday(today, weekdays[m[2]], m[1] == "next"), true
	}
	if m := monthDayPattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[2])
		year := 0
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		return resolveCalendar(today, months[m[1]], day, year)
	}
	if m := dayMonthPattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		return resolveCalendar(today, months[m[2]], day, 0)
	}
	if m := isoPattern.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return resolveCalendar(today, time.Month(month), day, year)
	}
	if m := numericPattern.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year := 0
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
			if len(m[3]) == 2 {
				year += 2000
			}
		}
		return resolveCalendar(today, time.Month(month), day, year)
	}
	return time.Time{}, false
}

// NormalizeISO is Normalize formatted as YYYY-MM-DD, or "" when unresolved.
func NormalizeISO(text string, ref time.Time) string {
	d, ok := Normalize(text, ref)
	if !ok {
		return ""
	}
	return d.Format(ISOLayout)
}

// ParseISO parses a strict YYYY-MM-DD day in loc.
func ParseISO(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(ISOLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// resolveWeekday returns the nearest future occurrence of target. A bare
// weekday equal to today's rolls a full week, as does a "next" qualifier.
func resolveWeekday(today time.Time, target time.Weekday, next bool) time.Time {
	days := (int(target) - int(today.Weekday()) + 7) % 7
	switch {
	case days == 0:
		days = 7
	case next:
		days += 7
	}
	return today.AddDate(0, 0, days)
}

// resolveCalendar builds month/day in the given year, or the nearest
// non-past year when year is zero. Explicit years are never rolled forward,
// so an explicit past date yields no match.
func resolveCalendar(today time.Time, month time.Month, day, year int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	if year != 0 {
		d, ok := validDate(year, month, day, today.Location())
		if !ok || d.Before(today) {
			return time.Time{}, false
		}
		return d, true
	}
	if d, ok := validDate(today.Year(), month, day, today.Location()); ok && !d.Before(today) {
		return d, true
	}
	return validDate(today.Year()+1, month, day, today.Location())
}

func validDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
