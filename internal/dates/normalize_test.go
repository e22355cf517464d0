package dates

import (
	"testing"
	"time"
)

func clinicZone(t *testing.T) *time.Location {
	t.Helper()
	return time.FixedZone("CDT", -5*60*60)
}

func TestNormalize(t *testing.T) {
	loc := clinicZone(t)
	// Wednesday afternoon; the clock time must not leak into results.
	ref := time.Date(2026, time.October, 14, 15, 30, 0, 0, loc)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"today", "Today works", "2026-10-14"},
		{"tomorrow", "how about tomorrow please", "2026-10-15"},
		{"same weekday rolls a week", "Wednesday", "2026-10-21"},
		{"next same weekday", "next Wednesday", "2026-10-21"},
		{"bare weekday later this week", "friday", "2026-10-16"},
		{"this weekday", "this Friday", "2026-10-16"},
		{"next weekday", "next Friday", "2026-10-23"},
		{"weekday wrapping the week", "Monday morning", "2026-10-19"},
		{"month name already passed", "August 18th", "2027-08-18"},
		{"month name later this year", "October 20", "2026-10-20"},
		{"month name abbreviation today", "oct. 14", "2026-10-14"},
		{"month name with year", "December 1st, 2026", "2026-12-01"},
		{"month name explicit past year", "march 3 2025", ""},
		{"day before month", "the 18th of August", "2027-08-18"},
		{"numeric passed", "8/18", "2027-08-18"},
		{"numeric upcoming", "10/30", "2026-10-30"},
		{"numeric two digit year", "10/30/27", "2027-10-30"},
		{"numeric explicit past year", "1/5/2025", ""},
		{"numeric invalid day", "2/30", ""},
		{"numeric invalid month", "13/1", ""},
		{"iso", "2026-11-02", "2026-11-02"},
		{"iso in the past", "2026-10-01", ""},
		{"leap day without a leap year ahead", "february 29", ""},
		{"no date", "sometime soon", ""},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeISO(tt.text, ref)
			if got != tt.want {
				t.Fatalf("NormalizeISO(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestNormalizeTodayIsReference(t *testing.T) {
	loc := clinicZone(t)
	ref := time.Date(2026, time.March, 8, 23, 59, 0, 0, loc)
	got, ok := Normalize("today", ref)
	if !ok {
		t.Fatal("expected today to resolve")
	}
	if !got.Equal(StartOfDay(ref)) {
		t.Fatalf("expected %s, got %s", StartOfDay(ref), got)
	}
	if got.Location() != loc {
		t.Fatalf("expected result in %s, got %s", loc, got.Location())
	}
}

func TestNormalizeWeekdayNeverReturnsReference(t *testing.T) {
	names := []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
	start := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)

	for offset := 0; offset < 21; offset++ {
		ref := start.AddDate(0, 0, offset)
		today := StartOfDay(ref)
		for i, name := range names {
			got, ok := Normalize(name, ref)
			if !ok {
				t.Fatalf("%s from %s did not resolve", name, ref.Format(ISOLayout))
			}
			if got.Weekday() != time.Weekday(i) {
				t.Fatalf("%s from %s resolved to a %s", name, ref.Format(ISOLayout), got.Weekday())
			}
			if !got.After(today) {
				t.Fatalf("%s from %s resolved to %s, expected strictly after", name, ref.Format(ISOLayout), got.Format(ISOLayout))
			}
			if ref.Weekday() == time.Weekday(i) && !got.Equal(today.AddDate(0, 0, 7)) {
				t.Fatalf("same weekday %s should roll exactly a week, got %s", name, got.Format(ISOLayout))
			}
		}
	}
}

func TestNormalizeNeverPast(t *testing.T) {
	inputs := []string{"today", "tomorrow", "next monday", "jan 1", "december 31", "1/1", "12/31", "3/15/2026", "2026-06-01"}
	start := time.Date(2026, time.January, 1, 8, 0, 0, 0, time.UTC)

	for offset := 0; offset < 365; offset += 11 {
		ref := start.AddDate(0, 0, offset)
		for _, in := range inputs {
			got, ok := Normalize(in, ref)
			if ok && got.Before(StartOfDay(ref)) {
				t.Fatalf("Normalize(%q, %s) = %s is in the past", in, ref.Format(ISOLayout), got.Format(ISOLayout))
			}
		}
	}
}

func TestParseISO(t *testing.T) {
	loc := clinicZone(t)
	got, ok := ParseISO(" 2026-10-20 ", loc)
	if !ok {
		t.Fatal("expected valid iso date")
	}
	if got.Day() != 20 || got.Location() != loc {
		t.Fatalf("unexpected parse result %s", got)
	}
	if _, ok := ParseISO("next tuesday", loc); ok {
		t.Fatal("expected free text to be rejected")
	}
	if _, ok := ParseISO("2026-02-30", nil); ok {
		t.Fatal("expected invalid day to be rejected")
	}
}
